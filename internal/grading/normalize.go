package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrFormat reports a model reply that does not contain a usable JSON object.
var ErrFormat = errors.New("grading: malformed model response")

const maxLabelLength = 32

const responseSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "relevance_score": {"type": ["number", "null"]},
    "creativity_score": {"type": ["number", "null"]},
    "score_breakdown": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "criteria": {"type": ["string", "null"]},
          "score": {"type": ["number", "null"]},
          "max_score": {"type": ["number", "null"]},
          "comment": {"type": ["string", "null"]}
        }
      }
    },
    "feedback": {"type": ["string", "null"]},
    "feedback_th": {"type": ["string", "null"]},
    "critical_thinking": {"type": ["string", "null"]},
    "sentiment": {"type": ["string", "null"]},
    "competency_level": {"type": ["string", "null"]},
    "suggested_action": {"type": ["string", "null"]},
    "warning_flags": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var responseSchema = jsonschema.MustCompileString("grading-response.schema.json", responseSchemaJSON)

type rawItem struct {
	Criteria string   `json:"criteria"`
	Score    *float64 `json:"score"`
	Comment  string   `json:"comment"`
}

type rawResponse struct {
	CreativityScore  *float64  `json:"creativity_score"`
	ScoreBreakdown   []rawItem `json:"score_breakdown"`
	Feedback         string    `json:"feedback"`
	FeedbackTH       string    `json:"feedback_th"`
	CriticalThinking string    `json:"critical_thinking"`
	Sentiment        string    `json:"sentiment"`
	Competency       string    `json:"competency_level"`
	SuggestedAction  string    `json:"suggested_action"`
	WarningFlags     []string  `json:"warning_flags"`
}

// Normalize converts a raw model reply into a Result. Replies without a usable JSON object yield
// FormatErrorResult together with an error wrapping ErrFormat, so the caller always has a
// persistable result.
func Normalize(step int, raw string) (Result, error) {
	result, err := parseResponse(step, raw)
	if err != nil {
		return FormatErrorResult(), err
	}
	return result, nil
}

// parseResponse strictly parses and validates a raw model reply. The aggregate score is always
// recomputed from the breakdown; any aggregate supplied by the model is ignored.
func parseResponse(step int, raw string) (Result, error) {
	object, ok := extractObject(stripCodeFences(raw))
	if !ok {
		return Result{}, fmt.Errorf("%w: no json object found", ErrFormat)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(object), &doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := responseSchema.Validate(doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	var payload rawResponse
	if err := json.Unmarshal([]byte(object), &payload); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	flags := normalizeFlags(payload.WarningFlags)
	outOfRange := false

	criteria := Criteria(step)
	breakdown := make([]BreakdownItem, CriteriaPerStep)
	for i := range breakdown {
		item := BreakdownItem{Criterion: criteria[i], MaxScore: MaxCriterionScore}
		if i < len(payload.ScoreBreakdown) {
			src := payload.ScoreBreakdown[i]
			if name := strings.TrimSpace(src.Criteria); name != "" {
				item.Criterion = name
			}
			item.Comment = strings.TrimSpace(src.Comment)
			if src.Score != nil {
				score, clamped := clampScore(*src.Score, MaxCriterionScore)
				item.Score = score
				outOfRange = outOfRange || clamped
			}
		}
		breakdown[i] = item
	}

	creativity := 0
	if payload.CreativityScore != nil {
		score, clamped := clampScore(*payload.CreativityScore, 100)
		creativity = score
		outOfRange = outOfRange || clamped
	}
	if outOfRange {
		flags = addFlag(flags, FlagScoreOutOfRange)
	}

	feedback := strings.TrimSpace(payload.Feedback)
	if feedback == "" {
		feedback = strings.TrimSpace(payload.FeedbackTH)
	}
	if feedback == "" {
		feedback = MissingFeedback
	}

	return Result{
		RelevanceScore:   sumBreakdown(breakdown),
		CreativityScore:  creativity,
		Breakdown:        breakdown,
		Feedback:         feedback,
		CriticalThinking: parseCriticalThinking(payload.CriticalThinking),
		Sentiment:        parseSentiment(payload.Sentiment),
		Competency:       parseCompetency(payload.Competency),
		SuggestedAction:  strings.TrimSpace(payload.SuggestedAction),
		WarningFlags:     flags,
	}, nil
}

func clampScore(value float64, max int) (int, bool) {
	switch {
	case math.IsNaN(value):
		return 0, true
	case value >= float64(max):
		return max, value > float64(max)
	case value <= 0:
		return 0, value < 0
	}
	return int(math.Round(value)), false
}

// stripCodeFences removes a leading fence line and a trailing fence. Backticks inside the
// payload are left alone.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if newline := strings.IndexByte(s, '\n'); newline >= 0 {
			s = s[newline+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```JSON"), "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced {...} block, skipping braces inside JSON strings.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func parseCriticalThinking(value string) CriticalThinking {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return CriticalThinkingHigh
	case "medium":
		return CriticalThinkingMedium
	default:
		return CriticalThinkingLow
	}
}

func parseCompetency(value string) Competency {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "apprentice":
		return CompetencyApprentice
	case "proficient":
		return CompetencyProficient
	case "distinguished":
		return CompetencyDistinguished
	default:
		return CompetencyNovice
	}
}

func parseSentiment(value string) Sentiment {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "":
		return SentimentNeutral
	case "neutral":
		return SentimentNeutral
	case "confident":
		return SentimentConfident
	case "confused":
		return SentimentConfused
	}
	if utf8.RuneCountInString(value) > maxLabelLength {
		return SentimentNeutral
	}
	return Sentiment(value)
}
