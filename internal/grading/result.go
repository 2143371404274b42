package grading

import "strings"

// MaxCriterionScore is the ceiling of every rubric criterion.
const MaxCriterionScore = 25

// CriteriaPerStep is the number of rubric criteria scored for each step.
const CriteriaPerStep = 4

// Warning flags attached to results.
const (
	FlagTooShort        = "too_short"
	FlagFormatError     = "ai_format_error"
	FlagQuotaExceeded   = "quota_exceeded"
	FlagSystemError     = "system_error"
	FlagScoreOutOfRange = "score_out_of_range"
)

// CriticalThinking is the model's estimate of the learner's reasoning depth.
type CriticalThinking string

const (
	CriticalThinkingLow    CriticalThinking = "Low"
	CriticalThinkingMedium CriticalThinking = "Medium"
	CriticalThinkingHigh   CriticalThinking = "High"
)

// Sentiment is a free label; the constants are the values the prompt asks for.
type Sentiment string

const (
	SentimentNeutral   Sentiment = "Neutral"
	SentimentConfident Sentiment = "Confident"
	SentimentConfused  Sentiment = "Confused"
)

// Competency ranks the learner on a four-level scale.
type Competency string

const (
	CompetencyNovice        Competency = "Novice"
	CompetencyApprentice    Competency = "Apprentice"
	CompetencyProficient    Competency = "Proficient"
	CompetencyDistinguished Competency = "Distinguished"
)

// Request is a single grading call.
type Request struct {
	Step int
	Text string
}

// BreakdownItem scores one rubric criterion.
type BreakdownItem struct {
	Criterion string `json:"criteria"`
	Score     int    `json:"score"`
	MaxScore  int    `json:"max_score"`
	Comment   string `json:"comment"`
}

// Result is the normalized grading outcome. Values are treated as immutable once built;
// Clone before mutating a result obtained from the cache.
type Result struct {
	RelevanceScore   int              `json:"relevance_score"`
	CreativityScore  int              `json:"creativity_score"`
	Breakdown        []BreakdownItem  `json:"score_breakdown"`
	Feedback         string           `json:"feedback"`
	CriticalThinking CriticalThinking `json:"critical_thinking"`
	Sentiment        Sentiment        `json:"sentiment"`
	Competency       Competency       `json:"competency_level"`
	SuggestedAction  string           `json:"suggested_action"`
	WarningFlags     []string         `json:"warning_flags"`
}

// HasFlag reports whether the result carries the given warning flag.
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.WarningFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Degraded reports whether the result stands in for a failed grading call.
func (r Result) Degraded() bool {
	return r.HasFlag(FlagTooShort) || r.HasFlag(FlagFormatError) || r.HasFlag(FlagQuotaExceeded) || r.HasFlag(FlagSystemError)
}

// Clone returns a deep copy so callers can never mutate a cached value.
func (r Result) Clone() Result {
	out := r
	if r.Breakdown != nil {
		out.Breakdown = append([]BreakdownItem(nil), r.Breakdown...)
	}
	out.WarningFlags = append([]string{}, r.WarningFlags...)
	return out
}

func sumBreakdown(items []BreakdownItem) int {
	total := 0
	for _, item := range items {
		total += item.Score
	}
	return total
}

// normalizeFlags trims, lower-cases and de-duplicates flags, keeping first-seen order.
func normalizeFlags(flags []string) []string {
	out := make([]string, 0, len(flags))
	seen := make(map[string]struct{}, len(flags))
	for _, flag := range flags {
		flag = strings.ToLower(strings.TrimSpace(flag))
		if flag == "" {
			continue
		}
		if _, ok := seen[flag]; ok {
			continue
		}
		seen[flag] = struct{}{}
		out = append(out, flag)
	}
	return out
}

func addFlag(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}

// degradedResult builds the zero-score placeholder used whenever grading could not run.
func degradedResult(flag, feedback string) Result {
	return Result{
		RelevanceScore:   0,
		CreativityScore:  0,
		Breakdown:        []BreakdownItem{},
		Feedback:         feedback,
		CriticalThinking: CriticalThinkingLow,
		Sentiment:        SentimentNeutral,
		Competency:       CompetencyNovice,
		WarningFlags:     []string{flag},
	}
}

// Degraded feedback messages shown to learners.
const (
	TooShortFeedback      = "เนื้อหาสั้นเกินไป กรุณาอธิบายรายละเอียดให้ชัดเจนกว่านี้ (อย่างน้อย 1-2 ประโยค)"
	FormatErrorFeedback   = "ระบบไม่สามารถประมวลผลคำตอบได้ กรุณาลองใหม่อีกครั้ง"
	QuotaExceededFeedback = "ขออภัย ขณะนี้มีผู้ใช้งานระบบตรวจงานจำนวนมาก กรุณาลองส่งใหม่อีกครั้งในภายหลัง"
	SystemErrorFeedback   = "เกิดปัญหาการเชื่อมต่อกับ AI กรุณาลองใหม่"
	MissingFeedback       = "ระบบไม่สามารถสรุปคำแนะนำได้"
)

// TooShortResult is returned for submissions below the minimum length.
func TooShortResult() Result { return degradedResult(FlagTooShort, TooShortFeedback) }

// FormatErrorResult is returned when the model reply has no usable JSON object.
func FormatErrorResult() Result { return degradedResult(FlagFormatError, FormatErrorFeedback) }

// QuotaExceededResult is returned when retries ran out of time on quota errors.
func QuotaExceededResult() Result { return degradedResult(FlagQuotaExceeded, QuotaExceededFeedback) }

// SystemErrorResult is returned for non-retryable generator failures.
func SystemErrorResult() Result { return degradedResult(FlagSystemError, SystemErrorFeedback) }
