package grading

import (
	"fmt"
	"strings"
)

// DefaultLocale is the feedback language requested when none is configured.
const DefaultLocale = "Thai (ภาษาไทย)"

// BuildPrompt renders the evaluation instructions for a submission. It is pure and deterministic.
func BuildPrompt(step int, text, locale string) string {
	if strings.TrimSpace(locale) == "" {
		locale = DefaultLocale
	}
	criteria := Criteria(step)

	var b strings.Builder
	fmt.Fprintf(&b, "Act as a strict Senior Engineering Professor evaluating a student's Engineering Design Process project submission (Step %d).\n\n", step)
	b.WriteString("## Student Input\n")
	b.WriteString("<<<\n")
	b.WriteString(text)
	b.WriteString("\n>>>\n\n")

	fmt.Fprintf(&b, "## Evaluation Criteria (Total 100 points, %d points each)\n", MaxCriterionScore)
	for i, criterion := range criteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, criterion)
	}

	b.WriteString("\n## Instructions\n")
	fmt.Fprintf(&b, "- Rate each criterion STRICTLY as an integer from 0 to %d. Give 0 if missing, %d only for perfection.\n", MaxCriterionScore, MaxCriterionScore)
	b.WriteString("- 'relevance_score' MUST be the sum of all score_breakdown scores.\n")
	b.WriteString("- 'creativity_score' is an integer from 0 to 100 judged independently of the rubric.\n")
	fmt.Fprintf(&b, "- Write 'feedback', every 'comment' and 'suggested_action' in %s.\n", locale)
	b.WriteString("- 'critical_thinking' must be one of: Low, Medium, High.\n")
	b.WriteString("- 'sentiment' must be one of: Neutral, Confident, Confused.\n")
	b.WriteString("- 'competency_level' must be one of: Novice, Apprentice, Proficient, Distinguished.\n")
	b.WriteString("- Put short snake_case tokens in 'warning_flags' for problems such as nonsense, copied_text or off_topic.\n")

	b.WriteString("\n## Response Format\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString("{\n")
	b.WriteString("  \"relevance_score\": <integer 0-100>,\n")
	b.WriteString("  \"creativity_score\": <integer 0-100>,\n")
	b.WriteString("  \"score_breakdown\": [\n")
	for i, criterion := range criteria {
		sep := ","
		if i == len(criteria)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    {\"criteria\": %q, \"score\": <integer 0-%d>, \"max_score\": %d, \"comment\": \"<short comment>\"}%s\n", criterion, MaxCriterionScore, MaxCriterionScore, sep)
	}
	b.WriteString("  ],\n")
	b.WriteString("  \"feedback\": \"<constructive feedback, 2-3 sentences>\",\n")
	b.WriteString("  \"critical_thinking\": \"<Low|Medium|High>\",\n")
	b.WriteString("  \"sentiment\": \"<Neutral|Confident|Confused>\",\n")
	b.WriteString("  \"competency_level\": \"<Novice|Apprentice|Proficient|Distinguished>\",\n")
	b.WriteString("  \"warning_flags\": [],\n")
	b.WriteString("  \"suggested_action\": \"<specific next step>\"\n")
	b.WriteString("}\n")

	return b.String()
}
