package grading

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const wellFormedReply = "Here is my evaluation:\n```json\n" + `{
  "relevance_score": 99,
  "creativity_score": 70,
  "score_breakdown": [
    {"criteria": "Clarity", "score": 20, "max_score": 25, "comment": "ชัดเจน"},
    {"criteria": "Background", "score": 15, "max_score": 25, "comment": "พอใช้"},
    {"criteria": "Target User", "score": 10, "max_score": 25, "comment": "ยังไม่ชัด"},
    {"criteria": "Feasibility", "score": 5, "max_score": 25, "comment": "ขาดข้อมูล {brace}"}
  ],
  "feedback": "ทำได้ดี",
  "critical_thinking": "medium",
  "sentiment": "Confident",
  "competency_level": "Proficient",
  "warning_flags": ["Off_Topic", "off_topic"],
  "suggested_action": "เพิ่มข้อมูลผู้ใช้"
}` + "\n```\nGood luck!"

func TestNormalizeRecomputesAggregate(t *testing.T) {
	result, err := Normalize(1, wellFormedReply)
	require.NoError(t, err)

	require.Equal(t, 50, result.RelevanceScore)
	require.Equal(t, 70, result.CreativityScore)
	require.Len(t, result.Breakdown, CriteriaPerStep)
	require.Equal(t, "Clarity", result.Breakdown[0].Criterion)
	require.Equal(t, MaxCriterionScore, result.Breakdown[3].MaxScore)
	require.Equal(t, "ขาดข้อมูล {brace}", result.Breakdown[3].Comment)
	require.Equal(t, CriticalThinkingMedium, result.CriticalThinking)
	require.Equal(t, SentimentConfident, result.Sentiment)
	require.Equal(t, CompetencyProficient, result.Competency)
	require.Equal(t, []string{"off_topic"}, result.WarningFlags)
	require.Equal(t, "เพิ่มข้อมูลผู้ใช้", result.SuggestedAction)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	result, err := Normalize(2, `{"score_breakdown": [{"score": 12}]}`)
	require.NoError(t, err)

	require.Equal(t, 12, result.RelevanceScore)
	require.Equal(t, 0, result.CreativityScore)
	require.Equal(t, MissingFeedback, result.Feedback)
	require.NotNil(t, result.WarningFlags)
	require.Empty(t, result.WarningFlags)
	require.Equal(t, CriticalThinkingLow, result.CriticalThinking)
	require.Equal(t, SentimentNeutral, result.Sentiment)
	require.Equal(t, CompetencyNovice, result.Competency)

	criteria := Criteria(2)
	require.Len(t, result.Breakdown, CriteriaPerStep)
	for i, item := range result.Breakdown {
		require.Equal(t, criteria[i], item.Criterion)
	}
	require.Zero(t, result.Breakdown[3].Score)
}

func TestNormalizeAcceptsLegacyFeedbackKey(t *testing.T) {
	result, err := Normalize(3, `{"feedback_th": "ดีมาก", "score_breakdown": []}`)
	require.NoError(t, err)
	require.Equal(t, "ดีมาก", result.Feedback)
}

func TestNormalizeWithoutObjectIsFormatError(t *testing.T) {
	for _, raw := range []string{"I cannot grade this.", "", "{ unbalanced", "```json\n```"} {
		result, err := Normalize(1, raw)
		require.Error(t, err, raw)
		require.True(t, errors.Is(err, ErrFormat))
		require.Zero(t, result.RelevanceScore)
		require.True(t, result.HasFlag(FlagFormatError))
		require.Equal(t, FormatErrorFeedback, result.Feedback)
	}
}

func TestNormalizeRejectsWrongShapes(t *testing.T) {
	_, err := Normalize(1, `{"score_breakdown": [{"score": "twenty"}]}`)
	require.True(t, errors.Is(err, ErrFormat))

	_, err = Normalize(1, `{"warning_flags": "nonsense"}`)
	require.True(t, errors.Is(err, ErrFormat))
}

func TestNormalizeClampsOutOfRangeScores(t *testing.T) {
	result, err := Normalize(4, `{"creativity_score": 140, "score_breakdown": [
		{"score": 30}, {"score": -4}, {"score": 25}, {"score": 10.6}
	]}`)
	require.NoError(t, err)

	require.Equal(t, []int{25, 0, 25, 11}, []int{
		result.Breakdown[0].Score, result.Breakdown[1].Score, result.Breakdown[2].Score, result.Breakdown[3].Score,
	})
	require.Equal(t, 61, result.RelevanceScore)
	require.Equal(t, 100, result.CreativityScore)
	require.True(t, result.HasFlag(FlagScoreOutOfRange))

	huge, err := Normalize(1, `{"creativity_score": 1e30, "score_breakdown": [
		{"score": 1e20}, {"score": -1e20}, {"score": 25}, {"score": 0}
	]}`)
	require.NoError(t, err)
	require.Equal(t, 25, huge.Breakdown[0].Score)
	require.Equal(t, 0, huge.Breakdown[1].Score)
	require.Equal(t, 50, huge.RelevanceScore)
	require.Equal(t, 100, huge.CreativityScore)
	require.True(t, huge.HasFlag(FlagScoreOutOfRange))
}

func TestNormalizeBoundaryScoresAreNotFlagged(t *testing.T) {
	result, err := Normalize(2, `{"creativity_score": 100, "score_breakdown": [
		{"score": 25}, {"score": 0}, {"score": 24.6}, {"score": 0.4}
	]}`)
	require.NoError(t, err)
	require.Equal(t, 50, result.RelevanceScore)
	require.Equal(t, 100, result.CreativityScore)
	require.False(t, result.HasFlag(FlagScoreOutOfRange))
}

func TestNormalizeKeepsBackticksInsideStrings(t *testing.T) {
	raw := "```json\n" + `{"feedback": "use ` + "```code```" + ` blocks", "score_breakdown": []}` + "\n```"
	result, err := Normalize(3, raw)
	require.NoError(t, err)
	require.Equal(t, "use ```code``` blocks", result.Feedback)
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\": 1}\n```": `{"a": 1}`,
		"```JSON\n{\"a\": 1}```":   `{"a": 1}`,
		"```json {\"a\": 1} ```":     `{"a": 1}`,
		"  {\"a\": \"``\"}  ":        "{\"a\": \"``\"}",
	}
	for raw, want := range cases {
		require.Equal(t, want, stripCodeFences(raw), raw)
	}
}

func TestNormalizeIgnoresExtraBreakdownItems(t *testing.T) {
	result, err := Normalize(5, `{"score_breakdown": [{"score": 1}, {"score": 2}, {"score": 3}, {"score": 4}, {"score": 25}]}`)
	require.NoError(t, err)
	require.Len(t, result.Breakdown, CriteriaPerStep)
	require.Equal(t, 10, result.RelevanceScore)
}

func TestExtractObjectSkipsBracesInStrings(t *testing.T) {
	object, ok := extractObject(`noise {"a": "}{", "b": {"c": "\"}"}} trailing {"d": 1}`)
	require.True(t, ok)
	require.Equal(t, `{"a": "}{", "b": {"c": "\"}"}}`, object)
}

func TestParseSentimentKeepsShortCustomLabels(t *testing.T) {
	require.Equal(t, Sentiment("Curious"), parseSentiment(" Curious "))
	require.Equal(t, SentimentNeutral, parseSentiment("an extremely long label that the model invented for no reason"))
}
