package dto

import (
	"time"

	"github.com/noah-isme/gema-edp-api/internal/models"
)

// StepSubmitRequest is the payload for submitting one EDP step.
type StepSubmitRequest struct {
	ProjectID        uint   `json:"project_id" validate:"required,gt=0"`
	StepNumber       int    `json:"step_number" validate:"min=1,max=6"`
	Content          string `json:"content" validate:"max=20000"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"gte=0"`
}

// TeacherGradeRequest overrides the AI score of a step.
type TeacherGradeRequest struct {
	TeacherScore   float64 `json:"teacher_score" validate:"gte=0,lte=100"`
	TeacherComment string  `json:"teacher_comment" validate:"max=4000"`
}

// ScoreBreakdownItemResponse describes one rubric criterion score.
type ScoreBreakdownItemResponse struct {
	Criterion string `json:"criteria"`
	Score     int    `json:"score"`
	MaxScore  int    `json:"max_score"`
	Comment   string `json:"comment"`
}

// EdpStepResponse represents a graded step to API consumers.
type EdpStepResponse struct {
	ID                uint                         `json:"id"`
	ProjectID         uint                         `json:"project_id"`
	StepNumber        int                          `json:"step_number"`
	Content           string                       `json:"content"`
	AIFeedback        string                       `json:"ai_feedback"`
	Score             float64                      `json:"score"`
	EffectiveScore    float64                      `json:"effective_score"`
	CreativityScore   float64                      `json:"creativity_score"`
	ScoreBreakdown    []ScoreBreakdownItemResponse `json:"score_breakdown"`
	WarningFlags      []string                     `json:"warning_flags"`
	CriticalThinking  string                       `json:"critical_thinking"`
	Sentiment         string                       `json:"sentiment"`
	CompetencyLevel   string                       `json:"competency_level"`
	SuggestedAction   string                       `json:"suggested_action"`
	WordCount         int                          `json:"word_count"`
	AttemptCount      int                          `json:"attempt_count"`
	TimeSpentSeconds  int                          `json:"time_spent_seconds"`
	Status            string                       `json:"status"`
	TeacherScore      *float64                     `json:"teacher_score,omitempty"`
	TeacherComment    string                       `json:"teacher_comment,omitempty"`
	IsTeacherReviewed bool                         `json:"is_teacher_reviewed"`
	CreatedAt         time.Time                    `json:"created_at"`
}

// NewEdpStepResponse builds a response DTO from a model.
func NewEdpStepResponse(step models.EdpStep) EdpStepResponse {
	breakdown := make([]ScoreBreakdownItemResponse, 0, len(step.ScoreBreakdown))
	for _, item := range step.ScoreBreakdown {
		breakdown = append(breakdown, ScoreBreakdownItemResponse{
			Criterion: item.Criterion,
			Score:     item.Score,
			MaxScore:  item.MaxScore,
			Comment:   item.Comment,
		})
	}

	flags := append([]string{}, step.WarningFlags...)

	return EdpStepResponse{
		ID:                step.ID,
		ProjectID:         step.ProjectID,
		StepNumber:        step.StepNumber,
		Content:           step.Content,
		AIFeedback:        step.AIFeedback,
		Score:             step.Score,
		EffectiveScore:    step.EffectiveScore(),
		CreativityScore:   step.CreativityScore,
		ScoreBreakdown:    breakdown,
		WarningFlags:      flags,
		CriticalThinking:  step.CriticalThinking,
		Sentiment:         step.Sentiment,
		CompetencyLevel:   step.CompetencyLevel,
		SuggestedAction:   step.SuggestedAction,
		WordCount:         step.WordCount,
		AttemptCount:      step.AttemptCount,
		TimeSpentSeconds:  step.TimeSpentSeconds,
		Status:            step.Status,
		TeacherScore:      step.TeacherScore,
		TeacherComment:    step.TeacherComment,
		IsTeacherReviewed: step.IsTeacherReviewed,
		CreatedAt:         step.CreatedAt,
	}
}

// NewEdpStepResponses converts a slice of steps.
func NewEdpStepResponses(steps []models.EdpStep) []EdpStepResponse {
	out := make([]EdpStepResponse, 0, len(steps))
	for _, step := range steps {
		out = append(out, NewEdpStepResponse(step))
	}
	return out
}
