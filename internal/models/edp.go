package models

import (
	"time"

	"gorm.io/datatypes"
)

// EDP step statuses.
const (
	EdpStepStatusSubmitted = "submitted"
	EdpStepStatusReviewed  = "reviewed"
)

// Project statuses.
const (
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
)

// Project groups a learner's six EDP steps.
type Project struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	Status      string    `gorm:"size:32;default:in_progress" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Steps       []EdpStep `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"steps,omitempty"`
}

// ScoreBreakdownItem is the persisted score for one rubric criterion.
type ScoreBreakdownItem struct {
	Criterion string `json:"criteria"`
	Score     int    `json:"score"`
	MaxScore  int    `json:"max_score"`
	Comment   string `json:"comment"`
}

// EdpStep is one graded submission attempt for a project step.
type EdpStep struct {
	ID                uint                                    `gorm:"primaryKey" json:"id"`
	ProjectID         uint                                    `gorm:"not null;index:idx_edp_steps_project_step,priority:1;index:idx_edp_steps_project_created,priority:1" json:"project_id"`
	StepNumber        int                                     `gorm:"not null;index:idx_edp_steps_project_step,priority:2" json:"step_number"`
	Content           string                                  `gorm:"type:text" json:"content"`
	AIFeedback        string                                  `gorm:"type:text" json:"ai_feedback"`
	Score             float64                                 `gorm:"not null;default:0" json:"score"`
	CreativityScore   float64                                 `gorm:"not null;default:0" json:"creativity_score"`
	ScoreBreakdown    datatypes.JSONSlice[ScoreBreakdownItem] `json:"score_breakdown"`
	WarningFlags      datatypes.JSONSlice[string]             `json:"warning_flags"`
	CriticalThinking  string                                  `gorm:"size:16" json:"critical_thinking"`
	Sentiment         string                                  `gorm:"size:32" json:"sentiment"`
	CompetencyLevel   string                                  `gorm:"size:32" json:"competency_level"`
	SuggestedAction   string                                  `gorm:"type:text" json:"suggested_action"`
	WordCount         int                                     `gorm:"not null;default:0" json:"word_count"`
	AttemptCount      int                                     `gorm:"not null" json:"attempt_count"`
	TimeSpentSeconds  int                                     `gorm:"not null;default:0" json:"time_spent_seconds"`
	Status            string                                  `gorm:"size:32;not null" json:"status"`
	TeacherScore      *float64                                `json:"teacher_score"`
	TeacherComment    string                                  `gorm:"type:text" json:"teacher_comment"`
	IsTeacherReviewed bool                                    `gorm:"not null;default:false" json:"is_teacher_reviewed"`
	CreatedAt         time.Time                               `gorm:"index:idx_edp_steps_project_created,priority:2" json:"created_at"`
	UpdatedAt         time.Time                               `json:"updated_at"`
}

// EffectiveScore prefers the teacher's override over the AI score.
func (s EdpStep) EffectiveScore() float64 {
	if s.TeacherScore != nil {
		return *s.TeacherScore
	}
	return s.Score
}
