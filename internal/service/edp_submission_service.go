package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-edp-api/internal/dto"
	"github.com/noah-isme/gema-edp-api/internal/grading"
	"github.com/noah-isme/gema-edp-api/internal/models"
	"github.com/noah-isme/gema-edp-api/internal/repository"
)

// DefaultSubmissionCooldown is the minimum gap between two attempts at the same step.
const DefaultSubmissionCooldown = 15 * time.Second

var (
	// ErrInvalidStep indicates a step number outside the EDP range.
	ErrInvalidStep = errors.New("step number must be between 1 and 6")
	// ErrProjectNotFound indicates the referenced project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectForbidden indicates the actor may not act on the project.
	ErrProjectForbidden = errors.New("project access denied")
	// ErrDuplicateContent indicates the content matches the previous attempt at the step.
	ErrDuplicateContent = errors.New("content identical to previous submission")
	// ErrRateLimited indicates the step was submitted again inside the cooldown.
	ErrRateLimited = errors.New("submission rate limited")
	// ErrEdpStepNotFound indicates the step attempt does not exist.
	ErrEdpStepNotFound = errors.New("edp step not found")
)

// RateLimitError carries the remaining cooldown of a rejected submission.
type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrRateLimited.Error(), e.RetryAfterSeconds())
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds the remaining cooldown up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.Remaining.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Actor identifies the authenticated caller.
type Actor struct {
	ID   uint
	Role string
}

func (a Actor) isReviewer() bool {
	return a.Role == models.RoleTeacher || a.Role == models.RoleAdmin
}

// EdpSubmissionConfig tunes the submission rules.
type EdpSubmissionConfig struct {
	Cooldown time.Duration
}

// EdpSubmissionService accepts, grades and reviews EDP step submissions.
type EdpSubmissionService interface {
	Submit(ctx context.Context, actor Actor, req dto.StepSubmitRequest) (dto.EdpStepResponse, error)
	ListSteps(ctx context.Context, actor Actor, projectID uint) ([]dto.EdpStepResponse, error)
	GradeStep(ctx context.Context, actor Actor, stepID uint, req dto.TeacherGradeRequest) (dto.EdpStepResponse, error)
}

type edpSubmissionService struct {
	projects  repository.ProjectRepository
	steps     repository.EdpStepRepository
	grader    grading.Evaluator
	events    StepEventPublisher
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	cooldown  time.Duration
	now       func() time.Time
}

// NewEdpSubmissionService wires the submission pipeline. events may be nil.
func NewEdpSubmissionService(
	projects repository.ProjectRepository,
	steps repository.EdpStepRepository,
	grader grading.Evaluator,
	events StepEventPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
	cfg EdpSubmissionConfig,
) EdpSubmissionService {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultSubmissionCooldown
	}

	return &edpSubmissionService{
		projects:  projects,
		steps:     steps,
		grader:    grader,
		events:    events,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "edp_submission_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-edp-api/internal/service/edp_submission"),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (s *edpSubmissionService) Submit(ctx context.Context, actor Actor, req dto.StepSubmitRequest) (dto.EdpStepResponse, error) {
	ctx, span := s.tracer.Start(ctx, "edp.submit", trace.WithAttributes(
		attribute.Int64("edp.project_id", int64(req.ProjectID)),
		attribute.Int("edp.step_number", req.StepNumber),
		attribute.Int64("edp.actor_id", int64(actor.ID)),
	))
	defer span.End()

	fail := func(err error, status string) (dto.EdpStepResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return dto.EdpStepResponse{}, err
	}

	if !grading.ValidStep(req.StepNumber) {
		return fail(ErrInvalidStep, "invalid_step")
	}
	if err := s.validator.Struct(req); err != nil {
		return fail(err, "validation_failed")
	}

	project, err := s.authorizeProject(ctx, actor, req.ProjectID)
	if err != nil {
		return fail(err, "project_access")
	}

	content := strings.TrimSpace(req.Content)

	lastSameStep, err := s.steps.LatestForStep(ctx, project.ID, req.StepNumber)
	if err != nil {
		return fail(fmt.Errorf("load previous attempt: %w", err), "history_lookup_failed")
	}

	now := s.now()
	if lastSameStep != nil {
		if strings.TrimSpace(lastSameStep.Content) == content {
			return fail(ErrDuplicateContent, "duplicate_content")
		}
		if elapsed := now.Sub(lastSameStep.CreatedAt); elapsed < s.cooldown {
			return fail(&RateLimitError{Remaining: s.cooldown - elapsed}, "rate_limited")
		}
	}

	latest, err := s.steps.LatestForProject(ctx, project.ID)
	if err != nil {
		return fail(fmt.Errorf("load latest attempt: %w", err), "history_lookup_failed")
	}
	attempt := nextAttemptCount(latest, lastSameStep, req.StepNumber)

	result := s.grader.Evaluate(ctx, grading.Request{Step: req.StepNumber, Text: content})

	step := models.EdpStep{
		ProjectID:        project.ID,
		StepNumber:       req.StepNumber,
		Content:          content,
		AIFeedback:       result.Feedback,
		Score:            float64(result.RelevanceScore),
		CreativityScore:  float64(result.CreativityScore),
		ScoreBreakdown:   breakdownColumn(result.Breakdown),
		WarningFlags:     datatypes.JSONSlice[string](append([]string{}, result.WarningFlags...)),
		CriticalThinking: string(result.CriticalThinking),
		Sentiment:        string(result.Sentiment),
		CompetencyLevel:  string(result.Competency),
		SuggestedAction:  result.SuggestedAction,
		WordCount:        len(strings.Fields(content)),
		AttemptCount:     attempt,
		TimeSpentSeconds: req.TimeSpentSeconds,
		Status:           models.EdpStepStatusSubmitted,
		CreatedAt:        now,
	}

	if err := s.steps.Create(ctx, &step); err != nil {
		return fail(fmt.Errorf("store step attempt: %w", err), "persist_failed")
	}

	response := dto.NewEdpStepResponse(step)
	span.SetAttributes(
		attribute.Int("edp.attempt_count", attempt),
		attribute.Float64("edp.score", step.Score),
		attribute.StringSlice("edp.warning_flags", result.WarningFlags),
	)

	if s.events != nil {
		if err := s.events.PublishStepGraded(ctx, project.OwnerID, response); err != nil {
			s.logger.Warn().Err(err).Uint("step_id", step.ID).Msg("failed to publish step event")
		}
	}

	s.logger.Info().
		Uint("project_id", project.ID).
		Int("step_number", step.StepNumber).
		Int("attempt", attempt).
		Float64("score", step.Score).
		Strs("warning_flags", result.WarningFlags).
		Msg("edp step graded")

	return response, nil
}

func (s *edpSubmissionService) ListSteps(ctx context.Context, actor Actor, projectID uint) ([]dto.EdpStepResponse, error) {
	ctx, span := s.tracer.Start(ctx, "edp.list_steps", trace.WithAttributes(
		attribute.Int64("edp.project_id", int64(projectID)),
	))
	defer span.End()

	project, err := s.authorizeProject(ctx, actor, projectID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	steps, err := s.steps.ListByProject(ctx, project.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return dto.NewEdpStepResponses(steps), nil
}

func (s *edpSubmissionService) GradeStep(ctx context.Context, actor Actor, stepID uint, req dto.TeacherGradeRequest) (dto.EdpStepResponse, error) {
	ctx, span := s.tracer.Start(ctx, "edp.teacher_grade", trace.WithAttributes(
		attribute.Int64("edp.step_id", int64(stepID)),
		attribute.Int64("edp.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if !actor.isReviewer() {
		span.SetStatus(codes.Error, "forbidden")
		return dto.EdpStepResponse{}, ErrProjectForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.EdpStepResponse{}, err
	}

	step, err := s.steps.GetByID(ctx, stepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EdpStepResponse{}, ErrEdpStepNotFound
		}
		span.RecordError(err)
		return dto.EdpStepResponse{}, err
	}

	score := req.TeacherScore
	step.TeacherScore = &score
	step.TeacherComment = strings.TrimSpace(s.sanitizer.Sanitize(req.TeacherComment))
	step.IsTeacherReviewed = true
	step.Status = models.EdpStepStatusReviewed

	if err := s.steps.Update(ctx, &step); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update_failed")
		return dto.EdpStepResponse{}, err
	}

	s.logger.Info().
		Uint("step_id", step.ID).
		Uint("reviewer_id", actor.ID).
		Float64("teacher_score", score).
		Msg("edp step reviewed")

	return dto.NewEdpStepResponse(step), nil
}

func (s *edpSubmissionService) authorizeProject(ctx context.Context, actor Actor, projectID uint) (models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Project{}, ErrProjectNotFound
		}
		return models.Project{}, fmt.Errorf("load project: %w", err)
	}

	if project.OwnerID != actor.ID && !actor.isReviewer() {
		return models.Project{}, ErrProjectForbidden
	}

	return project, nil
}

// nextAttemptCount restarts the count when the learner moved to another step
// since their last attempt at this one.
func nextAttemptCount(latest, lastSameStep *models.EdpStep, step int) int {
	if latest != nil && latest.StepNumber != step {
		return 1
	}
	if lastSameStep != nil {
		return lastSameStep.AttemptCount + 1
	}
	return 1
}

func breakdownColumn(items []grading.BreakdownItem) datatypes.JSONSlice[models.ScoreBreakdownItem] {
	out := make(datatypes.JSONSlice[models.ScoreBreakdownItem], 0, len(items))
	for _, item := range items {
		out = append(out, models.ScoreBreakdownItem{
			Criterion: item.Criterion,
			Score:     item.Score,
			MaxScore:  item.MaxScore,
			Comment:   item.Comment,
		})
	}
	return out
}
