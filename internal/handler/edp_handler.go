package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-edp-api/internal/dto"
	"github.com/noah-isme/gema-edp-api/internal/middleware"
	"github.com/noah-isme/gema-edp-api/internal/models"
	"github.com/noah-isme/gema-edp-api/internal/observability"
	"github.com/noah-isme/gema-edp-api/internal/service"
	"github.com/noah-isme/gema-edp-api/internal/utils"
)

// EdpHandler exposes the EDP submission endpoints.
type EdpHandler struct {
	service       service.EdpSubmissionService
	logger        zerolog.Logger
	submitLimiter fiber.Handler
}

// NewEdpHandler builds an EDP handler. submitLimiter may be nil.
func NewEdpHandler(service service.EdpSubmissionService, submitLimiter fiber.Handler, logger zerolog.Logger) *EdpHandler {
	return &EdpHandler{
		service:       service,
		submitLimiter: submitLimiter,
		logger:        logger.With().Str("component", "edp_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *EdpHandler) Register(router fiber.Router) {
	submit := []fiber.Handler{h.submit}
	if h.submitLimiter != nil {
		submit = append([]fiber.Handler{h.submitLimiter}, submit...)
	}
	router.Post("/submit", submit...)
	router.Get("/projects/:id/steps", h.listSteps)
	router.Patch("/steps/:id/grade", middleware.RequireRole(models.RoleTeacher, models.RoleAdmin), h.gradeStep)
}

func (h *EdpHandler) submit(c *fiber.Ctx) error {
	var payload dto.StepSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	step, err := h.service.Submit(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "step submitted", step)
}

func (h *EdpHandler) listSteps(c *fiber.Ctx) error {
	projectID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	steps, err := h.service.ListSteps(c.UserContext(), actorFromContext(c), projectID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, steps, "steps retrieved", fiber.Map{"count": len(steps)})
}

func (h *EdpHandler) gradeStep(c *fiber.Ctx) error {
	stepID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var payload dto.TeacherGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	step, err := h.service.GradeStep(c.UserContext(), actorFromContext(c), stepID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "step reviewed", step)
}

func (h *EdpHandler) handleError(c *fiber.Ctx, err error) error {
	var rateErr *service.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		observability.SubmissionsRejected().WithLabelValues("rate_limited").Inc()
		retryAfter := rateErr.RetryAfterSeconds()
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		return utils.Fail(c, fiber.StatusTooManyRequests, "please wait before resubmitting this step", fiber.Map{
			"retry_after_seconds": retryAfter,
		})
	case errors.Is(err, service.ErrDuplicateContent):
		observability.SubmissionsRejected().WithLabelValues("duplicate").Inc()
		return utils.Fail(c, fiber.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidStep):
		observability.SubmissionsRejected().WithLabelValues("invalid_step").Inc()
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, service.ErrEdpStepNotFound):
		return utils.Fail(c, fiber.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrProjectForbidden):
		observability.SubmissionsRejected().WithLabelValues("forbidden").Inc()
		return utils.Fail(c, fiber.StatusForbidden, err.Error(), nil)
	}

	if details, ok := validationDetails(err); ok {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	}

	requestLogger(h.logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
	return utils.Fail(c, fiber.StatusInternalServerError, "internal server error", nil)
}
