package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/service"
	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

// TrainingHandler exposes training assignment workflow routes.
type TrainingHandler struct {
	service   service.TrainingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTrainingHandler constructs the handler.
func NewTrainingHandler(service service.TrainingService, validate *validator.Validate, logger zerolog.Logger) *TrainingHandler {
	return &TrainingHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "training_handler").Logger(),
	}
}

// Register binds training routes. Assignment and cancellation pass through guard.
func (h *TrainingHandler) Register(router fiber.Router, guard fiber.Handler) {
	if guard == nil {
		guard = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("", h.list)
	router.Post("", guard, h.assign)
	router.Get("/:id", h.get)
	router.Patch("/:id/start", h.start)
	router.Patch("/:id/complete", h.complete)
	router.Patch("/:id/cancel", guard, h.cancel)
}

func (h *TrainingHandler) list(c *fiber.Ctx) error {
	var query dto.TrainingListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid query", validationDetails(err))
	}

	items, meta, err := h.service.List(requestContext(c), query)
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to list trainings")
	}
	return utils.OK(c, items, "training assignments", meta)
}

func (h *TrainingHandler) assign(c *fiber.Ctx) error {
	var payload dto.TrainingAssignRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	assignment, err := h.service.Assign(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to assign training")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "training assigned", assignment)
}

func (h *TrainingHandler) get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid training id")
	}

	assignment, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to load training")
	}
	return utils.SendSuccess(c, "training assignment", assignment)
}

func (h *TrainingHandler) start(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid training id")
	}

	assignment, err := h.service.Start(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to start training")
	}
	return utils.SendSuccess(c, "training started", assignment)
}

func (h *TrainingHandler) complete(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid training id")
	}

	var payload dto.TrainingCompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	assignment, err := h.service.Complete(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to complete training")
	}
	return utils.SendSuccess(c, "training completed", assignment)
}

func (h *TrainingHandler) cancel(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid training id")
	}

	assignment, err := h.service.Cancel(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to cancel training")
	}
	return utils.SendSuccess(c, "training cancelled", assignment)
}
