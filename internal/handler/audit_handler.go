package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/service"
	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

// AuditHandler exposes audit schedule workflow routes.
type AuditHandler struct {
	service   service.AuditService
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewAuditHandler(service service.AuditService, validate *validator.Validate, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "audit_handler").Logger(),
	}
}

// Register binds audit routes. Every state change passes through guard.
func (h *AuditHandler) Register(router fiber.Router, guard fiber.Handler) {
	if guard == nil {
		guard = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("", h.list)
	router.Post("", guard, h.schedule)
	router.Get("/:id", h.get)
	router.Patch("/:id/start", guard, h.start)
	router.Patch("/:id/complete", guard, h.complete)
	router.Patch("/:id/cancel", guard, h.cancel)
}

func (h *AuditHandler) list(c *fiber.Ctx) error {
	var query dto.AuditListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid query", validationDetails(err))
	}

	items, meta, err := h.service.List(requestContext(c), query)
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to list audits")
	}
	return utils.OK(c, items, "audit schedules", meta)
}

func (h *AuditHandler) schedule(c *fiber.Ctx) error {
	var payload dto.AuditScheduleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	audit, err := h.service.Schedule(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to schedule audit")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "audit scheduled", audit)
}

func (h *AuditHandler) get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid audit id")
	}

	audit, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to load audit")
	}
	return utils.SendSuccess(c, "audit schedule", audit)
}

func (h *AuditHandler) start(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid audit id")
	}

	audit, err := h.service.Start(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to start audit")
	}
	return utils.SendSuccess(c, "audit started", audit)
}

func (h *AuditHandler) complete(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid audit id")
	}

	var payload dto.AuditCompleteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	audit, err := h.service.Complete(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to complete audit")
	}
	return utils.SendSuccess(c, "audit completed", audit)
}

func (h *AuditHandler) cancel(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid audit id")
	}

	audit, err := h.service.Cancel(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return sendRemediationError(c, h.logger, err, "failed to cancel audit")
	}
	return utils.SendSuccess(c, "audit cancelled", audit)
}
