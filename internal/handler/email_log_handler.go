package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/service"
	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

// EmailLogHandler exposes the email delivery log.
type EmailLogHandler struct {
	service   service.EmailLogService
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewEmailLogHandler(service service.EmailLogService, validate *validator.Validate, logger zerolog.Logger) *EmailLogHandler {
	return &EmailLogHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "email_log_handler").Logger(),
	}
}

// Register binds email log routes.
func (h *EmailLogHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("/:id/resend", h.resend)
}

func (h *EmailLogHandler) list(c *fiber.Ctx) error {
	var query dto.EmailLogListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid query", validationDetails(err))
	}

	items, meta, err := h.service.List(requestContext(c), query)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list email logs")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list email logs")
	}
	return utils.OK(c, items, "email logs", meta)
}

func (h *EmailLogHandler) resend(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid email log id")
	}

	log, err := h.service.Resend(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailLogNotFound):
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrEmailNotResendable):
			return utils.SendError(c, fiber.StatusConflict, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to resend email")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to resend email")
		}
	}
	return utils.SendSuccess(c, "email resent", log)
}
