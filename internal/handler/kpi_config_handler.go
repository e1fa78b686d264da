package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/service"
	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

// KPIConfigHandler exposes the versioned rule table.
type KPIConfigHandler struct {
	service service.KPIConfigService
	logger  zerolog.Logger
}

// NewKPIConfigHandler constructs the rule table handler.
func NewKPIConfigHandler(service service.KPIConfigService, logger zerolog.Logger) *KPIConfigHandler {
	return &KPIConfigHandler{
		service: service,
		logger:  logger.With().Str("component", "kpi_config_handler").Logger(),
	}
}

// Register binds the rule table routes.
func (h *KPIConfigHandler) Register(router fiber.Router, guard fiber.Handler) {
	if guard == nil {
		guard = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("", h.active)
	router.Get("/history", h.history)
	router.Post("", guard, h.publish)
}

func (h *KPIConfigHandler) active(c *fiber.Ctx) error {
	engine, err := h.service.Active(requestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to resolve active kpi configuration")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to resolve kpi configuration")
	}

	return utils.SendSuccess(c, "active kpi configuration", dto.KPIConfigurationResponse{
		Version:  engine.Version(),
		IsActive: true,
		Config:   engine.Config(),
	})
}

func (h *KPIConfigHandler) history(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	versions, err := h.service.History(requestContext(c), limit)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list kpi configurations")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list kpi configurations")
	}

	return utils.SendSuccess(c, "kpi configuration history", versions)
}

// publish accepts a JSON request, or a raw YAML rule table with the version name in ?name=.
func (h *KPIConfigHandler) publish(c *fiber.Ctx) error {
	var payload dto.KPIConfigPublishRequest
	if strings.Contains(strings.ToLower(c.Get(fiber.HeaderContentType)), "yaml") {
		cfg, err := kpi.ParseYAML(c.Body())
		if err != nil {
			return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
		}
		payload = dto.KPIConfigPublishRequest{Name: strings.TrimSpace(c.Query("name")), Config: cfg}
	} else if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	published, err := h.service.Publish(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
		case errors.Is(err, kpi.ErrInvalidConfig):
			return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to publish kpi configuration")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to publish kpi configuration")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "kpi configuration published", published)
}
