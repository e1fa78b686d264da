package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kpi-ops-api/internal/service"
	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

// LifecycleHandler exposes employee timelines.
type LifecycleHandler struct {
	service service.LifecycleService
	logger  zerolog.Logger
}

func NewLifecycleHandler(service service.LifecycleService, logger zerolog.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		service: service,
		logger:  logger.With().Str("component", "lifecycle_handler").Logger(),
	}
}

// Register binds timeline routes. Reading another user's timeline passes through guard.
func (h *LifecycleHandler) Register(router fiber.Router, guard fiber.Handler) {
	if guard == nil {
		guard = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("/me", h.mine)
	router.Get("/:userId", guard, h.byUser)
}

func (h *LifecycleHandler) mine(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}
	return h.respond(c, userID)
}

func (h *LifecycleHandler) byUser(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user id")
	}
	return h.respond(c, userID)
}

func (h *LifecycleHandler) respond(c *fiber.Ctx, userID uint) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	events, err := h.service.ListByUser(requestContext(c), userID, limit, offset)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("user_id", userID).Msg("failed to list lifecycle events")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list lifecycle events")
	}
	return utils.SendSuccess(c, "lifecycle events", events)
}
