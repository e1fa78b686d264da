package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/ingest"
	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/service"
	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

// KPIHandler exposes score submission, bulk ingestion, preview and trigger processing.
type KPIHandler struct {
	service   service.KPIScoreService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewKPIHandler constructs the KPI score handler.
func NewKPIHandler(service service.KPIScoreService, validate *validator.Validate, logger zerolog.Logger) *KPIHandler {
	return &KPIHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "kpi_handler").Logger(),
	}
}

// Register binds read routes; mutating routes are passed through guard.
func (h *KPIHandler) Register(router fiber.Router, guard fiber.Handler) {
	if guard == nil {
		guard = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("", h.list)
	router.Post("/preview", h.preview)
	router.Post("/bulk", guard, h.bulk)
	router.Post("", guard, h.submit)
	router.Get("/:id", h.get)
	router.Put("/:id", guard, h.rescore)
	router.Delete("/:id", guard, h.deactivate)
	router.Post("/:id/process", guard, h.process)
}

func (h *KPIHandler) submit(c *fiber.Ctx) error {
	var payload dto.KPIScoreCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Submit(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return h.fail(c, err, "failed to submit kpi score")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "kpi score submitted", result)
}

func (h *KPIHandler) bulk(c *fiber.Ctx) error {
	rows, err := ingest.ParseRows(c.Body(), c.Get(fiber.HeaderContentType))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	replace, _ := strconv.ParseBool(c.Query("replace"))
	result, err := h.service.SubmitBatch(requestContext(c), rows, activityActorFromContext(c), replace)
	if err != nil {
		return h.fail(c, err, "failed to process bulk upload")
	}

	requestLogger(h.logger, c).Info().
		Str("batch_id", result.BatchID).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("bulk kpi upload processed")

	status := fiber.StatusOK
	if result.Succeeded > 0 {
		status = fiber.StatusCreated
	}
	return utils.SendSuccessWithStatus(c, status, "bulk upload processed", result)
}

func (h *KPIHandler) preview(c *fiber.Ctx) error {
	var payload dto.KPIPreviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Preview(requestContext(c), payload)
	if err != nil {
		return h.fail(c, err, "failed to evaluate kpi metrics")
	}

	return utils.SendSuccess(c, "kpi preview", result)
}

func (h *KPIHandler) list(c *fiber.Ctx) error {
	var query dto.KPIScoreListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid query", validationDetails(err))
	}

	items, meta, err := h.service.List(requestContext(c), query)
	if err != nil {
		return h.fail(c, err, "failed to list kpi scores")
	}

	return utils.OK(c, items, "kpi scores", meta)
}

func (h *KPIHandler) get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid kpi score id")
	}

	score, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return h.fail(c, err, "failed to load kpi score")
	}

	return utils.SendSuccess(c, "kpi score", score)
}

func (h *KPIHandler) rescore(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid kpi score id")
	}

	var payload dto.KPIScoreUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Rescore(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return h.fail(c, err, "failed to rescore kpi")
	}

	return utils.SendSuccess(c, "kpi score updated", result)
}

func (h *KPIHandler) deactivate(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid kpi score id")
	}

	if err := h.service.Deactivate(requestContext(c), id, activityActorFromContext(c)); err != nil {
		return h.fail(c, err, "failed to deactivate kpi score")
	}

	return utils.SendSuccess(c, "kpi score deactivated", fiber.Map{"id": id})
}

func (h *KPIHandler) process(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid kpi score id")
	}

	summary, err := h.service.ProcessTriggers(requestContext(c), id, activityActorFromContext(c))
	if err != nil {
		return h.fail(c, err, "failed to process kpi triggers")
	}
	if !summary.Success {
		return utils.Fail(c, fiber.StatusConflict, "kpi triggers not processed", summary)
	}

	return utils.SendSuccess(c, "kpi triggers processed", summary)
}

func (h *KPIHandler) fail(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, kpi.ErrInvalidPeriod):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrKPIScoreNotFound), errors.Is(err, service.ErrKPIUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrKPIScoreExists), errors.Is(err, service.ErrKPIScoreInactive):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
