package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

// Operator trail actions.
const (
	ActivityKPISubmitted      = "kpi_score.submitted"
	ActivityKPIRescored       = "kpi_score.rescored"
	ActivityKPIDeactivated    = "kpi_score.deactivated"
	ActivityKPIBatchUploaded  = "kpi_score.batch_uploaded"
	ActivityKPITriggersRun    = "kpi_score.triggers_processed"
	ActivityConfigPublished   = "kpi_config.published"
	ActivityTrainingAssigned  = "training.assigned"
	ActivityTrainingCompleted = "training.completed"
	ActivityTrainingCancelled = "training.cancelled"
	ActivityAuditScheduled    = "audit.scheduled"
	ActivityAuditCompleted    = "audit.completed"
	ActivityAuditCancelled    = "audit.cancelled"
	ActivityEmailResent       = "email.resent"
)

// ActivityActor represents the authenticated operator performing an action.
type ActivityActor struct {
	ID   uint
	Role string
}

// SystemActor is used for changes made by the trigger pipeline or scheduled jobs.
var SystemActor = ActivityActor{Role: "system"}

// ActivityEntry captures the details required to persist a trail entry.
type ActivityEntry struct {
	Actor      ActivityActor
	Action     string
	EntityType string
	EntityID   *uint
	Metadata   map[string]interface{}
}

// ActivityRecorder defines behaviour for recording the operator trail.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error)
}

// ActivityService records and queries the operator trail.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, query dto.ActivityListQuery) ([]dto.ActivityResponse, dto.PaginationMeta, error)
}

type activityService struct {
	repo      repository.ActivityLogRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, validator *validator.Validate, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:      repo,
		validator: validator,
		logger:    logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return dto.ActivityResponse{}, fmt.Errorf("action is required")
	}
	if strings.TrimSpace(entry.EntityType) == "" {
		return dto.ActivityResponse{}, fmt.Errorf("entity type is required")
	}

	model := models.ActivityLog{
		ActorID:    entry.Actor.ID,
		ActorRole:  normalizeRole(entry.Actor.Role),
		Action:     strings.ToLower(strings.TrimSpace(entry.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(entry.EntityType)),
		EntityID:   entry.EntityID,
		Metadata:   sanitizeMetadata(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("action", model.Action).Msg("failed to persist activity log")
		return dto.ActivityResponse{}, err
	}

	return dto.NewActivityResponse(model), nil
}

func (s *activityService) List(ctx context.Context, query dto.ActivityListQuery) ([]dto.ActivityResponse, dto.PaginationMeta, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	page := maxInt(query.Page, 1)
	pageSize := clampPageSize(query.PageSize)
	filter := repository.ActivityLogFilter{
		Action:     strings.TrimSpace(query.Action),
		EntityType: strings.TrimSpace(query.EntityType),
		Page:       page,
		PageSize:   pageSize,
	}
	if query.ActorID > 0 {
		filter.ActorID = &query.ActorID
	}
	if query.EntityID > 0 {
		filter.EntityID = &query.EntityID
	}
	if query.Since != "" {
		since, err := time.Parse(time.DateOnly, query.Since)
		if err != nil {
			return nil, dto.PaginationMeta{}, err
		}
		filter.Since = &since
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	return dto.NewActivityResponseSlice(entries), dto.NewPaginationMeta(page, pageSize, total), nil
}

// recordActivity writes a trail entry when a recorder is configured. Failures are logged only.
func recordActivity(ctx context.Context, recorder ActivityRecorder, logger zerolog.Logger, entry ActivityEntry) {
	if recorder == nil {
		return
	}
	if _, err := recorder.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Str("action", entry.Action).Msg("activity not recorded")
	}
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}
