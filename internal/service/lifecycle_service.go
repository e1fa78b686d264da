package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

// ErrInvalidLifecycleEvent indicates a timeline entry is missing required fields.
var ErrInvalidLifecycleEvent = errors.New("lifecycle event requires user, type and title")

// LifecycleService appends to and reads the user timeline.
type LifecycleService interface {
	Record(ctx context.Context, event models.LifecycleEvent) (dto.LifecycleEventResponse, bool, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]dto.LifecycleEventResponse, error)
}

type lifecycleService struct {
	repo   repository.LifecycleEventRepository
	logger zerolog.Logger
}

// NewLifecycleService constructs the timeline service.
func NewLifecycleService(repo repository.LifecycleEventRepository, logger zerolog.Logger) LifecycleService {
	return &lifecycleService{
		repo:   repo,
		logger: logger.With().Str("component", "lifecycle_service").Logger(),
	}
}

// Record appends an event. Events tied to a KPI score are written at most once per
// (user, type, score); the boolean reports whether a new row was created.
func (s *lifecycleService) Record(ctx context.Context, event models.LifecycleEvent) (dto.LifecycleEventResponse, bool, error) {
	event.Type = strings.TrimSpace(event.Type)
	event.Title = strings.TrimSpace(event.Title)
	if event.UserID == 0 || event.Type == "" || event.Title == "" {
		return dto.LifecycleEventResponse{}, false, ErrInvalidLifecycleEvent
	}
	if event.Category == "" {
		event.Category = models.LifecycleCategoryNeutral
	}
	if event.CreatedBy == "" {
		event.CreatedBy = "system"
	}

	if event.KPIScoreID != nil {
		exists, err := s.repo.Exists(ctx, event.UserID, event.Type, *event.KPIScoreID)
		if err != nil {
			return dto.LifecycleEventResponse{}, false, err
		}
		if exists {
			return dto.LifecycleEventResponse{}, false, nil
		}
	}

	if err := s.repo.Create(ctx, &event); err != nil {
		return dto.LifecycleEventResponse{}, false, err
	}

	s.logger.Debug().Uint("user_id", event.UserID).Str("type", event.Type).Msg("lifecycle event recorded")
	return dto.NewLifecycleEventResponse(event), true, nil
}

func (s *lifecycleService) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]dto.LifecycleEventResponse, error) {
	if userID == 0 {
		return nil, errors.New("user id is required")
	}

	events, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewLifecycleEventResponseSlice(events), nil
}
