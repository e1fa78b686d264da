package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

var (
	// ErrTrainingNotFound indicates the training assignment does not exist.
	ErrTrainingNotFound = errors.New("training assignment not found")
	// ErrTrainingAlreadyOpen indicates the user already has an open training of the same type.
	ErrTrainingAlreadyOpen = errors.New("user already has an open training of this type")
	// ErrInvalidTransition indicates the requested status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

var trainingTransitions = map[string][]string{
	models.TrainingStatusInProgress: {models.TrainingStatusAssigned, models.TrainingStatusOverdue},
	models.TrainingStatusCompleted:  {models.TrainingStatusAssigned, models.TrainingStatusInProgress, models.TrainingStatusOverdue},
	models.TrainingStatusCancelled:  {models.TrainingStatusAssigned, models.TrainingStatusInProgress, models.TrainingStatusOverdue},
}

// TrainingService manages the lifecycle of training assignments.
type TrainingService interface {
	Assign(ctx context.Context, req dto.TrainingAssignRequest, actor ActivityActor) (dto.TrainingAssignmentResponse, error)
	Get(ctx context.Context, id uint) (dto.TrainingAssignmentResponse, error)
	List(ctx context.Context, query dto.TrainingListQuery) ([]dto.TrainingAssignmentResponse, dto.PaginationMeta, error)
	Start(ctx context.Context, id uint, actor ActivityActor) (dto.TrainingAssignmentResponse, error)
	Complete(ctx context.Context, id uint, req dto.TrainingCompleteRequest, actor ActivityActor) (dto.TrainingAssignmentResponse, error)
	Cancel(ctx context.Context, id uint, actor ActivityActor) (dto.TrainingAssignmentResponse, error)
	MarkOverdue(ctx context.Context) (int64, error)
}

type trainingService struct {
	repo          repository.TrainingAssignmentRepository
	users         repository.UserRepository
	lifecycle     LifecycleService
	notifications NotificationService
	activity      ActivityRecorder
	validator     *validator.Validate
	dueDays       int
	logger        zerolog.Logger
	now           func() time.Time
}

// NewTrainingService constructs the training service. notifications and activity may be nil.
func NewTrainingService(repo repository.TrainingAssignmentRepository, users repository.UserRepository, lifecycle LifecycleService, notifications NotificationService, activity ActivityRecorder, validate *validator.Validate, dueDays int, logger zerolog.Logger) TrainingService {
	if dueDays <= 0 {
		dueDays = 7
	}
	return &trainingService{
		repo:          repo,
		users:         users,
		lifecycle:     lifecycle,
		notifications: notifications,
		activity:      activity,
		validator:     validate,
		dueDays:       dueDays,
		logger:        logger.With().Str("component", "training_service").Logger(),
		now:           time.Now,
	}
}

func (s *trainingService) Assign(ctx context.Context, req dto.TrainingAssignRequest, actor ActivityActor) (dto.TrainingAssignmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.TrainingAssignmentResponse{}, err
	}

	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TrainingAssignmentResponse{}, ErrKPIUserNotFound
		}
		return dto.TrainingAssignmentResponse{}, err
	}

	trainingType := strings.ToLower(strings.TrimSpace(req.TrainingType))
	open, err := s.repo.FindBlocking(ctx, req.UserID, trainingType, 0)
	if err != nil {
		return dto.TrainingAssignmentResponse{}, err
	}
	if open != nil {
		return dto.TrainingAssignmentResponse{}, ErrTrainingAlreadyOpen
	}

	dueDate := s.now().UTC().AddDate(0, 0, s.dueDays)
	if req.DueDate != nil {
		dueDate = req.DueDate.UTC()
	}

	assignment := models.TrainingAssignment{
		UserID:       req.UserID,
		TrainingType: trainingType,
		AssignedBy:   models.AssignedByManual,
		AssignedByID: uintPtr(actor.ID),
		DueDate:      dueDate,
		Status:       models.TrainingStatusAssigned,
		Priority:     firstNonEmpty(req.Priority, "medium"),
		Notes:        strings.TrimSpace(req.Notes),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.TrainingAssignmentResponse{}, err
	}

	if s.notifications != nil {
		if _, err := s.notifications.Publish(ctx, dto.NotificationCreateRequest{
			UserID:   assignment.UserID,
			Title:    "Training assigned: " + assignment.TrainingType,
			Message:  fmt.Sprintf("Complete the %s training by %s.", assignment.TrainingType, assignment.DueDate.Format("2006-01-02")),
			Type:     models.NotificationTypeTraining,
			Priority: assignment.Priority,
		}); err != nil {
			s.logger.Warn().Err(err).Uint("training_id", assignment.ID).Msg("training notification not published")
		}
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityTrainingAssigned,
		EntityType: "training",
		EntityID:   uintPtr(assignment.ID),
		Metadata:   map[string]interface{}{"user_id": assignment.UserID, "training_type": assignment.TrainingType},
	})

	return dto.NewTrainingAssignmentResponse(assignment), nil
}

func (s *trainingService) Get(ctx context.Context, id uint) (dto.TrainingAssignmentResponse, error) {
	assignment, err := s.find(ctx, id)
	if err != nil {
		return dto.TrainingAssignmentResponse{}, err
	}
	return dto.NewTrainingAssignmentResponse(assignment), nil
}

func (s *trainingService) List(ctx context.Context, query dto.TrainingListQuery) ([]dto.TrainingAssignmentResponse, dto.PaginationMeta, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	page := maxInt(query.Page, 1)
	pageSize := clampPageSize(query.PageSize)
	filter := repository.TrainingFilter{
		Status:       query.Status,
		TrainingType: strings.ToLower(strings.TrimSpace(query.TrainingType)),
		Page:         page,
		PageSize:     pageSize,
	}
	if query.UserID > 0 {
		filter.UserID = &query.UserID
	}
	if query.KPITriggerID > 0 {
		filter.KPITriggerID = &query.KPITriggerID
	}

	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	return dto.NewTrainingAssignmentResponseSlice(assignments), dto.NewPaginationMeta(page, pageSize, total), nil
}

func (s *trainingService) Start(ctx context.Context, id uint, actor ActivityActor) (dto.TrainingAssignmentResponse, error) {
	assignment, err := s.transition(ctx, id, models.TrainingStatusInProgress, nil)
	if err != nil {
		return dto.TrainingAssignmentResponse{}, err
	}
	return dto.NewTrainingAssignmentResponse(assignment), nil
}

func (s *trainingService) Complete(ctx context.Context, id uint, req dto.TrainingCompleteRequest, actor ActivityActor) (dto.TrainingAssignmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.TrainingAssignmentResponse{}, err
	}

	assignment, err := s.transition(ctx, id, models.TrainingStatusCompleted, func(a *models.TrainingAssignment) {
		completedAt := s.now().UTC()
		a.CompletedAt = &completedAt
		a.Score = req.Score
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			a.Notes = notes
		}
	})
	if err != nil {
		return dto.TrainingAssignmentResponse{}, err
	}

	metadata := datatypes.JSONMap{"training_id": assignment.ID, "training_type": assignment.TrainingType}
	if assignment.Score != nil {
		metadata["score"] = *assignment.Score
	}
	if assignment.KPITriggerID != nil {
		metadata["kpi_score_id"] = *assignment.KPITriggerID
	}
	if _, _, err := s.lifecycle.Record(ctx, models.LifecycleEvent{
		UserID:      assignment.UserID,
		Type:        models.LifecycleTypeTrainingCompleted,
		Title:       "Training completed: " + assignment.TrainingType,
		Description: assignment.Notes,
		Category:    models.LifecycleCategoryPositive,
		Metadata:    metadata,
		CreatedBy:   normalizeRole(actor.Role),
	}); err != nil {
		s.logger.Warn().Err(err).Uint("training_id", assignment.ID).Msg("training completion not recorded on timeline")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityTrainingCompleted,
		EntityType: "training",
		EntityID:   uintPtr(assignment.ID),
	})

	return dto.NewTrainingAssignmentResponse(assignment), nil
}

func (s *trainingService) Cancel(ctx context.Context, id uint, actor ActivityActor) (dto.TrainingAssignmentResponse, error) {
	assignment, err := s.transition(ctx, id, models.TrainingStatusCancelled, nil)
	if err != nil {
		return dto.TrainingAssignmentResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityTrainingCancelled,
		EntityType: "training",
		EntityID:   uintPtr(assignment.ID),
	})
	return dto.NewTrainingAssignmentResponse(assignment), nil
}

// MarkOverdue flags every unfinished assignment whose due date has passed.
func (s *trainingService) MarkOverdue(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkOverdue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int64("count", count).Msg("training assignments marked overdue")
	}
	return count, nil
}

func (s *trainingService) transition(ctx context.Context, id uint, target string, mutate func(*models.TrainingAssignment)) (models.TrainingAssignment, error) {
	assignment, err := s.find(ctx, id)
	if err != nil {
		return models.TrainingAssignment{}, err
	}
	if !assignment.IsActive || !allowedFrom(trainingTransitions[target], assignment.Status) {
		return models.TrainingAssignment{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, assignment.Status, target)
	}

	assignment.Status = target
	if mutate != nil {
		mutate(&assignment)
	}
	if err := s.repo.Update(ctx, &assignment); err != nil {
		return models.TrainingAssignment{}, err
	}

	s.logger.Info().Uint("training_id", assignment.ID).Str("status", target).Msg("training status changed")
	return assignment, nil
}

func (s *trainingService) find(ctx context.Context, id uint) (models.TrainingAssignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.TrainingAssignment{}, ErrTrainingNotFound
		}
		return models.TrainingAssignment{}, err
	}
	return assignment, nil
}

func allowedFrom(allowed []string, current string) bool {
	for _, status := range allowed {
		if status == current {
			return true
		}
	}
	return false
}
