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

	"github.com/noah-isme/kpi-ops-api/internal/config"
	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

var (
	// ErrAuditNotFound indicates the audit schedule does not exist.
	ErrAuditNotFound = errors.New("audit schedule not found")
	// ErrAuditAlreadyOpen indicates the user already has an open audit of the same type.
	ErrAuditAlreadyOpen = errors.New("user already has an open audit of this type")
)

var auditTransitions = map[string][]string{
	models.AuditStatusInProgress: {models.AuditStatusScheduled},
	models.AuditStatusCompleted:  {models.AuditStatusScheduled, models.AuditStatusInProgress},
	models.AuditStatusCancelled:  {models.AuditStatusScheduled, models.AuditStatusInProgress},
}

// AuditService manages compliance audit schedules.
type AuditService interface {
	Schedule(ctx context.Context, req dto.AuditScheduleRequest, actor ActivityActor) (dto.AuditScheduleResponse, error)
	Get(ctx context.Context, id uint) (dto.AuditScheduleResponse, error)
	List(ctx context.Context, query dto.AuditListQuery) ([]dto.AuditScheduleResponse, dto.PaginationMeta, error)
	Start(ctx context.Context, id uint, actor ActivityActor) (dto.AuditScheduleResponse, error)
	Complete(ctx context.Context, id uint, req dto.AuditCompleteRequest, actor ActivityActor) (dto.AuditScheduleResponse, error)
	Cancel(ctx context.Context, id uint, actor ActivityActor) (dto.AuditScheduleResponse, error)
}

type auditService struct {
	repo      repository.AuditScheduleRepository
	users     repository.UserRepository
	lifecycle LifecycleService
	activity  ActivityRecorder
	validator *validator.Validate
	settings  config.KPIConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuditService constructs the audit service.
func NewAuditService(repo repository.AuditScheduleRepository, users repository.UserRepository, lifecycle LifecycleService, activity ActivityRecorder, validate *validator.Validate, settings config.KPIConfig, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:      repo,
		users:     users,
		lifecycle: lifecycle,
		activity:  activity,
		validator: validate,
		settings:  settings,
		logger:    logger.With().Str("component", "audit_service").Logger(),
		now:       time.Now,
	}
}

func (s *auditService) Schedule(ctx context.Context, req dto.AuditScheduleRequest, actor ActivityActor) (dto.AuditScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AuditScheduleResponse{}, err
	}

	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuditScheduleResponse{}, ErrKPIUserNotFound
		}
		return dto.AuditScheduleResponse{}, err
	}

	open, err := s.repo.FindBlocking(ctx, req.UserID, req.AuditType, 0)
	if err != nil {
		return dto.AuditScheduleResponse{}, err
	}
	if open != nil {
		return dto.AuditScheduleResponse{}, ErrAuditAlreadyOpen
	}

	priority := firstNonEmpty(req.Priority, "medium")
	scheduled := s.now().UTC().AddDate(0, 0, s.settings.AuditLeadFor(priority))
	if req.ScheduledDate != nil {
		scheduled = req.ScheduledDate.UTC()
	}

	audit := models.AuditSchedule{
		UserID:        req.UserID,
		AuditType:     req.AuditType,
		ScheduledDate: scheduled,
		Priority:      priority,
		AuditScope:    strings.TrimSpace(req.AuditScope),
		AuditMethod:   strings.TrimSpace(req.AuditMethod),
		Status:        models.AuditStatusScheduled,
		AssignedTo:    req.AssignedTo,
		AssignedBy:    models.AssignedByManual,
		IsActive:      true,
	}
	if err := s.repo.Create(ctx, &audit); err != nil {
		return dto.AuditScheduleResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityAuditScheduled,
		EntityType: "audit",
		EntityID:   uintPtr(audit.ID),
		Metadata:   map[string]interface{}{"user_id": audit.UserID, "audit_type": audit.AuditType, "priority": audit.Priority},
	})

	return dto.NewAuditScheduleResponse(audit), nil
}

func (s *auditService) Get(ctx context.Context, id uint) (dto.AuditScheduleResponse, error) {
	audit, err := s.find(ctx, id)
	if err != nil {
		return dto.AuditScheduleResponse{}, err
	}
	return dto.NewAuditScheduleResponse(audit), nil
}

func (s *auditService) List(ctx context.Context, query dto.AuditListQuery) ([]dto.AuditScheduleResponse, dto.PaginationMeta, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	page := maxInt(query.Page, 1)
	pageSize := clampPageSize(query.PageSize)
	filter := repository.AuditFilter{
		Status:    query.Status,
		AuditType: strings.TrimSpace(query.AuditType),
		Page:      page,
		PageSize:  pageSize,
	}
	if query.UserID > 0 {
		filter.UserID = &query.UserID
	}
	if query.KPITriggerID > 0 {
		filter.KPITriggerID = &query.KPITriggerID
	}

	audits, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	return dto.NewAuditScheduleResponseSlice(audits), dto.NewPaginationMeta(page, pageSize, total), nil
}

func (s *auditService) Start(ctx context.Context, id uint, actor ActivityActor) (dto.AuditScheduleResponse, error) {
	audit, err := s.transition(ctx, id, models.AuditStatusInProgress, func(a *models.AuditSchedule) {
		if a.AssignedTo == nil && actor.ID != 0 {
			a.AssignedTo = uintPtr(actor.ID)
		}
	})
	if err != nil {
		return dto.AuditScheduleResponse{}, err
	}
	return dto.NewAuditScheduleResponse(audit), nil
}

func (s *auditService) Complete(ctx context.Context, id uint, req dto.AuditCompleteRequest, actor ActivityActor) (dto.AuditScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AuditScheduleResponse{}, err
	}

	audit, err := s.transition(ctx, id, models.AuditStatusCompleted, func(a *models.AuditSchedule) {
		completedAt := s.now().UTC()
		a.CompletedAt = &completedAt
		a.Findings = strings.TrimSpace(req.Findings)
		a.RiskLevel = req.RiskLevel
		a.ComplianceStatus = req.ComplianceStatus
	})
	if err != nil {
		return dto.AuditScheduleResponse{}, err
	}

	metadata := datatypes.JSONMap{
		"audit_id":          audit.ID,
		"audit_type":        audit.AuditType,
		"risk_level":        audit.RiskLevel,
		"compliance_status": audit.ComplianceStatus,
	}
	if audit.KPITriggerID != nil {
		metadata["kpi_score_id"] = *audit.KPITriggerID
	}
	if _, _, err := s.lifecycle.Record(ctx, models.LifecycleEvent{
		UserID:      audit.UserID,
		Type:        models.LifecycleTypeAuditCompleted,
		Title:       fmt.Sprintf("Audit completed: %s", audit.AuditType),
		Description: audit.Findings,
		Category:    complianceCategory(audit.ComplianceStatus),
		Metadata:    metadata,
		CreatedBy:   normalizeRole(actor.Role),
	}); err != nil {
		s.logger.Warn().Err(err).Uint("audit_id", audit.ID).Msg("audit completion not recorded on timeline")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityAuditCompleted,
		EntityType: "audit",
		EntityID:   uintPtr(audit.ID),
		Metadata:   map[string]interface{}{"compliance_status": audit.ComplianceStatus},
	})

	return dto.NewAuditScheduleResponse(audit), nil
}

func (s *auditService) Cancel(ctx context.Context, id uint, actor ActivityActor) (dto.AuditScheduleResponse, error) {
	audit, err := s.transition(ctx, id, models.AuditStatusCancelled, nil)
	if err != nil {
		return dto.AuditScheduleResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityAuditCancelled,
		EntityType: "audit",
		EntityID:   uintPtr(audit.ID),
	})
	return dto.NewAuditScheduleResponse(audit), nil
}

func (s *auditService) transition(ctx context.Context, id uint, target string, mutate func(*models.AuditSchedule)) (models.AuditSchedule, error) {
	audit, err := s.find(ctx, id)
	if err != nil {
		return models.AuditSchedule{}, err
	}
	if !audit.IsActive || !allowedFrom(auditTransitions[target], audit.Status) {
		return models.AuditSchedule{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, audit.Status, target)
	}

	audit.Status = target
	if mutate != nil {
		mutate(&audit)
	}
	if err := s.repo.Update(ctx, &audit); err != nil {
		return models.AuditSchedule{}, err
	}

	s.logger.Info().Uint("audit_id", audit.ID).Str("status", target).Msg("audit status changed")
	return audit, nil
}

func (s *auditService) find(ctx context.Context, id uint) (models.AuditSchedule, error) {
	audit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AuditSchedule{}, ErrAuditNotFound
		}
		return models.AuditSchedule{}, err
	}
	return audit, nil
}

func complianceCategory(status string) string {
	switch status {
	case "compliant":
		return models.LifecycleCategoryPositive
	case "non_compliant":
		return models.LifecycleCategoryNegative
	default:
		return models.LifecycleCategoryNeutral
	}
}
