package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

// ErrEmailLogNotFound indicates the send log entry does not exist.
var ErrEmailLogNotFound = errors.New("email log not found")

// EmailLogService exposes the send log.
type EmailLogService interface {
	List(ctx context.Context, query dto.EmailLogListQuery) ([]dto.EmailLogResponse, dto.PaginationMeta, error)
	Resend(ctx context.Context, id uint, actor ActivityActor) (dto.EmailLogResponse, error)
}

type emailLogService struct {
	repo      repository.EmailLogRepository
	emails    EmailTemplateService
	activity  ActivityRecorder
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEmailLogService constructs the email log service.
func NewEmailLogService(repo repository.EmailLogRepository, emails EmailTemplateService, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) EmailLogService {
	return &emailLogService{
		repo:      repo,
		emails:    emails,
		activity:  activity,
		validator: validate,
		logger:    logger.With().Str("component", "email_log_service").Logger(),
	}
}

func (s *emailLogService) List(ctx context.Context, query dto.EmailLogListQuery) ([]dto.EmailLogResponse, dto.PaginationMeta, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	page := maxInt(query.Page, 1)
	pageSize := clampPageSize(query.PageSize)
	filter := repository.EmailLogFilter{
		RecipientEmail: strings.TrimSpace(query.RecipientEmail),
		Status:         query.Status,
		TemplateType:   strings.TrimSpace(query.TemplateType),
		Page:           page,
		PageSize:       pageSize,
	}
	if query.KPITriggerID > 0 {
		filter.KPITriggerID = &query.KPITriggerID
	}

	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	return dto.NewEmailLogResponseSlice(logs), dto.NewPaginationMeta(page, pageSize, total), nil
}

// Resend retries a failed or pending send using the stored template variables.
func (s *emailLogService) Resend(ctx context.Context, id uint, actor ActivityActor) (dto.EmailLogResponse, error) {
	response, err := s.emails.Resend(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EmailLogResponse{}, ErrEmailLogNotFound
		}
		return dto.EmailLogResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityEmailResent,
		EntityType: "email_log",
		EntityID:   uintPtr(id),
		Metadata:   map[string]interface{}{"status": response.Status, "attempts": response.Attempts},
	})
	return response, nil
}
