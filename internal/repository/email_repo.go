package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// EmailLogFilter narrows email log queries.
type EmailLogFilter struct {
	KPITriggerID   *uint
	RecipientEmail string
	Status         string
	TemplateType   string
	Page           int
	PageSize       int
}

// EmailLogRepository persists the append-only send log.
type EmailLogRepository interface {
	Create(ctx context.Context, log *models.EmailLog) error
	Update(ctx context.Context, log *models.EmailLog) error
	FindByID(ctx context.Context, id uint) (models.EmailLog, error)
	List(ctx context.Context, filter EmailLogFilter) ([]models.EmailLog, int64, error)
}

type emailLogRepository struct {
	db *gorm.DB
}

// NewEmailLogRepository constructs the email log repository.
func NewEmailLogRepository(db *gorm.DB) EmailLogRepository {
	return &emailLogRepository{db: db}
}

func (r *emailLogRepository) Create(ctx context.Context, log *models.EmailLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *emailLogRepository) Update(ctx context.Context, log *models.EmailLog) error {
	return r.db.WithContext(ctx).Save(log).Error
}

func (r *emailLogRepository) FindByID(ctx context.Context, id uint) (models.EmailLog, error) {
	var log models.EmailLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return models.EmailLog{}, err
	}
	return log, nil
}

func (r *emailLogRepository) List(ctx context.Context, filter EmailLogFilter) ([]models.EmailLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EmailLog{})

	if filter.KPITriggerID != nil {
		query = query.Where("kpi_trigger_id = ?", *filter.KPITriggerID)
	}
	if email := strings.ToLower(strings.TrimSpace(filter.RecipientEmail)); email != "" {
		query = query.Where("recipient_email = ?", email)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TemplateType != "" {
		query = query.Where("template_type = ?", filter.TemplateType)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var logs []models.EmailLog
	if err := query.Order("id ASC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// EmailTemplateRepository stores editable email templates.
type EmailTemplateRepository interface {
	FindByType(ctx context.Context, templateType string) (*models.EmailTemplate, error)
	Upsert(ctx context.Context, template *models.EmailTemplate) error
}

type emailTemplateRepository struct {
	db *gorm.DB
}

// NewEmailTemplateRepository constructs the email template repository.
func NewEmailTemplateRepository(db *gorm.DB) EmailTemplateRepository {
	return &emailTemplateRepository{db: db}
}

func (r *emailTemplateRepository) FindByType(ctx context.Context, templateType string) (*models.EmailTemplate, error) {
	var template models.EmailTemplate
	err := r.db.WithContext(ctx).
		Where("template_type = ? AND is_active = ?", templateType, true).
		First(&template).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *emailTemplateRepository) Upsert(ctx context.Context, template *models.EmailTemplate) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"subject", "body", "is_active", "updated_at"}),
	}).Create(template).Error
}

// RecipientGroupRepository resolves role tags to configured addresses.
type RecipientGroupRepository interface {
	ListByRole(ctx context.Context, role string) ([]models.RecipientGroup, error)
	Create(ctx context.Context, group *models.RecipientGroup) error
}

type recipientGroupRepository struct {
	db *gorm.DB
}

// NewRecipientGroupRepository constructs the recipient group repository.
func NewRecipientGroupRepository(db *gorm.DB) RecipientGroupRepository {
	return &recipientGroupRepository{db: db}
}

func (r *recipientGroupRepository) ListByRole(ctx context.Context, role string) ([]models.RecipientGroup, error) {
	var groups []models.RecipientGroup
	if err := r.db.WithContext(ctx).
		Where("LOWER(role) = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(role)), true).
		Order("id ASC").
		Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *recipientGroupRepository) Create(ctx context.Context, group *models.RecipientGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}
