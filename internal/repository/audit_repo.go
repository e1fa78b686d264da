package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// AuditFilter narrows audit schedule queries.
type AuditFilter struct {
	UserID       *uint
	KPITriggerID *uint
	Status       string
	AuditType    string
	Page         int
	PageSize     int
}

// AuditScheduleRepository persists scheduled compliance audits.
type AuditScheduleRepository interface {
	Create(ctx context.Context, audit *models.AuditSchedule) error
	Update(ctx context.Context, audit *models.AuditSchedule) error
	FindByID(ctx context.Context, id uint) (models.AuditSchedule, error)
	FindBlocking(ctx context.Context, userID uint, auditType string, kpiTriggerID uint) (*models.AuditSchedule, error)
	List(ctx context.Context, filter AuditFilter) ([]models.AuditSchedule, int64, error)
}

type auditScheduleRepository struct {
	db *gorm.DB
}

// NewAuditScheduleRepository constructs the audit schedule repository.
func NewAuditScheduleRepository(db *gorm.DB) AuditScheduleRepository {
	return &auditScheduleRepository{db: db}
}

func (r *auditScheduleRepository) Create(ctx context.Context, audit *models.AuditSchedule) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

func (r *auditScheduleRepository) Update(ctx context.Context, audit *models.AuditSchedule) error {
	return r.db.WithContext(ctx).Save(audit).Error
}

func (r *auditScheduleRepository) FindByID(ctx context.Context, id uint) (models.AuditSchedule, error) {
	var audit models.AuditSchedule
	if err := r.db.WithContext(ctx).First(&audit, id).Error; err != nil {
		return models.AuditSchedule{}, err
	}
	return audit, nil
}

// FindBlocking mirrors the training guard: same trigger, or an open audit of the same type.
func (r *auditScheduleRepository) FindBlocking(ctx context.Context, userID uint, auditType string, kpiTriggerID uint) (*models.AuditSchedule, error) {
	var audit models.AuditSchedule
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND audit_type = ?", userID, auditType).
		Where(r.db.Where("kpi_trigger_id = ?", kpiTriggerID).
			Or("is_active = ? AND status NOT IN ?", true, []string{models.AuditStatusCompleted, models.AuditStatusCancelled})).
		Order("id ASC").
		First(&audit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

func (r *auditScheduleRepository) List(ctx context.Context, filter AuditFilter) ([]models.AuditSchedule, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditSchedule{}).Where("is_active = ?", true)

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.KPITriggerID != nil {
		query = query.Where("kpi_trigger_id = ?", *filter.KPITriggerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AuditType != "" {
		query = query.Where("audit_type = ?", filter.AuditType)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var audits []models.AuditSchedule
	if err := query.Order("scheduled_date ASC").Order("id ASC").Find(&audits).Error; err != nil {
		return nil, 0, err
	}

	return audits, total, nil
}
