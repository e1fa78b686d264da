package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// TrainingFilter narrows training assignment queries.
type TrainingFilter struct {
	UserID       *uint
	KPITriggerID *uint
	Status       string
	TrainingType string
	Page         int
	PageSize     int
}

// TrainingAssignmentRepository persists remedial training obligations.
type TrainingAssignmentRepository interface {
	Create(ctx context.Context, assignment *models.TrainingAssignment) error
	Update(ctx context.Context, assignment *models.TrainingAssignment) error
	FindByID(ctx context.Context, id uint) (models.TrainingAssignment, error)
	FindBlocking(ctx context.Context, userID uint, trainingType string, kpiTriggerID uint) (*models.TrainingAssignment, error)
	List(ctx context.Context, filter TrainingFilter) ([]models.TrainingAssignment, int64, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

type trainingAssignmentRepository struct {
	db *gorm.DB
}

// NewTrainingAssignmentRepository constructs the training assignment repository.
func NewTrainingAssignmentRepository(db *gorm.DB) TrainingAssignmentRepository {
	return &trainingAssignmentRepository{db: db}
}

func (r *trainingAssignmentRepository) Create(ctx context.Context, assignment *models.TrainingAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *trainingAssignmentRepository) Update(ctx context.Context, assignment *models.TrainingAssignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

func (r *trainingAssignmentRepository) FindByID(ctx context.Context, id uint) (models.TrainingAssignment, error) {
	var assignment models.TrainingAssignment
	if err := r.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return models.TrainingAssignment{}, err
	}
	return assignment, nil
}

// FindBlocking returns an assignment that makes a new one redundant: any assignment already
// created for the same trigger, or an open one of the same type.
func (r *trainingAssignmentRepository) FindBlocking(ctx context.Context, userID uint, trainingType string, kpiTriggerID uint) (*models.TrainingAssignment, error) {
	var assignment models.TrainingAssignment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND training_type = ?", userID, trainingType).
		Where(r.db.Where("kpi_trigger_id = ?", kpiTriggerID).
			Or("is_active = ? AND status NOT IN ?", true, []string{models.TrainingStatusCompleted, models.TrainingStatusCancelled})).
		Order("id ASC").
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *trainingAssignmentRepository) List(ctx context.Context, filter TrainingFilter) ([]models.TrainingAssignment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TrainingAssignment{}).Where("is_active = ?", true)

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.KPITriggerID != nil {
		query = query.Where("kpi_trigger_id = ?", *filter.KPITriggerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TrainingType != "" {
		query = query.Where("training_type = ?", filter.TrainingType)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var assignments []models.TrainingAssignment
	if err := query.Order("due_date ASC").Order("id ASC").Find(&assignments).Error; err != nil {
		return nil, 0, err
	}

	return assignments, total, nil
}

func (r *trainingAssignmentRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TrainingAssignment{}).
		Where("is_active = ? AND due_date < ? AND status IN ?", true, now, []string{models.TrainingStatusAssigned, models.TrainingStatusInProgress}).
		Update("status", models.TrainingStatusOverdue)
	return result.RowsAffected, result.Error
}
