package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// LifecycleEventRepository persists the append-only user timeline.
type LifecycleEventRepository interface {
	Create(ctx context.Context, event *models.LifecycleEvent) error
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.LifecycleEvent, error)
	Exists(ctx context.Context, userID uint, eventType string, kpiScoreID uint) (bool, error)
}

type lifecycleEventRepository struct {
	db *gorm.DB
}

// NewLifecycleEventRepository constructs the lifecycle event repository.
func NewLifecycleEventRepository(db *gorm.DB) LifecycleEventRepository {
	return &lifecycleEventRepository{db: db}
}

func (r *lifecycleEventRepository) Create(ctx context.Context, event *models.LifecycleEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *lifecycleEventRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.LifecycleEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var events []models.LifecycleEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *lifecycleEventRepository) Exists(ctx context.Context, userID uint, eventType string, kpiScoreID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.LifecycleEvent{}).
		Where("user_id = ? AND type = ? AND kpi_score_id = ?", userID, eventType, kpiScoreID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
