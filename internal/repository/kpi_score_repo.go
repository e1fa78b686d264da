package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// KPIScoreFilter narrows KPI score queries.
type KPIScoreFilter struct {
	UserID     *uint
	Period     string
	Rating     string
	IncludeAll bool
	Page       int
	PageSize   int
}

// KPIScoreRepository persists KPI evaluations.
type KPIScoreRepository interface {
	Create(ctx context.Context, score *models.KPIScore) error
	Update(ctx context.Context, score *models.KPIScore) error
	FindByID(ctx context.Context, id uint) (models.KPIScore, error)
	FindActiveByUserPeriod(ctx context.Context, userID uint, period string) (*models.KPIScore, error)
	List(ctx context.Context, filter KPIScoreFilter) ([]models.KPIScore, int64, error)
	UpdateTriggeredActions(ctx context.Context, id uint, actions []string) error
	Deactivate(ctx context.Context, id uint) error
	Replace(ctx context.Context, previousID uint, score *models.KPIScore) error
}

type kpiScoreRepository struct {
	db *gorm.DB
}

// NewKPIScoreRepository constructs the KPI score repository.
func NewKPIScoreRepository(db *gorm.DB) KPIScoreRepository {
	return &kpiScoreRepository{db: db}
}

func (r *kpiScoreRepository) Create(ctx context.Context, score *models.KPIScore) error {
	return r.db.WithContext(ctx).Create(score).Error
}

func (r *kpiScoreRepository) Update(ctx context.Context, score *models.KPIScore) error {
	return r.db.WithContext(ctx).Save(score).Error
}

func (r *kpiScoreRepository) FindByID(ctx context.Context, id uint) (models.KPIScore, error) {
	var score models.KPIScore
	if err := r.db.WithContext(ctx).First(&score, id).Error; err != nil {
		return models.KPIScore{}, err
	}
	return score, nil
}

func (r *kpiScoreRepository) FindActiveByUserPeriod(ctx context.Context, userID uint, period string) (*models.KPIScore, error) {
	var score models.KPIScore
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND period = ? AND is_active = ?", userID, period, true).
		Order("id DESC").
		First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (r *kpiScoreRepository) List(ctx context.Context, filter KPIScoreFilter) ([]models.KPIScore, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.KPIScore{})

	if !filter.IncludeAll {
		query = query.Where("is_active = ?", true)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Period != "" {
		query = query.Where("period = ?", filter.Period)
	}
	if filter.Rating != "" {
		query = query.Where("rating = ?", filter.Rating)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var scores []models.KPIScore
	if err := query.Order("created_at DESC").Order("id DESC").Find(&scores).Error; err != nil {
		return nil, 0, err
	}

	return scores, total, nil
}

func (r *kpiScoreRepository) UpdateTriggeredActions(ctx context.Context, id uint, actions []string) error {
	score := models.KPIScore{TriggeredActions: actions}
	_ = score.BeforeSave(nil)
	return r.db.WithContext(ctx).
		Model(&models.KPIScore{}).
		Where("id = ?", id).
		Update("triggered_actions", score.TriggeredActionsRaw).Error
}

func (r *kpiScoreRepository) Deactivate(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.KPIScore{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Replace deactivates previousID and creates score in one transaction.
func (r *kpiScoreRepository) Replace(ctx context.Context, previousID uint, score *models.KPIScore) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.KPIScore{}).
			Where("id = ? AND is_active = ?", previousID, true).
			Update("is_active", false)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(score).Error
	})
}
