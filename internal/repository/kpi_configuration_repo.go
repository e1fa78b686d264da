package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// KPIConfigurationRepository persists versions of the KPI rule table.
type KPIConfigurationRepository interface {
	FindActive(ctx context.Context) (*models.KPIConfiguration, error)
	Activate(ctx context.Context, config *models.KPIConfiguration) error
	List(ctx context.Context, limit int) ([]models.KPIConfiguration, error)
}

type kpiConfigurationRepository struct {
	db *gorm.DB
}

// NewKPIConfigurationRepository constructs the configuration repository.
func NewKPIConfigurationRepository(db *gorm.DB) KPIConfigurationRepository {
	return &kpiConfigurationRepository{db: db}
}

func (r *kpiConfigurationRepository) FindActive(ctx context.Context) (*models.KPIConfiguration, error) {
	var config models.KPIConfiguration
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("version DESC").
		First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// Activate stores config as the next version and makes it the only active one.
func (r *kpiConfigurationRepository) Activate(ctx context.Context, config *models.KPIConfiguration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int
		if err := tx.Model(&models.KPIConfiguration{}).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.KPIConfiguration{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}

		config.ID = 0
		config.Version = latest + 1
		config.IsActive = true
		return tx.Create(config).Error
	})
}

func (r *kpiConfigurationRepository) List(ctx context.Context, limit int) ([]models.KPIConfiguration, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var configs []models.KPIConfiguration
	if err := r.db.WithContext(ctx).
		Order("version DESC").
		Limit(limit).
		Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}
