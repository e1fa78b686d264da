package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/observability"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

const kpiConfigCacheKey = "kpi:config:active:v1"

// KPIConfigService resolves and publishes versions of the KPI rule table.
type KPIConfigService interface {
	Active(ctx context.Context) (*kpi.Engine, error)
	Publish(ctx context.Context, req dto.KPIConfigPublishRequest, actor ActivityActor) (dto.KPIConfigurationResponse, error)
	History(ctx context.Context, limit int) ([]dto.KPIConfigurationResponse, error)
}

type kpiConfigService struct {
	repo      repository.KPIConfigurationRepository
	cache     *redis.Client
	ttl       time.Duration
	validator *validator.Validate
	activity  ActivityRecorder
	fallback  *kpi.Engine
	logger    zerolog.Logger
}

// NewKPIConfigService constructs the rule table service. The embedded default table is used
// until a version has been published.
func NewKPIConfigService(repo repository.KPIConfigurationRepository, cache *redis.Client, ttl time.Duration, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) KPIConfigService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &kpiConfigService{
		repo:      repo,
		cache:     cache,
		ttl:       ttl,
		validator: validate,
		activity:  activity,
		fallback:  kpi.MustDefaultEngine(),
		logger:    logger.With().Str("component", "kpi_config_service").Logger(),
	}
}

// Active returns an engine compiled from the active rule table. Each call returns a snapshot;
// publishing a new version never mutates an engine already handed out.
func (s *kpiConfigService) Active(ctx context.Context) (*kpi.Engine, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, kpiConfigCacheKey).Bytes(); err == nil && len(cached) > 0 {
			cfg, parseErr := kpi.ParseJSON(cached)
			if parseErr == nil {
				if engine, engineErr := kpi.NewEngine(cfg); engineErr == nil {
					observability.KPIConfigLookups().WithLabelValues("cache").Inc()
					return engine, nil
				}
			}
			s.logger.Warn().Err(parseErr).Msg("discarding unreadable cached kpi configuration")
		}
	}

	record, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active kpi configuration: %w", err)
	}
	if record == nil {
		observability.KPIConfigLookups().WithLabelValues("default").Inc()
		return s.fallback, nil
	}

	cfg, err := kpi.ParseJSON(record.Rules)
	if err != nil {
		return nil, fmt.Errorf("kpi configuration v%d: %w", record.Version, err)
	}
	cfg.Version = record.Version

	engine, err := kpi.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("kpi configuration v%d: %w", record.Version, err)
	}

	if s.cache != nil {
		if payload, err := json.Marshal(cfg); err == nil {
			if err := s.cache.Set(ctx, kpiConfigCacheKey, payload, s.ttl).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to cache kpi configuration")
			}
		}
	}

	observability.KPIConfigLookups().WithLabelValues("database").Inc()
	return engine, nil
}

func (s *kpiConfigService) Publish(ctx context.Context, req dto.KPIConfigPublishRequest, actor ActivityActor) (dto.KPIConfigurationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.KPIConfigurationResponse{}, err
	}

	cfg := req.Config.Clone()
	cfg.Version = 0
	if err := cfg.Validate(); err != nil {
		return dto.KPIConfigurationResponse{}, err
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return dto.KPIConfigurationResponse{}, err
	}

	record := models.KPIConfiguration{
		Name:      req.Name,
		Rules:     datatypes.JSON(payload),
		CreatedBy: actor.ID,
	}
	if err := s.repo.Activate(ctx, &record); err != nil {
		return dto.KPIConfigurationResponse{}, err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, kpiConfigCacheKey).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate kpi configuration cache")
		}
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityConfigPublished,
		EntityType: "kpi_config",
		EntityID:   uintPtr(record.ID),
		Metadata:   map[string]interface{}{"version": record.Version, "name": record.Name},
	})
	s.logger.Info().Int("version", record.Version).Uint("actor_id", actor.ID).Msg("kpi configuration published")

	cfg.Version = record.Version
	return newKPIConfigurationResponse(record, cfg), nil
}

func (s *kpiConfigService) History(ctx context.Context, limit int) ([]dto.KPIConfigurationResponse, error) {
	records, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]dto.KPIConfigurationResponse, 0, len(records))
	for _, record := range records {
		cfg, err := kpi.ParseJSON(record.Rules)
		if err != nil {
			s.logger.Warn().Err(err).Int("version", record.Version).Msg("stored kpi configuration is unreadable")
		}
		cfg.Version = record.Version
		out = append(out, newKPIConfigurationResponse(record, cfg))
	}
	return out, nil
}

func newKPIConfigurationResponse(record models.KPIConfiguration, cfg kpi.Config) dto.KPIConfigurationResponse {
	return dto.KPIConfigurationResponse{
		ID:        record.ID,
		Version:   record.Version,
		Name:      record.Name,
		IsActive:  record.IsActive,
		CreatedBy: record.CreatedBy,
		CreatedAt: record.CreatedAt,
		Config:    cfg,
	}
}
