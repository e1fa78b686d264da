package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/observability"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

var (
	// ErrKPIScoreExists indicates an active score already exists for the user and period.
	ErrKPIScoreExists = errors.New("kpi score already exists for user and period")
	// ErrKPIScoreNotFound indicates the score does not exist.
	ErrKPIScoreNotFound = errors.New("kpi score not found")
	// ErrKPIScoreInactive indicates the score was deactivated and cannot be changed.
	ErrKPIScoreInactive = errors.New("kpi score is inactive")
	// ErrKPIUserNotFound indicates the scored user does not exist.
	ErrKPIUserNotFound = errors.New("user not found")
)

// KPIScoreService stores evaluations and runs their triggers.
type KPIScoreService interface {
	Submit(ctx context.Context, req dto.KPIScoreCreateRequest, actor ActivityActor) (dto.KPISubmitResponse, error)
	SubmitBatch(ctx context.Context, rows []dto.KPIBulkRow, actor ActivityActor, replace bool) (dto.KPIBatchResponse, error)
	Rescore(ctx context.Context, id uint, req dto.KPIScoreUpdateRequest, actor ActivityActor) (dto.KPISubmitResponse, error)
	Deactivate(ctx context.Context, id uint, actor ActivityActor) error
	Get(ctx context.Context, id uint) (dto.KPIScoreResponse, error)
	List(ctx context.Context, query dto.KPIScoreListQuery) ([]dto.KPIScoreResponse, dto.PaginationMeta, error)
	Preview(ctx context.Context, req dto.KPIPreviewRequest) (dto.KPIPreviewResponse, error)
	ProcessTriggers(ctx context.Context, id uint, actor ActivityActor) (dto.KPITriggerSummary, error)
}

type kpiScoreService struct {
	scores      repository.KPIScoreRepository
	users       repository.UserRepository
	configs     KPIConfigService
	triggers    KPITriggerService
	activity    ActivityRecorder
	matcher     *kpi.Matcher
	validator   *validator.Validate
	autoProcess bool
	logger      zerolog.Logger
}

// KPIScoreServiceOptions configures optional behaviour of the score service.
type KPIScoreServiceOptions struct {
	Activity    ActivityRecorder
	Matcher     *kpi.Matcher
	AutoProcess bool
}

// NewKPIScoreService constructs the score service. When AutoProcess is set every stored
// score runs the trigger pipeline before the call returns.
func NewKPIScoreService(scores repository.KPIScoreRepository, users repository.UserRepository, configs KPIConfigService, triggers KPITriggerService, validate *validator.Validate, opts KPIScoreServiceOptions, logger zerolog.Logger) KPIScoreService {
	matcher := opts.Matcher
	if matcher == nil {
		matcher = kpi.NewMatcher()
	}
	return &kpiScoreService{
		scores:      scores,
		users:       users,
		configs:     configs,
		triggers:    triggers,
		activity:    opts.Activity,
		matcher:     matcher,
		validator:   validate,
		autoProcess: opts.AutoProcess,
		logger:      logger.With().Str("component", "kpi_score_service").Logger(),
	}
}

func (s *kpiScoreService) Submit(ctx context.Context, req dto.KPIScoreCreateRequest, actor ActivityActor) (dto.KPISubmitResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.KPISubmitResponse{}, err
	}

	period, err := kpi.NormalizePeriod(req.Period)
	if err != nil {
		return dto.KPISubmitResponse{}, fmt.Errorf("%w: %q", err, req.Period)
	}

	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.KPISubmitResponse{}, ErrKPIUserNotFound
		}
		return dto.KPISubmitResponse{}, err
	}

	existing, err := s.scores.FindActiveByUserPeriod(ctx, req.UserID, period)
	if err != nil {
		return dto.KPISubmitResponse{}, err
	}
	if existing != nil {
		return dto.KPISubmitResponse{}, ErrKPIScoreExists
	}

	engine := s.engine(ctx)
	score := models.KPIScore{
		UserID:      req.UserID,
		Period:      period,
		TotalCases:  req.TotalCases,
		IsActive:    true,
		SubmittedBy: actor.ID,
	}
	applyEvaluation(&score, engine, req.Row())

	if err := s.scores.Create(ctx, &score); err != nil {
		return dto.KPISubmitResponse{}, err
	}

	observability.KPIEvaluations().WithLabelValues(score.Rating).Inc()
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityKPISubmitted,
		EntityType: "kpi_score",
		EntityID:   uintPtr(score.ID),
		Metadata:   map[string]interface{}{"user_id": score.UserID, "period": score.Period, "overall_score": score.OverallScore, "rating": score.Rating},
	})

	s.logger.Info().Uint("kpi_score_id", score.ID).Uint("user_id", score.UserID).Str("period", period).Float64("overall_score", score.OverallScore).Msg("kpi score submitted")

	return s.afterStore(ctx, score)
}

// SubmitBatch stores bulk rows one at a time. A failing row never aborts the batch and
// rows keep input order. With replace set, an existing active score for the same user and
// period is deactivated instead of failing the row.
func (s *kpiScoreService) SubmitBatch(ctx context.Context, rows []dto.KPIBulkRow, actor ActivityActor, replace bool) (dto.KPIBatchResponse, error) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return dto.KPIBatchResponse{}, err
	}
	candidates := make([]kpi.Candidate, 0, len(users))
	for _, user := range users {
		candidates = append(candidates, kpi.Candidate{ID: user.ID, Name: user.Name, Email: user.Email, EmployeeID: user.EmployeeID})
	}

	engine := s.engine(ctx)
	batchID := uuid.NewString()
	logger := s.logger.With().Str("batch_id", batchID).Logger()

	results := make([]kpi.RowResult[dto.KPIBatchRowResult], 0, len(rows))
	for i, row := range rows {
		if len(row.Warnings) > 0 {
			logger.Warn().Int("row", i+1).Str("identifier", row.Identifier).Strs("warnings", row.Warnings).Msg("kpi bulk row has unreadable cells")
		}
		value, err := s.submitRow(ctx, engine, candidates, row, actor, replace)
		if err != nil {
			logger.Warn().Err(err).Int("row", i+1).Str("identifier", row.Identifier).Msg("kpi bulk row rejected")
			results = append(results, kpi.Fail[dto.KPIBatchRowResult](i+1, err))
			continue
		}
		results = append(results, kpi.Ok(i+1, value))
	}

	succeeded, failed := kpi.Partition(results)
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityKPIBatchUploaded,
		EntityType: "kpi_batch",
		Metadata:   map[string]interface{}{"batch_id": batchID, "total": len(rows), "succeeded": succeeded, "failed": failed, "replace": replace},
	})
	logger.Info().Int("total", len(rows)).Int("succeeded", succeeded).Int("failed", failed).Msg("kpi bulk upload processed")

	return dto.KPIBatchResponse{
		BatchID:   batchID,
		Total:     len(rows),
		Succeeded: succeeded,
		Failed:    failed,
		Rows:      results,
	}, nil
}

func (s *kpiScoreService) submitRow(ctx context.Context, engine *kpi.Engine, candidates []kpi.Candidate, row dto.KPIBulkRow, actor ActivityActor, replace bool) (dto.KPIBatchRowResult, error) {
	if err := s.validator.Struct(row); err != nil {
		return dto.KPIBatchRowResult{}, err
	}

	period, err := kpi.NormalizePeriod(row.Period)
	if err != nil {
		return dto.KPIBatchRowResult{}, fmt.Errorf("%w: %q", err, row.Period)
	}

	candidate, strategy, err := s.matcher.Match(row.Identifier, candidates)
	if err != nil {
		return dto.KPIBatchRowResult{}, fmt.Errorf("%w: %q", err, strings.TrimSpace(row.Identifier))
	}

	result := dto.KPIBatchRowResult{UserID: candidate.ID, MatchedBy: string(strategy), Warnings: row.Warnings}

	existing, err := s.scores.FindActiveByUserPeriod(ctx, candidate.ID, period)
	if err != nil {
		return dto.KPIBatchRowResult{}, err
	}
	if existing != nil {
		if !replace {
			return dto.KPIBatchRowResult{}, ErrKPIScoreExists
		}
	}

	score := models.KPIScore{
		UserID:      candidate.ID,
		Period:      period,
		TotalCases:  row.TotalCases,
		IsActive:    true,
		SubmittedBy: actor.ID,
	}
	applyEvaluation(&score, engine, row.Row())

	if existing != nil {
		if err := s.scores.Replace(ctx, existing.ID, &score); err != nil {
			return dto.KPIBatchRowResult{}, err
		}
		result.ReplacedScore = uintPtr(existing.ID)
	} else if err := s.scores.Create(ctx, &score); err != nil {
		return dto.KPIBatchRowResult{}, err
	}
	observability.KPIEvaluations().WithLabelValues(score.Rating).Inc()

	stored, err := s.afterStore(ctx, score)
	if err != nil {
		return dto.KPIBatchRowResult{}, err
	}
	result.Score = stored.Score
	result.Triggers = stored.Triggers
	return result, nil
}

// Rescore replaces the metrics given in the request, keeps the others, and re-evaluates.
func (s *kpiScoreService) Rescore(ctx context.Context, id uint, req dto.KPIScoreUpdateRequest, actor ActivityActor) (dto.KPISubmitResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.KPISubmitResponse{}, err
	}

	score, err := s.find(ctx, id)
	if err != nil {
		return dto.KPISubmitResponse{}, err
	}
	if !score.IsActive {
		return dto.KPISubmitResponse{}, ErrKPIScoreInactive
	}

	previous := score.OverallScore
	row := dto.MetricRowFromScore(score)
	changes := req.Row()
	for _, metric := range kpi.AllMetrics {
		if value, ok := changes.Value(metric); ok {
			row.Set(metric, value)
		}
	}
	if req.TotalCases != nil {
		score.TotalCases = *req.TotalCases
	}
	applyEvaluation(&score, s.engine(ctx), row)

	if err := s.scores.Update(ctx, &score); err != nil {
		return dto.KPISubmitResponse{}, err
	}

	observability.KPIEvaluations().WithLabelValues(score.Rating).Inc()
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityKPIRescored,
		EntityType: "kpi_score",
		EntityID:   uintPtr(score.ID),
		Metadata:   map[string]interface{}{"previous_score": previous, "overall_score": score.OverallScore, "rating": score.Rating},
	})

	return s.afterStore(ctx, score)
}

func (s *kpiScoreService) Deactivate(ctx context.Context, id uint, actor ActivityActor) error {
	if err := s.scores.Deactivate(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrKPIScoreNotFound
		}
		return err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityKPIDeactivated,
		EntityType: "kpi_score",
		EntityID:   uintPtr(id),
	})
	s.logger.Info().Uint("kpi_score_id", id).Msg("kpi score deactivated")
	return nil
}

func (s *kpiScoreService) Get(ctx context.Context, id uint) (dto.KPIScoreResponse, error) {
	score, err := s.find(ctx, id)
	if err != nil {
		return dto.KPIScoreResponse{}, err
	}
	return dto.NewKPIScoreResponse(score), nil
}

func (s *kpiScoreService) List(ctx context.Context, query dto.KPIScoreListQuery) ([]dto.KPIScoreResponse, dto.PaginationMeta, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	page := maxInt(query.Page, 1)
	pageSize := clampPageSize(query.PageSize)
	filter := repository.KPIScoreFilter{
		Rating:     strings.TrimSpace(query.Rating),
		IncludeAll: query.IncludeAll,
		Page:       page,
		PageSize:   pageSize,
	}
	if query.UserID > 0 {
		filter.UserID = &query.UserID
	}
	if strings.TrimSpace(query.Period) != "" {
		period, err := kpi.NormalizePeriod(query.Period)
		if err != nil {
			return nil, dto.PaginationMeta{}, fmt.Errorf("%w: %q", err, query.Period)
		}
		filter.Period = period
	}

	scores, total, err := s.scores.List(ctx, filter)
	if err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	return dto.NewKPIScoreResponseSlice(scores), dto.NewPaginationMeta(page, pageSize, total), nil
}

// Preview evaluates the metrics against the active rule table without persisting anything.
func (s *kpiScoreService) Preview(ctx context.Context, req dto.KPIPreviewRequest) (dto.KPIPreviewResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.KPIPreviewResponse{}, err
	}
	return dto.KPIPreviewResponse{Evaluation: s.engine(ctx).Evaluate(req.Row())}, nil
}

func (s *kpiScoreService) ProcessTriggers(ctx context.Context, id uint, actor ActivityActor) (dto.KPITriggerSummary, error) {
	if _, err := s.find(ctx, id); err != nil {
		return dto.KPITriggerSummary{}, err
	}

	summary := s.triggers.Process(ctx, id)
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityKPITriggersRun,
		EntityType: "kpi_score",
		EntityID:   uintPtr(id),
		Metadata:   map[string]interface{}{"success": summary.Success, "actions": len(summary.Actions), "errors": len(summary.Errors)},
	})
	return summary, nil
}

func (s *kpiScoreService) afterStore(ctx context.Context, score models.KPIScore) (dto.KPISubmitResponse, error) {
	response := dto.KPISubmitResponse{Score: dto.NewKPIScoreResponse(score)}
	if !s.autoProcess || s.triggers == nil {
		return response, nil
	}

	summary := s.triggers.Process(ctx, score.ID)
	response.Triggers = &summary

	refreshed, err := s.scores.FindByID(ctx, score.ID)
	if err != nil {
		return response, nil
	}
	response.Score = dto.NewKPIScoreResponse(refreshed)
	return response, nil
}

func (s *kpiScoreService) find(ctx context.Context, id uint) (models.KPIScore, error) {
	score, err := s.scores.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.KPIScore{}, ErrKPIScoreNotFound
		}
		return models.KPIScore{}, err
	}
	return score, nil
}

func (s *kpiScoreService) engine(ctx context.Context) *kpi.Engine {
	engine, err := s.configs.Active(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("active rule table unavailable, using built-in rules")
		return kpi.MustDefaultEngine()
	}
	return engine
}

func applyEvaluation(score *models.KPIScore, engine *kpi.Engine, row kpi.MetricRow) {
	score.TAT = row.TAT
	score.MajorNegativity = row.MajorNegativity
	score.Quality = row.Quality
	score.NeighborCheck = row.NeighborCheck
	score.Negativity = row.Negativity
	score.AppUsage = row.AppUsage
	score.Insufficiency = row.Insufficiency

	score.OverallScore = engine.Score(row)
	score.Rating = string(engine.Rating(score.OverallScore))
	score.ConfigVersion = engine.Version()
}
