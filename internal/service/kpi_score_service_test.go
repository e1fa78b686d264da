package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

var admin = ActivityActor{ID: 7, Role: "admin"}

func newScoreService(t *testing.T, h *triggerHarness, autoProcess bool) (KPIScoreService, ActivityService) {
	t.Helper()
	validate := validator.New()
	activity := NewActivityService(repository.NewActivityLogRepository(h.db), validate, testLogger())
	require.NoError(t, h.db.AutoMigrate(&models.ActivityLog{}))
	svc := NewKPIScoreService(h.scores, h.users, h.configs, h.service, validate, KPIScoreServiceOptions{
		Activity:    activity,
		AutoProcess: autoProcess,
	}, testLogger())
	return svc, activity
}

func perfectMetrics() dto.KPIMetricsPayload {
	return dto.KPIMetricsPayload{
		TAT:             floatPtr(97),
		MajorNegativity: floatPtr(3),
		Quality:         floatPtr(0),
		NeighborCheck:   floatPtr(95),
		Negativity:      floatPtr(30),
		AppUsage:        floatPtr(92),
		Insufficiency:   floatPtr(0.5),
	}
}

func TestKPIScoreServiceSubmitScoresAndRejectsDuplicates(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	svc, activity := newScoreService(t, h, false)
	ctx := context.Background()

	resp, err := svc.Submit(ctx, dto.KPIScoreCreateRequest{
		UserID:            h.fe.ID,
		Period:            "October 2025",
		TotalCases:        140,
		KPIMetricsPayload: perfectMetrics(),
	}, admin)
	require.NoError(t, err)
	require.Equal(t, "Oct-25", resp.Score.Period)
	require.Equal(t, 100.0, resp.Score.OverallScore)
	require.Equal(t, string(kpi.RatingOutstanding), resp.Score.Rating)
	require.Equal(t, uint(7), resp.Score.SubmittedBy)
	require.Nil(t, resp.Triggers)

	_, err = svc.Submit(ctx, dto.KPIScoreCreateRequest{UserID: h.fe.ID, Period: "Oct-25"}, admin)
	require.ErrorIs(t, err, ErrKPIScoreExists)

	_, err = svc.Submit(ctx, dto.KPIScoreCreateRequest{UserID: 999, Period: "Oct-25"}, admin)
	require.ErrorIs(t, err, ErrKPIUserNotFound)

	_, err = svc.Submit(ctx, dto.KPIScoreCreateRequest{UserID: h.fe.ID, Period: "someday"}, admin)
	require.ErrorIs(t, err, kpi.ErrInvalidPeriod)

	entries, meta, err := activity.List(ctx, dto.ActivityListQuery{Action: ActivityKPISubmitted})
	require.NoError(t, err)
	require.EqualValues(t, 1, meta.TotalItems)
	require.Equal(t, "admin", entries[0].ActorRole)
}

func TestKPIScoreServiceSubmitRunsTriggersWhenEnabled(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	svc, _ := newScoreService(t, h, true)

	resp, err := svc.Submit(context.Background(), dto.KPIScoreCreateRequest{
		UserID: h.fe.ID,
		Period: "2025-10",
		KPIMetricsPayload: dto.KPIMetricsPayload{
			TAT:      floatPtr(96),
			AppUsage: floatPtr(70),
		},
	}, admin)
	require.NoError(t, err)
	require.Equal(t, 20.0, resp.Score.OverallScore)
	require.NotNil(t, resp.Triggers)
	require.True(t, resp.Triggers.Success)
	require.Contains(t, resp.Score.TriggeredActions, "app_usage_training")
	require.Contains(t, resp.Score.TriggeredActions, "warning_letter")
}

func TestKPIScoreServiceRescoreMergesMetrics(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	svc, _ := newScoreService(t, h, false)
	ctx := context.Background()

	created, err := svc.Submit(ctx, dto.KPIScoreCreateRequest{
		UserID:            h.fe.ID,
		Period:            "Oct-25",
		KPIMetricsPayload: dto.KPIMetricsPayload{TAT: floatPtr(96)},
	}, admin)
	require.NoError(t, err)
	require.Equal(t, 20.0, created.Score.OverallScore)

	cases := 88
	updated, err := svc.Rescore(ctx, created.Score.ID, dto.KPIScoreUpdateRequest{
		TotalCases:        &cases,
		KPIMetricsPayload: dto.KPIMetricsPayload{NeighborCheck: floatPtr(91)},
	}, admin)
	require.NoError(t, err)
	require.Equal(t, 30.0, updated.Score.OverallScore)
	require.Equal(t, 88, updated.Score.TotalCases)
	require.NotNil(t, updated.Score.TAT)

	require.NoError(t, svc.Deactivate(ctx, created.Score.ID, admin))
	_, err = svc.Rescore(ctx, created.Score.ID, dto.KPIScoreUpdateRequest{}, admin)
	require.ErrorIs(t, err, ErrKPIScoreInactive)

	require.ErrorIs(t, svc.Deactivate(ctx, 4242, admin), ErrKPIScoreNotFound)
	_, err = svc.Get(ctx, 4242)
	require.ErrorIs(t, err, ErrKPIScoreNotFound)
}

func TestKPIScoreServiceSubmitBatchIsolatesRows(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	svc, _ := newScoreService(t, h, false)
	ctx := context.Background()

	rows := []dto.KPIBulkRow{
		{Identifier: "FE-001", Period: "Oct-25", TotalCases: 10, KPIMetricsPayload: perfectMetrics()},
		{Identifier: "nobody at all", Period: "Oct-25"},
		{Identifier: "coord@example.com", Period: "13/2025"},
		{Identifier: "field exec", Period: "Oct-25"},
		{Identifier: "Mgr", Period: "Oct 2025", KPIMetricsPayload: dto.KPIMetricsPayload{TAT: floatPtr(85)}},
	}

	batch, err := svc.SubmitBatch(ctx, rows, admin, false)
	require.NoError(t, err)
	require.NotEmpty(t, batch.BatchID)
	require.Equal(t, 5, batch.Total)
	require.Equal(t, 2, batch.Succeeded)
	require.Equal(t, 3, batch.Failed)

	require.True(t, batch.Rows[0].IsOk())
	require.Equal(t, string(kpi.MatchEmployeeID), batch.Rows[0].Value.MatchedBy)
	require.Equal(t, h.fe.ID, batch.Rows[0].Value.UserID)
	require.ErrorIs(t, batch.Rows[1].Err, kpi.ErrNoMatch)
	require.ErrorIs(t, batch.Rows[2].Err, kpi.ErrInvalidPeriod)
	require.ErrorIs(t, batch.Rows[3].Err, ErrKPIScoreExists)
	require.True(t, batch.Rows[4].IsOk())
	require.Equal(t, string(kpi.MatchName), batch.Rows[4].Value.MatchedBy)
	require.Equal(t, 10.0, batch.Rows[4].Value.Score.OverallScore)

	replaced, err := svc.SubmitBatch(ctx, rows[:1], admin, true)
	require.NoError(t, err)
	require.Equal(t, 1, replaced.Succeeded)
	require.NotNil(t, replaced.Rows[0].Value.ReplacedScore)
	require.Equal(t, batch.Rows[0].Value.Score.ID, *replaced.Rows[0].Value.ReplacedScore)

	list, meta, err := svc.List(ctx, dto.KPIScoreListQuery{UserID: h.fe.ID, IncludeAll: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, meta.TotalItems)
	require.Len(t, list, 2)
}

func TestKPIScoreServiceFailedReplaceKeepsActiveScore(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	svc, _ := newScoreService(t, h, false)
	ctx := context.Background()

	rows := []dto.KPIBulkRow{{Identifier: "FE-001", Period: "Oct-25", TotalCases: 10, KPIMetricsPayload: perfectMetrics()}}
	batch, err := svc.SubmitBatch(ctx, rows, admin, false)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Succeeded)
	original := batch.Rows[0].Value.Score.ID

	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:fail_kpi_score_insert", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.KPIScore); ok {
			_ = tx.AddError(errors.New("insert failed"))
		}
	}))

	replaced, err := svc.SubmitBatch(ctx, rows, admin, true)
	require.NoError(t, err)
	require.Equal(t, 1, replaced.Failed)
	require.EqualError(t, replaced.Rows[0].Err, "insert failed")

	active, err := h.scores.FindActiveByUserPeriod(ctx, h.fe.ID, "Oct-25")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, original, active.ID)
}

func TestKPIScoreServiceSubmitBatchCarriesCellWarnings(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	svc, _ := newScoreService(t, h, false)

	metrics := perfectMetrics()
	metrics.TAT = nil
	batch, err := svc.SubmitBatch(context.Background(), []dto.KPIBulkRow{{
		Identifier:        "FE-001",
		Period:            "Oct-25",
		KPIMetricsPayload: metrics,
		Warnings:          []string{`line 2 column "TAT %": "fast" is not a number`},
	}}, admin, false)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Succeeded)
	require.Equal(t, []string{`line 2 column "TAT %": "fast" is not a number`}, batch.Rows[0].Value.Warnings)
	require.Less(t, batch.Rows[0].Value.Score.OverallScore, 100.0)
}

func TestKPIScoreServicePreviewDoesNotPersist(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	svc, _ := newScoreService(t, h, false)

	preview, err := svc.Preview(context.Background(), dto.KPIPreviewRequest{KPIMetricsPayload: dto.KPIMetricsPayload{
		Quality:  floatPtr(2),
		AppUsage: floatPtr(50),
	}})
	require.NoError(t, err)
	require.Equal(t, kpi.RatingUnsatisfactory, preview.Rating)
	require.NotEmpty(t, preview.ConditionTriggers)
	require.EqualValues(t, 0, h.count(t, &models.KPIScore{}))

	_, err = svc.Preview(context.Background(), dto.KPIPreviewRequest{KPIMetricsPayload: dto.KPIMetricsPayload{TAT: floatPtr(140)}})
	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))
}

func TestKPIScoreServiceProcessTriggersRecordsActivity(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	svc, activity := newScoreService(t, h, false)
	score := h.seedScore(t, 45, nil)

	summary, err := svc.ProcessTriggers(context.Background(), score.ID, admin)
	require.NoError(t, err)
	require.True(t, summary.Success)

	entries, _, err := activity.List(context.Background(), dto.ActivityListQuery{EntityType: "kpi_score", EntityID: score.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ActivityKPITriggersRun, entries[0].Action)

	_, err = svc.ProcessTriggers(context.Background(), 999, admin)
	require.ErrorIs(t, err, ErrKPIScoreNotFound)
}
