package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-ops-api/internal/config"
	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

func TestAuditServiceScheduleAndComplete(t *testing.T) {
	db := setupServiceDB(t)
	ctx := context.Background()
	validate := validator.New()

	users := repository.NewUserRepository(db)
	user := models.User{Name: "Chitra", Email: "chitra@example.com", IsActive: true}
	require.NoError(t, users.Create(ctx, &user))

	lifecycleRepo := repository.NewLifecycleEventRepository(db)
	svc := NewAuditService(repository.NewAuditScheduleRepository(db), users, NewLifecycleService(lifecycleRepo, testLogger()), nil, validate, config.DefaultKPIConfig(), testLogger())
	now := time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)
	svc.(*auditService).now = func() time.Time { return now }

	scheduled, err := svc.Schedule(ctx, dto.AuditScheduleRequest{UserID: user.ID, AuditType: models.AuditTypeRCA, Priority: "high"}, admin)
	require.NoError(t, err)
	require.Equal(t, models.AuditStatusScheduled, scheduled.Status)
	require.True(t, now.AddDate(0, 0, 2).Equal(scheduled.ScheduledDate))

	_, err = svc.Schedule(ctx, dto.AuditScheduleRequest{UserID: user.ID, AuditType: models.AuditTypeRCA}, admin)
	require.ErrorIs(t, err, ErrAuditAlreadyOpen)

	_, err = svc.Schedule(ctx, dto.AuditScheduleRequest{UserID: user.ID, AuditType: "mystery"}, admin)
	require.Error(t, err)

	started, err := svc.Start(ctx, scheduled.ID, admin)
	require.NoError(t, err)
	require.Equal(t, models.AuditStatusInProgress, started.Status)
	require.Equal(t, admin.ID, *started.AssignedTo)

	_, err = svc.Complete(ctx, scheduled.ID, dto.AuditCompleteRequest{}, admin)
	require.Error(t, err)

	done, err := svc.Complete(ctx, scheduled.ID, dto.AuditCompleteRequest{
		Findings:         "Call scripts not followed",
		RiskLevel:        "high",
		ComplianceStatus: "non_compliant",
	}, admin)
	require.NoError(t, err)
	require.Equal(t, models.AuditStatusCompleted, done.Status)
	require.Equal(t, "non_compliant", done.ComplianceStatus)

	_, err = svc.Start(ctx, scheduled.ID, admin)
	require.ErrorIs(t, err, ErrInvalidTransition)

	events, err := lifecycleRepo.ListByUser(ctx, user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, models.LifecycleCategoryNegative, events[0].Category)

	list, meta, err := svc.List(ctx, dto.AuditListQuery{UserID: user.ID, AuditType: models.AuditTypeRCA})
	require.NoError(t, err)
	require.EqualValues(t, 1, meta.TotalItems)
	require.Equal(t, done.ID, list[0].ID)

	_, err = svc.Cancel(ctx, 12345, admin)
	require.ErrorIs(t, err, ErrAuditNotFound)
}
