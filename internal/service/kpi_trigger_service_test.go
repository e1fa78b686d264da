package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/config"
	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

type triggerHarness struct {
	db      *gorm.DB
	redis   *redis.Client
	miniSrv *miniredis.Miniredis
	sender  *recordingSender
	scores  repository.KPIScoreRepository
	users   repository.UserRepository
	configs KPIConfigService
	service KPITriggerService
	fe      models.User
}

func newTriggerHarness(t *testing.T, sender *recordingSender) *triggerHarness {
	t.Helper()
	return newTriggerHarnessWith(t, sender, nil)
}

func newTriggerHarnessWith(t *testing.T, sender *recordingSender, customize func(*KPITriggerDependencies)) *triggerHarness {
	t.Helper()
	db := setupServiceDB(t)

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	users := repository.NewUserRepository(db)
	fe := models.User{Name: "Field Exec", Email: "fe@example.com", EmployeeID: "FE-001", Role: "fe", IsActive: true}
	require.NoError(t, users.Create(ctx, &fe))
	for _, staff := range []models.User{
		{Name: "Coord", Email: "coord@example.com", Role: "Coordinator", IsActive: true},
		{Name: "Mgr", Email: "manager@example.com", Role: "Manager", IsActive: true},
		{Name: "Head", Email: "hod@example.com", Role: "HOD", IsActive: true},
	} {
		require.NoError(t, users.Create(ctx, &staff))
	}
	groups := repository.NewRecipientGroupRepository(db)
	require.NoError(t, groups.Create(ctx, &models.RecipientGroup{Role: "Compliance Team", Name: "Compliance", Email: "compliance@example.com", IsActive: true}))

	validate := validator.New()
	logger := testLogger()
	scores := repository.NewKPIScoreRepository(db)
	configs := NewKPIConfigService(repository.NewKPIConfigurationRepository(db), client, time.Minute, validate, nil, logger)

	deps := KPITriggerDependencies{
		Scores:        scores,
		Users:         users,
		Trainings:     repository.NewTrainingAssignmentRepository(db),
		Audits:        repository.NewAuditScheduleRepository(db),
		Configs:       configs,
		Recipients:    NewRecipientService(groups, users, logger),
		Emails:        NewEmailTemplateService(repository.NewEmailTemplateRepository(db), repository.NewEmailLogRepository(db), sender, "kpi@example.com", logger),
		Lifecycle:     NewLifecycleService(repository.NewLifecycleEventRepository(db), logger),
		Notifications: NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger),
		Redis:         client,
		Settings:      config.DefaultKPIConfig(),
	}
	if customize != nil {
		customize(&deps)
	}
	svc := NewKPITriggerService(deps, logger)

	return &triggerHarness{db: db, redis: client, miniSrv: server, sender: sender, scores: scores, users: users, configs: configs, service: svc, fe: fe}
}

func (h *triggerHarness) seedScore(t *testing.T, overall float64, mutate func(*models.KPIScore)) models.KPIScore {
	t.Helper()
	score := models.KPIScore{
		UserID:       h.fe.ID,
		Period:       "Oct-25",
		TotalCases:   120,
		OverallScore: overall,
		IsActive:     true,
	}
	if mutate != nil {
		mutate(&score)
	}
	require.NoError(t, h.scores.Create(context.Background(), &score))
	return score
}

func (h *triggerHarness) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var total int64
	require.NoError(t, h.db.Model(model).Count(&total).Error)
	return total
}

func TestKPITriggerProcessUnsatisfactoryDispatchesEveryAction(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	score := h.seedScore(t, 35, nil)

	summary := h.service.Process(context.Background(), score.ID)

	require.True(t, summary.Success)
	require.Empty(t, summary.Errors)
	require.Equal(t, "Unsatisfactory", summary.Rating)
	require.Len(t, summary.Actions, 5)
	codes := make([]string, 0, len(summary.Actions))
	for _, action := range summary.Actions {
		require.Equal(t, dto.ActionStatusCreated, action.Status, action.Code)
		require.NotNil(t, action.RecordID)
		codes = append(codes, action.Code)
	}
	require.Equal(t, []string{"basic_training", "audit_call", "cross_check", "dummy_audit", "warning_letter"}, codes)

	require.Len(t, summary.TrainingAssignments, 1)
	require.Equal(t, models.AssignedByKPITrigger, summary.TrainingAssignments[0].AssignedBy)
	require.Len(t, summary.Audits, 3)
	for _, audit := range summary.Audits {
		require.Equal(t, "critical", audit.Priority)
		require.Equal(t, score.ID, *audit.KPITriggerID)
	}

	// five recipients (FE, Coordinator, Manager, HOD, Compliance) for each of five actions
	require.Len(t, summary.EmailLogs, 25)
	require.Equal(t, 25, h.sender.count())
	for _, log := range summary.EmailLogs {
		require.Equal(t, models.EmailStatusSent, log.Status)
	}

	require.Len(t, summary.LifecycleEvents, 2)
	require.Len(t, summary.Notifications, 5)

	reloaded, err := h.scores.FindByID(context.Background(), score.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, codes, reloaded.TriggeredActions)
}

func TestKPITriggerProcessIsIdempotent(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	score := h.seedScore(t, 35, nil)

	first := h.service.Process(context.Background(), score.ID)
	require.True(t, first.Success)

	second := h.service.Process(context.Background(), score.ID)
	require.True(t, second.Success)
	require.Empty(t, second.Errors)
	require.Len(t, second.Actions, 5)
	for _, action := range second.Actions {
		require.Equal(t, dto.ActionStatusSkipped, action.Status, action.Code)
	}
	require.Empty(t, second.TrainingAssignments)
	require.Empty(t, second.Audits)
	require.Empty(t, second.EmailLogs)
	require.Empty(t, second.LifecycleEvents)
	require.Empty(t, second.Notifications)

	require.EqualValues(t, 1, h.count(t, &models.TrainingAssignment{}))
	require.EqualValues(t, 3, h.count(t, &models.AuditSchedule{}))
	require.EqualValues(t, 25, h.count(t, &models.EmailLog{}))
	require.EqualValues(t, 2, h.count(t, &models.LifecycleEvent{}))
}

func TestKPITriggerProcessFailingRecipientDoesNotBlockOthers(t *testing.T) {
	sender := &recordingSender{failFor: map[string]error{"hod@example.com": errors.New("mailbox unavailable")}}
	h := newTriggerHarness(t, sender)
	score := h.seedScore(t, 35, nil)

	summary := h.service.Process(context.Background(), score.ID)

	require.True(t, summary.Success)
	require.Len(t, summary.EmailLogs, 25)
	require.Equal(t, 20, sender.count())

	failed := 0
	for _, log := range summary.EmailLogs {
		if log.Status == models.EmailStatusFailed {
			failed++
			require.Equal(t, "hod@example.com", log.RecipientEmail)
		}
	}
	require.Equal(t, 5, failed)

	emailErrors := 0
	for _, e := range summary.Errors {
		if e.Stage == dto.StageEmail {
			emailErrors++
			require.NotContains(t, e.Recipient, "hod@example.com")
		}
	}
	require.Equal(t, 5, emailErrors)
}

func TestKPITriggerProcessLockHeld(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	score := h.seedScore(t, 35, nil)

	require.NoError(t, h.miniSrv.Set(fmt.Sprintf("kpi:trigger:lock:%d", score.ID), "other-node"))

	summary := h.service.Process(context.Background(), score.ID)
	require.False(t, summary.Success)
	require.Len(t, summary.Errors, 1)
	require.Equal(t, dto.StageLock, summary.Errors[0].Stage)
	require.EqualValues(t, 0, h.count(t, &models.TrainingAssignment{}))

	h.miniSrv.Del(fmt.Sprintf("kpi:trigger:lock:%d", score.ID))
	summary = h.service.Process(context.Background(), score.ID)
	require.True(t, summary.Success)
	require.False(t, h.miniSrv.Exists(fmt.Sprintf("kpi:trigger:lock:%d", score.ID)))
}

func TestKPITriggerProcessMissingOrInactiveScore(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})

	missing := h.service.Process(context.Background(), 999)
	require.False(t, missing.Success)
	require.Equal(t, dto.StageLoad, missing.Errors[0].Stage)

	score := h.seedScore(t, 35, nil)
	require.NoError(t, h.scores.Deactivate(context.Background(), score.ID))

	inactive := h.service.Process(context.Background(), score.ID)
	require.False(t, inactive.Success)
	require.Equal(t, "kpi score is inactive", inactive.Errors[0].Message)
	require.EqualValues(t, 0, h.count(t, &models.AuditSchedule{}))
}

func TestKPITriggerProcessOutstandingRecordsReward(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	score := h.seedScore(t, 92, nil)

	summary := h.service.Process(context.Background(), score.ID)

	require.True(t, summary.Success)
	require.True(t, summary.RewardEligible)
	require.Empty(t, summary.Actions)
	require.Len(t, summary.LifecycleEvents, 2)
	require.Equal(t, models.LifecycleTypeRewardEligible, summary.LifecycleEvents[1].Type)
	require.Equal(t, models.LifecycleCategoryMilestone, summary.LifecycleEvents[1].Category)

	// FE and Manager
	require.Len(t, summary.EmailLogs, 2)
	for _, log := range summary.EmailLogs {
		require.Equal(t, TemplateRewardEligible, log.TemplateType)
	}

	again := h.service.Process(context.Background(), score.ID)
	require.Empty(t, again.EmailLogs)
	require.Empty(t, again.LifecycleEvents)
}

func TestKPITriggerProcessOpenTrainingFromEarlierScoreBlocks(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	earlier := h.seedScore(t, 35, func(s *models.KPIScore) { s.Period = "Sep-25" })
	require.True(t, h.service.Process(context.Background(), earlier.ID).Success)

	current := h.seedScore(t, 45, nil)
	summary := h.service.Process(context.Background(), current.ID)

	require.True(t, summary.Success)
	var training *dto.TriggeredAction
	for i := range summary.Actions {
		if summary.Actions[i].Code == "basic_training" {
			training = &summary.Actions[i]
		}
	}
	require.NotNil(t, training)
	require.Equal(t, dto.ActionStatusSkipped, training.Status)
	require.Equal(t, "open record of the same type exists", training.Reason)
	require.EqualValues(t, 1, h.count(t, &models.TrainingAssignment{}))
}

func TestKPITriggerProcessConditionRulesMergeWithBand(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	score := h.seedScore(t, 60, func(s *models.KPIScore) {
		s.Quality = floatPtr(1.4)
		s.AppUsage = floatPtr(75)
	})

	summary := h.service.Process(context.Background(), score.ID)
	require.True(t, summary.Success)

	byCode := make(map[string]dto.TriggeredAction, len(summary.Actions))
	for _, action := range summary.Actions {
		byCode[action.Code] = action
	}
	require.Contains(t, byCode, "audit_call")
	require.Contains(t, byCode, "cross_check")
	require.Contains(t, byCode, "dos_donts_training")
	require.Contains(t, byCode, "rca")
	require.Contains(t, byCode, "app_usage_training")
	require.ElementsMatch(t, []string{"satisfactory", "quality_concern"}, byCode["audit_call"].Rules)

	for _, audit := range summary.Audits {
		if audit.AuditType == models.AuditTypeAuditCall {
			require.Equal(t, "high", audit.Priority)
		}
	}
}

func TestKPITriggerProcessRecordsMergedActionDetails(t *testing.T) {
	h := newTriggerHarness(t, &recordingSender{})
	score := h.seedScore(t, 60, func(s *models.KPIScore) { s.Insufficiency = floatPtr(3) })

	summary := h.service.Process(context.Background(), score.ID)
	require.True(t, summary.Success)

	var crossCheck *dto.AuditScheduleResponse
	for i := range summary.Audits {
		if summary.Audits[i].AuditType == "cross_check" {
			crossCheck = &summary.Audits[i]
		}
	}
	require.NotNil(t, crossCheck)
	require.Equal(t, "field_reverification", crossCheck.AuditMethod)

	reloaded, err := h.scores.FindByID(context.Background(), score.ID)
	require.NoError(t, err)
	require.Contains(t, reloaded.TriggeredActions, "cross_check")
	require.Contains(t, reloaded.TriggeredActions, "cross_verification")
}

// logUpdateFailingEmails reports a failed send whose log update also failed.
type logUpdateFailingEmails struct {
	EmailTemplateService
}

func (e logUpdateFailingEmails) Send(ctx context.Context, req EmailRequest) (models.EmailLog, error) {
	log, _ := e.EmailTemplateService.Send(ctx, req)
	log.Status = models.EmailStatusFailed
	log.ErrorMessage = "smtp unavailable"
	return log, errors.New("update email log: connection reset")
}

func TestKPITriggerProcessReportsEachFailedEmailOnce(t *testing.T) {
	h := newTriggerHarnessWith(t, &recordingSender{}, func(deps *KPITriggerDependencies) {
		deps.Emails = logUpdateFailingEmails{EmailTemplateService: deps.Emails}
	})
	score := h.seedScore(t, 60, nil)

	summary := h.service.Process(context.Background(), score.ID)
	require.True(t, summary.Success)
	require.NotEmpty(t, summary.EmailLogs)
	require.Len(t, summary.Errors, len(summary.EmailLogs))

	for _, e := range summary.Errors {
		require.Equal(t, dto.StageEmail, e.Stage)
		require.Equal(t, "update email log: connection reset", e.Message)
	}
}
