package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/noah-isme/kpi-ops-api/internal/config"
	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/observability"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

const (
	// KPITriggerEventSubject is the NATS subject a processed run is announced on.
	KPITriggerEventSubject = "kpi.triggers.processed"
	// KPITriggerEventChannel is the redis pub/sub channel a processed run is announced on.
	KPITriggerEventChannel = "kpi:triggers:processed"
)

// releaseLockScript deletes the lock only when it is still held by this node.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KPITriggerService runs the trigger pipeline for one stored KPI score.
type KPITriggerService interface {
	Process(ctx context.Context, kpiScoreID uint) dto.KPITriggerSummary
}

// KPITriggerDependencies groups the collaborators of the trigger pipeline.
type KPITriggerDependencies struct {
	Scores        repository.KPIScoreRepository
	Users         repository.UserRepository
	Trainings     repository.TrainingAssignmentRepository
	Audits        repository.AuditScheduleRepository
	Configs       KPIConfigService
	Recipients    RecipientService
	Emails        EmailTemplateService
	Lifecycle     LifecycleService
	Notifications NotificationService
	Redis         *redis.Client
	NATS          *nats.Conn
	Settings      config.KPIConfig
}

type kpiTriggerService struct {
	deps     KPITriggerDependencies
	settings config.KPIConfig
	fallback *kpi.Engine
	logger   zerolog.Logger
	tracer   trace.Tracer
	nodeID   string
	now      func() time.Time
}

type pendingEmail struct {
	template   string
	action     string
	roles      []kpi.Role
	variables  map[string]string
	trainingID *uint
	auditID    *uint
}

// NewKPITriggerService constructs the trigger orchestrator.
func NewKPITriggerService(deps KPITriggerDependencies, logger zerolog.Logger) KPITriggerService {
	settings := deps.Settings
	if settings.TrainingDueDays <= 0 {
		settings.TrainingDueDays = 7
	}
	if settings.EmailConcurrency <= 0 {
		settings.EmailConcurrency = 4
	}
	if settings.ProcessingLockTTL <= 0 {
		settings.ProcessingLockTTL = 2 * time.Minute
	}
	if settings.AuditLeadDays == nil {
		settings.AuditLeadDays = config.DefaultKPIConfig().AuditLeadDays
	}

	return &kpiTriggerService{
		deps:     deps,
		settings: settings,
		fallback: kpi.MustDefaultEngine(),
		logger:   logger.With().Str("component", "kpi_trigger_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/kpi-ops-api/internal/service/kpi_trigger"),
		nodeID:   uuid.NewString(),
		now:      time.Now,
	}
}

// Process evaluates the rule table for the score and fans out the resulting artefacts.
// Only a missing or inactive score, or a concurrent run on the same score, yields success=false;
// every other failure is reported in the summary errors.
func (s *kpiTriggerService) Process(ctx context.Context, kpiScoreID uint) (summary dto.KPITriggerSummary) {
	start := s.now()
	summary = dto.NewKPITriggerSummary(kpiScoreID)

	ctx, span := s.tracer.Start(ctx, "kpi.triggers.process", trace.WithAttributes(
		attribute.Int64("kpi.score_id", int64(kpiScoreID)),
	))
	defer span.End()

	outcome := "failed"
	defer func() {
		summary.ProcessingTimeMs = s.now().Sub(start).Milliseconds()
		observability.KPITriggerRuns().WithLabelValues(outcome).Inc()
		observability.KPITriggerDuration().Observe(s.now().Sub(start).Seconds())
	}()

	release, acquired := s.acquireLock(ctx, kpiScoreID)
	if !acquired {
		outcome = "skipped"
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageLock, Message: "trigger processing already in progress for this score"})
		span.SetStatus(codes.Error, "locked")
		return summary
	}
	defer release()

	score, err := s.deps.Scores.FindByID(ctx, kpiScoreID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageLoad, Message: fmt.Sprintf("load kpi score: %v", err)})
		return summary
	}
	if !score.IsActive {
		span.SetStatus(codes.Error, "inactive score")
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageLoad, Message: "kpi score is inactive"})
		return summary
	}

	logger := s.logger.With().Uint("kpi_score_id", score.ID).Uint("user_id", score.UserID).Str("period", score.Period).Logger()

	user, err := s.deps.Users.FindByID(ctx, score.UserID)
	if err != nil {
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageRecipients, Message: fmt.Sprintf("load user: %v", err)})
		user = models.User{ID: score.UserID}
	}

	engine, err := s.deps.Configs.Active(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageConfig, Message: fmt.Sprintf("%v; using built-in rule table", err)})
		engine = s.fallback
	}

	evaluation := engine.EvaluateScore(score.OverallScore, dto.MetricRowFromScore(score))
	summary.ConfigVersion = evaluation.ConfigVersion
	summary.OverallScore = score.OverallScore
	summary.Rating = string(evaluation.Rating)
	summary.RewardEligible = evaluation.RewardEligible

	base := baseEmailVariables(score, user, evaluation.Rating)
	pending := make([]pendingEmail, 0, len(evaluation.Plan))
	tags := make([]string, 0, len(evaluation.Plan))

	for _, planned := range evaluation.Plan {
		tags = append(tags, planned.Codes...)

		var email *pendingEmail
		var result dto.TriggeredAction
		switch planned.Action.Kind {
		case kpi.ActionTraining:
			result, email = s.dispatchTraining(ctx, score, planned, base, &summary)
		case kpi.ActionAudit:
			result, email = s.dispatchAudit(ctx, score, planned, base, &summary)
		case kpi.ActionWarning:
			result, email = s.dispatchWarning(ctx, score, planned, base, &summary)
		default:
			result = newTriggeredAction(planned)
			result.Status = dto.ActionStatusSkipped
			result.Reason = "unsupported action kind"
		}

		observability.KPIActions().WithLabelValues(string(planned.Action.Kind), result.Status).Inc()
		summary.Actions = append(summary.Actions, result)
		if email != nil {
			pending = append(pending, *email)
		}
	}

	if err := s.deps.Scores.UpdateTriggeredActions(ctx, score.ID, tags); err != nil {
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageTags, Message: err.Error()})
	}

	if reward := s.recordLifecycle(ctx, score, evaluation, base, &summary); reward != nil {
		pending = append(pending, *reward)
	}

	s.fanOutEmails(ctx, user, score.ID, pending, &summary)
	s.publishEvent(ctx, score, &summary, start)

	summary.Success = true
	outcome = "success"
	if len(summary.Errors) > 0 {
		outcome = "partial"
	}

	logger.Info().
		Str("rating", summary.Rating).
		Int("actions", len(summary.Actions)).
		Int("trainings", len(summary.TrainingAssignments)).
		Int("audits", len(summary.Audits)).
		Int("emails", len(summary.EmailLogs)).
		Int("errors", len(summary.Errors)).
		Msg("kpi triggers processed")

	return summary
}

func (s *kpiTriggerService) dispatchTraining(ctx context.Context, score models.KPIScore, planned kpi.PlannedAction, base map[string]string, summary *dto.KPITriggerSummary) (dto.TriggeredAction, *pendingEmail) {
	action := planned.Action
	result := newTriggeredAction(planned)
	result.Type = action.TrainingType

	blocking, err := s.deps.Trainings.FindBlocking(ctx, score.UserID, action.TrainingType, score.ID)
	if err != nil {
		result.Status = dto.ActionStatusFailed
		result.Reason = err.Error()
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageTraining, Action: action.Code, Message: err.Error()})
		return result, nil
	}
	if blocking != nil {
		result.Status = dto.ActionStatusSkipped
		result.RecordID = uintPtr(blocking.ID)
		result.Reason = blockingReason(blocking.KPITriggerID, score.ID)
		return result, nil
	}

	priority := action.Priority
	if priority == "" {
		priority = "medium"
	}
	assignment := models.TrainingAssignment{
		UserID:       score.UserID,
		TrainingType: action.TrainingType,
		AssignedBy:   models.AssignedByKPITrigger,
		KPITriggerID: uintPtr(score.ID),
		DueDate:      s.now().UTC().AddDate(0, 0, s.settings.TrainingDueDays),
		Status:       models.TrainingStatusAssigned,
		Priority:     priority,
		Notes:        fmt.Sprintf("%s triggered by %s", action.Label, strings.Join(planned.Rules, ", ")),
		IsActive:     true,
	}
	if err := s.deps.Trainings.Create(ctx, &assignment); err != nil {
		result.Status = dto.ActionStatusFailed
		result.Reason = err.Error()
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageTraining, Action: action.Code, Message: err.Error()})
		return result, nil
	}

	result.Status = dto.ActionStatusCreated
	result.RecordID = uintPtr(assignment.ID)
	summary.TrainingAssignments = append(summary.TrainingAssignments, dto.NewTrainingAssignmentResponse(assignment))

	s.notifyUser(ctx, score, dto.NotificationCreateRequest{
		UserID:   score.UserID,
		Title:    "Training assigned: " + action.Label,
		Message:  fmt.Sprintf("Complete %s by %s.", action.Label, assignment.DueDate.Format("2006-01-02")),
		Type:     models.NotificationTypeTraining,
		Priority: priority,
	}, action.Code, summary)

	variables := withActionVariables(base, planned)
	variables["training_type"] = action.TrainingType
	variables["due_date"] = assignment.DueDate.Format("2006-01-02")

	return result, &pendingEmail{
		template:   templateFor(action, TemplateTrainingAssignment),
		action:     action.Code,
		roles:      planned.Recipients,
		variables:  variables,
		trainingID: uintPtr(assignment.ID),
	}
}

func (s *kpiTriggerService) dispatchAudit(ctx context.Context, score models.KPIScore, planned kpi.PlannedAction, base map[string]string, summary *dto.KPITriggerSummary) (dto.TriggeredAction, *pendingEmail) {
	action := planned.Action
	result := newTriggeredAction(planned)
	result.Type = action.AuditType

	blocking, err := s.deps.Audits.FindBlocking(ctx, score.UserID, action.AuditType, score.ID)
	if err != nil {
		result.Status = dto.ActionStatusFailed
		result.Reason = err.Error()
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageAudit, Action: action.Code, Message: err.Error()})
		return result, nil
	}
	if blocking != nil {
		result.Status = dto.ActionStatusSkipped
		result.RecordID = uintPtr(blocking.ID)
		result.Reason = blockingReason(blocking.KPITriggerID, score.ID)
		return result, nil
	}

	priority := action.Priority
	if priority == "" {
		priority = "medium"
	}
	scope := action.Scope
	if scope == "" {
		scope = action.Label
	}
	audit := models.AuditSchedule{
		UserID:        score.UserID,
		AuditType:     action.AuditType,
		KPITriggerID:  uintPtr(score.ID),
		ScheduledDate: s.now().UTC().AddDate(0, 0, s.settings.AuditLeadFor(priority)),
		Priority:      priority,
		AuditScope:    scope,
		AuditMethod:   action.Method,
		Status:        models.AuditStatusScheduled,
		AssignedBy:    models.AssignedByKPITrigger,
		IsActive:      true,
	}
	if err := s.deps.Audits.Create(ctx, &audit); err != nil {
		result.Status = dto.ActionStatusFailed
		result.Reason = err.Error()
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageAudit, Action: action.Code, Message: err.Error()})
		return result, nil
	}

	result.Status = dto.ActionStatusCreated
	result.RecordID = uintPtr(audit.ID)
	summary.Audits = append(summary.Audits, dto.NewAuditScheduleResponse(audit))

	s.notifyUser(ctx, score, dto.NotificationCreateRequest{
		UserID:   score.UserID,
		Title:    "Audit scheduled: " + action.Label,
		Message:  fmt.Sprintf("%s is scheduled for %s.", action.Label, audit.ScheduledDate.Format("2006-01-02")),
		Type:     models.NotificationTypeAudit,
		Priority: priority,
	}, action.Code, summary)

	variables := withActionVariables(base, planned)
	variables["audit_type"] = action.AuditType
	variables["priority"] = priority
	variables["scheduled_date"] = audit.ScheduledDate.Format("2006-01-02")

	return result, &pendingEmail{
		template:  templateFor(action, TemplateAuditSchedule),
		action:    action.Code,
		roles:     planned.Recipients,
		variables: variables,
		auditID:   uintPtr(audit.ID),
	}
}

func (s *kpiTriggerService) dispatchWarning(ctx context.Context, score models.KPIScore, planned kpi.PlannedAction, base map[string]string, summary *dto.KPITriggerSummary) (dto.TriggeredAction, *pendingEmail) {
	action := planned.Action
	result := newTriggeredAction(planned)

	notification, err := s.deps.Notifications.Publish(ctx, dto.NotificationCreateRequest{
		UserID:     score.UserID,
		Title:      action.Label,
		Message:    fmt.Sprintf("A %s has been issued following the %s KPI review (score %.2f).", strings.ToLower(action.Label), score.Period, score.OverallScore),
		Type:       models.NotificationTypeWarning,
		Priority:   firstNonEmpty(action.Priority, "high"),
		KPIScoreID: uintPtr(score.ID),
		SentBy:     models.AssignedByKPITrigger,
	})
	switch {
	case errors.Is(err, ErrDuplicateNotification):
		result.Status = dto.ActionStatusSkipped
		result.Reason = "warning already issued for this score"
	case err != nil:
		result.Status = dto.ActionStatusFailed
		result.Reason = err.Error()
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageWarning, Action: action.Code, Message: err.Error()})
	default:
		result.Status = dto.ActionStatusCreated
		result.RecordID = uintPtr(notification.ID)
		summary.Notifications = append(summary.Notifications, notification)
	}

	event, created, err := s.deps.Lifecycle.Record(ctx, models.LifecycleEvent{
		UserID:      score.UserID,
		Type:        models.LifecycleTypeWarning,
		Title:       action.Label,
		Description: fmt.Sprintf("Issued for %s with score %.2f (%s).", score.Period, score.OverallScore, base["rating"]),
		Category:    models.LifecycleCategoryNegative,
		KPIScoreID:  uintPtr(score.ID),
		Metadata:    datatypes.JSONMap{"rules": planned.Rules, "action": action.Code},
		CreatedBy:   models.AssignedByKPITrigger,
	})
	if err != nil {
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageLifecycle, Action: action.Code, Message: err.Error()})
	} else if created {
		summary.LifecycleEvents = append(summary.LifecycleEvents, event)
	}

	if result.Status != dto.ActionStatusCreated {
		return result, nil
	}

	return result, &pendingEmail{
		template:  templateFor(action, TemplateWarningLetter),
		action:    action.Code,
		roles:     planned.Recipients,
		variables: withActionVariables(base, planned),
	}
}

// recordLifecycle writes the evaluation event and, for reward-eligible bands, the milestone.
// It returns the reward email to send when the milestone is new.
func (s *kpiTriggerService) recordLifecycle(ctx context.Context, score models.KPIScore, evaluation kpi.Evaluation, base map[string]string, summary *dto.KPITriggerSummary) *pendingEmail {
	actionCodes := make([]string, 0, len(summary.Actions))
	for _, action := range summary.Actions {
		actionCodes = append(actionCodes, action.Code)
	}

	event, created, err := s.deps.Lifecycle.Record(ctx, models.LifecycleEvent{
		UserID:      score.UserID,
		Type:        models.LifecycleTypeKPIEvaluated,
		Title:       fmt.Sprintf("KPI evaluated for %s: %s", score.Period, evaluation.Rating),
		Description: fmt.Sprintf("Overall score %.2f under rule table v%d.", score.OverallScore, evaluation.ConfigVersion),
		Category:    evaluation.Rating.Category(),
		KPIScoreID:  uintPtr(score.ID),
		Metadata: datatypes.JSONMap{
			"overall_score":  score.OverallScore,
			"rating":         string(evaluation.Rating),
			"band":           evaluation.Band,
			"actions":        actionCodes,
			"config_version": evaluation.ConfigVersion,
		},
		CreatedBy: models.AssignedByKPITrigger,
	})
	if err != nil {
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageLifecycle, Message: err.Error()})
	} else if created {
		summary.LifecycleEvents = append(summary.LifecycleEvents, event)
	}

	if !evaluation.RewardEligible {
		return nil
	}

	reward, created, err := s.deps.Lifecycle.Record(ctx, models.LifecycleEvent{
		UserID:      score.UserID,
		Type:        models.LifecycleTypeRewardEligible,
		Title:       fmt.Sprintf("Reward eligible for %s", score.Period),
		Description: fmt.Sprintf("Scored %.2f (%s).", score.OverallScore, evaluation.Rating),
		Category:    models.LifecycleCategoryMilestone,
		KPIScoreID:  uintPtr(score.ID),
		Metadata:    datatypes.JSONMap{"overall_score": score.OverallScore, "band": evaluation.Band},
		CreatedBy:   models.AssignedByKPITrigger,
	})
	if err != nil {
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageLifecycle, Message: err.Error()})
		return nil
	}
	if !created {
		return nil
	}
	summary.LifecycleEvents = append(summary.LifecycleEvents, reward)

	if len(evaluation.BandRecipients) == 0 {
		return nil
	}

	variables := make(map[string]string, len(base))
	for key, value := range base {
		variables[key] = value
	}
	return &pendingEmail{
		template:  TemplateRewardEligible,
		action:    "reward_eligible",
		roles:     evaluation.BandRecipients,
		variables: variables,
	}
}

// fanOutEmails resolves recipients per action and sends every email with bounded parallelism.
// All sends complete before it returns; results keep planning order.
func (s *kpiTriggerService) fanOutEmails(ctx context.Context, user models.User, scoreID uint, pending []pendingEmail, summary *dto.KPITriggerSummary) {
	if len(pending) == 0 {
		return
	}

	ctx, span := s.tracer.Start(ctx, "kpi.triggers.emails")
	defer span.End()

	requests := make([]EmailRequest, 0, len(pending)*2)
	for _, email := range pending {
		recipients, errs := s.deps.Recipients.Resolve(ctx, user, email.roles)
		for _, err := range errs {
			summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageRecipients, Action: email.action, Message: err.Error()})
		}
		for _, recipient := range recipients {
			requests = append(requests, EmailRequest{
				TemplateType:         email.template,
				Recipient:            recipient,
				Variables:            email.variables,
				KPITriggerID:         uintPtr(scoreID),
				TrainingAssignmentID: email.trainingID,
				AuditScheduleID:      email.auditID,
			})
		}
	}

	logs := make([]*models.EmailLog, len(requests))
	failures := make([]error, len(requests))

	group := new(errgroup.Group)
	group.SetLimit(s.settings.EmailConcurrency)
	var mu sync.Mutex
	for i := range requests {
		i := i
		group.Go(func() error {
			log, err := s.deps.Emails.Send(ctx, requests[i])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = err
			}
			if log.ID != 0 {
				logs[i] = &log
			}
			return nil
		})
	}
	_ = group.Wait()

	for i, request := range requests {
		if failures[i] != nil {
			summary.Errors = append(summary.Errors, dto.TriggerError{
				Stage:     dto.StageEmail,
				Recipient: maskEmailAddress(request.Recipient.Email),
				Message:   failures[i].Error(),
			})
		}
		if logs[i] == nil {
			continue
		}
		if failures[i] == nil && logs[i].Status == models.EmailStatusFailed {
			summary.Errors = append(summary.Errors, dto.TriggerError{
				Stage:     dto.StageEmail,
				Recipient: maskEmailAddress(request.Recipient.Email),
				Message:   logs[i].ErrorMessage,
			})
		}
		summary.EmailLogs = append(summary.EmailLogs, dto.NewEmailLogResponse(*logs[i]))
	}
}

// notifyUser publishes an in-app notice for a newly created record. Creation is already
// idempotent, so the notice is not keyed to the score.
func (s *kpiTriggerService) notifyUser(ctx context.Context, score models.KPIScore, req dto.NotificationCreateRequest, action string, summary *dto.KPITriggerSummary) {
	req.UserID = score.UserID
	req.SentBy = models.AssignedByKPITrigger
	notification, err := s.deps.Notifications.Publish(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrDuplicateNotification) {
			summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StageNotification, Action: action, Message: err.Error()})
		}
		return
	}
	summary.Notifications = append(summary.Notifications, notification)
}

func (s *kpiTriggerService) acquireLock(ctx context.Context, scoreID uint) (func(), bool) {
	noop := func() {}
	if s.deps.Redis == nil {
		return noop, true
	}

	key := fmt.Sprintf("kpi:trigger:lock:%d", scoreID)
	ok, err := s.deps.Redis.SetNX(ctx, key, s.nodeID, s.settings.ProcessingLockTTL).Result()
	if err != nil {
		s.logger.Warn().Err(err).Uint("kpi_score_id", scoreID).Msg("processing lock unavailable, continuing without it")
		return noop, true
	}
	if !ok {
		return noop, false
	}

	return func() {
		if err := releaseLockScript.Run(context.WithoutCancel(ctx), s.deps.Redis, []string{key}, s.nodeID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Uint("kpi_score_id", scoreID).Msg("failed to release processing lock")
		}
	}, true
}

func (s *kpiTriggerService) publishEvent(ctx context.Context, score models.KPIScore, summary *dto.KPITriggerSummary, start time.Time) {
	if s.deps.NATS == nil && s.deps.Redis == nil {
		return
	}

	actions := make([]string, 0, len(summary.Actions))
	for _, action := range summary.Actions {
		actions = append(actions, action.Code)
	}

	payload, err := json.Marshal(dto.KPITriggerEvent{
		Source:           s.nodeID,
		KPIScoreID:       score.ID,
		UserID:           score.UserID,
		Period:           score.Period,
		Rating:           summary.Rating,
		OverallScore:     score.OverallScore,
		Actions:          actions,
		Trainings:        len(summary.TrainingAssignments),
		Audits:           len(summary.Audits),
		Emails:           len(summary.EmailLogs),
		Errors:           len(summary.Errors),
		ProcessingTimeMs: s.now().Sub(start).Milliseconds(),
		ProcessedAt:      s.now().UTC(),
	})
	if err != nil {
		summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StagePublish, Message: err.Error()})
		return
	}

	if s.deps.NATS != nil {
		if err := s.deps.NATS.Publish(KPITriggerEventSubject, payload); err != nil {
			summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StagePublish, Message: err.Error()})
		}
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Publish(ctx, KPITriggerEventChannel, payload).Err(); err != nil {
			summary.Errors = append(summary.Errors, dto.TriggerError{Stage: dto.StagePublish, Message: err.Error()})
		}
	}
}

func newTriggeredAction(planned kpi.PlannedAction) dto.TriggeredAction {
	roles := make([]string, 0, len(planned.Recipients))
	for _, role := range planned.Recipients {
		roles = append(roles, string(role))
	}
	return dto.TriggeredAction{
		Code:       planned.Action.Code,
		Kind:       string(planned.Action.Kind),
		Label:      planned.Action.Label,
		Rules:      append([]string(nil), planned.Rules...),
		Recipients: roles,
	}
}

func baseEmailVariables(score models.KPIScore, user models.User, rating kpi.Rating) map[string]string {
	name := user.Name
	if name == "" {
		name = fmt.Sprintf("user #%d", score.UserID)
	}
	return map[string]string{
		"user_name":     name,
		"employee_id":   user.EmployeeID,
		"period":        score.Period,
		"overall_score": fmt.Sprintf("%.2f", score.OverallScore),
		"rating":        string(rating),
	}
}

func withActionVariables(base map[string]string, planned kpi.PlannedAction) map[string]string {
	out := make(map[string]string, len(base)+4)
	for key, value := range base {
		out[key] = value
	}
	out["action_code"] = planned.Action.Code
	out["action_label"] = planned.Action.Label
	out["priority"] = planned.Action.Priority
	out["rules"] = strings.Join(planned.Rules, ", ")
	return out
}

func templateFor(action kpi.Action, fallback string) string {
	if action.Template != "" {
		return action.Template
	}
	return fallback
}

func blockingReason(existingTrigger *uint, scoreID uint) string {
	if existingTrigger != nil && *existingTrigger == scoreID {
		return "already created for this score"
	}
	return "open record of the same type exists"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func uintPtr(v uint) *uint {
	return &v
}
