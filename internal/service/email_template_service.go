package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/observability"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

// Template types used by the KPI pipeline.
const (
	TemplateTrainingAssignment = "training_assignment"
	TemplateAuditSchedule      = "audit_schedule"
	TemplateWarningLetter      = "warning_letter"
	TemplateRewardEligible     = "reward_eligible"
)

var (
	// ErrTemplateNotFound indicates no stored or built-in template exists for a type.
	ErrTemplateNotFound = errors.New("email template not found")
	// ErrEmailNotResendable indicates the log entry already reached a delivered state.
	ErrEmailNotResendable = errors.New("email already sent")
)

type templateSource struct {
	Subject string
	Body    string
}

var builtinTemplates = map[string]templateSource{
	TemplateTrainingAssignment: {
		Subject: "Training assigned: {{.action_label}} ({{.period}})",
		Body: `<p>Hello {{.recipient_name}},</p>
<p>{{.user_name}} has been assigned <strong>{{.action_label}}</strong> following the {{.period}} KPI review
(score {{.overall_score}}, rating {{.rating}}).</p>
<p>Due date: {{.due_date}}</p>`,
	},
	TemplateAuditSchedule: {
		Subject: "Audit scheduled: {{.action_label}} for {{.user_name}}",
		Body: `<p>Hello {{.recipient_name}},</p>
<p>A <strong>{{.action_label}}</strong> ({{.priority}} priority) is scheduled for {{.user_name}} on {{.scheduled_date}}.</p>
<p>KPI period {{.period}}: score {{.overall_score}}, rating {{.rating}}.</p>`,
	},
	TemplateWarningLetter: {
		Subject: "Warning letter: {{.user_name}} ({{.period}})",
		Body: `<p>Hello {{.recipient_name}},</p>
<p>A warning letter has been issued to {{.user_name}} ({{.employee_id}}) for the {{.period}} KPI review.</p>
<p>Score {{.overall_score}}, rating {{.rating}}.</p>`,
	},
	TemplateRewardEligible: {
		Subject: "Outstanding performance: {{.user_name}} ({{.period}})",
		Body: `<p>Hello {{.recipient_name}},</p>
<p>{{.user_name}} scored {{.overall_score}} for {{.period}} and is eligible for a reward.</p>`,
	},
}

// EmailMessage is a fully rendered email ready for transport.
type EmailMessage struct {
	MessageID string
	From      string
	To        string
	ToName    string
	Subject   string
	HTMLBody  string
}

// EmailSender is the transport used to deliver rendered emails.
type EmailSender interface {
	Send(ctx context.Context, message EmailMessage) error
}

// LogEmailSender is a basic transport that logs messages instead of delivering them.
type LogEmailSender struct {
	logger zerolog.Logger
}

// NewLogEmailSender constructs a logging transport.
func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("component", "email_sender").Logger()}
}

// Send logs the message and returns nil to indicate success.
func (l *LogEmailSender) Send(ctx context.Context, message EmailMessage) error {
	l.logger.Info().
		Str("message_id", message.MessageID).
		Str("to", maskEmailAddress(message.To)).
		Str("subject", message.Subject).
		Msg("email delivered to log transport")
	return nil
}

// RenderedEmail is the result of applying variables to a template.
type RenderedEmail struct {
	Subject string
	Body    string
}

// EmailRequest describes one (recipient, template) send.
type EmailRequest struct {
	TemplateType         string
	Recipient            Recipient
	Variables            map[string]string
	KPITriggerID         *uint
	TrainingAssignmentID *uint
	AuditScheduleID      *uint
}

// EmailTemplateService renders templates, sends them and records every attempt.
type EmailTemplateService interface {
	Render(ctx context.Context, templateType string, variables map[string]string) (RenderedEmail, error)
	Send(ctx context.Context, req EmailRequest) (models.EmailLog, error)
	Resend(ctx context.Context, logID uint) (dto.EmailLogResponse, error)
	EnsureDefaults(ctx context.Context) error
}

type emailTemplateService struct {
	templates repository.EmailTemplateRepository
	logs      repository.EmailLogRepository
	sender    EmailSender
	from      string
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEmailTemplateService constructs the email service.
func NewEmailTemplateService(templates repository.EmailTemplateRepository, logs repository.EmailLogRepository, sender EmailSender, from string, logger zerolog.Logger) EmailTemplateService {
	return &emailTemplateService{
		templates: templates,
		logs:      logs,
		sender:    sender,
		from:      from,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "email_template_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/kpi-ops-api/internal/service/email"),
		now:       time.Now,
	}
}

func (s *emailTemplateService) Render(ctx context.Context, templateType string, variables map[string]string) (RenderedEmail, error) {
	source, err := s.lookup(ctx, templateType)
	if err != nil {
		return RenderedEmail{}, err
	}

	clean := make(map[string]string, len(variables))
	for key, value := range variables {
		clean[key] = plainText(s.sanitizer, value)
	}

	subjectTmpl, err := texttemplate.New(templateType + ":subject").Option("missingkey=zero").Parse(source.Subject)
	if err != nil {
		return RenderedEmail{}, fmt.Errorf("parse %s subject: %w", templateType, err)
	}
	bodyTmpl, err := htmltemplate.New(templateType + ":body").Option("missingkey=zero").Parse(source.Body)
	if err != nil {
		return RenderedEmail{}, fmt.Errorf("parse %s body: %w", templateType, err)
	}

	var subject, body bytes.Buffer
	if err := subjectTmpl.Execute(&subject, clean); err != nil {
		return RenderedEmail{}, fmt.Errorf("render %s subject: %w", templateType, err)
	}
	if err := bodyTmpl.Execute(&body, clean); err != nil {
		return RenderedEmail{}, fmt.Errorf("render %s body: %w", templateType, err)
	}

	return RenderedEmail{
		Subject: strings.Join(strings.Fields(subject.String()), " "),
		Body:    body.String(),
	}, nil
}

// Send renders and delivers one email. Transport and render failures are recorded on the
// returned log with status failed; the error is non-nil only when the log itself could not be written.
func (s *emailTemplateService) Send(ctx context.Context, req EmailRequest) (models.EmailLog, error) {
	ctx, span := s.tracer.Start(ctx, "email.send", trace.WithAttributes(
		attribute.String("email.template", req.TemplateType),
		attribute.String("email.role", string(req.Recipient.Role)),
	))
	defer span.End()

	variables := make(map[string]string, len(req.Variables)+2)
	for key, value := range req.Variables {
		variables[key] = value
	}
	variables["recipient_name"] = req.Recipient.Name
	if variables["recipient_name"] == "" {
		variables["recipient_name"] = string(req.Recipient.Role)
	}
	variables["recipient_role"] = string(req.Recipient.Role)

	log := models.EmailLog{
		RecipientEmail:       strings.ToLower(strings.TrimSpace(req.Recipient.Email)),
		RecipientName:        req.Recipient.Name,
		RecipientRole:        string(req.Recipient.Role),
		TemplateType:         req.TemplateType,
		Status:               models.EmailStatusPending,
		KPITriggerID:         req.KPITriggerID,
		TrainingAssignmentID: req.TrainingAssignmentID,
		AuditScheduleID:      req.AuditScheduleID,
		Variables:            toJSONMap(variables),
	}

	rendered, renderErr := s.Render(ctx, req.TemplateType, variables)
	if renderErr == nil {
		log.Subject = rendered.Subject
	}

	if err := s.logs.Create(ctx, &log); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "email log write failed")
		return log, fmt.Errorf("write email log: %w", err)
	}

	if renderErr != nil {
		s.markFailed(&log, renderErr)
	} else {
		s.deliver(ctx, &log, rendered)
	}

	if err := s.logs.Update(ctx, &log); err != nil {
		span.RecordError(err)
		return log, fmt.Errorf("update email log: %w", err)
	}

	if log.Status == models.EmailStatusFailed {
		span.SetStatus(codes.Error, "email send failed")
	}
	observability.KPIEmails().WithLabelValues(log.TemplateType, log.Status).Inc()

	return log, nil
}

func (s *emailTemplateService) Resend(ctx context.Context, logID uint) (dto.EmailLogResponse, error) {
	log, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return dto.EmailLogResponse{}, err
	}

	if log.Status == models.EmailStatusSent || log.Status == models.EmailStatusDelivered {
		return dto.EmailLogResponse{}, ErrEmailNotResendable
	}

	variables := make(map[string]string, len(log.Variables))
	for key, value := range log.Variables {
		variables[key] = fmt.Sprint(value)
	}

	rendered, err := s.Render(ctx, log.TemplateType, variables)
	if err != nil {
		s.markFailed(&log, err)
	} else {
		log.Subject = rendered.Subject
		log.ErrorMessage = ""
		s.deliver(ctx, &log, rendered)
	}

	if err := s.logs.Update(ctx, &log); err != nil {
		return dto.EmailLogResponse{}, err
	}

	observability.KPIEmails().WithLabelValues(log.TemplateType, log.Status).Inc()
	s.logger.Info().Uint("email_log_id", log.ID).Str("status", log.Status).Int("attempts", log.Attempts).Msg("email resent")

	return dto.NewEmailLogResponse(log), nil
}

// EnsureDefaults stores the built-in templates for any type that has no stored template yet.
func (s *emailTemplateService) EnsureDefaults(ctx context.Context) error {
	for templateType, source := range builtinTemplates {
		existing, err := s.templates.FindByType(ctx, templateType)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.templates.Upsert(ctx, &models.EmailTemplate{
			TemplateType: templateType,
			Subject:      source.Subject,
			Body:         source.Body,
			IsActive:     true,
		}); err != nil {
			return fmt.Errorf("seed %s template: %w", templateType, err)
		}
	}
	return nil
}

func (s *emailTemplateService) lookup(ctx context.Context, templateType string) (templateSource, error) {
	if s.templates != nil {
		stored, err := s.templates.FindByType(ctx, templateType)
		if err != nil {
			return templateSource{}, err
		}
		if stored != nil {
			return templateSource{Subject: stored.Subject, Body: stored.Body}, nil
		}
	}

	source, ok := builtinTemplates[templateType]
	if !ok {
		return templateSource{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateType)
	}
	return source, nil
}

func (s *emailTemplateService) deliver(ctx context.Context, log *models.EmailLog, rendered RenderedEmail) {
	log.Attempts++
	log.MessageID = uuid.NewString()

	message := EmailMessage{
		MessageID: log.MessageID,
		From:      s.from,
		To:        log.RecipientEmail,
		ToName:    log.RecipientName,
		Subject:   rendered.Subject,
		HTMLBody:  rendered.Body,
	}

	if err := s.sender.Send(ctx, message); err != nil {
		s.markFailed(log, err)
		return
	}

	sentAt := s.now().UTC()
	log.Status = models.EmailStatusSent
	log.ErrorMessage = ""
	log.SentAt = &sentAt
}

func (s *emailTemplateService) markFailed(log *models.EmailLog, err error) {
	log.Status = models.EmailStatusFailed
	log.ErrorMessage = err.Error()
	s.logger.Warn().
		Err(err).
		Str("to", maskEmailAddress(log.RecipientEmail)).
		Str("template", log.TemplateType).
		Msg("email send failed")
}

// plainText strips markup and decodes the entities the policy leaves behind, so the
// subject reads as typed and the body is escaped once by html/template.
func plainText(policy *bluemonday.Policy, value string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
}

func toJSONMap(values map[string]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
