package dto

import (
	"time"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// Trigger processing stages reported in summary errors.
const (
	StageLock         = "lock"
	StageLoad         = "load"
	StageConfig       = "config"
	StageTraining     = "training"
	StageAudit        = "audit"
	StageWarning      = "warning"
	StageTags         = "tags"
	StageLifecycle    = "lifecycle"
	StageRecipients   = "recipients"
	StageEmail        = "email"
	StageNotification = "notification"
	StagePublish      = "publish"
)

// Action outcomes.
const (
	ActionStatusCreated = "created"
	ActionStatusSkipped = "skipped"
	ActionStatusFailed  = "failed"
)

// TriggerError is one recoverable failure captured during trigger processing.
type TriggerError struct {
	Stage     string `json:"stage"`
	Action    string `json:"action,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Message   string `json:"message"`
}

// TriggeredAction reports what the dispatcher did with one planned action.
type TriggeredAction struct {
	Code       string   `json:"code"`
	Kind       string   `json:"kind"`
	Label      string   `json:"label"`
	Type       string   `json:"type,omitempty"`
	Rules      []string `json:"rules"`
	Recipients []string `json:"recipients"`
	Status     string   `json:"status"`
	RecordID   *uint    `json:"record_id,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// KPITriggerSummary is the outcome of processing the triggers of one KPI score.
type KPITriggerSummary struct {
	KPIScoreID          uint                         `json:"kpi_score_id"`
	Success             bool                         `json:"success"`
	ConfigVersion       int                          `json:"config_version"`
	OverallScore        float64                      `json:"overall_score"`
	Rating              string                       `json:"rating"`
	RewardEligible      bool                         `json:"reward_eligible"`
	Actions             []TriggeredAction            `json:"actions"`
	TrainingAssignments []TrainingAssignmentResponse `json:"training_assignments"`
	Audits              []AuditScheduleResponse      `json:"audits"`
	Notifications       []NotificationResponse       `json:"notifications"`
	EmailLogs           []EmailLogResponse           `json:"email_logs"`
	LifecycleEvents     []LifecycleEventResponse     `json:"lifecycle_events"`
	ProcessingTimeMs    int64                        `json:"processing_time_ms"`
	Errors              []TriggerError               `json:"errors"`
}

// NewKPITriggerSummary returns a summary with every list initialised.
func NewKPITriggerSummary(kpiScoreID uint) KPITriggerSummary {
	return KPITriggerSummary{
		KPIScoreID:          kpiScoreID,
		Actions:             []TriggeredAction{},
		TrainingAssignments: []TrainingAssignmentResponse{},
		Audits:              []AuditScheduleResponse{},
		Notifications:       []NotificationResponse{},
		EmailLogs:           []EmailLogResponse{},
		LifecycleEvents:     []LifecycleEventResponse{},
		Errors:              []TriggerError{},
	}
}

// KPITriggerEvent is published on the message bus after a run completes.
type KPITriggerEvent struct {
	Source           string    `json:"source"`
	KPIScoreID       uint      `json:"kpi_score_id"`
	UserID           uint      `json:"user_id"`
	Period           string    `json:"period"`
	Rating           string    `json:"rating"`
	OverallScore     float64   `json:"overall_score"`
	Actions          []string  `json:"actions"`
	Trainings        int       `json:"trainings"`
	Audits           int       `json:"audits"`
	Emails           int       `json:"emails"`
	Errors           int       `json:"errors"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// TrainingAssignmentResponse is the serialized representation of a training assignment.
type TrainingAssignmentResponse struct {
	ID           uint       `json:"id"`
	UserID       uint       `json:"user_id"`
	TrainingType string     `json:"training_type"`
	AssignedBy   string     `json:"assigned_by"`
	KPITriggerID *uint      `json:"kpi_trigger_id,omitempty"`
	DueDate      time.Time  `json:"due_date"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority,omitempty"`
	Score        *float64   `json:"score,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewTrainingAssignmentResponse converts a model into a DTO.
func NewTrainingAssignmentResponse(assignment models.TrainingAssignment) TrainingAssignmentResponse {
	return TrainingAssignmentResponse{
		ID:           assignment.ID,
		UserID:       assignment.UserID,
		TrainingType: assignment.TrainingType,
		AssignedBy:   assignment.AssignedBy,
		KPITriggerID: assignment.KPITriggerID,
		DueDate:      assignment.DueDate,
		Status:       assignment.Status,
		Priority:     assignment.Priority,
		Score:        assignment.Score,
		Notes:        assignment.Notes,
		CompletedAt:  assignment.CompletedAt,
		IsActive:     assignment.IsActive,
		CreatedAt:    assignment.CreatedAt,
	}
}

// NewTrainingAssignmentResponseSlice converts a slice of models into DTOs.
func NewTrainingAssignmentResponseSlice(assignments []models.TrainingAssignment) []TrainingAssignmentResponse {
	out := make([]TrainingAssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		out = append(out, NewTrainingAssignmentResponse(assignment))
	}
	return out
}

// TrainingAssignRequest creates a manual training assignment.
type TrainingAssignRequest struct {
	UserID       uint       `json:"user_id" validate:"required"`
	TrainingType string     `json:"training_type" validate:"required,max=64"`
	DueDate      *time.Time `json:"due_date"`
	Priority     string     `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Notes        string     `json:"notes" validate:"omitempty,max=2000"`
}

// TrainingCompleteRequest records the outcome of a training.
type TrainingCompleteRequest struct {
	Score *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
	Notes string   `json:"notes" validate:"omitempty,max=2000"`
}

// TrainingListQuery filters training assignments.
type TrainingListQuery struct {
	UserID       uint   `query:"user_id"`
	KPITriggerID uint   `query:"kpi_trigger_id"`
	Status       string `query:"status" validate:"omitempty,oneof=assigned in_progress completed overdue cancelled"`
	TrainingType string `query:"training_type" validate:"omitempty,max=64"`
	Page         int    `query:"page" validate:"omitempty,min=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// AuditScheduleResponse is the serialized representation of an audit schedule.
type AuditScheduleResponse struct {
	ID               uint       `json:"id"`
	UserID           uint       `json:"user_id"`
	AuditType        string     `json:"audit_type"`
	KPITriggerID     *uint      `json:"kpi_trigger_id,omitempty"`
	ScheduledDate    time.Time  `json:"scheduled_date"`
	Priority         string     `json:"priority"`
	AuditScope       string     `json:"audit_scope,omitempty"`
	AuditMethod      string     `json:"audit_method,omitempty"`
	Status           string     `json:"status"`
	Findings         string     `json:"findings,omitempty"`
	RiskLevel        string     `json:"risk_level,omitempty"`
	ComplianceStatus string     `json:"compliance_status,omitempty"`
	AssignedTo       *uint      `json:"assigned_to,omitempty"`
	AssignedBy       string     `json:"assigned_by"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewAuditScheduleResponse converts a model into a DTO.
func NewAuditScheduleResponse(audit models.AuditSchedule) AuditScheduleResponse {
	return AuditScheduleResponse{
		ID:               audit.ID,
		UserID:           audit.UserID,
		AuditType:        audit.AuditType,
		KPITriggerID:     audit.KPITriggerID,
		ScheduledDate:    audit.ScheduledDate,
		Priority:         audit.Priority,
		AuditScope:       audit.AuditScope,
		AuditMethod:      audit.AuditMethod,
		Status:           audit.Status,
		Findings:         audit.Findings,
		RiskLevel:        audit.RiskLevel,
		ComplianceStatus: audit.ComplianceStatus,
		AssignedTo:       audit.AssignedTo,
		AssignedBy:       audit.AssignedBy,
		CompletedAt:      audit.CompletedAt,
		IsActive:         audit.IsActive,
		CreatedAt:        audit.CreatedAt,
	}
}

// NewAuditScheduleResponseSlice converts a slice of models into DTOs.
func NewAuditScheduleResponseSlice(audits []models.AuditSchedule) []AuditScheduleResponse {
	out := make([]AuditScheduleResponse, 0, len(audits))
	for _, audit := range audits {
		out = append(out, NewAuditScheduleResponse(audit))
	}
	return out
}

// AuditScheduleRequest creates a manual audit.
type AuditScheduleRequest struct {
	UserID        uint       `json:"user_id" validate:"required"`
	AuditType     string     `json:"audit_type" validate:"required,oneof=audit_call cross_check dummy_audit rca"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	Priority      string     `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AuditScope    string     `json:"audit_scope" validate:"omitempty,max=255"`
	AuditMethod   string     `json:"audit_method" validate:"omitempty,max=64"`
	AssignedTo    *uint      `json:"assigned_to"`
}

// AuditCompleteRequest records audit findings.
type AuditCompleteRequest struct {
	Findings         string `json:"findings" validate:"required,max=4000"`
	RiskLevel        string `json:"risk_level" validate:"omitempty,oneof=low medium high critical"`
	ComplianceStatus string `json:"compliance_status" validate:"omitempty,oneof=compliant non_compliant partially_compliant"`
}

// AuditListQuery filters audit schedules.
type AuditListQuery struct {
	UserID       uint   `query:"user_id"`
	KPITriggerID uint   `query:"kpi_trigger_id"`
	Status       string `query:"status" validate:"omitempty,oneof=scheduled in_progress completed cancelled"`
	AuditType    string `query:"audit_type" validate:"omitempty,max=32"`
	Page         int    `query:"page" validate:"omitempty,min=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// EmailLogResponse is the serialized representation of one send attempt.
type EmailLogResponse struct {
	ID                   uint       `json:"id"`
	RecipientEmail       string     `json:"recipient_email"`
	RecipientName        string     `json:"recipient_name,omitempty"`
	RecipientRole        string     `json:"recipient_role,omitempty"`
	TemplateType         string     `json:"template_type"`
	Subject              string     `json:"subject"`
	Status               string     `json:"status"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	MessageID            string     `json:"message_id,omitempty"`
	Attempts             int        `json:"attempts"`
	KPITriggerID         *uint      `json:"kpi_trigger_id,omitempty"`
	TrainingAssignmentID *uint      `json:"training_assignment_id,omitempty"`
	AuditScheduleID      *uint      `json:"audit_schedule_id,omitempty"`
	SentAt               *time.Time `json:"sent_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// NewEmailLogResponse converts a model into a DTO.
func NewEmailLogResponse(log models.EmailLog) EmailLogResponse {
	return EmailLogResponse{
		ID:                   log.ID,
		RecipientEmail:       log.RecipientEmail,
		RecipientName:        log.RecipientName,
		RecipientRole:        log.RecipientRole,
		TemplateType:         log.TemplateType,
		Subject:              log.Subject,
		Status:               log.Status,
		ErrorMessage:         log.ErrorMessage,
		MessageID:            log.MessageID,
		Attempts:             log.Attempts,
		KPITriggerID:         log.KPITriggerID,
		TrainingAssignmentID: log.TrainingAssignmentID,
		AuditScheduleID:      log.AuditScheduleID,
		SentAt:               log.SentAt,
		CreatedAt:            log.CreatedAt,
	}
}

// NewEmailLogResponseSlice converts a slice of models into DTOs.
func NewEmailLogResponseSlice(logs []models.EmailLog) []EmailLogResponse {
	out := make([]EmailLogResponse, 0, len(logs))
	for _, log := range logs {
		out = append(out, NewEmailLogResponse(log))
	}
	return out
}

// EmailLogListQuery filters the send log.
type EmailLogListQuery struct {
	KPITriggerID   uint   `query:"kpi_trigger_id"`
	RecipientEmail string `query:"recipient_email" validate:"omitempty,email"`
	Status         string `query:"status" validate:"omitempty,oneof=pending sent delivered failed"`
	TemplateType   string `query:"template_type" validate:"omitempty,max=64"`
	Page           int    `query:"page" validate:"omitempty,min=1"`
	PageSize       int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// LifecycleEventResponse is the serialized representation of a timeline entry.
type LifecycleEventResponse struct {
	ID          uint                   `json:"id"`
	UserID      uint                   `json:"user_id"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Category    string                 `json:"category"`
	KPIScoreID  *uint                  `json:"kpi_score_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy   string                 `json:"created_by"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewLifecycleEventResponse converts a model into a DTO.
func NewLifecycleEventResponse(event models.LifecycleEvent) LifecycleEventResponse {
	return LifecycleEventResponse{
		ID:          event.ID,
		UserID:      event.UserID,
		Type:        event.Type,
		Title:       event.Title,
		Description: event.Description,
		Category:    event.Category,
		KPIScoreID:  event.KPIScoreID,
		Metadata:    event.Metadata,
		CreatedBy:   event.CreatedBy,
		CreatedAt:   event.CreatedAt,
	}
}

// NewLifecycleEventResponseSlice converts a slice of models into DTOs.
func NewLifecycleEventResponseSlice(events []models.LifecycleEvent) []LifecycleEventResponse {
	out := make([]LifecycleEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, NewLifecycleEventResponse(event))
	}
	return out
}
