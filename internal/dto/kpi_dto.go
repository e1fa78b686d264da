package dto

import (
	"time"

	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// KPIMetricsPayload carries the raw metric percentages of one row.
type KPIMetricsPayload struct {
	TAT             *float64 `json:"tat" validate:"omitempty,gte=0,lte=100"`
	MajorNegativity *float64 `json:"major_negativity" validate:"omitempty,gte=0,lte=100"`
	Quality         *float64 `json:"quality" validate:"omitempty,gte=0,lte=100"`
	NeighborCheck   *float64 `json:"neighbor_check" validate:"omitempty,gte=0,lte=100"`
	Negativity      *float64 `json:"negativity" validate:"omitempty,gte=0,lte=100"`
	AppUsage        *float64 `json:"app_usage" validate:"omitempty,gte=0,lte=100"`
	Insufficiency   *float64 `json:"insufficiency" validate:"omitempty,gte=0,lte=100"`
}

// Row converts the payload into the scoring input.
func (p KPIMetricsPayload) Row() kpi.MetricRow {
	return kpi.MetricRow{
		TAT:             p.TAT,
		MajorNegativity: p.MajorNegativity,
		Quality:         p.Quality,
		NeighborCheck:   p.NeighborCheck,
		Negativity:      p.Negativity,
		AppUsage:        p.AppUsage,
		Insufficiency:   p.Insufficiency,
	}
}

// KPIScoreCreateRequest submits a new evaluation for a user and period.
type KPIScoreCreateRequest struct {
	UserID     uint   `json:"user_id" validate:"required"`
	Period     string `json:"period" validate:"required,max=32"`
	TotalCases int    `json:"total_cases" validate:"gte=0"`
	KPIMetricsPayload
	// Warnings lists cells that could not be read and were treated as missing.
	Warnings []string `json:"warnings,omitempty"`
}

// KPIScoreUpdateRequest re-scores an existing evaluation with new metrics.
type KPIScoreUpdateRequest struct {
	TotalCases *int `json:"total_cases" validate:"omitempty,gte=0"`
	KPIMetricsPayload
}

// KPIPreviewRequest evaluates metrics without persisting anything.
type KPIPreviewRequest struct {
	KPIMetricsPayload
}

// KPIScoreListQuery filters the score listing.
type KPIScoreListQuery struct {
	UserID     uint   `query:"user_id"`
	Period     string `query:"period" validate:"omitempty,max=32"`
	Rating     string `query:"rating" validate:"omitempty,max=32"`
	IncludeAll bool   `query:"include_inactive"`
	Page       int    `query:"page" validate:"omitempty,min=1"`
	PageSize   int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// KPIBulkRow is one extracted row of a bulk upload. Identifier resolves the user.
type KPIBulkRow struct {
	Identifier string `json:"fe" validate:"required"`
	Period     string `json:"month" validate:"required"`
	TotalCases int    `json:"total_cases" validate:"gte=0"`
	KPIMetricsPayload
	// Warnings lists cells that could not be read and were treated as missing.
	Warnings []string `json:"warnings,omitempty"`
}

// KPIScoreResponse is the serialized representation of a KPI evaluation.
type KPIScoreResponse struct {
	ID               uint      `json:"id"`
	UserID           uint      `json:"user_id"`
	UserName         string    `json:"user_name,omitempty"`
	Period           string    `json:"period"`
	TotalCases       int       `json:"total_cases"`
	TAT              *float64  `json:"tat"`
	MajorNegativity  *float64  `json:"major_negativity"`
	Quality          *float64  `json:"quality"`
	NeighborCheck    *float64  `json:"neighbor_check"`
	Negativity       *float64  `json:"negativity"`
	AppUsage         *float64  `json:"app_usage"`
	Insufficiency    *float64  `json:"insufficiency"`
	OverallScore     float64   `json:"overall_score"`
	Rating           string    `json:"rating"`
	ConfigVersion    int       `json:"config_version"`
	TriggeredActions []string  `json:"triggered_actions"`
	IsActive         bool      `json:"is_active"`
	SubmittedBy      uint      `json:"submitted_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewKPIScoreResponse converts a model into a DTO.
func NewKPIScoreResponse(score models.KPIScore) KPIScoreResponse {
	actions := score.TriggeredActions
	if actions == nil {
		actions = []string{}
	}
	response := KPIScoreResponse{
		ID:               score.ID,
		UserID:           score.UserID,
		Period:           score.Period,
		TotalCases:       score.TotalCases,
		TAT:              score.TAT,
		MajorNegativity:  score.MajorNegativity,
		Quality:          score.Quality,
		NeighborCheck:    score.NeighborCheck,
		Negativity:       score.Negativity,
		AppUsage:         score.AppUsage,
		Insufficiency:    score.Insufficiency,
		OverallScore:     score.OverallScore,
		Rating:           score.Rating,
		ConfigVersion:    score.ConfigVersion,
		TriggeredActions: actions,
		IsActive:         score.IsActive,
		SubmittedBy:      score.SubmittedBy,
		CreatedAt:        score.CreatedAt,
		UpdatedAt:        score.UpdatedAt,
	}
	if score.User != nil {
		response.UserName = score.User.Name
	}
	return response
}

// NewKPIScoreResponseSlice converts a slice of models into DTOs.
func NewKPIScoreResponseSlice(scores []models.KPIScore) []KPIScoreResponse {
	out := make([]KPIScoreResponse, 0, len(scores))
	for _, score := range scores {
		out = append(out, NewKPIScoreResponse(score))
	}
	return out
}

// MetricRowFromScore extracts the scoring input from a persisted evaluation.
func MetricRowFromScore(score models.KPIScore) kpi.MetricRow {
	return kpi.MetricRow{
		TAT:             score.TAT,
		MajorNegativity: score.MajorNegativity,
		Quality:         score.Quality,
		NeighborCheck:   score.NeighborCheck,
		Negativity:      score.Negativity,
		AppUsage:        score.AppUsage,
		Insufficiency:   score.Insufficiency,
	}
}

// KPISubmitResponse pairs the stored score with the trigger run it caused.
type KPISubmitResponse struct {
	Score    KPIScoreResponse   `json:"score"`
	Triggers *KPITriggerSummary `json:"triggers,omitempty"`
}

// KPIBatchRowResult is the success value of one bulk row.
type KPIBatchRowResult struct {
	UserID        uint               `json:"user_id"`
	MatchedBy     string             `json:"matched_by"`
	Score         KPIScoreResponse   `json:"score"`
	Triggers      *KPITriggerSummary `json:"triggers,omitempty"`
	ReplacedScore *uint              `json:"replaced_score_id,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// KPIBatchResponse summarises a bulk upload.
type KPIBatchResponse struct {
	BatchID   string                             `json:"batch_id"`
	Total     int                                `json:"total"`
	Succeeded int                                `json:"succeeded"`
	Failed    int                                `json:"failed"`
	Rows      []kpi.RowResult[KPIBatchRowResult] `json:"rows"`
}

// KPIPreviewResponse is a dry-run evaluation.
type KPIPreviewResponse struct {
	kpi.Evaluation
}

// KPIConfigPublishRequest stores a new rule table version.
type KPIConfigPublishRequest struct {
	Name   string     `json:"name" validate:"required,max=255"`
	Config kpi.Config `json:"config" validate:"required"`
}

// KPIConfigurationResponse describes one stored rule table version.
type KPIConfigurationResponse struct {
	ID        uint       `json:"id"`
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"is_active"`
	CreatedBy uint       `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	Config    kpi.Config `json:"config"`
}
