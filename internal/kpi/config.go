package kpi

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a rule table failed validation.
var ErrInvalidConfig = errors.New("invalid kpi configuration")

//go:embed default_rules.yaml
var defaultRulesYAML []byte

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Role is a recipient role tag used by the email fan-out.
type Role string

const (
	RoleFE          Role = "FE"
	RoleCoordinator Role = "Coordinator"
	RoleManager     Role = "Manager"
	RoleHOD         Role = "HOD"
	RoleCompliance  Role = "Compliance Team"
)

// Valid reports whether r is a known recipient role.
func (r Role) Valid() bool {
	switch r {
	case RoleFE, RoleCoordinator, RoleManager, RoleHOD, RoleCompliance:
		return true
	}
	return false
}

// ActionKind groups actions by the record they produce.
type ActionKind string

const (
	ActionTraining ActionKind = "training"
	ActionAudit    ActionKind = "audit"
	ActionWarning  ActionKind = "warning"
)

// Action is one remedial step a rule can fire.
type Action struct {
	Code         string     `json:"code" yaml:"code" validate:"required"`
	Kind         ActionKind `json:"kind" yaml:"kind" validate:"required,oneof=training audit warning"`
	Label        string     `json:"label" yaml:"label" validate:"required"`
	TrainingType string     `json:"training_type,omitempty" yaml:"training_type,omitempty" validate:"required_if=Kind training"`
	AuditType    string     `json:"audit_type,omitempty" yaml:"audit_type,omitempty" validate:"required_if=Kind audit"`
	Priority     string     `json:"priority,omitempty" yaml:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Scope        string     `json:"scope,omitempty" yaml:"scope,omitempty"`
	Method       string     `json:"method,omitempty" yaml:"method,omitempty"`
	Template     string     `json:"template,omitempty" yaml:"template,omitempty"`
}

// Key identifies the record an action produces, used to merge duplicate fires.
func (a Action) Key() string {
	switch a.Kind {
	case ActionTraining:
		return string(a.Kind) + ":" + a.TrainingType
	case ActionAudit:
		return string(a.Kind) + ":" + a.AuditType
	default:
		return string(a.Kind) + ":" + a.Code
	}
}

// Threshold awards Score points when `value <Operator> Value` holds.
type Threshold struct {
	Operator Operator `json:"operator" yaml:"operator" validate:"required"`
	Value    float64  `json:"value" yaml:"value"`
	Score    float64  `json:"score" yaml:"score" validate:"gte=0"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
}

// MetricConfig weights one metric. Thresholds are evaluated in order and the first match wins.
type MetricConfig struct {
	Metric     Metric      `json:"metric" yaml:"metric" validate:"required"`
	Weightage  float64     `json:"weightage" yaml:"weightage" validate:"gte=0,lte=100"`
	Thresholds []Threshold `json:"thresholds" yaml:"thresholds" validate:"required,min=1,dive"`
}

// ScoreRule fires its actions when the overall score clears MinScore. A nil MinScore is the catch-all band.
type ScoreRule struct {
	Band           string   `json:"band" yaml:"band" validate:"required"`
	MinScore       *float64 `json:"min_score,omitempty" yaml:"min_score,omitempty"`
	RewardEligible bool     `json:"reward_eligible,omitempty" yaml:"reward_eligible,omitempty"`
	Actions        []Action `json:"actions" yaml:"actions" validate:"dive"`
	Recipients     []Role   `json:"recipients" yaml:"recipients"`
}

// Condition compares one metric against a fixed value.
type Condition struct {
	Metric   Metric   `json:"metric" yaml:"metric" validate:"required"`
	Operator Operator `json:"operator" yaml:"operator" validate:"required"`
	Value    float64  `json:"value" yaml:"value"`
}

// ConditionRule fires when every condition holds.
type ConditionRule struct {
	Name       string      `json:"name" yaml:"name" validate:"required"`
	Conditions []Condition `json:"conditions" yaml:"conditions" validate:"required,min=1,dive"`
	Actions    []Action    `json:"actions" yaml:"actions" validate:"required,min=1,dive"`
	Recipients []Role      `json:"recipients" yaml:"recipients"`
}

// Config is one version of the KPI rule table.
type Config struct {
	Version        int             `json:"version" yaml:"version"`
	Metrics        []MetricConfig  `json:"metrics" yaml:"metrics" validate:"required,min=1,dive"`
	ScoreRules     []ScoreRule     `json:"score_rules" yaml:"score_rules" validate:"required,min=1,dive"`
	ConditionRules []ConditionRule `json:"condition_rules" yaml:"condition_rules" validate:"dive"`
}

// DefaultConfig returns the built-in rule table.
func DefaultConfig() Config {
	cfg, err := ParseYAML(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("kpi: embedded default rules are invalid: %v", err))
	}
	return cfg
}

// ParseYAML decodes and validates a YAML rule table.
func ParseYAML(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseJSON decodes and validates a JSON rule table.
func ParseJSON(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural tags and the cross-field invariants of the rule table.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seen := make(map[Metric]struct{}, len(c.Metrics))
	var totalWeight float64
	for _, metric := range c.Metrics {
		if !metric.Metric.Valid() {
			return fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, metric.Metric)
		}
		if _, dup := seen[metric.Metric]; dup {
			return fmt.Errorf("%w: metric %q configured twice", ErrInvalidConfig, metric.Metric)
		}
		seen[metric.Metric] = struct{}{}
		totalWeight += metric.Weightage

		for _, threshold := range metric.Thresholds {
			if !threshold.Operator.Valid() {
				return fmt.Errorf("%w: metric %q has unsupported operator %q", ErrInvalidConfig, metric.Metric, threshold.Operator)
			}
			if threshold.Score > metric.Weightage+epsilon {
				return fmt.Errorf("%w: metric %q threshold score %.2f exceeds weightage %.2f", ErrInvalidConfig, metric.Metric, threshold.Score, metric.Weightage)
			}
		}
	}
	if math.Abs(totalWeight-100) > 0.01 {
		return fmt.Errorf("%w: metric weightages sum to %.2f, expected 100", ErrInvalidConfig, totalWeight)
	}

	catchAll := 0
	minimums := make(map[float64]struct{}, len(c.ScoreRules))
	for _, rule := range c.ScoreRules {
		if rule.MinScore == nil {
			catchAll++
		} else {
			if _, dup := minimums[*rule.MinScore]; dup {
				return fmt.Errorf("%w: duplicate score threshold %.2f", ErrInvalidConfig, *rule.MinScore)
			}
			minimums[*rule.MinScore] = struct{}{}
		}
		if err := validateRoles(rule.Band, rule.Recipients); err != nil {
			return err
		}
	}
	if catchAll != 1 {
		return fmt.Errorf("%w: expected exactly one catch-all score rule, found %d", ErrInvalidConfig, catchAll)
	}
	boundaries := RatingBoundaries()
	if len(minimums) != len(boundaries) {
		return fmt.Errorf("%w: score rules must start at the rating boundaries %v", ErrInvalidConfig, boundaries)
	}
	for _, boundary := range boundaries {
		if _, ok := minimums[boundary]; !ok {
			return fmt.Errorf("%w: no score rule starts at rating boundary %.0f", ErrInvalidConfig, boundary)
		}
	}

	names := make(map[string]struct{}, len(c.ConditionRules))
	for _, rule := range c.ConditionRules {
		key := strings.ToLower(strings.TrimSpace(rule.Name))
		if _, dup := names[key]; dup {
			return fmt.Errorf("%w: duplicate condition rule %q", ErrInvalidConfig, rule.Name)
		}
		names[key] = struct{}{}
		for _, cond := range rule.Conditions {
			if !cond.Metric.Valid() {
				return fmt.Errorf("%w: rule %q references unknown metric %q", ErrInvalidConfig, rule.Name, cond.Metric)
			}
			if !cond.Operator.Valid() {
				return fmt.Errorf("%w: rule %q has unsupported operator %q", ErrInvalidConfig, rule.Name, cond.Operator)
			}
		}
		if err := validateRoles(rule.Name, rule.Recipients); err != nil {
			return err
		}
	}

	return nil
}

func validateRoles(rule string, roles []Role) error {
	for _, role := range roles {
		if !role.Valid() {
			return fmt.Errorf("%w: rule %q has unknown recipient role %q", ErrInvalidConfig, rule, role)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := Config{Version: c.Version}

	out.Metrics = make([]MetricConfig, len(c.Metrics))
	for i, metric := range c.Metrics {
		metric.Thresholds = append([]Threshold(nil), metric.Thresholds...)
		out.Metrics[i] = metric
	}

	out.ScoreRules = make([]ScoreRule, len(c.ScoreRules))
	for i, rule := range c.ScoreRules {
		if rule.MinScore != nil {
			rule.MinScore = Float(*rule.MinScore)
		}
		rule.Actions = append([]Action(nil), rule.Actions...)
		rule.Recipients = append([]Role(nil), rule.Recipients...)
		out.ScoreRules[i] = rule
	}

	out.ConditionRules = make([]ConditionRule, len(c.ConditionRules))
	for i, rule := range c.ConditionRules {
		rule.Conditions = append([]Condition(nil), rule.Conditions...)
		rule.Actions = append([]Action(nil), rule.Actions...)
		rule.Recipients = append([]Role(nil), rule.Recipients...)
		out.ConditionRules[i] = rule
	}

	return out
}
