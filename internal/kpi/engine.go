package kpi

import (
	"math"
	"sort"
)

// TriggerSource distinguishes the two rule families.
type TriggerSource string

const (
	SourceScore     TriggerSource = "score"
	SourceCondition TriggerSource = "condition"
)

// Trigger is one action fired by one rule.
type Trigger struct {
	Source     TriggerSource `json:"source"`
	Rule       string        `json:"rule"`
	Action     Action        `json:"action"`
	Recipients []Role        `json:"recipients"`
}

// PlannedAction is a fired action after merging duplicates across rules.
type PlannedAction struct {
	Action     Action   `json:"action"`
	Codes      []string `json:"codes"`
	Rules      []string `json:"rules"`
	Recipients []Role   `json:"recipients"`
}

// Contribution is the points one metric added to the overall score.
type Contribution struct {
	Metric  Metric  `json:"metric"`
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
	Score   float64 `json:"score"`
	Label   string  `json:"label,omitempty"`
}

// Breakdown is the result of scoring one row.
type Breakdown struct {
	Overall       float64        `json:"overall"`
	Contributions []Contribution `json:"contributions"`
	Missing       []Metric       `json:"missing,omitempty"`
}

// Evaluation is the full dry-run outcome for one row.
type Evaluation struct {
	ConfigVersion     int             `json:"config_version"`
	Breakdown         Breakdown       `json:"breakdown"`
	OverallScore      float64         `json:"overall_score"`
	Rating            Rating          `json:"rating"`
	Band              string          `json:"band"`
	RewardEligible    bool            `json:"reward_eligible"`
	BandRecipients    []Role          `json:"band_recipients"`
	ScoreTriggers     []Trigger       `json:"score_triggers"`
	ConditionTriggers []Trigger       `json:"condition_triggers"`
	Plan              []PlannedAction `json:"plan"`
}

// Engine is an immutable, compiled snapshot of one rule table version.
type Engine struct {
	cfg        Config
	scoreRules []ScoreRule
}

// NewEngine validates cfg and compiles it. The engine keeps its own copy.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	snapshot := cfg.Clone()
	rules := append([]ScoreRule(nil), snapshot.ScoreRules...)
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i].MinScore, rules[j].MinScore
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})

	return &Engine{cfg: snapshot, scoreRules: rules}, nil
}

// MustDefaultEngine compiles the built-in rule table.
func MustDefaultEngine() *Engine {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return engine
}

// Version returns the rule table version the engine was compiled from.
func (e *Engine) Version() int {
	return e.cfg.Version
}

// Config returns a copy of the compiled rule table.
func (e *Engine) Config() Config {
	return e.cfg.Clone()
}

// Calculate computes the weighted overall score. Missing metrics contribute 0.
func (e *Engine) Calculate(row MetricRow) Breakdown {
	breakdown := Breakdown{Contributions: make([]Contribution, 0, len(e.cfg.Metrics))}
	var total float64

	for _, metric := range e.cfg.Metrics {
		value, ok := row.Value(metric.Metric)
		contribution := Contribution{Metric: metric.Metric, Value: value, Present: ok}
		if !ok {
			breakdown.Missing = append(breakdown.Missing, metric.Metric)
			breakdown.Contributions = append(breakdown.Contributions, contribution)
			continue
		}

		for _, threshold := range metric.Thresholds {
			if threshold.Operator.Compare(value, threshold.Value) {
				contribution.Score = math.Min(threshold.Score, metric.Weightage)
				contribution.Label = threshold.Label
				break
			}
		}

		total += contribution.Score
		breakdown.Contributions = append(breakdown.Contributions, contribution)
	}

	breakdown.Overall = clampScore(total)
	return breakdown
}

// Score is shorthand for Calculate(row).Overall.
func (e *Engine) Score(row MetricRow) float64 {
	return e.Calculate(row).Overall
}

// Rating maps an overall score to its band.
func (e *Engine) Rating(score float64) Rating {
	return RatingFor(score)
}

// ScoreBand returns the single highest score rule the score clears.
func (e *Engine) ScoreBand(score float64) ScoreRule {
	for _, rule := range e.scoreRules {
		if rule.MinScore == nil || score >= *rule.MinScore {
			return rule
		}
	}
	return e.scoreRules[len(e.scoreRules)-1]
}

// ScoreBasedTriggers returns the actions of the one band the score falls in.
func (e *Engine) ScoreBasedTriggers(score float64) []Trigger {
	rule := e.ScoreBand(score)
	triggers := make([]Trigger, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		triggers = append(triggers, Trigger{
			Source:     SourceScore,
			Rule:       rule.Band,
			Action:     action,
			Recipients: append([]Role(nil), rule.Recipients...),
		})
	}
	return triggers
}

// ConditionBasedTriggers returns the actions of every condition rule that matches the row.
// A condition on a missing metric never matches.
func (e *Engine) ConditionBasedTriggers(row MetricRow) []Trigger {
	triggers := make([]Trigger, 0)
	for _, rule := range e.cfg.ConditionRules {
		if !conditionsHold(rule.Conditions, row) {
			continue
		}
		for _, action := range rule.Actions {
			triggers = append(triggers, Trigger{
				Source:     SourceCondition,
				Rule:       rule.Name,
				Action:     action,
				Recipients: append([]Role(nil), rule.Recipients...),
			})
		}
	}
	return triggers
}

// Evaluate scores the row and resolves both trigger families.
func (e *Engine) Evaluate(row MetricRow) Evaluation {
	breakdown := e.Calculate(row)
	evaluation := e.EvaluateScore(breakdown.Overall, row)
	evaluation.Breakdown = breakdown
	return evaluation
}

// EvaluateScore resolves triggers for an already computed overall score.
func (e *Engine) EvaluateScore(score float64, row MetricRow) Evaluation {
	band := e.ScoreBand(score)
	scoreTriggers := e.ScoreBasedTriggers(score)
	conditionTriggers := e.ConditionBasedTriggers(row)

	all := make([]Trigger, 0, len(scoreTriggers)+len(conditionTriggers))
	all = append(all, scoreTriggers...)
	all = append(all, conditionTriggers...)

	return Evaluation{
		ConfigVersion:     e.cfg.Version,
		Breakdown:         Breakdown{Overall: score},
		OverallScore:      score,
		Rating:            RatingFor(score),
		Band:              band.Band,
		RewardEligible:    band.RewardEligible,
		BandRecipients:    append([]Role(nil), band.Recipients...),
		ScoreTriggers:     scoreTriggers,
		ConditionTriggers: conditionTriggers,
		Plan:              PlanActions(all),
	}
}

// PlanActions merges triggers that produce the same record, keeping first-fire order,
// the union of recipient roles and action codes, and the most urgent priority. Method and
// scope come from the first action that sets them.
func PlanActions(triggers []Trigger) []PlannedAction {
	plan := make([]PlannedAction, 0, len(triggers))
	index := make(map[string]int, len(triggers))

	for _, trigger := range triggers {
		key := trigger.Action.Key()
		if i, ok := index[key]; ok {
			plan[i].Codes = appendUnique(plan[i].Codes, trigger.Action.Code)
			plan[i].Rules = appendUnique(plan[i].Rules, trigger.Rule)
			if plan[i].Action.Method == "" {
				plan[i].Action.Method = trigger.Action.Method
			}
			if plan[i].Action.Scope == "" {
				plan[i].Action.Scope = trigger.Action.Scope
			}
			plan[i].Recipients = appendUniqueRoles(plan[i].Recipients, trigger.Recipients...)
			if priorityRank(trigger.Action.Priority) > priorityRank(plan[i].Action.Priority) {
				plan[i].Action.Priority = trigger.Action.Priority
			}
			continue
		}
		index[key] = len(plan)
		plan = append(plan, PlannedAction{
			Action:     trigger.Action,
			Codes:      []string{trigger.Action.Code},
			Rules:      []string{trigger.Rule},
			Recipients: appendUniqueRoles(nil, trigger.Recipients...),
		})
	}

	return plan
}

func priorityRank(priority string) int {
	switch priority {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	}
	return 0
}

func conditionsHold(conditions []Condition, row MetricRow) bool {
	for _, cond := range conditions {
		value, ok := row.Value(cond.Metric)
		if !ok || !cond.Operator.Compare(value, cond.Value) {
			return false
		}
	}
	return len(conditions) > 0
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(100, v))
	return math.Round(v*100) / 100
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

func appendUniqueRoles(list []Role, roles ...Role) []Role {
	for _, role := range roles {
		found := false
		for _, existing := range list {
			if existing == role {
				found = true
				break
			}
		}
		if !found {
			list = append(list, role)
		}
	}
	return list
}
