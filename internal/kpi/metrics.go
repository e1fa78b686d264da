package kpi

import (
	"math"
	"strings"
)

// Metric identifies one raw KPI input column.
type Metric string

const (
	MetricTAT             Metric = "tat"
	MetricMajorNegativity Metric = "major_negativity"
	MetricQuality         Metric = "quality"
	MetricNeighborCheck   Metric = "neighbor_check"
	MetricNegativity      Metric = "negativity"
	MetricAppUsage        Metric = "app_usage"
	MetricInsufficiency   Metric = "insufficiency"
)

// AllMetrics lists the metrics in their canonical order.
var AllMetrics = []Metric{
	MetricTAT,
	MetricMajorNegativity,
	MetricQuality,
	MetricNeighborCheck,
	MetricNegativity,
	MetricAppUsage,
	MetricInsufficiency,
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	for _, known := range AllMetrics {
		if m == known {
			return true
		}
	}
	return false
}

// MetricRow carries the raw percentages for one user and period. A nil field is a missing metric.
type MetricRow struct {
	TAT             *float64 `json:"tat,omitempty" yaml:"tat,omitempty"`
	MajorNegativity *float64 `json:"major_negativity,omitempty" yaml:"major_negativity,omitempty"`
	Quality         *float64 `json:"quality,omitempty" yaml:"quality,omitempty"`
	NeighborCheck   *float64 `json:"neighbor_check,omitempty" yaml:"neighbor_check,omitempty"`
	Negativity      *float64 `json:"negativity,omitempty" yaml:"negativity,omitempty"`
	AppUsage        *float64 `json:"app_usage,omitempty" yaml:"app_usage,omitempty"`
	Insufficiency   *float64 `json:"insufficiency,omitempty" yaml:"insufficiency,omitempty"`
}

// Value returns the metric value and whether it is usable. NaN and infinities count as missing.
func (r MetricRow) Value(m Metric) (float64, bool) {
	var v *float64
	switch m {
	case MetricTAT:
		v = r.TAT
	case MetricMajorNegativity:
		v = r.MajorNegativity
	case MetricQuality:
		v = r.Quality
	case MetricNeighborCheck:
		v = r.NeighborCheck
	case MetricNegativity:
		v = r.Negativity
	case MetricAppUsage:
		v = r.AppUsage
	case MetricInsufficiency:
		v = r.Insufficiency
	}
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

// Set assigns a metric value on the row.
func (r *MetricRow) Set(m Metric, value float64) {
	v := value
	switch m {
	case MetricTAT:
		r.TAT = &v
	case MetricMajorNegativity:
		r.MajorNegativity = &v
	case MetricQuality:
		r.Quality = &v
	case MetricNeighborCheck:
		r.NeighborCheck = &v
	case MetricNegativity:
		r.Negativity = &v
	case MetricAppUsage:
		r.AppUsage = &v
	case MetricInsufficiency:
		r.Insufficiency = &v
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Operator is a comparison used by thresholds and conditions.
type Operator string

const (
	OpGTE Operator = ">="
	OpGT  Operator = ">"
	OpLTE Operator = "<="
	OpLT  Operator = "<"
	OpEQ  Operator = "=="
)

const epsilon = 1e-9

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	switch Operator(strings.TrimSpace(string(o))) {
	case OpGTE, OpGT, OpLTE, OpLT, OpEQ:
		return true
	}
	return false
}

// Compare applies the operator as `actual <op> expected`.
func (o Operator) Compare(actual, expected float64) bool {
	switch Operator(strings.TrimSpace(string(o))) {
	case OpGTE:
		return actual >= expected
	case OpGT:
		return actual > expected
	case OpLTE:
		return actual <= expected
	case OpLT:
		return actual < expected
	case OpEQ:
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
