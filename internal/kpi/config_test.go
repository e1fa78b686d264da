package kpi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 1, cfg.Version)
	require.Len(t, cfg.Metrics, len(AllMetrics))
	require.Len(t, cfg.ConditionRules, 4)
}

func TestConfigValidateRejectsBadWeightage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics[0].Weightage = 10

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Contains(t, err.Error(), "weightages")
}

func TestConfigValidateRejectsThresholdAboveWeightage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics[3].Thresholds[0].Score = 50

	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestConfigValidateRequiresSingleCatchAll(t *testing.T) {
	cfg := DefaultConfig()
	last := len(cfg.ScoreRules) - 1
	cfg.ScoreRules[last].MinScore = Float(0)

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Contains(t, err.Error(), "catch-all")
}

func TestConfigValidateKeepsScoreBandsOnRatingBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScoreRules[0].MinScore = Float(90)

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Contains(t, err.Error(), "rating boundary 85")

	cfg = DefaultConfig()
	cfg.ScoreRules = append(cfg.ScoreRules[:1], cfg.ScoreRules[2:]...)
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.ScoreRules[0].Band = "top_performer"
	require.NoError(t, cfg.Validate())

	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	for _, score := range []float64{85, 84.999, 70, 50, 40} {
		band := engine.ScoreBand(score)
		require.NotNil(t, band.MinScore, "score %v", score)
		require.Equal(t, RatingFor(*band.MinScore), RatingFor(score), "score %v", score)
	}
	require.Nil(t, engine.ScoreBand(39.999).MinScore)
}

func TestConfigValidateRejectsUnknownOperatorAndRole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConditionRules[0].Conditions[0].Operator = "~="
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.ConditionRules[0].Recipients = []Role{"Intern"}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestConfigValidateRequiresTrainingType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConditionRules[2].Actions[0].TrainingType = ""

	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestParseJSONRoundTripsDefaultConfig(t *testing.T) {
	payload, err := json.Marshal(DefaultConfig())
	require.NoError(t, err)

	cfg, err := ParseJSON(payload)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestParseYAMLRejectsGarbage(t *testing.T) {
	_, err := ParseYAML([]byte("metrics: [this is: not valid"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}
