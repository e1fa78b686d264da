package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runKPICtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEvaluateCSVWithBuiltinRules(t *testing.T) {
	rows := writeFile(t, "rows.csv", strings.Join([]string{
		"FE,Month,TAT %,Major Negative %,Negative %,Quality Concern % Age,Insuff %,Neighbor Check % Age,Online % Age",
		"FE-001,Oct-25,98,3,30,0,0,95,95",
		"FE-002,Smarch,98,3,30,0,0,95,95",
		"FE-003,2025-10,,,,,,,",
	}, "\n"))

	out, err := runKPICtl(t, "evaluate", rows, "--format", "json")
	require.NoError(t, err)

	var results []RowEvaluation
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)

	require.Equal(t, "Oct-25", results[0].Period)
	require.NotNil(t, results[0].Evaluation)
	require.Equal(t, 100.0, results[0].Evaluation.OverallScore)
	require.True(t, results[0].Evaluation.RewardEligible)

	require.Nil(t, results[1].Evaluation)
	require.NotEmpty(t, results[1].Error)

	require.Equal(t, "Oct-25", results[2].Period)
	require.Equal(t, 0.0, results[2].Evaluation.OverallScore)
	require.NotEmpty(t, results[2].Evaluation.Plan)
}

func TestEvaluateTextTable(t *testing.T) {
	rows := writeFile(t, "rows.json", `[{"fe": "Ravi", "month": "Oct-25"}]`)

	out, err := runKPICtl(t, "evaluate", rows)
	require.NoError(t, err)
	require.Contains(t, out, "ROW")
	require.Contains(t, out, "Ravi")
	require.Contains(t, out, "Unsatisfactory")
}

func TestRulesAndValidate(t *testing.T) {
	out, err := runKPICtl(t, "rules")
	require.NoError(t, err)
	require.Contains(t, out, "score_rules:")

	rulesPath := writeFile(t, "rules.yaml", out)
	out, err = runKPICtl(t, "validate", rulesPath)
	require.NoError(t, err)
	require.Contains(t, out, "valid")

	broken := writeFile(t, "broken.yaml", "metrics: []\nscore_rules: []\n")
	_, err = runKPICtl(t, "validate", broken)
	require.Error(t, err)

	_, err = runKPICtl(t, "rules", "--format", "xml")
	require.Error(t, err)
}
