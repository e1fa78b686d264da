package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/ingest"
	"github.com/noah-isme/kpi-ops-api/internal/kpi"
)

// RowEvaluation is the dry-run outcome for one input row.
type RowEvaluation struct {
	Row        int             `json:"row" yaml:"row"`
	Identifier string          `json:"fe" yaml:"fe"`
	Period     string          `json:"period" yaml:"period"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
	Evaluation *kpi.Evaluation `json:"evaluation,omitempty" yaml:"evaluation,omitempty"`
}

// NewEvaluateCommand scores every row of a CSV or JSON sheet.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <rows-file>",
		Short: "Score rows and list the actions they would trigger",
		Long: `Score every row of a bulk upload sheet (CSV export or JSON array) and print the
overall score, rating and planned actions. Nothing is persisted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine(rootOpts.RulesFile)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read rows: %w", err)
			}
			hint := ""
			switch strings.ToLower(filepath.Ext(args[0])) {
			case ".csv":
				hint = "text/csv"
			case ".json":
				hint = "application/json"
			}
			rows, err := ingest.ParseRows(data, hint)
			if err != nil {
				return err
			}

			results := EvaluateRows(engine, rows)
			return writeEvaluations(cmd.OutOrStdout(), rootOpts.Format, results)
		},
	}
}

// EvaluateRows scores rows in order. Row numbers are 1-based; a bad period fails only its row.
func EvaluateRows(engine *kpi.Engine, rows []dto.KPIBulkRow) []RowEvaluation {
	results := make([]RowEvaluation, 0, len(rows))
	for idx, row := range rows {
		result := RowEvaluation{Row: idx + 1, Identifier: row.Identifier, Period: row.Period}

		period, err := kpi.NormalizePeriod(row.Period)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		result.Period = period

		evaluation := engine.Evaluate(row.Row())
		result.Evaluation = &evaluation
		results = append(results, result)
	}
	return results
}

func writeEvaluations(out io.Writer, format string, results []RowEvaluation) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	case "yaml":
		payload, err := yaml.Marshal(results)
		if err != nil {
			return err
		}
		_, err = out.Write(payload)
		return err
	}

	table := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "ROW\tFE\tPERIOD\tSCORE\tRATING\tACTIONS")
	for _, result := range results {
		if result.Evaluation == nil {
			fmt.Fprintf(table, "%d\t%s\t%s\t-\t-\terror: %s\n", result.Row, result.Identifier, result.Period, result.Error)
			continue
		}
		codes := make([]string, 0, len(result.Evaluation.Plan))
		for _, planned := range result.Evaluation.Plan {
			codes = append(codes, planned.Codes...)
		}
		actions := strings.Join(codes, ",")
		if actions == "" {
			actions = "-"
		}
		fmt.Fprintf(table, "%d\t%s\t%s\t%.2f\t%s\t%s\n",
			result.Row, result.Identifier, result.Period, result.Evaluation.OverallScore, result.Evaluation.Rating, actions)
	}
	return table.Flush()
}
