// Package cli implements kpictl, an offline evaluator for KPI rule tables.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/kpi-ops-api/internal/kpi"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	RulesFile string
	Format    string // "text" | "json" | "yaml"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the kpictl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kpictl",
		Short: "Dry-run KPI scoring and trigger rules",
		Long: `kpictl scores KPI rows and resolves the actions they would trigger without
touching the database. Rules come from --rules (YAML or JSON) or the built-in table.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, format := range ValidFormats {
				if format == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.RulesFile, "rules", "", "rule table file (YAML or JSON); built-in table when empty")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewEvaluateCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

func loadConfig(path string) (kpi.Config, error) {
	if path == "" {
		return kpi.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return kpi.Config{}, fmt.Errorf("read rules: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return kpi.ParseJSON(data)
	}
	return kpi.ParseYAML(data)
}

func loadEngine(path string) (*kpi.Engine, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	return kpi.NewEngine(cfg)
}
