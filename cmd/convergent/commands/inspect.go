package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/convergent"
	"github.com/ashita-ai/convergent/internal/printer"
	"github.com/ashita-ai/convergent/internal/report"
)

func newInspectCmd(g *globalOptions) *cobra.Command {
	var (
		format       string
		agentID      string
		minStability float64
		showEvidence bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Render the intent graph",
		Long: `Render published intents for humans.

Formats:
  table  - one row per intent grouped by agent (default)
  dot    - Graphviz digraph; pipe to "dot -Tsvg"
  matrix - overlap matrix between intents of different agents

Examples:
  convergent inspect --show-evidence
  convergent inspect --format dot | dot -Tsvg > graph.svg
  convergent inspect --agent agent-a --min-stability 0.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := convergent.ReportFormat(format)
			if !slices.Contains(report.Formats, f) {
				return reportedError{printer.New(cmd.ErrOrStderr()).Error(
					"invalid format",
					fmt.Sprintf("Unknown format: %s", format),
					[]string{"Valid formats: table, dot, matrix"},
				)}
			}
			if err := validStability(minStability); err != nil {
				return err
			}

			app, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			return app.Inspect(cmd.Context(), cmd.OutOrStdout(), convergent.InspectRequest{
				Format:       f,
				AgentID:      agentID,
				MinStability: minStability,
				ShowEvidence: showEvidence,
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(convergent.FormatTable), "Output format: table, dot or matrix")
	cmd.Flags().StringVar(&agentID, "agent", "", "Only show intents published by this agent")
	cmd.Flags().Float64Var(&minStability, "min-stability", 0, "Only show intents at or above this computed stability")
	cmd.Flags().BoolVar(&showEvidence, "show-evidence", false, "List evidence under each table row")
	return cmd
}
