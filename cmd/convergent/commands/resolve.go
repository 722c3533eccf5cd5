package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/convergent/internal/printer"
)

func newResolveCmd(g *globalOptions) *cobra.Command {
	var (
		asJSON       bool
		minStability float64
	)

	cmd := &cobra.Command{
		Use:   "resolve FILE",
		Short: "Check an intent against the graph without publishing it",
		Long: `Resolve the intent in FILE (or stdin when FILE is "-") against published
intents of other agents and print the recommended adjustments, the
constraints to adopt and any conflicts. Nothing is written.

See "convergent publish --help" for the intent format.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := readIntent(cmd, args[0])
			if err != nil {
				return err
			}
			app, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			floor := app.MinStability()
			if cmd.Flags().Changed("min-stability") {
				if err := validStability(minStability); err != nil {
					return err
				}
				floor = minStability
			}

			result, err := app.Resolve(cmd.Context(), n, floor)
			if err != nil {
				return err
			}
			mine := app.Stability(n)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"intent_id":    n.ID,
					"my_stability": mine,
					"resolution":   result,
				})
			}
			printer.New(cmd.OutOrStdout()).Resolution(result, mine)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().Float64Var(&minStability, "min-stability", 0, "Ignore published intents below this stability (default CONVERGENT_MIN_STABILITY)")
	return cmd
}
