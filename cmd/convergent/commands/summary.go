package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/convergent/internal/printer"
)

func newSummaryCmd(g *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print aggregate figures for the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			s, err := app.Summary(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			printer.New(cmd.OutOrStdout()).Summary(s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}
