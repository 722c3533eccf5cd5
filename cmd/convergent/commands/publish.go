package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/convergent/internal/printer"
)

func newPublishCmd(g *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "publish FILE",
		Short: "Resolve an intent against the graph and publish it",
		Long: `Resolve the intent in FILE (or stdin when FILE is "-") against the graph,
then append it. The intent is published even when conflicts are reported.

An intent is a JSON object:

  {
    "agent_id": "agent-a",
    "description": "User model with email login",
    "provides": [{"name": "User", "kind": "model", "signature": "id: UUID, email: str", "tags": ["auth"]}],
    "requires": [],
    "constraints": [{"target": "User", "requirement": "email is unique", "severity": "required"}],
    "evidence": [{"kind": "code_committed", "description": "abc123"}],
    "parent_id": ""
  }

id and timestamp are assigned when absent.`,
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

			result, computed, err := app.Publish(cmd.Context(), n)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"intent_id":          n.ID,
					"computed_stability": computed,
					"resolution":         result,
				})
			}
			p := printer.New(cmd.OutOrStdout())
			p.Resolution(result, computed)
			p.Success("published %s\n", n.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
