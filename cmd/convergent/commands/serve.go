package commands

import (
	"github.com/spf13/cobra"

	"github.com/ashita-ai/convergent"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		transport    string
		addr         string
		minStability float64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the intent graph over MCP",
		Long: `Serve the intent graph to agents over the Model Context Protocol.

Transports:
  stdio - one agent, JSON-RPC frames on stdin/stdout (default)
  http  - streamable HTTP on /mcp plus a /health endpoint

Logs are written as JSON to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []convergent.Option{convergent.WithVersion(g.version)}
			if g.databaseURL != "" {
				opts = append(opts, convergent.WithDatabaseURL(g.databaseURL))
			}
			if transport != "" {
				opts = append(opts, convergent.WithTransport(transport))
			}
			if addr != "" {
				opts = append(opts, convergent.WithAddr(addr))
			}
			if cmd.Flags().Changed("min-stability") {
				if err := validStability(minStability); err != nil {
					return err
				}
				opts = append(opts, convergent.WithMinStability(minStability))
			}

			app, err := convergent.New(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport: stdio or http (overrides CONVERGENT_MCP_TRANSPORT)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for the http transport (overrides CONVERGENT_MCP_ADDR)")
	cmd.Flags().Float64Var(&minStability, "min-stability", 0, "Default stability floor (overrides CONVERGENT_MIN_STABILITY)")
	return cmd
}
