// Package commands implements the convergent command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/convergent"
	"github.com/ashita-ai/convergent/internal/printer"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	databaseURL string
	version     string
}

// reportedError marks an error whose details were already printed.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	g := &globalOptions{version: version}

	root := &cobra.Command{
		Use:   "convergent",
		Short: "Convergent - shared intent graph for uncoordinated agents",
		Long: `Convergent lets agents that build parts of the same codebase without
talking to each other publish their intents to a shared append-only graph
and resolve candidate intents against it before building.

Configuration is read from CONVERGENT_* environment variables (and a .env
file in the working directory when present).`,
		Version: version,
		// No subcommand shows help instead of silently succeeding.
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&g.databaseURL, "database", "",
		"SQLite path, :memory:, or postgres:// URL (overrides CONVERGENT_DATABASE_URL)")

	root.AddCommand(
		newServeCmd(g),
		newPublishCmd(g),
		newResolveCmd(g),
		newInspectCmd(g),
		newSummaryCmd(g),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, version string) int {
	err := NewRootCmd(version).ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		_ = printer.New(os.Stderr).Error("Error", err.Error(), nil)
	}
	return 1
}

// openApp constructs an App for a one-shot command. Logs below warn are
// dropped so they do not interleave with command output.
func openApp(cmd *cobra.Command, g *globalOptions, extra ...convergent.Option) (*convergent.App, error) {
	opts := []convergent.Option{
		convergent.WithVersion(g.version),
		convergent.WithLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))),
	}
	if g.databaseURL != "" {
		opts = append(opts, convergent.WithDatabaseURL(g.databaseURL))
	}
	return convergent.New(cmd.Context(), append(opts, extra...)...)
}

// readIntent parses the intent in path, or stdin when path is "-".
func readIntent(cmd *cobra.Command, path string) (convergent.Intent, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return convergent.Intent{}, fmt.Errorf("read intent: %w", err)
	}

	n, err := convergent.ParseIntent(data)
	if err != nil {
		return convergent.Intent{}, reportedError{printer.New(cmd.ErrOrStderr()).Error(
			"invalid intent",
			err.Error(),
			[]string{"An intent needs at least agent_id and description; see `convergent publish --help`."},
		)}
	}
	return n, nil
}

func validStability(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("--min-stability must be within [0, 1], got %v", v)
	}
	return nil
}
