package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jassnet/Fraudhunter/internal/config"
)

// app carries what every subcommand shares. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "fraudctl",
		Short: "Fraudhunter command-line tools",
		Long: `fraudctl pulls affiliate click and conversion logs, runs the fraud
detectors and maintains the database.

Commands use PostgreSQL when DATABASE_URL is set and the SQLite file at
FRAUD_DB_PATH otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			a.out = cmd.OutOrStdout()

			verbose, _ := cmd.Flags().GetBool("verbose")
			a.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, verbose)
			return nil
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	root.AddCommand(
		newIngestCmd(a),
		newRefreshCmd(a),
		newDetectCmd(a),
		newSyncMastersCmd(a),
		newMigrateCmd(a),
		newTokenCmd(a),
	)
	return root
}

// newLogger writes text logs to w, which is stderr outside tests.
func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func (a *app) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}
