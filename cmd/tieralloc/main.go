package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/config"
	"github.com/nvandessel/tier-alloc/internal/logging"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/nvandessel/tier-alloc/internal/strategy"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tieralloc",
		Short: "Tier allocation engine",
		Long: `tieralloc distributes integer counts across 30 ordinal tiers for each
group so that the weighted sum of the allocation approaches a target,
while every row stays non-increasing from the highest tier down.

Weights are imported per delivery type from spreadsheets, allocations
can be saved, exported and served over HTTP or MCP.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (default ~/.tieralloc/tieralloc.db)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newWeightsCmd(),
		newAllocateCmd(),
		newHistoryCmd(),
		newExportCmd(),
		newDecodeCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newServeCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "tieralloc version %s\n", version)
			}
		},
	}
}

// env bundles what most commands need.
type env struct {
	cfg     *config.Config
	store   *store.SQLiteStore
	manager *strategy.Manager
	logger  *slog.Logger
	trace   *logging.DecisionLogger
}

func (e *env) Close() {
	e.trace.Close()
	e.store.Close()
}

// loadEnv loads config, opens the store and builds the strategy manager.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	trace := logging.NewDecisionLogger(filepath.Dir(dbPath), cfg.Logging.Level)

	manager, err := strategy.NewManagerFromConfig(st, cfg,
		strategy.WithLogger(logger),
		strategy.WithDecisionLogger(trace),
	)
	if err != nil {
		trace.Close()
		st.Close()
		return nil, err
	}

	return &env{cfg: cfg, store: st, manager: manager, logger: logger, trace: trace}, nil
}

func resolveDBPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, nil
	}
	if cfg.Store.Path != "" {
		return cfg.Store.Path, nil
	}
	p, err := store.DefaultDBPath()
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}
	return p, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.Logging.Format == "json" {
		return logging.NewJSONLogger(cfg.Logging.Level, w)
	}
	return logging.NewLogger(cfg.Logging.Level, w)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
