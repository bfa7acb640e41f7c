package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tieralloc configuration",
		Long: `View and modify tieralloc configuration settings.

Configuration is stored in ~/.tieralloc/config.yaml. Environment variables
(TIERALLOC_LOG_LEVEL, TIERALLOC_DB_PATH, ...) override the file.

Examples:
  tieralloc config list                                    # Show all settings
  tieralloc config get engine.error_threshold              # Get a specific setting
  tieralloc config set split.legacy_default_ratio.enabled true`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}

			path, _ := config.DefaultPath()
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration (%s):\n", path)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			section := ""
			for _, key := range config.Keys {
				if prefix, _, _ := strings.Cut(key, "."); prefix != section {
					section = prefix
					fmt.Fprintf(tw, "\n%s:\t\n", section)
				}
				value, _ := cfg.Get(key)
				fmt.Fprintf(tw, "  %s\t%s\n", key, valueOrDefault(fmt.Sprint(value), "(not set)"))
			}
			if len(cfg.Strategies) > 0 {
				fmt.Fprintf(tw, "\nstrategies:\t\n")
				types := make([]string, 0, len(cfg.Strategies))
				for dt := range cfg.Strategies {
					types = append(types, dt)
				}
				sort.Strings(types)
				for _, dt := range types {
					o := cfg.Strategies[dt]
					fmt.Fprintf(tw, "  %s\tvariant=%s max_iterations=%d\n", dt, valueOrDefault(o.Variant, "(default)"), o.MaxIterations)
				}
			}
			return tw.Flush()
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := cfg.Get(key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("refusing to save invalid config: %w", err)
			}

			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
