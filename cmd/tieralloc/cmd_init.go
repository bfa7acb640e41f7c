package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/config"
	"github.com/nvandessel/tier-alloc/internal/store"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory, default config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := store.EnsureDataDir()
			if err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			configPath, err := config.DefaultPath()
			if err != nil {
				return err
			}
			configCreated := false
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := config.Default().Save(configPath); err != nil {
					return err
				}
				configCreated = true
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status":         "initialized",
					"path":           dataDir,
					"config":         configPath,
					"config_created": configCreated,
					"database":       e.store.Path(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", dataDir)
			if configCreated {
				fmt.Fprintf(cmd.OutOrStdout(), "  wrote default config to %s\n", configPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  database: %s\n", e.store.Path())
			return nil
		},
	}
}
