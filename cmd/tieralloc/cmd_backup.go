package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/backup"
	"github.com/nvandessel/tier-alloc/internal/config"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot stored weights and allocations to a compressed file",
		Long: `Write every stored weight row and saved allocation to a gzip snapshot.

Default location: ~/.tieralloc/backups/tieralloc-backup-YYYYMMDD-HHMMSS.json.gz
Snapshots in that directory are pruned by backup.retention (default: last 10).

Examples:
  tieralloc backup                          # Snapshot to the default location
  tieralloc backup --output snap.json.gz    # Snapshot to a specific file
  tieralloc backup list                     # List snapshots
  tieralloc backup verify <file>            # Check a snapshot's checksum
  tieralloc restore <file>                  # Load a snapshot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputPath, _ := cmd.Flags().GetString("output")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			policy, err := backup.NewPolicy(e.cfg.Backup.Retention.MaxCount, e.cfg.Backup.Retention.MaxAge)
			if err != nil {
				return fmt.Errorf("invalid backup retention: %w", err)
			}

			prune := outputPath == ""
			if prune {
				dir, err := backupDir(e.cfg)
				if err != nil {
					return err
				}
				outputPath = backup.GenerateBackupPath(dir, time.Now())
			}

			snap, err := backup.Backup(cmd.Context(), e.store, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			var deleted []string
			if prune {
				deleted, err = backup.ApplyRetention(filepath.Dir(outputPath), policy)
				if err != nil {
					e.logger.Warn("failed to apply backup retention", "error", err)
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":        outputPath,
					"weight_rows": snap.WeightRows(),
					"allocations": len(snap.Allocations),
					"pruned":      deleted,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d weight rows, %d allocations\n",
				snap.WeightRows(), len(snap.Allocations))
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			if len(deleted) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Pruned %d old snapshot(s)\n", len(deleted))
			}
			return nil
		},
	}
	cmd.Flags().String("output", "", "Output file (default: timestamped file in the backup directory)")

	cmd.AddCommand(newBackupListCmd(), newBackupVerifyCmd())
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots in the backup directory, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			dir, err := backupDir(cfg)
			if err != nil {
				return err
			}
			backups, err := backup.ListBackups(dir)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if backups == nil {
					backups = []backup.BackupInfo{}
				}
				return writeJSON(cmd.OutOrStdout(), backups)
			}
			if len(backups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s\n", dir)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tCREATED\tSIZE")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", filepath.Base(b.Path), b.CreatedAt.Local().Format(time.DateTime), b.Size)
			}
			return tw.Flush()
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a snapshot's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, err := backup.VerifyChecksum(args[0])
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), header)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d weight rows, %d allocations, created %s\n",
				header.WeightRows, header.Allocations, header.CreatedAt.Local().Format(time.DateTime))
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Load weights and allocations from a snapshot",
		Long: `Restore a snapshot written by "tieralloc backup".

Weights for every delivery type in the snapshot replace the stored rows.
Saved allocations are added unless one with the same ID already exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := backup.Restore(cmd.Context(), e.store, args[0])
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d weight rows across %d delivery types\n",
				result.WeightRows, result.DeliveryTypes)
			fmt.Fprintf(cmd.OutOrStdout(), "Allocations: %d added, %d skipped\n",
				result.AllocationsAdded, result.AllocationsSkipped)
			return nil
		},
	}
}

func backupDir(cfg *config.Config) (string, error) {
	if cfg.Backup.Dir != "" {
		return cfg.Backup.Dir, nil
	}
	dir, err := backup.DefaultBackupDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve backup directory: %w", err)
	}
	return dir, nil
}
