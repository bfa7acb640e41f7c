package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/constants"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved allocations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeFlag, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetInt("limit")

			var dt constants.DeliveryType
			if typeFlag != "" {
				var err error
				if dt, err = parseDeliveryType(typeFlag); err != nil {
					return err
				}
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			records, err := e.store.ListAllocations(cmd.Context(), dt, limit)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved allocations.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tVARIANT\tTARGET\tACHIEVED\tERROR\tCREATED")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.DeliveryType, r.Variant, r.Target, r.Achieved, r.Error,
					r.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("type", "", "Only list this delivery type")
	cmd.Flags().Int("limit", 20, "Maximum records to list (0 for all)")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <id> <workbook.xlsx>",
		Short: "Write a saved allocation to a workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			rec, err := e.store.GetAllocation(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("allocation %s: %w", args[0], err)
			}
			if err := writeWorkbook(args[1], rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote allocation %s to %s\n", rec.ID, args[1])
			return nil
		},
	}
}
