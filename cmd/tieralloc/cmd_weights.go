package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/ingest"
	"github.com/nvandessel/tier-alloc/internal/store"
)

func newWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Manage stored weight matrices",
		Long: `Import, inspect and export the per-tier weights of each delivery type.

Workbooks hold one row per group: the group name in the first column and
one column per tier labelled D30 (highest) to D1 (lowest).

Examples:
  tieralloc weights import county counties.xlsx --sheet 2024
  tieralloc weights show county
  tieralloc weights export county counties-backup.xlsx`,
	}
	cmd.AddCommand(
		newWeightsImportCmd(),
		newWeightsShowCmd(),
		newWeightsExportCmd(),
	)
	return cmd
}

func parseDeliveryType(s string) (constants.DeliveryType, error) {
	dt := constants.DeliveryType(s)
	if !dt.Valid() {
		names := make([]string, len(constants.AllDeliveryTypes))
		for i, d := range constants.AllDeliveryTypes {
			names[i] = string(d)
		}
		return "", fmt.Errorf("unknown delivery type %q (valid: %s)", s, strings.Join(names, ", "))
	}
	return dt, nil
}

func newWeightsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <delivery-type> <workbook.xlsx>",
		Short: "Replace a delivery type's weights from a workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDeliveryType(args[0])
			if err != nil {
				return err
			}
			sheet, _ := cmd.Flags().GetString("sheet")

			rows, err := ingest.OpenWeights(args[1], sheet)
			if err != nil {
				return err
			}
			if errs := store.ValidateWeights(rows); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e.String())
				}
				return fmt.Errorf("%d invalid weight rows in %s", len(errs), args[1])
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.PutWeights(cmd.Context(), dt, rows); err != nil {
				return fmt.Errorf("failed to store weights: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"delivery_type": dt,
					"groups":        len(rows),
					"source":        args[1],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d groups for %s from %s\n", len(rows), dt, args[1])
			return nil
		},
	}
	cmd.Flags().String("sheet", "", "Sheet to read (default: first sheet)")
	return cmd
}

func loadWeightRows(cmd *cobra.Command, e *env, dt constants.DeliveryType) ([]store.GroupWeights, error) {
	groups, err := e.store.Groups(cmd.Context(), dt)
	if err != nil {
		return nil, err
	}
	weights, err := e.store.Weights(cmd.Context(), dt, groups)
	if err != nil {
		return nil, err
	}
	rows := make([]store.GroupWeights, len(groups))
	for i, g := range groups {
		rows[i] = store.GroupWeights{Group: g, Weights: weights[g]}
	}
	return rows, nil
}

func newWeightsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <delivery-type>",
		Short: "Print the stored weights of a delivery type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDeliveryType(args[0])
			if err != nil {
				return err
			}
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			rows, err := loadWeightRows(cmd, e, dt)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"delivery_type": dt,
					"rows":          rows,
				})
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No weights stored for %s. Import some with 'tieralloc weights import'.\n", dt)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Group, strings.Join(r.Weights.Strings(), " "), r.Weights.Sum())
			}
			return tw.Flush()
		},
	}
}

func newWeightsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <delivery-type> <workbook.xlsx>",
		Short: "Write a delivery type's weights to a workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDeliveryType(args[0])
			if err != nil {
				return err
			}
			sheet, _ := cmd.Flags().GetString("sheet")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			rows, err := loadWeightRows(cmd, e, dt)
			if err != nil {
				return err
			}
			if err := ingest.SaveWeights(args[1], sheet, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d groups to %s\n", len(rows), args[1])
			return nil
		},
	}
	cmd.Flags().String("sheet", ingest.WeightSheet, "Sheet name")
	return cmd
}
