package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/allocation"
	"github.com/nvandessel/tier-alloc/internal/codec"
	"github.com/nvandessel/tier-alloc/internal/ingest"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/nvandessel/tier-alloc/internal/strategy"
)

func newAllocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate <delivery-type>",
		Short: "Allocate a target across tiers using stored weights",
		Long: `Run the allocation strategy of a delivery type against its stored weights.

Unusable input (no groups, a group without weights, a negative target)
prints a warning and an all-zero allocation. Split strategies need both
--ratio-a and --ratio-b unless the legacy default ratio is enabled.

Examples:
  tieralloc allocate county --target 1200
  tieralloc allocate county --target 1200 --groups north,south --save
  tieralloc allocate market --target 5000 --ratio-a 0.4 --ratio-b 0.6 --xlsx market.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDeliveryType(args[0])
			if err != nil {
				return err
			}
			req := strategy.Request{DeliveryType: dt}

			targetStr, _ := cmd.Flags().GetString("target")
			if req.Target, err = decimal.NewFromString(targetStr); err != nil {
				return fmt.Errorf("invalid --target %q: %w", targetStr, err)
			}
			req.Groups, _ = cmd.Flags().GetStringSlice("groups")
			if req.RatioA, err = decimalFlag(cmd, "ratio-a"); err != nil {
				return err
			}
			if req.RatioB, err = decimalFlag(cmd, "ratio-b"); err != nil {
				return err
			}
			save, _ := cmd.Flags().GetBool("save")
			xlsxPath, _ := cmd.Flags().GetString("xlsx")
			encodedOnly, _ := cmd.Flags().GetBool("encoded")
			jsonOut, _ := cmd.Flags().GetBool("json")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			out, err := e.manager.Allocate(cmd.Context(), req)
			var inputErr *allocation.InputError
			switch {
			case errors.As(err, &inputErr):
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", inputErr)
			case err != nil:
				return err
			}
			if out == nil {
				return err
			}

			rec := out.Record()
			if save && inputErr == nil {
				if rec.ID, err = e.store.SaveAllocation(cmd.Context(), rec); err != nil {
					return fmt.Errorf("failed to save allocation: %w", err)
				}
			}
			if xlsxPath != "" {
				if err := writeWorkbook(xlsxPath, rec); err != nil {
					return err
				}
			}

			switch {
			case jsonOut:
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"id":                rec.ID,
					"delivery_type":     dt,
					"variant":           out.Strategy.Variant,
					"target":            out.Target,
					"achieved":          out.Achieved,
					"error":             out.Error,
					"iterations":        out.Iterations,
					"exceeds_threshold": out.Error.GreaterThan(e.manager.Threshold()),
					"matrix":            out.Matrix,
					"encoded":           codec.EncodeMatrix(out.Matrix),
				})
			case encodedOnly:
				for _, entry := range codec.EncodeMatrix(out.Matrix) {
					fmt.Fprintln(cmd.OutOrStdout(), entry.String())
				}
			default:
				printRecord(cmd, rec)
			}
			return nil
		},
	}
	cmd.Flags().String("target", "", "Target weighted sum (decimal)")
	cmd.Flags().StringSlice("groups", nil, "Groups to allocate (default: every stored group)")
	cmd.Flags().String("ratio-a", "", "Share of the target for the first split cohort")
	cmd.Flags().String("ratio-b", "", "Share of the target for the second split cohort")
	cmd.Flags().Bool("save", false, "Save the result to the database")
	cmd.Flags().String("xlsx", "", "Also write the result to this workbook")
	cmd.Flags().Bool("encoded", false, "Print only the run-length encoded rows")
	cmd.MarkFlagRequired("target")
	return cmd
}

func decimalFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return &d, nil
}

func writeWorkbook(path string, rec *store.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := ingest.WriteAllocation(f, rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printRecord(cmd *cobra.Command, rec *store.Record) {
	w := cmd.OutOrStdout()
	if rec.ID != "" {
		fmt.Fprintf(w, "Allocation %s\n", rec.ID)
	}
	fmt.Fprintf(w, "%s (%s): target %s, achieved %s, error %s, %d iterations\n",
		rec.DeliveryType, rec.Variant, rec.Target, rec.Achieved, rec.Error, rec.Iterations)
	for _, entry := range codec.EncodeMatrix(rec.Matrix) {
		fmt.Fprintf(w, "  %s\n", entry.String())
	}
}
