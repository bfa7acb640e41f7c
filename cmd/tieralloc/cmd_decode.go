package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/codec"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [line...]",
		Short: "Expand run-length encoded allocation lines",
		Long: `Expand lines such as "north+south: 2×2+14×1+14×0" into one row per group.
Lines are read from stdin when none are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := args
			if len(lines) == 0 {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						lines = append(lines, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return err
				}
			}
			if len(lines) == 0 {
				return fmt.Errorf("no encoded lines given")
			}

			entries := make([]codec.Entry, 0, len(lines))
			for i, line := range lines {
				entry, err := codec.ParseEntry(line)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				entries = append(entries, entry)
			}
			m, err := codec.DecodeMatrix(entries)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			for i, row := range m.Rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", m.Groups[i], strings.Join(row.Strings(), " "))
			}
			return nil
		},
	}
}
