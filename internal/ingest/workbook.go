// Package ingest reads weight workbooks and writes allocation workbooks.
//
// A weight sheet has a header row whose first column names the group and
// whose remaining columns are tier labels (D30..D1, any order). Blank
// cells are zero weights; rows with a blank group are skipped.
package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// GroupHeader is the header written in the first column.
const GroupHeader = "group"

// WeightReader parses weight sheets from one workbook.
type WeightReader struct {
	file *excelize.File
}

// NewWeightReader wraps an open workbook.
func NewWeightReader(file *excelize.File) *WeightReader {
	return &WeightReader{file: file}
}

// OpenWeights opens the workbook at path and reads one sheet.
func OpenWeights(path, sheet string) ([]store.GroupWeights, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return NewWeightReader(f).ReadSheet(sheet)
}

// ReadWeights reads one sheet from a workbook stream.
func ReadWeights(r io.Reader, sheet string) ([]store.GroupWeights, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return NewWeightReader(f).ReadSheet(sheet)
}

// ReadSheet parses sheet. An empty name selects the first sheet.
func (wr *WeightReader) ReadSheet(sheet string) ([]store.GroupWeights, error) {
	if sheet == "" {
		sheets := wr.file.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := wr.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %q has no data rows", sheet)
	}

	columns, err := mapTierColumns(rows[0])
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}

	var out []store.GroupWeights
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}

		gw := store.GroupWeights{Group: strings.TrimSpace(row[0])}
		for col, tier := range columns {
			if col >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			d, err := decimal.NewFromString(cell)
			if err != nil {
				return nil, fmt.Errorf("sheet %q row %d %s: %w", sheet, rowIdx+1, tier.Label(), err)
			}
			gw.Weights[tier] = d
		}
		out = append(out, gw)
	}

	return out, nil
}

// mapTierColumns maps column index to tier. Every tier must appear once.
func mapTierColumns(headers []string) (map[int]models.Tier, error) {
	columns := make(map[int]models.Tier, constants.TierCount)
	seen := make(map[models.Tier]bool, constants.TierCount)

	for col := 1; col < len(headers); col++ {
		h := strings.TrimSpace(headers[col])
		if h == "" {
			continue
		}
		tier, err := models.ParseTierLabel(h)
		if err != nil {
			// Non-tier columns such as notes are ignored.
			continue
		}
		if seen[tier] {
			return nil, fmt.Errorf("duplicate tier column %s", tier.Label())
		}
		seen[tier] = true
		columns[col] = tier
	}

	if len(seen) != constants.TierCount {
		var missing []string
		for t := models.Tier(0); t.Valid(); t++ {
			if !seen[t] {
				missing = append(missing, t.Label())
			}
		}
		return nil, fmt.Errorf("missing tier columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}
