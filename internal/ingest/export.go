package ingest

import (
	"fmt"
	"io"

	"github.com/nvandessel/tier-alloc/internal/codec"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/xuri/excelize/v2"
)

// Sheet names used by generated workbooks.
const (
	WeightSheet     = "weights"
	AllocationSheet = "allocation"
	SummarySheet    = "summary"
)

// WriteWeightSheet writes rows in the layout ReadSheet expects.
func WriteWeightSheet(f *excelize.File, sheet string, rows []store.GroupWeights) error {
	if _, err := ensureSheet(f, sheet); err != nil {
		return err
	}
	if err := writeHeader(f, sheet, nil); err != nil {
		return err
	}
	for i, gw := range rows {
		if err := writeRow(f, sheet, i+2, gw.Group, gw.Weights, nil); err != nil {
			return err
		}
	}
	return nil
}

// SaveWeights writes rows to a new workbook at path. An empty sheet name
// uses WeightSheet.
func SaveWeights(path, sheet string, rows []store.GroupWeights) error {
	if sheet == "" {
		sheet = WeightSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	idx, err := ensureSheet(f, sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("remove default sheet: %w", err)
		}
	}
	if err := WriteWeightSheet(f, sheet, rows); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// NewAllocationWorkbook renders rec as a workbook with an allocation sheet
// (one row per group plus its encoded form) and a summary sheet.
func NewAllocationWorkbook(rec *store.Record) (*excelize.File, error) {
	f := excelize.NewFile()

	idx, err := ensureSheet(f, AllocationSheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}

	extra := []string{"encoded"}
	if err := writeHeader(f, AllocationSheet, extra); err != nil {
		f.Close()
		return nil, err
	}
	for i, row := range rec.Matrix.Rows {
		if err := writeRow(f, AllocationSheet, i+2, rec.Matrix.Groups[i], row, []any{codec.EncodeRow(row)}); err != nil {
			f.Close()
			return nil, err
		}
	}

	if _, err := ensureSheet(f, SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	summary := [][]any{
		{"id", rec.ID},
		{"delivery_type", string(rec.DeliveryType)},
		{"variant", rec.Variant.String()},
		{"target", rec.Target.String()},
		{"achieved", rec.Achieved.String()},
		{"error", rec.Error.String()},
		{"iterations", rec.Iterations},
		{"created_at", rec.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
	}
	for i, line := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &line); err != nil {
			f.Close()
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}

	return f, nil
}

// WriteAllocation streams rec as an xlsx workbook to w.
func WriteAllocation(w io.Writer, rec *store.Record) error {
	f, err := NewAllocationWorkbook(rec)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func ensureSheet(f *excelize.File, sheet string) (int, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return 0, fmt.Errorf("look up sheet %q: %w", sheet, err)
	}
	if idx >= 0 {
		return idx, nil
	}
	idx, err = f.NewSheet(sheet)
	if err != nil {
		return 0, fmt.Errorf("create sheet %q: %w", sheet, err)
	}
	return idx, nil
}

func writeHeader(f *excelize.File, sheet string, extra []string) error {
	header := make([]any, 0, 1+len(extra)+30)
	header = append(header, GroupHeader)
	for _, label := range models.TierLabels() {
		header = append(header, label)
	}
	for _, e := range extra {
		header = append(header, e)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, group string, row models.Row, extra []any) error {
	values := make([]any, 0, 1+len(row)+len(extra))
	values = append(values, group)
	for _, v := range row {
		if v.IsInteger() {
			values = append(values, v.IntPart())
		} else {
			values = append(values, v.InexactFloat64())
		}
	}
	values = append(values, extra...)

	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", rowNum, err)
	}
	return nil
}
