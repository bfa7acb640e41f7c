package allocation

import (
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// RowValid reports whether row satisfies variant: no negative cells, values
// non-increasing from tier 0, and for the smooth variant no adjacent drop
// larger than one unit.
func RowValid(row models.Row, variant models.Variant) bool {
	if row[0].IsNegative() {
		return false
	}
	for j := 1; j < len(row); j++ {
		cur, prev := row[j], row[j-1]
		if cur.IsNegative() || cur.GreaterThan(prev) {
			return false
		}
		if variant == models.VariantSmooth && prev.Sub(cur).GreaterThan(one) {
			return false
		}
	}
	return true
}

// EnforceRow clamps a row into variant's shape, scanning from tier 0.
// Each cell is capped at its predecessor; the smooth variant also lifts it
// to at least predecessor-1. Negative cells become zero.
func EnforceRow(row models.Row, variant models.Variant) models.Row {
	if row[0].IsNegative() {
		row[0] = decimal.Zero
	}
	for j := 1; j < len(row); j++ {
		prev := row[j-1]
		cur := decimal.Min(row[j], prev)
		if variant == models.VariantSmooth {
			cur = decimal.Max(cur, decimal.Max(prev.Sub(one), decimal.Zero))
		}
		if cur.IsNegative() {
			cur = decimal.Zero
		}
		row[j] = cur
	}
	return row
}

// Enforce returns a copy of m with every row clamped into variant's shape.
// It never fails and Enforce(Enforce(m)) equals Enforce(m).
func Enforce(m models.AllocationMatrix, variant models.Variant) models.AllocationMatrix {
	out := m.Clone()
	for i := range out.Rows {
		out.Rows[i] = EnforceRow(out.Rows[i], variant)
	}
	return out
}

func enforceRows(rows []models.Row, variant models.Variant) []models.Row {
	out := make([]models.Row, len(rows))
	for i, row := range rows {
		out[i] = EnforceRow(row, variant)
	}
	return out
}
