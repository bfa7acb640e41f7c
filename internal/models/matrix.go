package models

import (
	"fmt"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/shopspring/decimal"
)

// Row holds one value per tier. Being an array, a Row is copied on
// assignment, which lets trial edits work on a private copy.
type Row [constants.TierCount]decimal.Decimal

// Sum returns the sum of all cells in the row.
func (r Row) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, v := range r {
		total = total.Add(v)
	}
	return total
}

// Equal reports whether two rows hold numerically equal values.
func (r Row) Equal(other Row) bool {
	for i := range r {
		if !r[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// RowFromStrings parses a row from decimal strings. Empty strings are
// treated as zero, matching absent weights in upstream data.
func RowFromStrings(values []string) (Row, error) {
	var row Row
	if len(values) != constants.TierCount {
		return row, fmt.Errorf("row has %d values, want %d", len(values), constants.TierCount)
	}
	for i, s := range values {
		if s == "" {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return row, fmt.Errorf("tier %s: %w", Tier(i).Label(), err)
		}
		row[i] = d
	}
	return row, nil
}

// RowFromInts builds a row from integer values; missing trailing tiers are zero.
func RowFromInts(values ...int64) Row {
	var row Row
	for i, v := range values {
		if i >= constants.TierCount {
			break
		}
		row[i] = decimal.NewFromInt(v)
	}
	return row
}

// Strings renders the row as decimal strings in tier order.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = v.String()
	}
	return out
}

// WeightMatrix maps a group name to its per-tier weight vector. It is
// supplied by the caller and only read by the engine.
type WeightMatrix map[string]Row

// AllocationMatrix is the engine output: one allocation row per group, in
// the caller's group order. Duplicate group names keep separate rows.
type AllocationMatrix struct {
	Groups []string `json:"groups"`
	Rows   []Row    `json:"rows"`
}

// NewAllocationMatrix returns an all-zero matrix shaped for groups.
func NewAllocationMatrix(groups []string) AllocationMatrix {
	g := make([]string, len(groups))
	copy(g, groups)
	return AllocationMatrix{
		Groups: g,
		Rows:   make([]Row, len(groups)),
	}
}

// Len returns the number of group rows.
func (m AllocationMatrix) Len() int {
	return len(m.Rows)
}

// Clone returns a deep copy of the matrix.
func (m AllocationMatrix) Clone() AllocationMatrix {
	out := AllocationMatrix{
		Groups: make([]string, len(m.Groups)),
		Rows:   make([]Row, len(m.Rows)),
	}
	copy(out.Groups, m.Groups)
	copy(out.Rows, m.Rows)
	return out
}

// Row returns the first row allocated to group.
func (m AllocationMatrix) Row(group string) (Row, bool) {
	for i, g := range m.Groups {
		if g == group && i < len(m.Rows) {
			return m.Rows[i], true
		}
	}
	return Row{}, false
}

// Equal reports whether both matrices have the same groups and values.
func (m AllocationMatrix) Equal(other AllocationMatrix) bool {
	if len(m.Groups) != len(other.Groups) || len(m.Rows) != len(other.Rows) {
		return false
	}
	for i := range m.Groups {
		if m.Groups[i] != other.Groups[i] {
			return false
		}
	}
	for i := range m.Rows {
		if !m.Rows[i].Equal(other.Rows[i]) {
			return false
		}
	}
	return true
}

// WeightedSum returns Σ_group Σ_tier allocation × weight. Groups absent
// from the weight matrix contribute nothing.
func WeightedSum(m AllocationMatrix, weights WeightMatrix) decimal.Decimal {
	total := decimal.Zero
	for i, row := range m.Rows {
		w, ok := weights[m.Groups[i]]
		if !ok {
			continue
		}
		total = total.Add(RowProduct(row, w))
	}
	return total
}

// RowProduct returns Σ_tier alloc[tier] × weight[tier] for a single row.
func RowProduct(alloc, weight Row) decimal.Decimal {
	total := decimal.Zero
	for j := range alloc {
		if alloc[j].IsZero() || weight[j].IsZero() {
			continue
		}
		total = total.Add(alloc[j].Mul(weight[j]))
	}
	return total
}
