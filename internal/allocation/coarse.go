package allocation

import (
	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

// CoarseFill builds a first-cut allocation for rows aligned with weights.
//
// Passes run over tiers 0..29 and, within each tier, over groups in order.
// A cell gains one unit when the row still satisfies variant afterwards and
// the running total plus the cell weight stays within target. Cells with
// zero weight are skipped; they cannot move the total. The loop stops at
// the first pass that commits nothing.
//
// Every intermediate row is valid for variant, so the result never needs
// reshaping. It returns the allocation and its weighted sum.
func CoarseFill(weights []models.Row, target decimal.Decimal, variant models.Variant) ([]models.Row, decimal.Decimal) {
	alloc := make([]models.Row, len(weights))
	total := decimal.Zero

	for {
		committed := 0
		for j := 0; j < constants.TierCount; j++ {
			for i := range alloc {
				w := weights[i][j]
				if !w.IsPositive() {
					continue
				}
				if total.Add(w).GreaterThan(target) {
					continue
				}
				candidate := alloc[i]
				candidate[j] = candidate[j].Add(one)
				if !RowValid(candidate, variant) {
					continue
				}
				alloc[i] = candidate
				total = total.Add(w)
				committed++
			}
		}
		if committed == 0 {
			break
		}
	}

	return alloc, total
}
