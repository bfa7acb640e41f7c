package allocation

import (
	"log/slog"

	"github.com/nvandessel/tier-alloc/internal/logging"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

// RefineStats summarizes a refinement run.
type RefineStats struct {
	Iterations   int             `json:"iterations"`
	Moves        int             `json:"moves"`
	InitialError decimal.Decimal `json:"initial_error"`
	FinalError   decimal.Decimal `json:"final_error"`
	FinalSum     decimal.Decimal `json:"final_sum"`
	// Converged is true when the search stopped because no single move
	// improved the error, rather than because the budget ran out.
	Converged bool `json:"converged"`
}

// Refiner performs the local search stage.
type Refiner struct {
	Variant       models.Variant
	MaxIterations int
	Logger        *slog.Logger
	Trace         *logging.DecisionLogger
}

// move is a candidate single-unit change and the state it would produce.
type move struct {
	group  int
	tier   int
	change decimal.Decimal
	sum    decimal.Decimal
	err    decimal.Decimal
}

var steps = [2]decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(-1)}

// Refine hill-climbs from alloc toward target. Each iteration scans every
// (group, tier) cell group-major, trying +1 then -1, and keeps the first
// candidate with strictly the smallest error; that one move is then
// committed. The search ends when no candidate improves the error or
// MaxIterations is reached. alloc is not modified.
func (r *Refiner) Refine(alloc, weights []models.Row, groups []string, target decimal.Decimal) ([]models.Row, RefineStats) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	rows := make([]models.Row, len(alloc))
	copy(rows, alloc)

	sum := rowsWeightedSum(rows, weights)
	current := target.Sub(sum).Abs()
	stats := RefineStats{InitialError: current}

	for iter := 0; iter < r.MaxIterations; iter++ {
		best, found := r.bestMove(rows, weights, target, sum, current)
		if !found {
			stats.Converged = true
			logger.Debug("refinement converged", "iteration", iter+1, "error", current.String())
			r.Trace.Log(map[string]any{
				"event":     "refine_stop",
				"iteration": iter + 1,
				"error":     current.String(),
			})
			break
		}

		rows[best.group][best.tier] = rows[best.group][best.tier].Add(best.change)
		sum = best.sum
		current = best.err
		stats.Iterations = iter + 1
		stats.Moves++

		logger.Debug("refinement move",
			"iteration", iter+1,
			"group", groupName(groups, best.group),
			"tier", models.Tier(best.tier).Label(),
			"change", best.change.String(),
			"error", current.String())
		r.Trace.Log(map[string]any{
			"event":     "refine_move",
			"iteration": iter + 1,
			"group":     groupName(groups, best.group),
			"tier":      models.Tier(best.tier).Label(),
			"change":    best.change.IntPart(),
			"error":     current.String(),
		})
	}

	stats.FinalError = current
	stats.FinalSum = sum
	return rows, stats
}

// bestMove scans all single-unit moves from rows. Trials edit a copy of
// one row; rows itself is never touched.
func (r *Refiner) bestMove(rows, weights []models.Row, target, sum, current decimal.Decimal) (move, bool) {
	best := move{err: current}
	found := false

	for i, row := range rows {
		for j := range row {
			for _, step := range steps {
				if step.IsNegative() && !row[j].IsPositive() {
					continue
				}
				trial := row
				trial[j] = trial[j].Add(step)
				if !RowValid(trial, r.Variant) {
					continue
				}
				newSum := sum.Add(weights[i][j].Mul(step))
				newErr := target.Sub(newSum).Abs()
				if newErr.LessThan(best.err) {
					best = move{group: i, tier: j, change: step, sum: newSum, err: newErr}
					found = true
				}
			}
		}
	}

	return best, found
}

func rowsWeightedSum(rows, weights []models.Row) decimal.Decimal {
	total := decimal.Zero
	for i := range rows {
		total = total.Add(models.RowProduct(rows[i], weights[i]))
	}
	return total
}

func groupName(groups []string, i int) string {
	if i < len(groups) {
		return groups[i]
	}
	return ""
}
