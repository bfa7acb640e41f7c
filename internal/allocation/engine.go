package allocation

import (
	"log/slog"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/logging"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

// Result is the outcome of one engine run.
type Result struct {
	Matrix   models.AllocationMatrix `json:"matrix"`
	Variant  models.Variant          `json:"variant"`
	Target   decimal.Decimal         `json:"target"`
	Achieved decimal.Decimal         `json:"achieved"`
	Error    decimal.Decimal         `json:"error"`

	CoarseAchieved decimal.Decimal `json:"coarse_achieved"`
	CoarseError    decimal.Decimal `json:"coarse_error"`

	Iterations int  `json:"iterations"`
	Moves      int  `json:"moves"`
	Converged  bool `json:"converged"`
}

// ExceedsThreshold reports whether the final error is above threshold.
func (r *Result) ExceedsThreshold(threshold decimal.Decimal) bool {
	return r.Error.GreaterThan(threshold)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDecisionLogger sets the JSONL trace sink for refinement moves.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(e *Engine) {
		e.trace = dl
	}
}

// WithMaxIterations overrides the refinement budget. Values below one are
// ignored and values above constants.MaxIterations are capped.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			return
		}
		if n > constants.MaxIterations {
			n = constants.MaxIterations
		}
		e.maxIterations = n
	}
}

// WithErrorThreshold sets the error above which a finished run is logged
// as a warning. The run itself is unaffected.
func WithErrorThreshold(threshold decimal.Decimal) Option {
	return func(e *Engine) {
		e.threshold = threshold
	}
}

// Engine runs coarse fill, refinement and a final constraint pass for a
// single cohort of groups. An Engine holds configuration only and may be
// shared between goroutines.
type Engine struct {
	variant       models.Variant
	maxIterations int
	threshold     decimal.Decimal
	logger        *slog.Logger
	trace         *logging.DecisionLogger
}

// NewEngine creates an engine for variant. The refinement budget defaults
// to the variant's standard iteration count.
func NewEngine(variant models.Variant, opts ...Option) *Engine {
	e := &Engine{
		variant:       variant,
		maxIterations: DefaultIterations(variant),
		threshold:     decimal.RequireFromString(constants.DefaultErrorThreshold),
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultIterations returns the standard refinement budget for variant.
func DefaultIterations(variant models.Variant) int {
	if variant == models.VariantSmooth {
		return constants.DefaultSmoothIterations
	}
	return constants.DefaultBasicIterations
}

// Variant returns the constraint variant the engine enforces.
func (e *Engine) Variant() models.Variant { return e.variant }

// MaxIterations returns the refinement budget.
func (e *Engine) MaxIterations() int { return e.maxIterations }

// Logger returns the engine's operational logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Allocate computes an allocation for groups against weights and target.
//
// On invalid input it returns a result holding an all-zero matrix shaped
// for groups together with an *InputError; callers log and skip.
func (e *Engine) Allocate(groups []string, weights models.WeightMatrix, target decimal.Decimal) (*Result, error) {
	weightRows, err := e.validate(groups, weights, target)
	if err != nil {
		e.logger.Warn("allocation input rejected", "reason", err.Reason, "groups", len(groups))
		return e.zeroResult(groups, target), err
	}

	coarse, coarseSum := CoarseFill(weightRows, target, e.variant)
	coarseErr := target.Sub(coarseSum).Abs()
	e.logger.Info("coarse allocation complete",
		"variant", e.variant.String(),
		"groups", len(groups),
		"target", target.String(),
		"achieved", coarseSum.String(),
		"error", coarseErr.String())

	refiner := &Refiner{
		Variant:       e.variant,
		MaxIterations: e.maxIterations,
		Logger:        e.logger,
		Trace:         e.trace,
	}
	refined, stats := refiner.Refine(coarse, weightRows, groups, target)

	final := enforceRows(refined, e.variant)
	achieved := rowsWeightedSum(final, weightRows)

	matrix := models.NewAllocationMatrix(groups)
	copy(matrix.Rows, final)

	res := &Result{
		Matrix:         matrix,
		Variant:        e.variant,
		Target:         target,
		Achieved:       achieved,
		Error:          target.Sub(achieved).Abs(),
		CoarseAchieved: coarseSum,
		CoarseError:    coarseErr,
		Iterations:     stats.Iterations,
		Moves:          stats.Moves,
		Converged:      stats.Converged,
	}

	e.logger.Info("allocation complete",
		"variant", e.variant.String(),
		"target", target.String(),
		"achieved", achieved.String(),
		"error", res.Error.String(),
		"iterations", res.Iterations,
		"converged", res.Converged)
	if res.ExceedsThreshold(e.threshold) {
		e.logger.Warn("allocation error above threshold",
			"error", res.Error.String(),
			"threshold", e.threshold.String())
	}
	e.trace.Log(map[string]any{
		"event":        "allocation_summary",
		"variant":      e.variant.String(),
		"groups":       len(groups),
		"target":       target.String(),
		"achieved":     achieved.String(),
		"error":        res.Error.String(),
		"coarse_error": coarseErr.String(),
		"iterations":   res.Iterations,
		"converged":    res.Converged,
	})

	return res, nil
}

func (e *Engine) validate(groups []string, weights models.WeightMatrix, target decimal.Decimal) ([]models.Row, *InputError) {
	if len(groups) == 0 {
		return nil, inputErrorf("group list is empty")
	}
	if len(weights) == 0 {
		return nil, inputErrorf("weight matrix is empty")
	}
	if target.IsNegative() {
		return nil, inputErrorf("target %s is negative", target)
	}

	rows := make([]models.Row, len(groups))
	for i, g := range groups {
		w, ok := weights[g]
		if !ok {
			return nil, inputErrorf("no weights for group %q", g)
		}
		for j, v := range w {
			if v.IsNegative() {
				return nil, inputErrorf("group %q tier %s has negative weight %s", g, models.Tier(j).Label(), v)
			}
		}
		rows[i] = w
	}
	return rows, nil
}

func (e *Engine) zeroResult(groups []string, target decimal.Decimal) *Result {
	return &Result{
		Matrix:         models.NewAllocationMatrix(groups),
		Variant:        e.variant,
		Target:         target,
		Achieved:       decimal.Zero,
		Error:          target.Abs(),
		CoarseAchieved: decimal.Zero,
		CoarseError:    target.Abs(),
	}
}

// Allocate runs a default engine for variant.
func Allocate(groups []string, weights models.WeightMatrix, target decimal.Decimal, variant models.Variant) (*Result, error) {
	return NewEngine(variant).Allocate(groups, weights, target)
}
