package allocation

import (
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

// CohortResult is one cohort's share of a split run.
type CohortResult struct {
	Name string `json:"name"`
	// Members are indices into the caller's group list.
	Members   []int           `json:"members"`
	SubTarget decimal.Decimal `json:"sub_target"`
	Result    *Result         `json:"result"`
}

// SplitResult is the merged outcome of a split run.
type SplitResult struct {
	Matrix   models.AllocationMatrix `json:"matrix"`
	Target   decimal.Decimal         `json:"target"`
	Achieved decimal.Decimal         `json:"achieved"`
	Error    decimal.Decimal         `json:"error"`

	// Proportional is true when both cohorts were present and the target
	// was divided by ratio.
	Proportional bool            `json:"proportional"`
	RatioA       decimal.Decimal `json:"ratio_a"`
	RatioB       decimal.Decimal `json:"ratio_b"`
	// DefaultedRatio is true when the configured legacy ratio stood in
	// for ratios the caller did not supply.
	DefaultedRatio bool `json:"defaulted_ratio"`

	Cohorts []CohortResult `json:"cohorts"`
}

// SplitOption configures a Splitter.
type SplitOption func(*Splitter)

// WithDefaultRatios makes the splitter fall back to a, b when a caller
// supplies neither ratio. Every fallback is logged as a warning. Without
// this option missing ratios are a ConfigurationError.
func WithDefaultRatios(a, b decimal.Decimal) SplitOption {
	return func(s *Splitter) {
		s.defaultA = &a
		s.defaultB = &b
	}
}

// Splitter divides groups into two named cohorts and runs the engine on
// each with its share of the target.
type Splitter struct {
	engine   *Engine
	cohortA  string
	cohortB  string
	defaultA *decimal.Decimal
	defaultB *decimal.Decimal
}

// NewSplitter creates a splitter over engine. Groups are matched to
// cohorts by exact name.
func NewSplitter(engine *Engine, cohortA, cohortB string, opts ...SplitOption) *Splitter {
	s := &Splitter{engine: engine, cohortA: cohortA, cohortB: cohortB}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cohorts returns the two cohort names.
func (s *Splitter) Cohorts() (string, string) {
	return s.cohortA, s.cohortB
}

// Allocate splits and allocates. Groups matching neither cohort keep an
// all-zero row. With both cohorts present, ratioA and ratioB must be given,
// non-negative and sum to one, or a *ConfigurationError is returned with a
// nil result. With one cohort present it receives the full target and the
// ratios are ignored. With neither present an all-zero result is returned
// with an *InputError.
func (s *Splitter) Allocate(groups []string, weights models.WeightMatrix, target decimal.Decimal, ratioA, ratioB *decimal.Decimal) (*SplitResult, error) {
	logger := s.engine.logger

	var membersA, membersB []int
	for i, g := range groups {
		switch g {
		case s.cohortA:
			membersA = append(membersA, i)
		case s.cohortB:
			membersB = append(membersB, i)
		}
	}

	out := &SplitResult{
		Matrix: models.NewAllocationMatrix(groups),
		Target: target,
	}

	if len(membersA) == 0 && len(membersB) == 0 {
		err := inputErrorf("no group matches cohort %q or %q", s.cohortA, s.cohortB)
		logger.Warn("split input rejected", "reason", err.Reason, "groups", len(groups))
		out.Achieved = decimal.Zero
		out.Error = target.Abs()
		return out, err
	}

	type share struct {
		name    string
		members []int
		target  decimal.Decimal
	}
	var shares []share

	if len(membersA) > 0 && len(membersB) > 0 {
		a, b, defaulted, cerr := s.resolveRatios(ratioA, ratioB)
		if cerr != nil {
			logger.Error("split configuration rejected", "reason", cerr.Reason)
			return nil, cerr
		}
		out.Proportional = true
		out.RatioA, out.RatioB, out.DefaultedRatio = a, b, defaulted
		shares = []share{
			{name: s.cohortA, members: membersA, target: target.Mul(a)},
			{name: s.cohortB, members: membersB, target: target.Mul(b)},
		}
	} else if len(membersA) > 0 {
		shares = []share{{name: s.cohortA, members: membersA, target: target}}
	} else {
		shares = []share{{name: s.cohortB, members: membersB, target: target}}
	}

	for _, sh := range shares {
		names := make([]string, len(sh.members))
		for k, idx := range sh.members {
			names[k] = groups[idx]
		}

		logger.Info("allocating cohort",
			"cohort", sh.name,
			"groups", len(names),
			"sub_target", sh.target.String())

		res, err := s.engine.Allocate(names, weights, sh.target)
		if err != nil {
			out.Matrix = models.NewAllocationMatrix(groups)
			out.Achieved = decimal.Zero
			out.Error = target.Abs()
			return out, err
		}
		for k, idx := range sh.members {
			out.Matrix.Rows[idx] = res.Matrix.Rows[k]
		}
		out.Cohorts = append(out.Cohorts, CohortResult{
			Name:      sh.name,
			Members:   sh.members,
			SubTarget: sh.target,
			Result:    res,
		})
	}

	out.Matrix = Enforce(out.Matrix, s.engine.variant)
	out.Achieved = models.WeightedSum(out.Matrix, weights)
	out.Error = target.Sub(out.Achieved).Abs()

	logger.Info("split allocation complete",
		"proportional", out.Proportional,
		"target", target.String(),
		"achieved", out.Achieved.String(),
		"error", out.Error.String())

	return out, nil
}

func (s *Splitter) resolveRatios(ratioA, ratioB *decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool, *ConfigurationError) {
	defaulted := false
	if ratioA == nil && ratioB == nil && s.defaultA != nil && s.defaultB != nil {
		ratioA, ratioB = s.defaultA, s.defaultB
		defaulted = true
		s.engine.logger.Warn("split ratios missing, using configured default",
			"ratio_a", ratioA.String(),
			"ratio_b", ratioB.String())
	}

	if ratioA == nil || ratioB == nil {
		return decimal.Zero, decimal.Zero, false, &ConfigurationError{
			Reason: "both ratios are required when cohorts " + s.cohortA + " and " + s.cohortB + " are present",
		}
	}
	if ratioA.IsNegative() || ratioB.IsNegative() {
		return decimal.Zero, decimal.Zero, false, &ConfigurationError{
			Reason: "ratios must be non-negative, got " + ratioA.String() + " and " + ratioB.String(),
		}
	}
	if !ratioA.Add(*ratioB).Equal(one) {
		return decimal.Zero, decimal.Zero, false, &ConfigurationError{
			Reason: "ratios must sum to 1, got " + ratioA.Add(*ratioB).String(),
		}
	}
	return *ratioA, *ratioB, defaulted, nil
}

// AllocateProportional runs a default engine for variant through a splitter.
func AllocateProportional(groups []string, weights models.WeightMatrix, target decimal.Decimal, cohortA, cohortB string, ratioA, ratioB *decimal.Decimal, variant models.Variant) (*SplitResult, error) {
	return NewSplitter(NewEngine(variant), cohortA, cohortB).Allocate(groups, weights, target, ratioA, ratioB)
}
