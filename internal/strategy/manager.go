package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nvandessel/tier-alloc/internal/allocation"
	"github.com/nvandessel/tier-alloc/internal/config"
	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/logging"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/shopspring/decimal"
)

// Request asks for one allocation.
type Request struct {
	DeliveryType constants.DeliveryType `json:"delivery_type"`
	Target       decimal.Decimal        `json:"target"`

	// Groups to allocate. Empty means the strategy's fixed groups, or
	// every group stored for the delivery type.
	Groups []string `json:"groups,omitempty"`

	// RatioA and RatioB are only read by split strategies.
	RatioA *decimal.Decimal `json:"ratio_a,omitempty"`
	RatioB *decimal.Decimal `json:"ratio_b,omitempty"`
}

// Outcome is the result of Manager.Allocate.
type Outcome struct {
	Strategy Strategy                `json:"strategy"`
	Matrix   models.AllocationMatrix `json:"matrix"`
	Target   decimal.Decimal         `json:"target"`
	Achieved decimal.Decimal         `json:"achieved"`
	Error    decimal.Decimal         `json:"error"`

	// Iterations is summed across cohorts for split strategies.
	Iterations int `json:"iterations"`

	// Exactly one of Result and Split is set.
	Result *allocation.Result      `json:"result,omitempty"`
	Split  *allocation.SplitResult `json:"split,omitempty"`
}

// Record converts the outcome into a storable record.
func (o *Outcome) Record() *store.Record {
	return &store.Record{
		DeliveryType: o.Strategy.DeliveryType,
		Variant:      o.Strategy.Variant,
		Target:       o.Target,
		Achieved:     o.Achieved,
		Error:        o.Error,
		Iterations:   o.Iterations,
		Matrix:       o.Matrix.Clone(),
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDecisionLogger sets the refinement trace sink.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(m *Manager) {
		m.trace = dl
	}
}

// WithErrorThreshold sets the warning threshold passed to every engine.
func WithErrorThreshold(threshold decimal.Decimal) Option {
	return func(m *Manager) {
		m.threshold = &threshold
	}
}

// WithDefaultRatios enables the legacy ratio fallback for split strategies.
func WithDefaultRatios(a, b decimal.Decimal) Option {
	return func(m *Manager) {
		m.defaultRatios = &[2]decimal.Decimal{a, b}
	}
}

// Manager registers strategies and runs allocations.
type Manager struct {
	mu         sync.RWMutex
	strategies map[constants.DeliveryType]Strategy
	order      []constants.DeliveryType

	provider      store.WeightProvider
	logger        *slog.Logger
	trace         *logging.DecisionLogger
	threshold     *decimal.Decimal
	defaultRatios *[2]decimal.Decimal
}

// NewManager creates a manager with the built-in strategies registered.
func NewManager(provider store.WeightProvider, opts ...Option) *Manager {
	m := &Manager{
		strategies: make(map[constants.DeliveryType]Strategy),
		provider:   provider,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range Defaults() {
		m.Register(s)
	}
	return m
}

// NewManagerFromConfig creates a manager whose strategies reflect cfg:
// engine budgets per variant, per-type overrides, cohort names, the
// warning threshold and the legacy ratio fallback.
func NewManagerFromConfig(provider store.WeightProvider, cfg *config.Config, opts ...Option) (*Manager, error) {
	threshold, err := cfg.Engine.Threshold()
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithErrorThreshold(threshold)}, opts...)
	if cfg.Split.LegacyDefaultRatio.Enabled {
		a, b, err := cfg.Split.LegacyDefaultRatio.Ratios()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDefaultRatios(a, b))
	}

	m := NewManager(provider, opts...)
	for _, s := range Defaults() {
		if v, ok := cfg.StrategyVariant(string(s.DeliveryType)); ok {
			s.Variant = v
		}
		s.MaxIterations = cfg.Engine.Iterations(s.Variant)
		if o, ok := cfg.Strategies[string(s.DeliveryType)]; ok && o.MaxIterations > 0 {
			s.MaxIterations = o.MaxIterations
		}
		if s.Split != nil {
			s.Split = &SplitSpec{CohortA: cfg.Split.CohortA, CohortB: cfg.Split.CohortB}
		}
		if err := m.Register(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register adds or replaces the strategy for s.DeliveryType.
func (m *Manager) Register(s Strategy) error {
	if s.DeliveryType == "" {
		return fmt.Errorf("strategy has no delivery type")
	}
	if s.Split != nil && (s.Split.CohortA == "" || s.Split.CohortB == "") {
		return fmt.Errorf("strategy %s: split cohorts must be named", s.DeliveryType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.strategies[s.DeliveryType]; !exists {
		m.order = append(m.order, s.DeliveryType)
	}
	m.strategies[s.DeliveryType] = s
	return nil
}

// Get returns the strategy for dt.
func (m *Manager) Get(dt constants.DeliveryType) (Strategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[dt]
	return s, ok
}

// Supported reports whether dt has a registered strategy.
func (m *Manager) Supported(dt constants.DeliveryType) bool {
	_, ok := m.Get(dt)
	return ok
}

// DeliveryTypes returns every registered strategy in registration order.
func (m *Manager) DeliveryTypes() []Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Strategy, 0, len(m.order))
	for _, dt := range m.order {
		out = append(out, m.strategies[dt])
	}
	return out
}

// Threshold returns the error above which runs are reported as warnings.
func (m *Manager) Threshold() decimal.Decimal {
	if m.threshold != nil {
		return *m.threshold
	}
	return decimal.RequireFromString(constants.DefaultErrorThreshold)
}

// Allocate resolves groups and weights for req and runs the strategy.
//
// Input problems return a zero-matrix outcome with an
// *allocation.InputError. A split without usable ratios returns a nil
// outcome with an *allocation.ConfigurationError.
func (m *Manager) Allocate(ctx context.Context, req Request) (*Outcome, error) {
	s, ok := m.Get(req.DeliveryType)
	if !ok {
		return nil, fmt.Errorf("unsupported delivery type %q", req.DeliveryType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups, err := m.resolveGroups(ctx, s, req.Groups)
	if err != nil {
		return nil, err
	}
	weights, err := m.provider.Weights(ctx, s.DeliveryType, groups)
	if err != nil {
		return nil, fmt.Errorf("loading weights for %s: %w", s.DeliveryType, err)
	}

	logger := m.logger.With("delivery_type", string(s.DeliveryType))
	engine := allocation.NewEngine(s.Variant, m.engineOptions(s, logger)...)

	out := &Outcome{Strategy: s, Target: req.Target}

	if s.Split == nil {
		res, err := engine.Allocate(groups, weights, req.Target)
		if res != nil {
			out.Result = res
			out.Matrix = res.Matrix
			out.Achieved = res.Achieved
			out.Error = res.Error
			out.Iterations = res.Iterations
		}
		return out, err
	}

	var splitOpts []allocation.SplitOption
	if m.defaultRatios != nil {
		splitOpts = append(splitOpts, allocation.WithDefaultRatios(m.defaultRatios[0], m.defaultRatios[1]))
	}
	splitter := allocation.NewSplitter(engine, s.Split.CohortA, s.Split.CohortB, splitOpts...)
	res, err := splitter.Allocate(groups, weights, req.Target, req.RatioA, req.RatioB)
	if res == nil {
		return nil, err
	}
	out.Split = res
	out.Matrix = res.Matrix
	out.Achieved = res.Achieved
	out.Error = res.Error
	for _, c := range res.Cohorts {
		out.Iterations += c.Result.Iterations
	}
	return out, err
}

func (m *Manager) resolveGroups(ctx context.Context, s Strategy, requested []string) ([]string, error) {
	if len(s.FixedGroups) > 0 {
		return append([]string(nil), s.FixedGroups...), nil
	}
	if len(requested) > 0 {
		return append([]string(nil), requested...), nil
	}
	groups, err := m.provider.Groups(ctx, s.DeliveryType)
	if err != nil {
		return nil, fmt.Errorf("loading groups for %s: %w", s.DeliveryType, err)
	}
	return groups, nil
}

func (m *Manager) engineOptions(s Strategy, logger *slog.Logger) []allocation.Option {
	opts := []allocation.Option{
		allocation.WithLogger(logger),
		allocation.WithDecisionLogger(m.trace),
		allocation.WithMaxIterations(s.MaxIterations),
	}
	if m.threshold != nil {
		opts = append(opts, allocation.WithErrorThreshold(*m.threshold))
	}
	return opts
}
