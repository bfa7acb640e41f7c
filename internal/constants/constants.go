// Package constants provides named constants used throughout the tier-alloc codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Tier layout constants
const (
	// TierCount is the number of ordinal tiers every group carries.
	// Tier 0 is the highest rank (labelled D30), tier 29 the lowest (D1).
	TierCount = 30

	// TierLabelPrefix prefixes the rank number in tier labels ("D30" .. "D1").
	TierLabelPrefix = "D"
)

// Refinement budget constants
const (
	// DefaultBasicIterations is the refinement budget for the monotonic variant.
	DefaultBasicIterations = 100

	// DefaultSmoothIterations is the refinement budget for the smooth-decrease variant.
	// Smooth rows admit fewer valid moves, so the search is given more passes.
	DefaultSmoothIterations = 500

	// MaxIterations caps any configured refinement budget.
	MaxIterations = 10000
)

// DefaultErrorThreshold is the absolute error above which a finished run is
// reported as a warning. It never shortens the search.
const DefaultErrorThreshold = "200"

// Proportional split cohort defaults
const (
	// DefaultCohortA is the first cohort name used by the market strategy.
	DefaultCohortA = "urban"

	// DefaultCohortB is the second cohort name used by the market strategy.
	DefaultCohortB = "rural"

	// LegacyRatioA and LegacyRatioB are the ratios some historical call sites
	// substituted when none were supplied. Only used when explicitly enabled.
	LegacyRatioA = "0.4"
	LegacyRatioB = "0.6"
)

// CityGroup is the single fixed group allocated by the city-wide strategy.
const CityGroup = "city"

// Data directory layout
const (
	// DataDirName is the per-user directory holding config, database and traces.
	DataDirName = ".tieralloc"

	// DatabaseFileName is the SQLite database inside the data directory.
	DatabaseFileName = "tieralloc.db"

	// ConfigFileName is the YAML config file inside the data directory.
	ConfigFileName = "config.yaml"
)
