package mcp

import "time"

// AllocateInput defines the input for tieralloc_allocate.
type AllocateInput struct {
	DeliveryType string   `json:"delivery_type" jsonschema:"Delivery type: city, county, market, urban-rural or business-format"`
	Target       string   `json:"target" jsonschema:"Target weighted sum as a decimal string"`
	Groups       []string `json:"groups,omitempty" jsonschema:"Groups to allocate; defaults to every stored group"`
	RatioA       string   `json:"ratio_a,omitempty" jsonschema:"Share of the target for the first cohort (split strategies only)"`
	RatioB       string   `json:"ratio_b,omitempty" jsonschema:"Share of the target for the second cohort (split strategies only)"`
	Save         bool     `json:"save,omitempty" jsonschema:"Persist the result and return its id"`
}

// AllocateOutput defines the output for tieralloc_allocate.
type AllocateOutput struct {
	ID               string   `json:"id,omitempty" jsonschema:"Saved allocation id"`
	DeliveryType     string   `json:"delivery_type"`
	Variant          string   `json:"variant"`
	Target           string   `json:"target"`
	Achieved         string   `json:"achieved" jsonschema:"Weighted sum of the returned allocation"`
	Error            string   `json:"error" jsonschema:"Absolute difference between target and achieved"`
	Iterations       int      `json:"iterations"`
	ExceedsThreshold bool     `json:"exceeds_threshold"`
	Encoded          []string `json:"encoded" jsonschema:"Run-length encoded rows, one line per distinct row"`
	Warning          string   `json:"warning,omitempty" jsonschema:"Set when input was unusable and an all-zero allocation was returned"`
}

// DeliveryTypesInput defines the input for tieralloc_delivery_types.
type DeliveryTypesInput struct{}

// DeliveryTypeSummary describes one registered strategy.
type DeliveryTypeSummary struct {
	DeliveryType  string   `json:"delivery_type"`
	Description   string   `json:"description"`
	Variant       string   `json:"variant"`
	MaxIterations int      `json:"max_iterations"`
	FixedGroups   []string `json:"fixed_groups,omitempty"`
	Cohorts       []string `json:"cohorts,omitempty"`
}

// DeliveryTypesOutput defines the output for tieralloc_delivery_types.
type DeliveryTypesOutput struct {
	DeliveryTypes []DeliveryTypeSummary `json:"delivery_types"`
	Count         int                   `json:"count"`
}

// DecodeInput defines the input for tieralloc_decode.
type DecodeInput struct {
	Lines []string `json:"lines" jsonschema:"Encoded lines of the form 'g1+g2: 2×2+14×1+14×0'"`
}

// DecodedRow is one group's expanded allocation.
type DecodedRow struct {
	Group string   `json:"group"`
	Tiers []string `json:"tiers" jsonschema:"Allocation per tier, D30 first"`
	Total string   `json:"total"`
}

// DecodeOutput defines the output for tieralloc_decode.
type DecodeOutput struct {
	Rows  []DecodedRow `json:"rows"`
	Count int          `json:"count"`
}

// HistoryInput defines the input for tieralloc_history.
type HistoryInput struct {
	DeliveryType string `json:"delivery_type,omitempty" jsonschema:"Only list this delivery type"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum records to return (default 20)"`
}

// HistoryItem summarises one saved allocation.
type HistoryItem struct {
	ID           string    `json:"id"`
	DeliveryType string    `json:"delivery_type"`
	Variant      string    `json:"variant"`
	Target       string    `json:"target"`
	Achieved     string    `json:"achieved"`
	Error        string    `json:"error"`
	Groups       int       `json:"groups"`
	CreatedAt    time.Time `json:"created_at"`
}

// HistoryOutput defines the output for tieralloc_history.
type HistoryOutput struct {
	Allocations []HistoryItem `json:"allocations"`
	Count       int           `json:"count"`
}
