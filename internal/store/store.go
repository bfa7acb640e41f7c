// Package store defines the weight provider and allocation record
// interfaces and their SQLite and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// GroupWeights is one stored weight row.
type GroupWeights struct {
	Group   string     `json:"group"`
	Weights models.Row `json:"weights"`
}

// WeightProvider supplies weight matrices per delivery type.
type WeightProvider interface {
	// Groups returns the stored group names for dt in insertion order.
	Groups(ctx context.Context, dt constants.DeliveryType) ([]string, error)

	// Weights returns the weight rows for the requested groups. Groups with
	// no stored row are omitted; the engine reports them. A nil groups
	// slice returns every stored row.
	Weights(ctx context.Context, dt constants.DeliveryType, groups []string) (models.WeightMatrix, error)
}

// WeightWriter replaces stored weights.
type WeightWriter interface {
	// PutWeights replaces all rows stored for dt with rows, keeping their order.
	PutWeights(ctx context.Context, dt constants.DeliveryType, rows []GroupWeights) error
}

// Record is a persisted allocation run.
type Record struct {
	ID           string                  `json:"id"`
	DeliveryType constants.DeliveryType  `json:"delivery_type"`
	Variant      models.Variant          `json:"variant"`
	Target       decimal.Decimal         `json:"target"`
	Achieved     decimal.Decimal         `json:"achieved"`
	Error        decimal.Decimal         `json:"error"`
	Iterations   int                     `json:"iterations"`
	CreatedAt    time.Time               `json:"created_at"`

	// GroupCount is the number of matrix rows. Stores fill it in on every
	// read, including list results that omit the matrix itself.
	GroupCount int                     `json:"group_count"`
	Matrix     models.AllocationMatrix `json:"matrix"`
}

// ResultStore persists allocation records.
type ResultStore interface {
	// SaveAllocation stores rec and returns its ID. An empty ID is
	// replaced by a new UUID.
	SaveAllocation(ctx context.Context, rec *Record) (string, error)

	// GetAllocation returns ErrNotFound when id is unknown.
	GetAllocation(ctx context.Context, id string) (*Record, error)

	// ListAllocations returns the newest records first, without their
	// matrices. An empty dt lists
	// every delivery type; limit <= 0 means no limit.
	ListAllocations(ctx context.Context, dt constants.DeliveryType, limit int) ([]Record, error)
}

// Store combines every storage concern.
type Store interface {
	WeightProvider
	WeightWriter
	ResultStore
	Close() error
}
