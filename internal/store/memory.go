package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
)

// MemoryStore implements Store for testing and development.
type MemoryStore struct {
	mu      sync.RWMutex
	weights map[constants.DeliveryType][]GroupWeights
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		weights: make(map[constants.DeliveryType][]GroupWeights),
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Groups returns the stored group names for dt in insertion order.
func (s *MemoryStore) Groups(ctx context.Context, dt constants.DeliveryType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.weights[dt]
	groups := make([]string, 0, len(rows))
	for _, gw := range rows {
		groups = append(groups, gw.Group)
	}
	return groups, nil
}

// Weights returns the weight rows for groups (all rows when groups is nil).
func (s *MemoryStore) Weights(ctx context.Context, dt constants.DeliveryType, groups []string) (models.WeightMatrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var want map[string]bool
	if groups != nil {
		want = make(map[string]bool, len(groups))
		for _, g := range groups {
			want[g] = true
		}
	}

	out := make(models.WeightMatrix)
	for _, gw := range s.weights[dt] {
		if want != nil && !want[gw.Group] {
			continue
		}
		out[gw.Group] = gw.Weights
	}
	return out, nil
}

// PutWeights replaces all rows stored for dt.
func (s *MemoryStore) PutWeights(ctx context.Context, dt constants.DeliveryType, rows []GroupWeights) error {
	if err := validationFailure(ValidateWeights(rows)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]GroupWeights, len(rows))
	copy(stored, rows)
	s.weights[dt] = stored
	return nil
}

// SaveAllocation stores a copy of rec.
func (s *MemoryStore) SaveAllocation(ctx context.Context, rec *Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if _, exists := s.records[rec.ID]; exists {
		return "", fmt.Errorf("allocation %s already exists", rec.ID)
	}

	cp := *rec
	cp.Matrix = rec.Matrix.Clone()
	cp.GroupCount = cp.Matrix.Len()
	s.records[rec.ID] = cp
	return rec.ID, nil
}

// GetAllocation returns a copy of the stored record.
func (s *MemoryStore) GetAllocation(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("allocation %s: %w", id, ErrNotFound)
	}
	rec.Matrix = rec.Matrix.Clone()
	return &rec, nil
}

// ListAllocations returns record headers, newest first. GroupCount is kept.
func (s *MemoryStore) ListAllocations(ctx context.Context, dt constants.DeliveryType, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if dt != "" && rec.DeliveryType != dt {
			continue
		}
		rec.Matrix = models.AllocationMatrix{}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
