package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"
)

// storeFactory builds a fresh, empty store for one subtest.
type storeFactory func(t *testing.T) Store

func sampleWeights() []GroupWeights {
	return []GroupWeights{
		{Group: "north", Weights: models.RowFromInts(10, 10, 8, 8)},
		{Group: "south", Weights: models.RowFromInts(5, 5, 4, 4)},
		{Group: "east", Weights: models.RowFromInts(3)},
	}
}

func sampleRecord(dt constants.DeliveryType, created time.Time) *Record {
	m := models.NewAllocationMatrix([]string{"north", "south"})
	m.Rows[0] = models.RowFromInts(2, 1, 1)
	m.Rows[1] = models.RowFromInts(1, 1)
	return &Record{
		DeliveryType: dt,
		Variant:      models.VariantSmooth,
		Target:       decimal.NewFromInt(100),
		Achieved:     decimal.RequireFromString("99.5"),
		Error:        decimal.RequireFromString("0.5"),
		Iterations:   7,
		CreatedAt:    created,
		Matrix:       m,
	}
}

func runStoreTests(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("groups keep insertion order", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutWeights(ctx, constants.DeliveryCounty, sampleWeights()); err != nil {
			t.Fatalf("PutWeights() error = %v", err)
		}

		got, err := s.Groups(ctx, constants.DeliveryCounty)
		if err != nil {
			t.Fatalf("Groups() error = %v", err)
		}
		want := []string{"north", "south", "east"}
		if len(got) != len(want) {
			t.Fatalf("Groups() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Groups()[%d] = %q, want %q", i, got[i], want[i])
			}
		}

		other, err := s.Groups(ctx, constants.DeliveryMarket)
		if err != nil {
			t.Fatalf("Groups() error = %v", err)
		}
		if len(other) != 0 {
			t.Errorf("Groups(market) = %v, want empty", other)
		}
	})

	t.Run("weights filter by group", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutWeights(ctx, constants.DeliveryCounty, sampleWeights()); err != nil {
			t.Fatalf("PutWeights() error = %v", err)
		}

		all, err := s.Weights(ctx, constants.DeliveryCounty, nil)
		if err != nil {
			t.Fatalf("Weights() error = %v", err)
		}
		if len(all) != 3 {
			t.Errorf("Weights(nil) returned %d rows, want 3", len(all))
		}

		some, err := s.Weights(ctx, constants.DeliveryCounty, []string{"south", "missing"})
		if err != nil {
			t.Fatalf("Weights() error = %v", err)
		}
		if len(some) != 1 {
			t.Fatalf("Weights(south, missing) returned %d rows, want 1", len(some))
		}
		if !some["south"].Equal(models.RowFromInts(5, 5, 4, 4)) {
			t.Errorf("south = %v", some["south"].Strings())
		}
	})

	t.Run("put replaces previous rows", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutWeights(ctx, constants.DeliveryCounty, sampleWeights()); err != nil {
			t.Fatalf("PutWeights() error = %v", err)
		}
		replacement := []GroupWeights{{Group: "west", Weights: models.RowFromInts(1)}}
		if err := s.PutWeights(ctx, constants.DeliveryCounty, replacement); err != nil {
			t.Fatalf("PutWeights() error = %v", err)
		}

		got, err := s.Groups(ctx, constants.DeliveryCounty)
		if err != nil {
			t.Fatalf("Groups() error = %v", err)
		}
		if len(got) != 1 || got[0] != "west" {
			t.Errorf("Groups() = %v, want [west]", got)
		}
	})

	t.Run("put rejects invalid rows", func(t *testing.T) {
		s := newStore(t)
		bad := []GroupWeights{
			{Group: "north", Weights: models.RowFromInts(1)},
			{Group: "north", Weights: models.RowFromInts(2)},
		}
		if err := s.PutWeights(ctx, constants.DeliveryCounty, bad); err == nil {
			t.Error("expected error for duplicate group")
		}
	})

	t.Run("decimal weights survive a round trip", func(t *testing.T) {
		s := newStore(t)
		row := models.RowFromInts(1)
		row[1] = decimal.RequireFromString("0.125")
		if err := s.PutWeights(ctx, constants.DeliveryMarket, []GroupWeights{{Group: "urban", Weights: row}}); err != nil {
			t.Fatalf("PutWeights() error = %v", err)
		}
		got, err := s.Weights(ctx, constants.DeliveryMarket, []string{"urban"})
		if err != nil {
			t.Fatalf("Weights() error = %v", err)
		}
		if !got["urban"].Equal(row) {
			t.Errorf("urban = %v, want %v", got["urban"].Strings(), row.Strings())
		}
	})

	t.Run("save and get allocation", func(t *testing.T) {
		s := newStore(t)
		rec := sampleRecord(constants.DeliveryMarket, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

		id, err := s.SaveAllocation(ctx, rec)
		if err != nil {
			t.Fatalf("SaveAllocation() error = %v", err)
		}
		if id == "" || rec.ID != id {
			t.Fatalf("SaveAllocation() id = %q, rec.ID = %q", id, rec.ID)
		}

		got, err := s.GetAllocation(ctx, id)
		if err != nil {
			t.Fatalf("GetAllocation() error = %v", err)
		}
		if got.DeliveryType != constants.DeliveryMarket {
			t.Errorf("DeliveryType = %q", got.DeliveryType)
		}
		if got.Variant != models.VariantSmooth {
			t.Errorf("Variant = %s, want smooth", got.Variant)
		}
		if !got.Achieved.Equal(decimal.RequireFromString("99.5")) {
			t.Errorf("Achieved = %s, want 99.5", got.Achieved)
		}
		if got.Iterations != 7 {
			t.Errorf("Iterations = %d, want 7", got.Iterations)
		}
		if !got.CreatedAt.Equal(rec.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
		}
		if !got.Matrix.Equal(rec.Matrix) {
			t.Errorf("Matrix = %+v, want %+v", got.Matrix, rec.Matrix)
		}
	})

	t.Run("get unknown allocation", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetAllocation(ctx, "does-not-exist")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetAllocation() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i, dt := range []constants.DeliveryType{constants.DeliveryCity, constants.DeliveryMarket, constants.DeliveryMarket} {
			rec := sampleRecord(dt, base.Add(time.Duration(i)*time.Minute))
			if _, err := s.SaveAllocation(ctx, rec); err != nil {
				t.Fatalf("SaveAllocation() error = %v", err)
			}
		}

		all, err := s.ListAllocations(ctx, "", 0)
		if err != nil {
			t.Fatalf("ListAllocations() error = %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("ListAllocations() returned %d, want 3", len(all))
		}
		if !all[0].CreatedAt.After(all[1].CreatedAt) || !all[1].CreatedAt.After(all[2].CreatedAt) {
			t.Error("ListAllocations() not ordered newest first")
		}
		for _, rec := range all {
			if rec.GroupCount != 2 {
				t.Errorf("listed %s GroupCount = %d, want 2", rec.ID, rec.GroupCount)
			}
			if rec.Matrix.Len() != 0 {
				t.Errorf("listed %s carries %d matrix rows, want none", rec.ID, rec.Matrix.Len())
			}
		}
		got, err := s.GetAllocation(ctx, all[0].ID)
		if err != nil {
			t.Fatalf("GetAllocation() error = %v", err)
		}
		if got.GroupCount != 2 || got.Matrix.Len() != 2 {
			t.Errorf("GetAllocation() GroupCount = %d, rows = %d, want 2 and 2", got.GroupCount, got.Matrix.Len())
		}

		market, err := s.ListAllocations(ctx, constants.DeliveryMarket, 1)
		if err != nil {
			t.Fatalf("ListAllocations() error = %v", err)
		}
		if len(market) != 1 || market[0].DeliveryType != constants.DeliveryMarket {
			t.Errorf("ListAllocations(market, 1) = %+v", market)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		t.Helper()
		s, err := NewSQLiteStore(t.TempDir() + "/tieralloc.db")
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
