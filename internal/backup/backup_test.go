package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/shopspring/decimal"
)

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	if err := s.PutWeights(ctx, constants.DeliveryCounty, []store.GroupWeights{
		{Group: "A", Weights: models.RowFromInts(10, 10, 8)},
		{Group: "B", Weights: models.RowFromInts(5, 5)},
	}); err != nil {
		t.Fatalf("PutWeights() error = %v", err)
	}

	m := models.NewAllocationMatrix([]string{"A", "B"})
	m.Rows[0] = models.RowFromInts(2, 1, 1)
	m.Rows[1] = models.RowFromInts(1, 1)
	rec := &store.Record{
		ID:           "rec-1",
		DeliveryType: constants.DeliveryCounty,
		Variant:      models.VariantBasic,
		Target:       decimal.NewFromInt(100),
		Achieved:     decimal.RequireFromString("98.5"),
		Error:        decimal.RequireFromString("1.5"),
		Iterations:   4,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Matrix:       m,
	}
	if _, err := s.SaveAllocation(ctx, rec); err != nil {
		t.Fatalf("SaveAllocation() error = %v", err)
	}
	return s
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)
	path := filepath.Join(t.TempDir(), "snap.json.gz")

	snap, err := Backup(ctx, src, path)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if snap.WeightRows() != 2 {
		t.Errorf("WeightRows() = %d, want 2", snap.WeightRows())
	}
	if len(snap.Allocations) != 1 {
		t.Fatalf("len(Allocations) = %d, want 1", len(snap.Allocations))
	}
	if snap.Allocations[0].Matrix.Len() != 2 {
		t.Errorf("backed-up matrix has %d rows, want 2", snap.Allocations[0].Matrix.Len())
	}

	dst := store.NewMemoryStore()
	result, err := Restore(ctx, dst, path)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.DeliveryTypes != 1 || result.WeightRows != 2 || result.AllocationsAdded != 1 {
		t.Errorf("Restore() = %+v", result)
	}

	groups, err := dst.Groups(ctx, constants.DeliveryCounty)
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	if strings.Join(groups, ",") != "A,B" {
		t.Errorf("restored groups = %v, want [A B]", groups)
	}

	got, err := dst.GetAllocation(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetAllocation() error = %v", err)
	}
	want, _ := src.GetAllocation(ctx, "rec-1")
	if !got.Matrix.Equal(want.Matrix) {
		t.Errorf("restored matrix = %v, want %v", got.Matrix, want.Matrix)
	}
	if !got.Achieved.Equal(want.Achieved) || got.Variant != want.Variant {
		t.Errorf("restored record = %+v, want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestRestore_SkipsExistingAllocations(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	path := filepath.Join(t.TempDir(), "snap.json.gz")
	if _, err := Backup(ctx, s, path); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	result, err := Restore(ctx, s, path)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.AllocationsAdded != 0 || result.AllocationsSkipped != 1 {
		t.Errorf("Restore() = %+v, want 0 added, 1 skipped", result)
	}
}

func TestRestore_LeavesAbsentTypesAlone(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap.json.gz")
	if _, err := Backup(ctx, seedStore(t), path); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	dst := store.NewMemoryStore()
	market := []store.GroupWeights{{Group: "urban", Weights: models.RowFromInts(1)}}
	if err := dst.PutWeights(ctx, constants.DeliveryMarket, market); err != nil {
		t.Fatalf("PutWeights() error = %v", err)
	}

	if _, err := Restore(ctx, dst, path); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	groups, _ := dst.Groups(ctx, constants.DeliveryMarket)
	if len(groups) != 1 || groups[0] != "urban" {
		t.Errorf("market groups = %v, want [urban]", groups)
	}
}

func TestRestore_RejectsUnknownDeliveryType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json.gz")
	snap := &Snapshot{
		CreatedAt: time.Now().UTC(),
		Weights: map[constants.DeliveryType][]store.GroupWeights{
			"planet": {{Group: "x", Weights: models.RowFromInts(1)}},
		},
	}
	if err := Write(path, snap); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	dst := store.NewMemoryStore()
	if _, err := Restore(context.Background(), dst, path); err == nil {
		t.Fatal("Restore() should reject an unknown delivery type")
	}
}

func TestBackup_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.json.gz")
	if _, err := Backup(context.Background(), seedStore(t), path); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestGenerateBackupPath(t *testing.T) {
	now := time.Date(2026, 2, 6, 12, 30, 45, 0, time.UTC)
	got := GenerateBackupPath("/tmp/backups", now)
	want := filepath.Join("/tmp/backups", "tieralloc-backup-20260206-123045.json.gz")
	if got != want {
		t.Errorf("GenerateBackupPath() = %q, want %q", got, want)
	}
}
