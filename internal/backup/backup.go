// Package backup snapshots stored weights and allocation records to
// compressed files and restores them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/store"
)

// Snapshot is the payload of a backup file.
type Snapshot struct {
	CreatedAt   time.Time                                       `json:"created_at"`
	Weights     map[constants.DeliveryType][]store.GroupWeights `json:"weights"`
	Allocations []store.Record                                  `json:"allocations"`
}

// WeightRows counts weight rows across every delivery type.
func (s *Snapshot) WeightRows() int {
	n := 0
	for _, rows := range s.Weights {
		n += len(rows)
	}
	return n
}

// DefaultBackupDir returns <data dir>/backups.
func DefaultBackupDir() (string, error) {
	dir, err := store.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "backups"), nil
}

// GenerateBackupPath creates a timestamped snapshot filename in dir.
func GenerateBackupPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s.json.gz", filePrefix, now.UTC().Format(fileTimeLayout)))
}

// Backup reads every stored weight row and allocation record from st and
// writes them to outputPath.
func Backup(ctx context.Context, st store.Store, outputPath string) (*Snapshot, error) {
	snap := &Snapshot{
		CreatedAt: time.Now().UTC(),
		Weights:   make(map[constants.DeliveryType][]store.GroupWeights),
	}

	for _, dt := range constants.AllDeliveryTypes {
		groups, err := st.Groups(ctx, dt)
		if err != nil {
			return nil, fmt.Errorf("failed to list groups for %s: %w", dt, err)
		}
		if len(groups) == 0 {
			continue
		}
		matrix, err := st.Weights(ctx, dt, groups)
		if err != nil {
			return nil, fmt.Errorf("failed to read weights for %s: %w", dt, err)
		}
		rows := make([]store.GroupWeights, 0, len(groups))
		for _, g := range groups {
			rows = append(rows, store.GroupWeights{Group: g, Weights: matrix[g]})
		}
		snap.Weights[dt] = rows
	}

	headers, err := st.ListAllocations(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	snap.Allocations = make([]store.Record, 0, len(headers))
	for _, h := range headers {
		rec, err := st.GetAllocation(ctx, h.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load allocation %s: %w", h.ID, err)
		}
		snap.Allocations = append(snap.Allocations, *rec)
	}

	if err := Write(outputPath, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	DeliveryTypes      int `json:"delivery_types"`
	WeightRows         int `json:"weight_rows"`
	AllocationsAdded   int `json:"allocations_added"`
	AllocationsSkipped int `json:"allocations_skipped"`
}

// Restore loads a snapshot from inputPath into st. Weights of every
// delivery type present in the snapshot replace the stored rows; types
// absent from it are left alone. Allocation records whose ID already
// exists are skipped.
func Restore(ctx context.Context, st store.Store, inputPath string) (*RestoreResult, error) {
	snap, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	for dt := range snap.Weights {
		if !dt.Valid() {
			return nil, fmt.Errorf("snapshot holds unknown delivery type %q", dt)
		}
	}

	result := &RestoreResult{}
	for _, dt := range constants.AllDeliveryTypes {
		rows, ok := snap.Weights[dt]
		if !ok {
			continue
		}
		if err := st.PutWeights(ctx, dt, rows); err != nil {
			return nil, fmt.Errorf("failed to restore weights for %s: %w", dt, err)
		}
		result.DeliveryTypes++
		result.WeightRows += len(rows)
	}
	for i := range snap.Allocations {
		rec := snap.Allocations[i]
		if rec.ID != "" {
			_, err := st.GetAllocation(ctx, rec.ID)
			if err == nil {
				result.AllocationsSkipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return result, fmt.Errorf("failed to check allocation %s: %w", rec.ID, err)
			}
		}
		if _, err := st.SaveAllocation(ctx, &rec); err != nil {
			return result, fmt.Errorf("failed to restore allocation %s: %w", rec.ID, err)
		}
		result.AllocationsAdded++
	}

	return result, nil
}
