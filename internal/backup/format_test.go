package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/store"
)

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snap.json.gz")
	snap := &Snapshot{
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Weights: map[constants.DeliveryType][]store.GroupWeights{
			constants.DeliveryCity: {
				{Group: "north", Weights: models.RowFromInts(3, 2, 1)},
			},
		},
	}
	if err := Write(path, snap); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return path
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := writeSample(t)

	snap, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	rows := snap.Weights[constants.DeliveryCity]
	if len(rows) != 1 || rows[0].Group != "north" {
		t.Fatalf("rows = %+v", rows)
	}
	if !rows[0].Weights.Equal(models.RowFromInts(3, 2, 1)) {
		t.Errorf("weights = %v", rows[0].Weights.Strings())
	}
}

func TestReadHeader(t *testing.T) {
	header, err := ReadHeader(writeSample(t))
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.Version != FormatVersion {
		t.Errorf("Version = %d, want %d", header.Version, FormatVersion)
	}
	if header.WeightRows != 1 || header.Allocations != 0 {
		t.Errorf("counts = %d/%d, want 1/0", header.WeightRows, header.Allocations)
	}
	if !header.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", header.CreatedAt)
	}
}

func TestVerifyChecksum_Tampered(t *testing.T) {
	path := writeSample(t)
	if _, err := VerifyChecksum(path); err != nil {
		t.Fatalf("VerifyChecksum() on intact file error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := VerifyChecksum(path); err == nil {
		t.Error("VerifyChecksum() should fail on a tampered payload")
	}
	if _, err := Read(path); err == nil {
		t.Error("Read() should fail on a tampered payload")
	}
}

func TestReadHeader_RejectsOtherVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json.gz")
	if err := os.WriteFile(path, []byte(`{"version":2,"checksum":"x"}`+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHeader(path); err == nil {
		t.Error("ReadHeader() should reject version 2")
	}
}
