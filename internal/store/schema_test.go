package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// v1DDL is the schema as first released, before allocations gained the
// iterations column.
const v1DDL = schemaV1 + `
INSERT INTO schema_version (version, applied_at) VALUES (1, datetime('now'));
INSERT INTO allocations (id, delivery_type, variant, target, achieved, error, created_at)
VALUES ('old-run', 'county', 'basic', '10', '10', '0', '2025-01-01T00:00:00.000000000Z');
`

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitSchema_Fresh(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "fresh.db"))
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion() error = %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("version = %d, want %d", version, SchemaVersion)
	}

	// Re-running on an initialized database is a no-op.
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("second InitSchema() error = %v", err)
	}
}

func TestInitSchema_MigratesV1(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "v1.db"))
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, v1DDL); err != nil {
		t.Fatalf("creating v1 schema: %v", err)
	}

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion() error = %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("version = %d, want %d", version, SchemaVersion)
	}

	var iterations int
	if err := db.QueryRowContext(ctx, `SELECT iterations FROM allocations WHERE id = 'old-run'`).Scan(&iterations); err != nil {
		t.Fatalf("reading migrated row: %v", err)
	}
	if iterations != 0 {
		t.Errorf("iterations = %d, want default 0", iterations)
	}
}

func TestValidateIntegrity(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "ok.db"))
	ctx := context.Background()
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	if err := ValidateIntegrity(ctx, db); err != nil {
		t.Errorf("ValidateIntegrity() error = %v", err)
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tieralloc.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}
