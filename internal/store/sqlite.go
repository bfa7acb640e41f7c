package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath. The parent
// directory is created when missing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Groups returns the stored group names for dt in insertion order.
func (s *SQLiteStore) Groups(ctx context.Context, dt constants.DeliveryType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT group_name FROM weights WHERE delivery_type = ? ORDER BY position`, string(dt))
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Weights returns the weight rows for groups (all rows when groups is nil).
func (s *SQLiteStore) Weights(ctx context.Context, dt constants.DeliveryType, groups []string) (models.WeightMatrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT group_name, tiers FROM weights WHERE delivery_type = ?`
	args := []any{string(dt)}
	if groups != nil {
		if len(groups) == 0 {
			return models.WeightMatrix{}, nil
		}
		query += ` AND group_name IN (?` + strings.Repeat(",?", len(groups)-1) + `)`
		for _, g := range groups {
			args = append(args, g)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query weights: %w", err)
	}
	defer rows.Close()

	out := make(models.WeightMatrix)
	for rows.Next() {
		var group, tiers string
		if err := rows.Scan(&group, &tiers); err != nil {
			return nil, fmt.Errorf("failed to scan weights: %w", err)
		}
		row, err := decodeTiers(tiers)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", group, err)
		}
		out[group] = row
	}
	return out, rows.Err()
}

// PutWeights replaces all rows stored for dt.
func (s *SQLiteStore) PutWeights(ctx context.Context, dt constants.DeliveryType, rows []GroupWeights) error {
	if err := validationFailure(ValidateWeights(rows)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM weights WHERE delivery_type = ?`, string(dt)); err != nil {
		return fmt.Errorf("failed to clear weights: %w", err)
	}

	now := s.now().UTC().Format(time.RFC3339)
	for i, gw := range rows {
		tiers, err := encodeTiers(gw.Weights)
		if err != nil {
			return fmt.Errorf("group %q: %w", gw.Group, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO weights (delivery_type, group_name, position, tiers, updated_at) VALUES (?, ?, ?, ?, ?)`,
			string(dt), gw.Group, i, tiers, now); err != nil {
			return fmt.Errorf("failed to insert weights for %q: %w", gw.Group, err)
		}
	}

	return tx.Commit()
}

// SaveAllocation stores rec with its matrix rows.
func (s *SQLiteStore) SaveAllocation(ctx context.Context, rec *Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO allocations (id, delivery_type, variant, target, achieved, error, iterations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.DeliveryType), rec.Variant.String(),
		rec.Target.String(), rec.Achieved.String(), rec.Error.String(),
		rec.Iterations, rec.CreatedAt.UTC().Format(timeLayout)); err != nil {
		return "", fmt.Errorf("failed to insert allocation: %w", err)
	}

	for i, row := range rec.Matrix.Rows {
		tiers, err := encodeTiers(row)
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO allocation_rows (allocation_id, position, group_name, tiers) VALUES (?, ?, ?, ?)`,
			rec.ID, i, rec.Matrix.Groups[i], tiers); err != nil {
			return "", fmt.Errorf("failed to insert allocation row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit allocation: %w", err)
	}
	return rec.ID, nil
}

// GetAllocation loads a record and its matrix.
func (s *SQLiteStore) GetAllocation(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM allocations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("allocation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT group_name, tiers FROM allocation_rows WHERE allocation_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var group, tiers string
		if err := rows.Scan(&group, &tiers); err != nil {
			return nil, fmt.Errorf("failed to scan allocation row: %w", err)
		}
		row, err := decodeTiers(tiers)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", group, err)
		}
		rec.Matrix.Groups = append(rec.Matrix.Groups, group)
		rec.Matrix.Rows = append(rec.Matrix.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rec, nil
}

// ListAllocations returns record headers, newest first. Matrices are not loaded.
func (s *SQLiteStore) ListAllocations(ctx context.Context, dt constants.DeliveryType, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + recordColumns + ` FROM allocations`
	var args []any
	if dt != "" {
		query += ` WHERE delivery_type = ?`
		args = append(args, string(dt))
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// recordColumns are the columns scanRecord reads, in order.
const recordColumns = `id, delivery_type, variant, target, achieved, error, iterations, created_at,
	(SELECT COUNT(*) FROM allocation_rows WHERE allocation_id = allocations.id)`

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc rowScanner) (*Record, error) {
	var (
		rec                              Record
		dt, variant, target, ach, errStr string
		created                          string
	)
	if err := sc.Scan(&rec.ID, &dt, &variant, &target, &ach, &errStr, &rec.Iterations, &created, &rec.GroupCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan allocation: %w", err)
	}

	rec.DeliveryType = constants.DeliveryType(dt)
	v, err := models.ParseVariant(variant)
	if err != nil {
		return nil, err
	}
	rec.Variant = v
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&rec.Target, target}, {&rec.Achieved, ach}, {&rec.Error, errStr}} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("allocation %s: %w", rec.ID, err)
		}
		*f.dst = d
	}
	rec.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("allocation %s: bad created_at: %w", rec.ID, err)
	}
	return &rec, nil
}

func encodeTiers(row models.Row) (string, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("failed to encode tiers: %w", err)
	}
	return string(data), nil
}

func decodeTiers(s string) (models.Row, error) {
	var values []string
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return models.Row{}, fmt.Errorf("failed to decode tiers: %w", err)
	}
	return models.RowFromStrings(values)
}
