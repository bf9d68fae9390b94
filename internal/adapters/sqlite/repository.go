// Package sqlite provides the SQLite-backed location repository.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/jobrunner/mandor/internal/domain"
	"github.com/jobrunner/mandor/internal/ports/output"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	code        TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	pg          TEXT NOT NULL DEFAULT '',
	wilayah     TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	coordinates TEXT,
	updated_at  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_locations_source ON locations(source);
CREATE INDEX IF NOT EXISTS idx_locations_pg ON locations(pg);
CREATE INDEX IF NOT EXISTS idx_locations_wilayah ON locations(wilayah);
`

const selectColumns = `SELECT id, source, code, name, pg, wilayah, address, coordinates, updated_at FROM locations`

// Repository implements the LocationRepository port on SQLite.
type Repository struct {
	db *sql.DB
}

var _ output.LocationRepository = (*Repository)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Repository, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Each connection to :memory: is its own database.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ReplaceSource deletes the rows of a source and inserts the given locations
// in one transaction. A location ID already owned by another source moves to
// this one.
func (r *Repository) ReplaceSource(ctx context.Context, sourceID string, locations []domain.Location) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM locations WHERE source = ?`, sourceID); err != nil {
		return fmt.Errorf("clearing source %s: %w", sourceID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO locations (id, source, code, name, pg, wilayah, address, coordinates, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i := range locations {
		loc := &locations[i]

		coords, encErr := encodeCoordinates(loc.Coordinates)
		if encErr != nil {
			return fmt.Errorf("encoding coordinates of %s: %w", loc.ID, encErr)
		}

		if _, err = stmt.ExecContext(ctx,
			loc.ID, sourceID, loc.Code, loc.Name, loc.PlantationGroup,
			loc.Wilayah, loc.Address, coords, formatTime(loc.UpdatedAt),
		); err != nil {
			return fmt.Errorf("inserting %s: %w", loc.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteSource removes every location imported from a source.
func (r *Repository) DeleteSource(ctx context.Context, sourceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM locations WHERE source = ?`, sourceID)
	return err
}

// Get returns a location by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Location, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// List returns the locations matching the filter, ordered by ID.
func (r *Repository) List(ctx context.Context, filter domain.LocationFilter) ([]domain.Location, error) {
	query, args := buildListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	locations := []domain.Location{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *loc)
	}
	return locations, rows.Err()
}

func buildListQuery(filter domain.LocationFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(column, value string) {
		if value != "" {
			clauses = append(clauses, column+" = ?")
			args = append(args, value)
		}
	}
	add("pg", filter.PlantationGroup)
	add("wilayah", filter.Wilayah)
	add("source", filter.Source)

	query := selectColumns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return query + " ORDER BY id", args
}

// Count returns the number of stored locations.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations`).Scan(&n)
	return n, err
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLocation(s scanner) (*domain.Location, error) {
	var (
		loc       domain.Location
		coords    sql.NullString
		updatedAt string
	)
	if err := s.Scan(&loc.ID, &loc.Source, &loc.Code, &loc.Name, &loc.PlantationGroup,
		&loc.Wilayah, &loc.Address, &coords, &updatedAt); err != nil {
		return nil, err
	}

	if coords.Valid {
		raw, err := decodeCoordinates(coords.String)
		if err != nil {
			return nil, fmt.Errorf("decoding coordinates of %s: %w", loc.ID, err)
		}
		loc.Coordinates = raw
	}
	loc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &loc, nil
}

// encodeCoordinates stores the raw value as JSON text; nil stays NULL.
func encodeCoordinates(raw any) (sql.NullString, error) {
	if raw == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeCoordinates restores the raw value. Numbers come back as json.Number
// so no precision is lost.
func decodeCoordinates(text string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
