package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported entity database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Entity is something placed inside a chunk. The core never inspects Data.
type Entity struct {
	ID     string          `json:"id"`
	Kind   string          `json:"kind"`
	ChunkX int             `json:"chunk_x"`
	ChunkY int             `json:"chunk_y"`
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// EntitySource returns the entities that belong to a chunk.
type EntitySource interface {
	RetrieveEntities(ctx context.Context, cx, cy int) ([]Entity, error)
}

// NoEntities is the source used when no entity database is configured.
type NoEntities struct{}

// RetrieveEntities always returns an empty list.
func (NoEntities) RetrieveEntities(ctx context.Context, cx, cy int) ([]Entity, error) {
	return []Entity{}, nil
}

// EntityStorage handles entity storage and retrieval from the database
type EntityStorage struct {
	db     *sql.DB
	driver string
}

// NewEntityStorage creates a new entity storage instance. driver selects the
// SQL dialect and must match the driver db was opened with.
func NewEntityStorage(db *sql.DB, driver string) *EntityStorage {
	return &EntityStorage{db: db, driver: driver}
}

// EnsureSchema creates the entities table if it does not exist.
func (s *EntityStorage) EnsureSchema(ctx context.Context) error {
	dataType := "TEXT"
	if s.driver == DriverPostgres {
		dataType = "JSONB"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_y INTEGER NOT NULL,
			x DOUBLE PRECISION NOT NULL,
			y DOUBLE PRECISION NOT NULL,
			data ` + dataType + `
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_chunk ON entities (chunk_x, chunk_y)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create entities schema: %w", err)
		}
	}
	return nil
}

// RetrieveEntities returns every entity stored for chunk (cx, cy), ordered
// by ID.
func (s *EntityStorage) RetrieveEntities(ctx context.Context, cx, cy int) ([]Entity, error) {
	query := s.rebind(`
		SELECT id, kind, chunk_x, chunk_y, x, y, data
		FROM entities
		WHERE chunk_x = ? AND chunk_y = ?
		ORDER BY id
	`)
	rows, err := s.db.QueryContext(ctx, query, cx, cy)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities for chunk %d,%d: %w", cx, cy, err)
	}
	defer rows.Close()

	entities := make([]Entity, 0)
	for rows.Next() {
		var e Entity
		var data sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.ChunkX, &e.ChunkY, &e.X, &e.Y, &data); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if data.Valid && data.String != "" {
			e.Data = json.RawMessage(data.String)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

// StoreEntity inserts or replaces an entity.
func (s *EntityStorage) StoreEntity(ctx context.Context, e Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	if e.Kind == "" {
		return fmt.Errorf("entity kind is required")
	}
	var data any
	if len(e.Data) > 0 {
		if !json.Valid(e.Data) {
			return fmt.Errorf("entity %s: data is not valid JSON", e.ID)
		}
		data = string(e.Data)
	}

	query := s.rebind(`
		INSERT INTO entities (id, kind, chunk_x, chunk_y, x, y, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			chunk_x = excluded.chunk_x,
			chunk_y = excluded.chunk_y,
			x = excluded.x,
			y = excluded.y,
			data = excluded.data
	`)
	if _, err := s.db.ExecContext(ctx, query, e.ID, e.Kind, e.ChunkX, e.ChunkY, e.X, e.Y, data); err != nil {
		return fmt.Errorf("failed to store entity %s: %w", e.ID, err)
	}
	return nil
}

// DeleteChunkEntities removes every entity in chunk (cx, cy) and returns how
// many were deleted.
func (s *EntityStorage) DeleteChunkEntities(ctx context.Context, cx, cy int) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM entities WHERE chunk_x = ? AND chunk_y = ?`), cx, cy)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entities for chunk %d,%d: %w", cx, cy, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted count: %w", err)
	}
	return n, nil
}

// CountEntities returns the total number of stored entities.
func (s *EntityStorage) CountEntities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}

// rebind rewrites ? placeholders into $n for postgres.
func (s *EntityStorage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
