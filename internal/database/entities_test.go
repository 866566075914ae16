package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/earthring/chunkstream/internal/config"
	"github.com/earthring/chunkstream/internal/testutil"
)

func newSQLiteStorage(t *testing.T) (*EntityStorage, *sql.DB) {
	t.Helper()
	db := testutil.SetupSQLiteDB(t)
	storage := NewEntityStorage(db, DriverSQLite)
	if err := storage.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return storage, db
}

func exerciseStorage(t *testing.T, storage *EntityStorage) {
	ctx := context.Background()

	t.Run("returns empty list for empty chunk", func(t *testing.T) {
		entities, err := storage.RetrieveEntities(ctx, 40, 40)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if entities == nil || len(entities) != 0 {
			t.Errorf("Expected empty non-nil list, got %#v", entities)
		}
	})

	t.Run("stores and retrieves by chunk", func(t *testing.T) {
		fixtures := []Entity{
			{ID: "b-tree", Kind: "tree", ChunkX: 1, ChunkY: -2, X: 3.5, Y: 4, Data: json.RawMessage(`{"height":7}`)},
			{ID: "a-rock", Kind: "rock", ChunkX: 1, ChunkY: -2, X: 1, Y: 1},
			{ID: testutil.RandomEntityID(), Kind: "rock", ChunkX: 2, ChunkY: -2},
		}
		for _, e := range fixtures {
			if err := storage.StoreEntity(ctx, e); err != nil {
				t.Fatalf("StoreEntity(%s) failed: %v", e.ID, err)
			}
		}

		entities, err := storage.RetrieveEntities(ctx, 1, -2)
		if err != nil {
			t.Fatalf("RetrieveEntities failed: %v", err)
		}
		if len(entities) != 2 {
			t.Fatalf("Expected 2 entities, got %d", len(entities))
		}
		if entities[0].ID != "a-rock" || entities[1].ID != "b-tree" {
			t.Errorf("Expected entities ordered by id, got %s, %s", entities[0].ID, entities[1].ID)
		}
		if entities[0].Data != nil {
			t.Errorf("Expected nil data, got %s", entities[0].Data)
		}
		var data map[string]int
		if err := json.Unmarshal(entities[1].Data, &data); err != nil || data["height"] != 7 {
			t.Errorf("Data round trip failed: %s (%v)", entities[1].Data, err)
		}
		if entities[1].X != 3.5 || entities[1].Y != 4 {
			t.Errorf("Position = (%v, %v)", entities[1].X, entities[1].Y)
		}
	})

	t.Run("store replaces existing entity", func(t *testing.T) {
		if err := storage.StoreEntity(ctx, Entity{ID: "a-rock", Kind: "boulder", ChunkX: 1, ChunkY: -2}); err != nil {
			t.Fatalf("StoreEntity failed: %v", err)
		}
		entities, _ := storage.RetrieveEntities(ctx, 1, -2)
		if len(entities) != 2 || entities[0].Kind != "boulder" {
			t.Errorf("Expected replaced kind, got %+v", entities)
		}
	})

	t.Run("counts and deletes", func(t *testing.T) {
		n, err := storage.CountEntities(ctx)
		if err != nil {
			t.Fatalf("CountEntities failed: %v", err)
		}
		if n != 3 {
			t.Errorf("Expected 3 entities, got %d", n)
		}
		deleted, err := storage.DeleteChunkEntities(ctx, 1, -2)
		if err != nil {
			t.Fatalf("DeleteChunkEntities failed: %v", err)
		}
		if deleted != 2 {
			t.Errorf("Expected 2 deleted, got %d", deleted)
		}
		if n, _ := storage.CountEntities(ctx); n != 1 {
			t.Errorf("Expected 1 remaining, got %d", n)
		}
	})
}

func TestEntityStorage_SQLite(t *testing.T) {
	storage, _ := newSQLiteStorage(t)
	exerciseStorage(t, storage)
}

func TestEntityStorage_Postgres(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	testutil.CleanupTestDB(t, db)
	storage := NewEntityStorage(db, DriverPostgres)
	if err := storage.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	defer testutil.CleanupTestDB(t, db)
	exerciseStorage(t, storage)
}

func TestEntityStorage_StoreValidation(t *testing.T) {
	storage, _ := newSQLiteStorage(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		entity Entity
	}{
		{"missing id", Entity{Kind: "tree"}},
		{"missing kind", Entity{ID: "x"}},
		{"invalid data", Entity{ID: "x", Kind: "tree", Data: json.RawMessage(`{nope`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := storage.StoreEntity(ctx, tt.entity); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestEntityStorage_Rebind(t *testing.T) {
	pg := NewEntityStorage(nil, DriverPostgres)
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := NewEntityStorage(nil, DriverSQLite)
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestNoEntities(t *testing.T) {
	var src EntitySource = NoEntities{}
	entities, err := src.RetrieveEntities(context.Background(), 0, 0)
	if err != nil || entities == nil || len(entities) != 0 {
		t.Errorf("NoEntities returned %#v, %v", entities, err)
	}
}

func TestOpen(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		db, err := Open(config.EntitiesConfig{Driver: DriverSQLite, DSN: t.TempDir() + "/open.db"})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer db.Close()
		if got := db.Stats().MaxOpenConnections; got != 1 {
			t.Errorf("Expected single sqlite connection, got %d", got)
		}
	})

	t.Run("unsupported driver", func(t *testing.T) {
		if _, err := Open(config.EntitiesConfig{Driver: "mysql", DSN: "x"}); err == nil {
			t.Error("Expected error for unsupported driver")
		}
	})
}
