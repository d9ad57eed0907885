package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func TestMigrateRoundTripCompatibility(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate-roundtrip.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first migrate up failed: %v", err)
	}

	if err := MigrateDown(db); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("second migrate up failed: %v", err)
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	now := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)
	if err := store.AppendFiring(t.Context(), FiringRecord{
		ID:           "f-rt-1",
		AutomationID: "a-rt-1",
		ActionType:   "speak",
		FiredAt:      now,
	}); err != nil {
		t.Fatalf("insert after roundtrip failed: %v", err)
	}
	if err := store.Set(t.Context(), "automations", []byte(`[]`)); err != nil {
		t.Fatalf("kv after roundtrip failed: %v", err)
	}

	got, err := store.ListFirings(t.Context(), FiringListFilter{})
	if err != nil {
		t.Fatalf("list after roundtrip failed: %v", err)
	}
	if len(got) != 1 || !got[0].FiredAt.Equal(now) {
		t.Fatalf("unexpected firings after roundtrip: %#v", got)
	}
}
