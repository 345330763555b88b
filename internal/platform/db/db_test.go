package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestTxFromContext_Nil(t *testing.T) {
	tx := TxFromContext(context.Background())
	if tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	tx := TxFromContext(ctx)
	if tx != nil {
		t.Error("expected nil tx for wrong value type")
	}
}

func TestAdvisoryLockKey_Deterministic(t *testing.T) {
	id := uuid.New()
	if AdvisoryLockKey(id) != AdvisoryLockKey(id) {
		t.Error("expected stable key for the same id")
	}
	if AdvisoryLockKey(id) == AdvisoryLockKey(uuid.New()) {
		t.Error("expected different keys for different ids")
	}
}

func TestAcquireEncounterLock_NoTx(t *testing.T) {
	err := AcquireEncounterLock(context.Background(), uuid.New())
	if err == nil {
		t.Error("expected error without a transaction in context")
	}
}

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_later.sql":  "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"README.md":      "not a migration",
		"notnumeric.sql": "SELECT 0;",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("expected versions [1 2], got [%d %d]", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.LoadMigrations(); err == nil {
		t.Error("expected error for missing directory")
	}
}
