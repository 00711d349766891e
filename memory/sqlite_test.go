package memory_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/lanemc/swarmmem/memory"
)

func TestDurableStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := memory.NewDurableStore(dir, "memory.db")
	if err != nil {
		t.Fatalf("NewDurableStore() error = %v", err)
	}
	if store.Name() != "sqlite" {
		t.Errorf("Name() = %q, want %q", store.Name(), "sqlite")
	}
	if want := filepath.Join(dir, "memory.db"); store.Path() != want {
		t.Errorf("Path() = %q, want %q", store.Path(), want)
	}

	mustStore(t, store, &memory.Entry{
		Key:       "persistent",
		Namespace: "default",
		Value:     memory.StringValue("survives restarts"),
		Metadata:  map[string]string{"origin": "first-process"},
	})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := memory.NewDurableStore(dir, "memory.db")
	if err != nil {
		t.Fatalf("NewDurableStore() reopen error = %v", err)
	}
	defer reopened.Close()

	entry, err := reopened.Retrieve(ctx, "default", "persistent")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if entry == nil {
		t.Fatal("Retrieve() = nil, want persisted entry after reopen")
	}
	if entry.Value.Text() != "survives restarts" {
		t.Errorf("Value = %q, want %q", entry.Value.Text(), "survives restarts")
	}
	if entry.Metadata["origin"] != "first-process" {
		t.Errorf("Metadata = %v, want origin=first-process", entry.Metadata)
	}
}

func TestDurableStore_MigrationsRecordedOnce(t *testing.T) {
	dir := t.TempDir()

	store, err := memory.NewDurableStore(dir, "memory.db")
	if err != nil {
		t.Fatalf("NewDurableStore() error = %v", err)
	}
	path := store.Path()
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen to confirm applied migrations are skipped.
	again, err := memory.NewDurableStore(dir, "memory.db")
	if err != nil {
		t.Fatalf("NewDurableStore() reopen error = %v", err)
	}
	if err := again.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	var count, maxVersion int
	if err := db.QueryRow(`SELECT COUNT(*), MAX(version) FROM migrations`).Scan(&count, &maxVersion); err != nil {
		t.Fatalf("query migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("migrations rows = %d, want 2", count)
	}
	if maxVersion != 2 {
		t.Errorf("max migration version = %d, want 2", maxVersion)
	}
}

func TestNewDurableStore_DirectoryBlockedByFile(t *testing.T) {
	base := t.TempDir()
	blocked := filepath.Join(base, "occupied")
	if err := os.WriteFile(blocked, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := memory.NewDurableStore(blocked, "memory.db"); err == nil {
		t.Fatal("NewDurableStore() error = nil, want failure when directory path is a file")
	}
}

func TestNewDurableStore_DatabasePathIsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "memory.db"), 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	if _, err := memory.NewDurableStore(dir, "memory.db"); err == nil {
		t.Fatal("NewDurableStore() error = nil, want failure when database path is a directory")
	}
}
