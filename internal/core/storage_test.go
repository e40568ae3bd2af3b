package core

import (
	"path/filepath"
	"testing"

	"evocore/internal/infra/persistence/memory"
	"evocore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("EVOCORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("store type = %T, want memory", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("EVOCORE_STORAGE_DRIVER", "")
	t.Setenv("EVOCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "campaign.db"))
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("store type = %T, want sqlite", store)
	}
	if err := sq.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("EVOCORE_STORAGE_DRIVER", "tape")
	if _, err := OpenPersistentStore(nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
