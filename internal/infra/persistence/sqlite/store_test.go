package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"evocore/internal/infra/persistence/sqlite"
	"evocore/pkg/domain"
	"evocore/pkg/mutation"
)

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campaign.db")
	ctx := context.Background()

	store, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	set, err := mutation.ParseSet("A2T")
	if err != nil {
		t.Fatalf("parse set: %v", err)
	}
	var root domain.Variant
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		v, err := tx.CreateVariant(domain.Variant{Sequence: "MAGV"})
		if err != nil {
			return err
		}
		root = v
		if _, err := tx.CreateVariant(domain.Variant{ParentID: &v.ID, Mutations: set}); err != nil {
			return err
		}
		_, err = tx.CreateRound(domain.Round{Index: 0, Status: domain.StatusReady, ExpectedLabels: []string{"activity"}})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok := reopened.GetVariant(root.ID)
	if !ok {
		t.Fatalf("root variant lost across reopen")
	}
	if !got.HasChildren {
		t.Fatalf("child link lost across reopen")
	}
	round, ok := reopened.GetRound(0)
	if !ok || round.Status != domain.StatusReady {
		t.Fatalf("round lost or status changed: %+v ok=%v", round, ok)
	}
	if len(round.ExpectedLabels) != 1 || round.ExpectedLabels[0] != "activity" {
		t.Fatalf("expected labels lost: %+v", round.ExpectedLabels)
	}
	variants := reopened.ListVariants()
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants after reopen, got %d", len(variants))
	}
	for _, v := range variants {
		if v.ParentID != nil && v.Mutations.String() != "A2T" {
			t.Fatalf("mutation set lost in round trip: %q", v.Mutations.String())
		}
	}
}

func TestSQLiteStoreDefaultPath(t *testing.T) {
	dir := t.TempDir()
	store, err := sqlite.NewStore(filepath.Join(dir, "nested", "campaign.db"), nil)
	if err != nil {
		t.Fatalf("open store with nested path: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Path() == "" {
		t.Fatalf("path must be recorded")
	}
	if store.DB() == nil {
		t.Fatalf("db handle must be exposed")
	}
}
