package core

import (
	"context"
	"errors"
	"testing"

	"evocore/pkg/domain"
	"evocore/pkg/mutation"
)

func TestCreateVariantMaterializes(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	root, _, err := svc.CreateRootVariant(ctx, "ACDEFG", "wt")
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if root.ID != "wt" {
		t.Fatalf("explicit id not honored: %q", root.ID)
	}

	set := mutation.NewSet()
	if err := set.Add(mutation.Edit{Position: 3, Ref: "D", Alt: "N"}); err != nil {
		t.Fatalf("add edit: %v", err)
	}
	child, _, err := svc.CreateVariant(ctx, "wt", set, "")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.ID != domain.SequenceID("ACNEFG") {
		t.Fatalf("child id = %q, want hash of realized sequence", child.ID)
	}
	seq, err := svc.SequenceOf(ctx, child.ID)
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if seq != "ACNEFG" {
		t.Fatalf("child sequence = %q", seq)
	}

	// The parent now has descendants and rejects further edits.
	_, _, err = svc.AddMutations(ctx, "wt", mutation.Edit{Position: 1, Ref: "A", Alt: "G"})
	var immutable domain.ImmutableParentError
	if !errors.As(err, &immutable) {
		t.Fatalf("expected ImmutableParentError, got %v", err)
	}

	// Grandchild stacking: edits apply to the child's realized sequence.
	set2 := mutation.NewSet()
	if err := set2.Add(mutation.Edit{Position: 6, Ref: "G", Alt: "W"}); err != nil {
		t.Fatalf("add edit: %v", err)
	}
	grand, _, err := svc.CreateVariant(ctx, child.ID, set2, "leaf")
	if err != nil {
		t.Fatalf("create grandchild: %v", err)
	}
	seq, err = svc.SequenceOf(ctx, grand.ID)
	if err != nil {
		t.Fatalf("grandchild sequence: %v", err)
	}
	if seq != "ACNEFW" {
		t.Fatalf("grandchild sequence = %q", seq)
	}
}

func TestCreateVariantRejectsBadEdits(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	if _, _, err := svc.CreateRootVariant(ctx, "", ""); err == nil {
		t.Fatalf("expected root without sequence to fail")
	}
	if _, _, err := svc.CreateRootVariant(ctx, "ACDEFG", "wt"); err != nil {
		t.Fatalf("create root: %v", err)
	}

	// Reference mismatch against the parent's sequence.
	set := mutation.NewSet()
	if err := set.Add(mutation.Edit{Position: 3, Ref: "Q", Alt: "N"}); err != nil {
		t.Fatalf("add edit: %v", err)
	}
	_, _, err := svc.CreateVariant(ctx, "wt", set, "")
	var mismatch mutation.ReferenceMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ReferenceMismatchError, got %v", err)
	}

	if _, _, err := svc.CreateVariant(ctx, "ghost", mutation.NewSet(), ""); err == nil {
		t.Fatalf("expected unknown parent to fail")
	}
}

func TestAddMutationsExtendsEditSet(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	if _, _, err := svc.CreateRootVariant(ctx, "ACDEFG", "wt"); err != nil {
		t.Fatalf("create root: %v", err)
	}
	set := mutation.NewSet()
	if err := set.Add(mutation.Edit{Position: 1, Ref: "A", Alt: "G"}); err != nil {
		t.Fatalf("add edit: %v", err)
	}
	if _, _, err := svc.CreateVariant(ctx, "wt", set, "v1"); err != nil {
		t.Fatalf("create child: %v", err)
	}

	updated, _, err := svc.AddMutations(ctx, "v1", mutation.Edit{Position: 2, Ref: "C", Alt: "S"})
	if err != nil {
		t.Fatalf("add mutations: %v", err)
	}
	if updated.Mutations.Len() != 2 {
		t.Fatalf("edit set size = %d, want 2", updated.Mutations.Len())
	}
	seq, err := svc.SequenceOf(ctx, "v1")
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if seq != "GSDEFG" {
		t.Fatalf("sequence = %q", seq)
	}

	// Conflicting edit at an occupied position is rejected and rolled back.
	if _, _, err := svc.AddMutations(ctx, "v1", mutation.Edit{Position: 2, Ref: "C", Alt: "T"}); err == nil {
		t.Fatalf("expected conflicting edit to fail")
	}
	v, _ := svc.Variant("v1")
	if v.Mutations.Len() != 2 {
		t.Fatalf("edit set mutated despite failure: %d", v.Mutations.Len())
	}
}

func TestParentSetFreezesOnChildCreation(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	if _, _, err := svc.CreateRootVariant(ctx, "ACDEFG", "wt"); err != nil {
		t.Fatalf("create root: %v", err)
	}
	set := mutation.NewSet()
	if err := set.Add(mutation.Edit{Position: 1, Ref: "A", Alt: "G"}); err != nil {
		t.Fatalf("add edit: %v", err)
	}
	mid, _, err := svc.CreateVariant(ctx, "wt", set, "mid")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if mid.Mutations.Frozen() {
		t.Fatalf("childless variant's set must stay open")
	}

	grand := mutation.NewSet()
	if err := grand.Add(mutation.Edit{Position: 3, Ref: "D", Alt: "Y"}); err != nil {
		t.Fatalf("add edit: %v", err)
	}
	if _, _, err := svc.CreateVariant(ctx, "mid", grand, "leaf"); err != nil {
		t.Fatalf("create grandchild: %v", err)
	}

	stored, ok := svc.Variant("mid")
	if !ok {
		t.Fatalf("variant mid missing")
	}
	if !stored.Mutations.Frozen() {
		t.Fatalf("parent set not frozen after gaining a child")
	}
	if err := stored.Mutations.Add(mutation.Edit{Position: 2, Ref: "C", Alt: "S"}); !errors.Is(err, mutation.ErrFrozenSet) {
		t.Fatalf("add to frozen set = %v, want ErrFrozenSet", err)
	}
}
