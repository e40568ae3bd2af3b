package core

import (
	"context"
	"errors"
	"testing"

	"evocore/pkg/domain"
	"evocore/pkg/mutation"
)

func TestRoundLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	root, _, err := svc.CreateRootVariant(ctx, "MKVL", "")
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if root.ID != domain.SequenceID("MKVL") {
		t.Fatalf("root id = %q, want content hash", root.ID)
	}

	created, _, err := svc.CreateRound(ctx, Round{Index: 0, ExpectedLabels: []string{"fitness"}})
	if err != nil {
		t.Fatalf("create round 0: %v", err)
	}
	if created.Status != StatusReady {
		t.Fatalf("round 0 status = %s, want ready", created.Status)
	}

	next, _, err := svc.CreateRound(ctx, Round{Index: 1, ExpectedLabels: []string{"fitness"}})
	if err != nil {
		t.Fatalf("create round 1: %v", err)
	}
	if next.Status != StatusNotReady {
		t.Fatalf("round 1 status = %s, want not_ready behind incomplete round 0", next.Status)
	}

	gen := SiteSaturationGenerator{ParentID: root.ID, Positions: []int{1}, Alphabet: "AMC"}
	putative, _, err := svc.GenerateLibrary(ctx, 0, gen)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if putative.Len() != 2 {
		t.Fatalf("putative size = %d, want 2 (alphabet minus reference)", putative.Len())
	}
	if round, _ := svc.Round(0); round.Status != StatusGenerated || round.StartTime == nil {
		t.Fatalf("round 0 after generate = %+v", round)
	}

	if _, _, err := svc.GenerateLibrary(ctx, 0, gen); err == nil {
		t.Fatalf("expected second generate on generated round to fail")
	} else {
		var stateErr domain.CampaignStateError
		if !errors.As(err, &stateErr) {
			t.Fatalf("expected CampaignStateError, got %v", err)
		}
	}

	selected, _, err := svc.SelectLibrary(ctx, 0, AllSelector{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if selected.Len() != 2 {
		t.Fatalf("selected size = %d, want 2", selected.Len())
	}
	if round, _ := svc.Round(0); round.Status != StatusSelected || round.Size != 2 {
		t.Fatalf("round 0 after select = %+v", round)
	}

	ids := selected.IDs()

	// Committing with labels outstanding reports what is missing.
	_, _, err = svc.CommitRound(ctx, 0)
	var incomplete domain.IncompleteLabelsError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteLabelsError, got %v", err)
	}
	if len(incomplete.Missing) != 2 {
		t.Fatalf("missing = %+v, want both selected variants", incomplete.Missing)
	}

	labeled, _, err := svc.SetLabels(ctx, 0, []Label{
		{VariantID: ids[0], Name: "fitness", Value: 1.5},
	})
	if err != nil {
		t.Fatalf("partial labels: %v", err)
	}
	if labeled.Status != StatusSelected || labeled.LabeledSize != 1 {
		t.Fatalf("round after partial labels = %+v", labeled)
	}

	labeled, _, err = svc.SetLabels(ctx, 0, []Label{
		{VariantID: ids[0], Name: "fitness", Value: 1.5}, // replicate, kept as its own row
		{VariantID: ids[1], Name: "fitness", Value: 0.4},
	})
	if err != nil {
		t.Fatalf("remaining labels: %v", err)
	}
	if labeled.Status != StatusLabeled || labeled.LabeledSize != 2 {
		t.Fatalf("round after full labels = %+v", labeled)
	}

	committed, _, err := svc.CommitRound(ctx, 0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed.Status != StatusComplete || committed.EndTime == nil {
		t.Fatalf("committed round = %+v", committed)
	}

	// Completing round 0 unlocks round 1.
	status, err := svc.RoundStatus(ctx, 1)
	if err != nil {
		t.Fatalf("round 1 status: %v", err)
	}
	if status != StatusReady {
		t.Fatalf("round 1 status = %s, want ready", status)
	}
	if round, _ := svc.Round(1); round.Status != StatusReady {
		t.Fatalf("round 1 transition not persisted: %+v", round)
	}

	// Committed rounds refuse further labels outright.
	_, _, err = svc.SetLabels(ctx, 0, []Label{{VariantID: ids[0], Name: "fitness", Value: 9.9}})
	var frozen domain.ImmutabilityViolationError
	if !errors.As(err, &frozen) {
		t.Fatalf("labels after commit: expected ImmutabilityViolationError, got %v", err)
	}
}

func TestRoundLifecycleWithoutExpectedNames(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	root, _, err := svc.CreateRootVariant(ctx, "MKVL", "wt")
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, _, err := svc.CreateRound(ctx, Round{Index: 0}); err != nil {
		t.Fatalf("create round: %v", err)
	}

	gen := SiteSaturationGenerator{ParentID: root.ID, Positions: []int{1}, Alphabet: "AMC"}
	if _, _, err := svc.GenerateLibrary(ctx, 0, gen); err != nil {
		t.Fatalf("generate: %v", err)
	}
	selected, _, err := svc.SelectLibrary(ctx, 0, AllSelector{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	ids := selected.IDs()

	// Without declared expectations an unlabeled round still refuses commit.
	_, _, err = svc.CommitRound(ctx, 0)
	var incomplete domain.IncompleteLabelsError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteLabelsError, got %v", err)
	}
	if len(incomplete.Missing) != len(ids) {
		t.Fatalf("missing = %+v, want all selected variants", incomplete.Missing)
	}

	// One label of any name per selected variant satisfies the round.
	labeled, _, err := svc.SetLabels(ctx, 0, []Label{
		{VariantID: ids[0], Name: "activity", Value: 1.1},
		{VariantID: ids[1], Name: "expression", Value: 0.7},
	})
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	if labeled.Status != StatusLabeled || labeled.LabeledSize != 2 {
		t.Fatalf("round after labels = %+v", labeled)
	}
	if _, _, err := svc.CommitRound(ctx, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if round, _ := svc.Round(0); round.Status != StatusComplete {
		t.Fatalf("round after commit = %+v", round)
	}
}

func TestReplicateLabelsCoexist(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	root, _, err := svc.CreateRootVariant(ctx, "MKVL", "wt")
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, _, err := svc.CreateRound(ctx, Round{Index: 0, ExpectedLabels: []string{"fitness"}}); err != nil {
		t.Fatalf("create round: %v", err)
	}
	gen := SiteSaturationGenerator{ParentID: root.ID, Positions: []int{1}, Alphabet: "MA"}
	if _, _, err := svc.GenerateLibrary(ctx, 0, gen); err != nil {
		t.Fatalf("generate: %v", err)
	}
	selected, _, err := svc.SelectLibrary(ctx, 0, AllSelector{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	id := selected.IDs()[0]

	// Two replicate measurements with identical values both land.
	for i := 0; i < 2; i++ {
		if _, _, err := svc.SetLabels(ctx, 0, []Label{{VariantID: id, Name: "fitness", Value: 2.0}}); err != nil {
			t.Fatalf("replicate %d: %v", i, err)
		}
	}
	if labels := svc.store.LabelsForVariant(id); len(labels) != 2 {
		t.Fatalf("replicates = %d rows, want 2: %+v", len(labels), labels)
	}

	// Rows carrying an explicit surrogate id re-ingest idempotently.
	sheet := []Label{{ID: "obs-1", VariantID: id, Name: "fitness", Value: 2.0}}
	for i := 0; i < 2; i++ {
		if _, _, err := svc.SetLabels(ctx, 0, sheet); err != nil {
			t.Fatalf("re-ingest %d: %v", i, err)
		}
	}
	if labels := svc.store.LabelsForVariant(id); len(labels) != 3 {
		t.Fatalf("after re-ingest = %d rows, want 3", len(labels))
	}
}

func TestSetLabelsRejectsUnselectedVariant(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	root, _, err := svc.CreateRootVariant(ctx, "MKVL", "")
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, _, err := svc.CreateRound(ctx, Round{Index: 0, ExpectedLabels: []string{"fitness"}}); err != nil {
		t.Fatalf("create round: %v", err)
	}
	gen := SiteSaturationGenerator{ParentID: root.ID, Positions: []int{2}, Alphabet: "KR"}
	if _, _, err := svc.GenerateLibrary(ctx, 0, gen); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, _, err := svc.SelectLibrary(ctx, 0, AllSelector{}); err != nil {
		t.Fatalf("select: %v", err)
	}

	// The root was never put forward for measurement in round 0.
	if _, _, err := svc.SetLabels(ctx, 0, []Label{{VariantID: root.ID, Name: "fitness", Value: 1}}); err == nil {
		t.Fatalf("expected label on unselected variant to fail")
	}
	if _, _, err := svc.SetLabels(ctx, 0, []Label{{VariantID: "nope", Name: "fitness", Value: 1}}); err == nil {
		t.Fatalf("expected label on unknown variant to fail")
	}
}

func TestGenerateRequiresReadyRound(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	root, _, err := svc.CreateRootVariant(ctx, "MKVL", "")
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, _, err := svc.CreateRound(ctx, Round{Index: 0}); err != nil {
		t.Fatalf("create round 0: %v", err)
	}
	if _, _, err := svc.CreateRound(ctx, Round{Index: 1}); err != nil {
		t.Fatalf("create round 1: %v", err)
	}

	gen := SiteSaturationGenerator{ParentID: root.ID, Positions: []int{1}}
	_, _, err = svc.GenerateLibrary(ctx, 1, gen)
	var stateErr domain.CampaignStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected CampaignStateError for not_ready round, got %v", err)
	}
	if stateErr.Status != StatusNotReady {
		t.Fatalf("state error status = %s, want not_ready", stateErr.Status)
	}

	if _, _, err := svc.GenerateLibrary(ctx, 7, gen); err == nil {
		t.Fatalf("expected unknown round to fail")
	}
}

func TestStaticGeneratorRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	root, _, err := svc.CreateRootVariant(ctx, "ACDEFG", "")
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, _, err := svc.CreateRound(ctx, Round{Index: 0}); err != nil {
		t.Fatalf("create round: %v", err)
	}

	// Candidates without ids get content-hash ids assigned at generation.
	set := mutation.NewSet()
	if err := set.Add(mutation.Edit{Position: 1, Ref: "A", Alt: "G"}); err != nil {
		t.Fatalf("add edit: %v", err)
	}
	parentID := root.ID
	candidates, _ := domain.NewLibrary()
	if err := candidates.Add(Variant{Base: Base{ID: "draft"}, ParentID: &parentID, Mutations: set}); err != nil {
		t.Fatalf("seed candidate: %v", err)
	}

	putative, _, err := svc.GenerateLibrary(ctx, 0, StaticGenerator{Candidates: candidates})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if putative.Len() != 1 {
		t.Fatalf("putative size = %d, want 1", putative.Len())
	}
	seq, err := svc.SequenceOf(ctx, "draft")
	if err != nil {
		t.Fatalf("sequence of candidate: %v", err)
	}
	if seq != "GCDEFG" {
		t.Fatalf("materialized sequence = %q, want GCDEFG", seq)
	}
}
