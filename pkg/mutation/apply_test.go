package mutation_test

import (
	"errors"
	"testing"

	"evocore/pkg/mutation"
)

func mustSet(t *testing.T, raw string) mutation.Set {
	t.Helper()
	set, err := mutation.ParseSet(raw)
	if err != nil {
		t.Fatalf("parse set %q: %v", raw, err)
	}
	return set
}

func TestApplyIdentity(t *testing.T) {
	got, err := mutation.Apply("MAGV", mutation.NewSet())
	if err != nil {
		t.Fatalf("apply empty set: %v", err)
	}
	if got != "MAGV" {
		t.Fatalf("identity law violated: got %q", got)
	}
}

func TestApplyScenarios(t *testing.T) {
	cases := []struct {
		name string
		base string
		set  string
		want string
	}{
		{"substitution", "MAGV", "A2T", "MTGV"},
		{"anchored insertion", "MAGV", "A2[TM]", "MATMGV"},
		{"anchorless insertion", "MAGV", ">2V", "MVAGV"},
		{"insertion at end", "MAGV", "V4[KK]", "MAGVKK"},
		{"deletion", "MAGV", "A2-", "MGV"},
		{"multi deletion", "MAGVL", "[AG]2[--]", "MVL"},
		{"multi substitution", "MAGV", "[AG]2[TT]", "MTTV"},
		{"combined", "MAGV", "M1K;A2[T];V4-", "KATG"},
		{"insertion then substitution at same anchor", "MAGV", ">2T;A2V", "MTVGV"},
	}
	for _, tc := range cases {
		got, err := mutation.Apply(tc.base, mustSet(t, tc.set))
		if err != nil {
			t.Fatalf("%s: apply: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestApplyConflicts(t *testing.T) {
	cases := []struct {
		name string
		base string
		set  string
	}{
		{"overlapping spans", "MAGV", "[AG]2[TT];G3V"},
		{"duplicate position", "MAGV", "A2T;A2V"},
		{"beyond end", "MAGV", "V9K"},
		{"insertion beyond end", "MAGV", ">9T"},
	}
	for _, tc := range cases {
		_, err := mutation.Apply(tc.base, mustSet(t, tc.set))
		var conflict mutation.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("%s: expected ConflictError, got %v", tc.name, err)
		}
	}
}

func TestDiffSubstitutionsOnly(t *testing.T) {
	set, err := mutation.Diff("MAGV", "MTGV")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if got := set.String(); got != "A2T" {
		t.Fatalf("diff = %q, want A2T", got)
	}
	back, err := mutation.Apply("MAGV", set)
	if err != nil {
		t.Fatalf("apply diff: %v", err)
	}
	if back != "MTGV" {
		t.Fatalf("diff/apply inverse: got %q", back)
	}
}

func TestDiffLengthMismatch(t *testing.T) {
	_, err := mutation.Diff("MAGV", "MGV")
	var mismatch mutation.LengthMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected LengthMismatchError, got %v", err)
	}
}

func TestDiffWithIndelsDeletion(t *testing.T) {
	set, err := mutation.Diff("MAGV", "MGV", mutation.WithIndels())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	edits := set.Edits()
	if len(edits) != 1 {
		t.Fatalf("expected a single deletion edit, got %s", set)
	}
	want := mutation.Edit{Position: 2, Ref: "A", Alt: "-"}
	if edits[0] != want {
		t.Fatalf("deletion edit = %+v, want %+v", edits[0], want)
	}
	back, err := mutation.Apply("MAGV", set)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if back != "MGV" {
		t.Fatalf("re-apply = %q, want MGV", back)
	}
}

func TestDiffWithIndelsInsertion(t *testing.T) {
	set, err := mutation.Diff("MAGV", "MATMGV", mutation.WithIndels())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	back, err := mutation.Apply("MAGV", set)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if back != "MATMGV" {
		t.Fatalf("re-apply = %q, want MATMGV", back)
	}
}

func TestDiffWithIndelsMixed(t *testing.T) {
	base := "MAGVLKQ"
	target := "MTGVKQE"
	set, err := mutation.Diff(base, target, mutation.WithIndels())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	back, err := mutation.Apply(base, set)
	if err != nil {
		t.Fatalf("apply %s: %v", set, err)
	}
	if back != target {
		t.Fatalf("re-apply = %q, want %q (set %s)", back, target, set)
	}
}

func TestDiffDeterminism(t *testing.T) {
	base := "MAAGVKAA"
	target := "MAGVKA"
	first, err := mutation.Diff(base, target, mutation.WithIndels())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := mutation.Diff(base, target, mutation.WithIndels())
		if err != nil {
			t.Fatalf("diff #%d: %v", i, err)
		}
		if !again.Equal(first) {
			t.Fatalf("diff not deterministic: %s vs %s", again, first)
		}
	}
	back, err := mutation.Apply(base, first)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if back != target {
		t.Fatalf("re-apply = %q, want %q", back, target)
	}
}

func TestDiffLeftmostGapPreference(t *testing.T) {
	// Deleting one A from an AA run is ambiguous; the alignment must
	// resolve to the lower position.
	set, err := mutation.Diff("MAAG", "MAG", mutation.WithIndels())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	edits := set.Edits()
	if len(edits) != 1 {
		t.Fatalf("expected one deletion, got %s", set)
	}
	if edits[0].Position != 2 {
		t.Fatalf("gap position = %d, want leftmost 2", edits[0].Position)
	}
}

func TestDiffWildcardAlignsWithoutGaps(t *testing.T) {
	// X scores as a match during alignment, so it pairs with any symbol
	// instead of opening a gap, but the emitted edit still rewrites it.
	set, err := mutation.Diff("MXGV", "MTGV", mutation.WithIndels())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if got := set.String(); got != "X2T" {
		t.Fatalf("diff = %q, want X2T", got)
	}
	back, err := mutation.Apply("MXGV", set)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if back != "MTGV" {
		t.Fatalf("re-apply = %q, want MTGV", back)
	}
}
