package domain

import (
	"fmt"
	"sort"
)

// Library is an ordered, id-unique collection of variants together with the
// label sets attached to them. Libraries are value-ish working sets: they
// are built from store reads or strategy output and merged via Join.
type Library struct {
	order    []string
	variants map[string]Variant
	labels   map[string][]Label
}

// NewLibrary builds a library from the given variants, in order. Duplicate
// ids fail.
func NewLibrary(variants ...Variant) (Library, error) {
	lib := Library{
		variants: make(map[string]Variant, len(variants)),
		labels:   make(map[string][]Label),
	}
	for _, v := range variants {
		if err := lib.Add(v); err != nil {
			return Library{}, err
		}
	}
	return lib, nil
}

func (l *Library) init() {
	if l.variants == nil {
		l.variants = make(map[string]Variant)
	}
	if l.labels == nil {
		l.labels = make(map[string][]Label)
	}
}

// Add appends a variant, preserving insertion order. Adding an id already
// present fails.
func (l *Library) Add(v Variant) error {
	l.init()
	if _, exists := l.variants[v.ID]; exists {
		return fmt.Errorf("variant %q already in library", v.ID)
	}
	l.variants[v.ID] = v
	l.order = append(l.order, v.ID)
	return nil
}

// Len returns the number of member variants.
func (l Library) Len() int { return len(l.order) }

// Contains reports membership by id.
func (l Library) Contains(id string) bool {
	_, ok := l.variants[id]
	return ok
}

// Get returns a member variant by id.
func (l Library) Get(id string) (Variant, bool) {
	v, ok := l.variants[id]
	return v, ok
}

// Variants returns the members in insertion order.
func (l Library) Variants() []Variant {
	out := make([]Variant, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.variants[id])
	}
	return out
}

// IDs returns the member ids in insertion order.
func (l Library) IDs() []string {
	return append([]string(nil), l.order...)
}

// AttachLabel records a label against its member variant. Labels whose Key is
// already present are ignored, so repeated attachment and joins are
// duplicate-safe while replicate rows with distinct ids all attach. Labels
// for non-members fail.
func (l *Library) AttachLabel(label Label) error {
	l.init()
	if !l.Contains(label.VariantID) {
		return fmt.Errorf("label references variant %q not in library", label.VariantID)
	}
	for _, existing := range l.labels[label.VariantID] {
		if existing.Key() == label.Key() {
			return nil
		}
	}
	l.labels[label.VariantID] = append(l.labels[label.VariantID], label)
	return nil
}

// LabelsFor returns the labels attached to a member variant.
func (l Library) LabelsFor(id string) []Label {
	return append([]Label(nil), l.labels[id]...)
}

// Values returns the label values recorded for a member under the given
// name, optionally scoped to a round.
func (l Library) Values(id, name string, round *int) []float64 {
	var out []float64
	for _, label := range l.labels[id] {
		if label.Name == name && label.MatchesRound(round) {
			out = append(out, label.Value)
		}
	}
	return out
}

// hasLabels reports whether the member carries at least one label for every
// given name (or any label at all when names is empty), within the round
// filter.
func (l Library) hasLabels(id string, names []string, round *int) bool {
	labels := l.labels[id]
	if len(names) == 0 {
		for _, label := range labels {
			if label.MatchesRound(round) {
				return true
			}
		}
		return false
	}
	for _, name := range names {
		found := false
		for _, label := range labels {
			if label.Name == name && label.MatchesRound(round) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Labeled returns the sub-library of members carrying at least one label
// per given name (any name when names is empty), within the round filter.
func (l Library) Labeled(names []string, round *int) Library {
	return l.partition(names, round, true)
}

// Unlabeled returns the complement of Labeled under the same filters.
func (l Library) Unlabeled(names []string, round *int) Library {
	return l.partition(names, round, false)
}

func (l Library) partition(names []string, round *int, keepLabeled bool) Library {
	out, _ := NewLibrary()
	for _, id := range l.order {
		if l.hasLabels(id, names, round) == keepLabeled {
			_ = out.Add(l.variants[id])
			for _, label := range l.labels[id] {
				_ = out.AttachLabel(label)
			}
		}
	}
	return out
}

// Join returns a new library whose member set is the union by id. When the
// same id appears in both, the label sets are unioned duplicate-safe.
func (l Library) Join(other Library) Library {
	out, _ := NewLibrary()
	merge := func(src Library) {
		for _, id := range src.order {
			if !out.Contains(id) {
				_ = out.Add(src.variants[id])
			}
			for _, label := range src.labels[id] {
				_ = out.AttachLabel(label)
			}
		}
	}
	merge(l)
	merge(other)
	return out
}

// rootKey follows parent references within the library; the first ancestor
// not itself a member (or the topmost member root) identifies the lineage.
func (l Library) rootKey(id string) string {
	for {
		v, ok := l.variants[id]
		if !ok {
			return id
		}
		if v.ParentID == nil {
			return v.ID
		}
		id = *v.ParentID
	}
}

// SingleParent reports whether every member descends from the same root
// ancestor.
func (l Library) SingleParent() bool {
	if len(l.order) == 0 {
		return false
	}
	root := l.rootKey(l.order[0])
	for _, id := range l.order[1:] {
		if l.rootKey(id) != root {
			return false
		}
	}
	return true
}

// Parent returns the shared root ancestor id. It is only derivable when
// SingleParent holds.
func (l Library) Parent() (string, bool) {
	if !l.SingleParent() {
		return "", false
	}
	return l.rootKey(l.order[0]), true
}

// VariableResidues returns the sorted set of positions touched by any
// member's edits.
func (l Library) VariableResidues() []int {
	seen := make(map[int]struct{})
	for _, id := range l.order {
		for _, p := range l.variants[id].Mutations.Positions() {
			seen[p] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Statistics summarizes a library.
type Statistics struct {
	Total     int `json:"total"`
	Labeled   int `json:"labeled"`
	Unlabeled int `json:"unlabeled"`
	// EditsPerResidue counts distinct member edits touching each variable
	// residue. Populated only when the library shares a single root.
	EditsPerResidue map[int]int `json:"edits_per_residue,omitempty"`
}

// Statistics returns member counts and, for single-parent libraries, the
// distribution of edits across variable residues.
func (l Library) Statistics() Statistics {
	stats := Statistics{
		Total:     l.Len(),
		Labeled:   l.Labeled(nil, nil).Len(),
		Unlabeled: l.Unlabeled(nil, nil).Len(),
	}
	if l.SingleParent() {
		stats.EditsPerResidue = make(map[int]int)
		for _, id := range l.order {
			for _, p := range l.variants[id].Mutations.Positions() {
				stats.EditsPerResidue[p]++
			}
		}
	}
	return stats
}
