package mutation

import (
	"encoding/json"
	"hash/fnv"
	"sort"
	"strings"
)

// Set is a collection of edits with set semantics: uniqueness by
// (position, reference, alternate) and a canonical iteration order so two
// sets over the same edits always serialize and apply identically.
//
// The zero value is an empty, usable set. Sets are pure data: they carry no
// sequence context, so union/intersection/difference can be computed across
// variants without materializing anything.
type Set struct {
	edits  map[Edit]struct{}
	frozen bool
}

// NewSet builds a set from the given edits, discarding duplicates.
func NewSet(edits ...Edit) Set {
	s := Set{edits: make(map[Edit]struct{}, len(edits))}
	for _, e := range edits {
		s.edits[e] = struct{}{}
	}
	return s
}

// ParseSet decodes a semicolon-joined mutation string into a set. Each term
// is parsed independently; the first malformed term aborts with its
// FormatError. An empty input yields the empty set.
func ParseSet(s string) (Set, error) {
	if strings.TrimSpace(s) == "" {
		return NewSet(), nil
	}
	terms := strings.Split(s, ";")
	edits := make([]Edit, 0, len(terms))
	for _, term := range terms {
		e, err := Parse(strings.TrimSpace(term))
		if err != nil {
			return Set{}, err
		}
		edits = append(edits, e)
	}
	return NewSet(edits...), nil
}

// Len returns the number of distinct edits.
func (s Set) Len() int { return len(s.edits) }

// Contains reports membership by (position, reference, alternate).
func (s Set) Contains(e Edit) bool {
	_, ok := s.edits[e]
	return ok
}

// Edits returns the members in canonical order: ascending position, with
// insertions before substitutions before deletions at a shared position.
func (s Set) Edits() []Edit {
	out := make([]Edit, 0, len(s.edits))
	for e := range s.edits {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Add inserts an edit in place. Adding to a frozen set fails with
// ErrFrozenSet.
func (s *Set) Add(e Edit) error {
	if s.frozen {
		return ErrFrozenSet
	}
	if s.edits == nil {
		s.edits = make(map[Edit]struct{})
	}
	s.edits[e] = struct{}{}
	return nil
}

// Discard removes an edit in place if present. Discarding from a frozen set
// fails with ErrFrozenSet.
func (s *Set) Discard(e Edit) error {
	if s.frozen {
		return ErrFrozenSet
	}
	delete(s.edits, e)
	return nil
}

// Freeze marks the set immutable. Used once the set has been applied to
// produce a variant that other variants descend from.
func (s *Set) Freeze() { s.frozen = true }

// Frozen reports whether in-place mutation is still permitted.
func (s Set) Frozen() bool { return s.frozen }

// Clone returns an independent copy sharing no state, frozen flag included.
func (s Set) Clone() Set {
	out := NewSet()
	for e := range s.edits {
		out.edits[e] = struct{}{}
	}
	out.frozen = s.frozen
	return out
}

// Union returns a new unfrozen set holding edits present in either operand.
func (s Set) Union(other Set) Set {
	out := NewSet()
	for e := range s.edits {
		out.edits[e] = struct{}{}
	}
	for e := range other.edits {
		out.edits[e] = struct{}{}
	}
	return out
}

// Intersect returns a new set holding edits present in both operands.
func (s Set) Intersect(other Set) Set {
	out := NewSet()
	for e := range s.edits {
		if other.Contains(e) {
			out.edits[e] = struct{}{}
		}
	}
	return out
}

// Difference returns a new set holding edits of s absent from other.
func (s Set) Difference(other Set) Set {
	out := NewSet()
	for e := range s.edits {
		if !other.Contains(e) {
			out.edits[e] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold the same edits.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for e := range s.edits {
		if !other.Contains(e) {
			return false
		}
	}
	return true
}

// Positions returns the sorted distinct base positions touched by any edit.
func (s Set) Positions() []int {
	seen := make(map[int]struct{}, len(s.edits))
	for e := range s.edits {
		width := e.Width()
		if width == 0 {
			width = 1
		}
		for p := e.Position; p < e.Position+width; p++ {
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

// String serializes the set as its canonical semicolon-joined notation.
func (s Set) String() string {
	edits := s.Edits()
	terms := make([]string, len(edits))
	for i, e := range edits {
		terms[i] = e.String()
	}
	return strings.Join(terms, ";")
}

// Hash returns a stable 64-bit hash of the canonical serialization, so sets
// can be compared or bucketed without ordering concerns.
func (s Set) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s.String()))
	return h.Sum64()
}

// MarshalJSON encodes the set as its canonical notation string.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a canonical notation string.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
