// Package mutation implements the edit notation used to describe protein
// sequence variants: parsing and serializing mutation strings, canonical
// ordered sets of edits with set algebra, applying edit sets against a base
// sequence, and diffing two sequences back into an edit set.
package mutation

import (
	"regexp"
	"strconv"
	"strings"
)

// Wildcard is the symbol permitted in an alternate run to denote "any
// symbol" for combinatorial specifications.
const Wildcard = 'X'

// Kind classifies the structural shape of an edit.
type Kind int

// Edit kinds in canonical apply order for edits sharing an anchor position.
const (
	KindInsertion Kind = iota
	KindSubstitution
	KindDeletion
)

// Edit is one structural change at a 1-based position of an unmutated base
// sequence. Ref holds the reference symbols named by the edit (empty for an
// anchorless insertion). For substitutions and deletions Alt has the same
// width as Ref, with deletions spelled as a dash run. For anchored
// insertions Alt is Ref followed by the inserted run.
type Edit struct {
	Position int
	Ref      string
	Alt      string
}

// Kind reports the structural shape of the edit.
func (e Edit) Kind() Kind {
	switch {
	case e.Ref == "" || (len(e.Alt) > len(e.Ref) && strings.HasPrefix(e.Alt, e.Ref)):
		return KindInsertion
	case isDashRun(e.Alt):
		return KindDeletion
	default:
		return KindSubstitution
	}
}

// Width is the number of base symbols the edit consumes.
func (e Edit) Width() int { return len(e.Ref) }

// Inserted returns the run of symbols an insertion adds, or "" for other kinds.
func (e Edit) Inserted() string {
	if e.Kind() != KindInsertion {
		return ""
	}
	return e.Alt[len(e.Ref):]
}

// Validate checks the edit's named reference symbols against a concrete base
// sequence. Anchorless insertions only require the position to be within one
// past the end of the sequence.
func (e Edit) Validate(base string) error {
	if e.Ref == "" {
		if e.Position < 1 || e.Position > len(base)+1 {
			return ReferenceMismatchError{Edit: e, Found: ""}
		}
		return nil
	}
	start := e.Position - 1
	end := start + len(e.Ref)
	if start < 0 || end > len(base) || base[start:end] != e.Ref {
		found := ""
		if start >= 0 && start < len(base) {
			if end > len(base) {
				end = len(base)
			}
			found = base[start:end]
		}
		return ReferenceMismatchError{Edit: e, Found: found}
	}
	return nil
}

// String serializes the edit back into mutation notation. It is the inverse
// of Parse: Parse(e.String()) == e for every well-formed edit.
func (e Edit) String() string {
	pos := strconv.Itoa(e.Position)
	switch e.Kind() {
	case KindInsertion:
		if e.Ref == "" {
			return ">" + pos + bracket(e.Alt)
		}
		return e.Ref + pos + "[" + e.Inserted() + "]"
	default:
		return bracket(e.Ref) + pos + bracket(e.Alt)
	}
}

func bracket(run string) string {
	if len(run) == 1 {
		return run
	}
	return "[" + run + "]"
}

func isDashRun(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			return false
		}
	}
	return true
}

var editPattern = regexp.MustCompile(`^(>|\[[A-Z]+\]|[A-Z])?(\d+)(\[[A-Z-]+\]|[A-Z-])$`)

// Parse decodes a single mutation string into an Edit. It fails with a
// FormatError on malformed grammar; reference symbols are checked against an
// anchor sequence separately via Validate.
func Parse(s string) (Edit, error) {
	m := editPattern.FindStringSubmatch(s)
	if m == nil {
		return Edit{}, FormatError{Input: s, Reason: "does not match <ref><pos><alt>"}
	}
	ref, rawPos, alt := m[1], m[2], m[3]
	pos, err := strconv.Atoi(rawPos)
	if err != nil || pos < 1 {
		return Edit{}, FormatError{Input: s, Reason: "position must be >= 1"}
	}
	altBracketed := strings.HasPrefix(alt, "[")
	alt = strings.Trim(alt, "[]")

	if ref == ">" {
		// Anchorless insertion before pos.
		if strings.Contains(alt, "-") {
			return Edit{}, FormatError{Input: s, Reason: "insertion run cannot contain dashes"}
		}
		return Edit{Position: pos, Ref: "", Alt: alt}, nil
	}
	ref = strings.Trim(ref, "[]")

	switch {
	case isDashRun(alt):
		if ref == "" {
			return Edit{}, FormatError{Input: s, Reason: "deletion requires reference symbols"}
		}
		if len(alt) != len(ref) {
			return Edit{}, FormatError{Input: s, Reason: "dash run must match deleted length"}
		}
		return Edit{Position: pos, Ref: ref, Alt: alt}, nil
	case len(ref) == 1 && altBracketed:
		// Anchored insertion after pos: A2[TM] inserts TM after the anchor.
		if strings.Contains(alt, "-") {
			return Edit{}, FormatError{Input: s, Reason: "insertion run cannot contain dashes"}
		}
		return Edit{Position: pos, Ref: ref, Alt: ref + alt}, nil
	case ref == "":
		return Edit{}, FormatError{Input: s, Reason: "substitution requires a reference symbol"}
	case len(ref) != len(alt):
		return Edit{}, FormatError{Input: s, Reason: "reference and alternate widths differ"}
	case strings.Contains(alt, "-"):
		return Edit{}, FormatError{Input: s, Reason: "partial dash runs are not a valid alternate"}
	default:
		return Edit{Position: pos, Ref: ref, Alt: alt}, nil
	}
}

// less orders edits ascending by position; at equal positions insertions
// apply before substitutions before deletions, then alternate runs break the
// remaining ties so iteration order is total.
func less(a, b Edit) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if a.Kind() != b.Kind() {
		return a.Kind() < b.Kind()
	}
	if a.Alt != b.Alt {
		return a.Alt < b.Alt
	}
	return a.Ref < b.Ref
}
