package mutation

import "strings"

// Apply materializes the sequence produced by applying the set against a
// base sequence. All positions are interpreted in the coordinates of the
// unmutated base regardless of length changes introduced by earlier edits.
// Reference symbols that disagree with the base fail with a
// ReferenceMismatchError. Overlapping reference spans or out-of-range
// positions fail with a ConflictError. The empty set returns the base
// unchanged.
func Apply(base string, set Set) (string, error) {
	edits := set.Edits()
	if len(edits) == 0 {
		return base, nil
	}

	var out strings.Builder
	out.Grow(len(base) + 8)
	cursor := 1 // next unconsumed 1-based base position

	for _, e := range edits {
		if e.Ref != "" {
			start, end := e.Position-1, e.Position-1+len(e.Ref)
			if start >= 0 && end <= len(base) && base[start:end] != e.Ref {
				return "", ReferenceMismatchError{Edit: e, Found: base[start:end]}
			}
		}
		if e.Position < cursor {
			return "", ConflictError{Edit: e, Reason: "overlaps a previously applied edit"}
		}
		switch e.Kind() {
		case KindInsertion:
			if e.Ref == "" {
				// Insert before the position without consuming it.
				if e.Position > len(base)+1 {
					return "", ConflictError{Edit: e, Reason: "position beyond end of sequence"}
				}
				out.WriteString(base[cursor-1 : e.Position-1])
				out.WriteString(e.Alt)
				cursor = e.Position
				continue
			}
			fallthrough
		default:
			end := e.Position - 1 + e.Width()
			if end > len(base) {
				return "", ConflictError{Edit: e, Reason: "reference span beyond end of sequence"}
			}
			out.WriteString(base[cursor-1 : e.Position-1])
			if e.Kind() != KindDeletion {
				out.WriteString(e.Alt)
			}
			cursor = end + 1
		}
	}
	if cursor <= len(base) {
		out.WriteString(base[cursor-1:])
	}
	return out.String(), nil
}
