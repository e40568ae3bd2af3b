package mutation

import (
	"errors"
	"fmt"
)

// ErrFrozenSet is returned when mutating a set that has been bound to a
// variant with descendants.
var ErrFrozenSet = errors.New("mutation set is frozen")

// FormatError reports a mutation string that does not match the notation
// grammar.
type FormatError struct {
	Input  string
	Reason string
}

func (e FormatError) Error() string {
	return fmt.Sprintf("malformed mutation %q: %s", e.Input, e.Reason)
}

// ReferenceMismatchError reports an edit whose named reference symbols
// disagree with the anchor sequence at the edit position.
type ReferenceMismatchError struct {
	Edit  Edit
	Found string
}

func (e ReferenceMismatchError) Error() string {
	return fmt.Sprintf("edit %s: reference %q does not match sequence %q at position %d", e.Edit, e.Edit.Ref, e.Found, e.Edit.Position)
}

// ConflictError reports overlapping or out-of-range edits detected while
// applying a set against a concrete base sequence.
type ConflictError struct {
	Edit   Edit
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("edit %s conflicts: %s", e.Edit, e.Reason)
}

// LengthMismatchError reports a substitution-only diff requested on
// sequences of unequal length.
type LengthMismatchError struct {
	LenA int
	LenB int
}

func (e LengthMismatchError) Error() string {
	return fmt.Sprintf("cannot diff sequences of unequal length (%d vs %d) without indels", e.LenA, e.LenB)
}
