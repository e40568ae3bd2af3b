package domain

import (
	"fmt"
	"strings"
)

// CampaignStateError reports a round transition invoked out of order. It
// carries the current status and the attempted action so interactive callers
// can present an actionable message.
type CampaignStateError struct {
	Status RoundStatus
	Action string
}

func (e CampaignStateError) Error() string {
	return fmt.Sprintf("cannot %s for round with status %q", e.Action, e.Status)
}

// IncompleteLabelsError reports selected variants that lack at least one
// label for the round's expected label names.
type IncompleteLabelsError struct {
	RoundIndex int
	// Missing maps variant id to the expected label names it lacks.
	Missing map[string][]string
}

func (e IncompleteLabelsError) Error() string {
	ids := make([]string, 0, len(e.Missing))
	for id := range e.Missing {
		ids = append(ids, id)
	}
	return fmt.Sprintf("round %d: %d selected variants missing expected labels (%s)", e.RoundIndex, len(e.Missing), strings.Join(ids, ", "))
}

// ImmutabilityViolationError reports an attempted mutation of a completed
// round or of records locked by it, irrespective of the field targeted.
type ImmutabilityViolationError struct {
	RoundIndex int
	Action     string
}

func (e ImmutabilityViolationError) Error() string {
	return fmt.Sprintf("round %d is complete: %s is not permitted", e.RoundIndex, e.Action)
}

// ImmutableParentError reports an attempt to alter a variant's edit set
// after descendants exist.
type ImmutableParentError struct {
	VariantID string
}

func (e ImmutableParentError) Error() string {
	return fmt.Sprintf("variant %q has descendants: its edit set is immutable", e.VariantID)
}
