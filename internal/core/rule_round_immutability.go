package core

import (
	"context"
	"fmt"

	"evocore/pkg/domain"
)

// RoundImmutabilityRule blocks edits that rewrite sealed history: a committed
// round may not change anything but bookkeeping timestamps, no change may
// demote a committed round's status, and its label rows are frozen. The one
// sanctioned exception is appending a label flagged Corrected, the designated
// shape for post-commit measurement corrections.
func RoundImmutabilityRule() domain.Rule {
	return roundImmutabilityRule{}
}

type roundImmutabilityRule struct{}

func (roundImmutabilityRule) Name() string { return "round_immutability" }

func (roundImmutabilityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	for _, change := range changes {
		switch change.Entity {
		case domain.EntityRound:
			before, okBefore := change.Before.(domain.Round)
			if !okBefore || before.Status != domain.StatusComplete {
				continue
			}
			switch change.Action {
			case domain.ActionDelete:
				res.Violations = append(res.Violations, immutabilityViolation(before.Index, fmt.Sprintf("committed round %d cannot be deleted", before.Index)))
			case domain.ActionUpdate:
				after, ok := change.After.(domain.Round)
				if !ok {
					continue
				}
				if after.Status != domain.StatusComplete {
					res.Violations = append(res.Violations, immutabilityViolation(before.Index, fmt.Sprintf("committed round %d cannot be demoted to %s", before.Index, after.Status)))
				}
			}
		case domain.EntityLabel:
			label, index, ok := labelOnCompletedRound(view, change)
			if !ok {
				continue
			}
			switch change.Action {
			case domain.ActionCreate:
				if label.Corrected {
					continue
				}
				res.Violations = append(res.Violations, immutabilityViolation(index, fmt.Sprintf("committed round %d accepts only corrected label rows, label %q for variant %q is not flagged", index, label.Name, label.VariantID)))
			case domain.ActionDelete:
				res.Violations = append(res.Violations, immutabilityViolation(index, fmt.Sprintf("label %q for variant %q belongs to committed round %d and cannot be deleted", label.Name, label.VariantID, index)))
			}
		}
	}

	return res, nil
}

// labelOnCompletedRound extracts the label touched by the change and reports
// whether its round scope refers to a round that is already complete.
func labelOnCompletedRound(view domain.RuleView, change domain.Change) (domain.Label, int, bool) {
	payload := change.After
	if change.Action == domain.ActionDelete {
		payload = change.Before
	}
	label, ok := payload.(domain.Label)
	if !ok || label.Round == nil {
		return domain.Label{}, 0, false
	}
	round, ok := view.FindRound(*label.Round)
	if !ok || round.Status != domain.StatusComplete {
		return domain.Label{}, 0, false
	}
	return label, *label.Round, true
}

func immutabilityViolation(index int, message string) domain.Violation {
	return domain.Violation{
		Rule:     "round_immutability",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityRound,
		EntityID: fmt.Sprintf("round-%d", index),
	}
}
