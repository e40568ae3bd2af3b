package core

import (
	"context"
	"fmt"

	"evocore/pkg/domain"
)

// RoundOrderRule enforces campaign ordering: round indices must be
// non-negative, gaps in the index sequence are flagged, and a round cannot
// progress past not_ready while its predecessor is incomplete. Gap detection
// is a warning so historical imports load; ordering violations block.
func RoundOrderRule() domain.Rule {
	return roundOrderRule{}
}

type roundOrderRule struct{}

func (roundOrderRule) Name() string { return "round_order" }

func (roundOrderRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	rounds := view.ListRounds()
	byIndex := make(map[int]domain.Round, len(rounds))
	for _, r := range rounds {
		byIndex[r.Index] = r
	}

	for _, r := range rounds {
		if r.Index < 0 {
			res.Violations = append(res.Violations, orderViolation(r.Index, domain.SeverityBlock, fmt.Sprintf("round index %d is negative", r.Index)))
			continue
		}
		if r.Index == 0 {
			continue
		}
		prev, ok := byIndex[r.Index-1]
		if !ok {
			res.Violations = append(res.Violations, orderViolation(r.Index, domain.SeverityWarn, fmt.Sprintf("round %d has no predecessor round %d", r.Index, r.Index-1)))
			continue
		}
		if prev.Status != domain.StatusComplete && r.Status.Rank() > domain.StatusNotReady.Rank() {
			res.Violations = append(res.Violations, orderViolation(r.Index, domain.SeverityBlock, fmt.Sprintf("round %d progressed to %s while round %d is %s", r.Index, r.Status, prev.Index, prev.Status)))
		}
	}

	return res, nil
}

func orderViolation(index int, severity domain.Severity, message string) domain.Violation {
	return domain.Violation{
		Rule:     "round_order",
		Severity: severity,
		Message:  message,
		Entity:   domain.EntityRound,
		EntityID: fmt.Sprintf("round-%d", index),
	}
}
