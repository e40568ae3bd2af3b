package core

import (
	"context"
	"fmt"

	"evocore/pkg/domain"
)

// ReferentialIntegrityRule enforces lineage and label reference constraints:
// parents must exist, parent chains must be acyclic, roots must carry a
// sequence, and labels must point at stored variants.
func ReferentialIntegrityRule() domain.Rule {
	return referentialIntegrityRule{}
}

type referentialIntegrityRule struct{}

func (referentialIntegrityRule) Name() string { return "referential_integrity" }

func (referentialIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	variants := view.ListVariants()
	index := make(map[string]domain.Variant, len(variants))
	for _, v := range variants {
		index[v.ID] = v
	}

	for _, v := range variants {
		if v.ParentID == nil {
			if v.Sequence == "" {
				res.Violations = append(res.Violations, integrityViolation(v.ID, fmt.Sprintf("root variant %s carries no sequence", v.ID)))
			}
			continue
		}
		if *v.ParentID == v.ID {
			res.Violations = append(res.Violations, integrityViolation(v.ID, fmt.Sprintf("variant %s references itself as parent", v.ID)))
			continue
		}
		if _, ok := index[*v.ParentID]; !ok {
			res.Violations = append(res.Violations, integrityViolation(v.ID, fmt.Sprintf("variant %s references missing parent %s", v.ID, *v.ParentID)))
			continue
		}
		if hasCycle(index, v.ID) {
			res.Violations = append(res.Violations, integrityViolation(v.ID, fmt.Sprintf("variant %s sits on a lineage cycle", v.ID)))
		}
	}

	for _, label := range view.ListLabels() {
		if _, ok := index[label.VariantID]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "referential_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("label %s references missing variant %s", label.ID, label.VariantID),
				Entity:   domain.EntityLabel,
				EntityID: label.ID,
			})
		}
		if label.Name == "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "referential_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("label %s has no name", label.ID),
				Entity:   domain.EntityLabel,
				EntityID: label.ID,
			})
		}
	}

	return res, nil
}

func hasCycle(index map[string]domain.Variant, id string) bool {
	seen := make(map[string]struct{})
	for {
		v, ok := index[id]
		if !ok || v.ParentID == nil {
			return false
		}
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}
		id = *v.ParentID
	}
}

func integrityViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "referential_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityVariant,
		EntityID: entityID,
	}
}
