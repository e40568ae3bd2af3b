package core

import (
	"sort"

	"evocore/pkg/domain"
)

// roundPutative returns the variants stamped as candidates for the round.
func roundPutative(view domain.TransactionView, index int) []Variant {
	var out []Variant
	for _, v := range view.ListVariants() {
		if v.PutativeIn(index) {
			out = append(out, v)
		}
	}
	return out
}

// roundExperiment returns the variants put forward for measurement in the round.
func roundExperiment(view domain.TransactionView, index int) []Variant {
	var out []Variant
	for _, v := range view.ListVariants() {
		if v.ExperimentIn(index) {
			out = append(out, v)
		}
	}
	return out
}

// missingLabels reports, per experimental variant, the expected label names
// not yet recorded for the round. An empty map means the round is fully
// labeled. A round with no declared expectations accepts any one round-scoped
// label as evidence.
func missingLabels(view domain.TransactionView, round Round) map[string][]string {
	missing := make(map[string][]string)
	for _, v := range roundExperiment(view, round.Index) {
		present := make(map[string]bool)
		for _, label := range view.LabelsForVariant(v.ID) {
			if label.Round != nil && *label.Round == round.Index {
				present[label.Name] = true
			}
		}
		if len(round.ExpectedLabels) == 0 {
			if len(present) == 0 {
				missing[v.ID] = []string{"any"}
			}
			continue
		}
		var absent []string
		for _, name := range round.ExpectedLabels {
			if !present[name] {
				absent = append(absent, name)
			}
		}
		if len(absent) > 0 {
			sort.Strings(absent)
			missing[v.ID] = absent
		}
	}
	return missing
}

// deriveStatus recomputes a round's lifecycle state from store evidence.
// Completion is sticky; everything below it is derived from predecessor
// state, candidate stamps, experiment stamps and recorded labels, which makes
// the derivation safe to rerun after a crash.
func deriveStatus(view domain.TransactionView, round Round) RoundStatus {
	if round.Status == StatusComplete {
		return StatusComplete
	}
	if round.Index > 0 {
		prev, ok := view.FindRound(round.Index - 1)
		if !ok || prev.Status != StatusComplete {
			return StatusNotReady
		}
	}
	experiment := roundExperiment(view, round.Index)
	if len(experiment) > 0 {
		if len(missingLabels(view, round)) == 0 {
			return StatusLabeled
		}
		return StatusSelected
	}
	if len(roundPutative(view, round.Index)) > 0 {
		return StatusGenerated
	}
	return StatusReady
}

// labeledCount returns how many experimental variants carry every expected
// label for the round.
func labeledCount(view domain.TransactionView, round Round) int {
	experiment := roundExperiment(view, round.Index)
	missing := missingLabels(view, round)
	count := 0
	for _, v := range experiment {
		if _, incomplete := missing[v.ID]; !incomplete {
			count++
		}
	}
	return count
}
