package core

import "evocore/pkg/domain"

// RulesEngine re-exports the domain engine for callers wiring stores.
type RulesEngine = domain.RulesEngine

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine constructs an engine with the campaign invariants
// registered: referential integrity across lineage and labels, round
// ordering, and immutability of committed rounds.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ReferentialIntegrityRule())
	engine.Register(RoundOrderRule())
	engine.Register(RoundImmutabilityRule())
	return engine
}
