// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by evocore: variants in a lineage graph,
// measurement labels, libraries, and campaign rounds.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"evocore/pkg/mutation"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityVariant identifies a sequence variant record.
	EntityVariant EntityType = "variant"
	// EntityRound identifies a campaign round record.
	EntityRound EntityType = "round"
	// EntityLabel identifies a measurement label record.
	EntityLabel EntityType = "label"
)

// RoundStatus represents the canonical round lifecycle states.
type RoundStatus string

// Round statuses in strict forward order. A round reports StatusUnknown only
// while detached from a persistent store.
const (
	StatusUnknown  RoundStatus = "unknown"
	StatusNotReady RoundStatus = "not_ready"
	StatusReady    RoundStatus = "ready"
	// StatusGenerated means the putative library has been produced.
	StatusGenerated RoundStatus = "generated"
	// StatusSelected means the experiment library has been chosen.
	StatusSelected RoundStatus = "selected"
	// StatusLabeled means every selected variant carries its expected labels.
	StatusLabeled RoundStatus = "labeled"
	// StatusComplete locks the round; it is terminal.
	StatusComplete RoundStatus = "complete"
)

var statusRank = map[RoundStatus]int{
	StatusNotReady:  0,
	StatusReady:     1,
	StatusGenerated: 2,
	StatusSelected:  3,
	StatusLabeled:   4,
	StatusComplete:  5,
}

// Rank returns the forward-order index of the status, or -1 for unknown.
func (s RoundStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Variant is a node in the lineage graph: either a root holding a concrete
// sequence, or a child holding an edit set relative to its parent. Parent
// references are IDs resolved through the arena, never pointers, so the
// graph is acyclic by construction.
type Variant struct {
	Base
	// ParentID references the parent variant; nil for a root.
	ParentID *string `json:"parent_id"`
	// Mutations is the edit set relative to the parent; empty for a root.
	Mutations mutation.Set `json:"mutations"`
	// Sequence is the concrete residue string. Only roots carry one; child
	// sequences are materialized on demand.
	Sequence string `json:"sequence,omitempty"`
	// RoundAdded is the round in which the variant first entered the store.
	RoundAdded *int `json:"round_added"`
	// RoundsPutative lists the rounds that proposed the variant as a candidate.
	RoundsPutative []int `json:"rounds_putative"`
	// RoundsExperiment lists the rounds that put the variant forward for
	// laboratory measurement.
	RoundsExperiment []int `json:"rounds_experiment"`
	// HasChildren is set once another variant references this one as its
	// parent; the edit set is frozen from then on.
	HasChildren bool `json:"has_children"`
}

// Mutable reports whether the variant's edit set may still change. It
// becomes false permanently once the variant has descendants or has been
// put forward for measurement, since labels refer to the realized sequence.
func (v Variant) Mutable() bool { return !v.HasChildren && len(v.RoundsExperiment) == 0 }

// IsRoot reports whether the variant carries its own sequence.
func (v Variant) IsRoot() bool { return v.ParentID == nil }

// StampPutative records a proposing round exactly once.
func (v *Variant) StampPutative(round int) {
	v.RoundsPutative = appendRound(v.RoundsPutative, round)
}

// StampExperiment records a selecting round exactly once.
func (v *Variant) StampExperiment(round int) {
	v.RoundsExperiment = appendRound(v.RoundsExperiment, round)
}

// PutativeIn reports whether the variant was proposed in the given round.
func (v Variant) PutativeIn(round int) bool { return containsRound(v.RoundsPutative, round) }

// ExperimentIn reports whether the variant was selected in the given round.
func (v Variant) ExperimentIn(round int) bool { return containsRound(v.RoundsExperiment, round) }

func appendRound(rounds []int, round int) []int {
	if containsRound(rounds, round) {
		return rounds
	}
	return append(rounds, round)
}

func containsRound(rounds []int, round int) bool {
	for _, r := range rounds {
		if r == round {
			return true
		}
	}
	return false
}

// SequenceID derives a content-hash identity for a materialized sequence,
// used when no user label is supplied.
func SequenceID(sequence string) string {
	sum := sha256.Sum256([]byte(sequence))
	return hex.EncodeToString(sum[:])[:12]
}

// Label is one named measured or assigned value attached to a variant,
// optionally scoped to a round. A variant carries a label set, not a single
// value: replicate measurements coexist, and corrections are appended as new
// rows flagged Corrected rather than edited in place.
type Label struct {
	ID        string    `json:"id"`
	VariantID string    `json:"variant_id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Round     *int      `json:"round"`
	Corrected bool      `json:"corrected"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the duplicate-detection identity used by library attachment
// and joins. Stored rows are told apart by surrogate id, which lets replicate
// measurements with equal values coexist; rows without an id fall back to
// the value tuple.
func (l Label) Key() string {
	if l.ID != "" {
		return "id\x00" + l.ID
	}
	round := ""
	if l.Round != nil {
		data, _ := json.Marshal(*l.Round)
		round = string(data)
	}
	value, _ := json.Marshal(l.Value)
	return l.VariantID + "\x00" + l.Name + "\x00" + string(value) + "\x00" + round
}

// MatchesRound reports whether the label is in scope for the given round
// filter (nil matches any round).
func (l Label) MatchesRound(round *int) bool {
	if round == nil {
		return true
	}
	return l.Round != nil && *l.Round == *round
}

// Round is one propose/select/measure cycle of a campaign.
type Round struct {
	Index     int         `json:"index"`
	Status    RoundStatus `json:"status"`
	Notes     string      `json:"notes"`
	StartTime *time.Time  `json:"start_time"`
	EndTime   *time.Time  `json:"end_time"`
	// Params is an opaque, versioned configuration blob owned by the
	// strategy that drives the round.
	Params json.RawMessage `json:"params,omitempty"`
	// ExpectedLabels names the measurements a selected variant must carry
	// before the round can be completed.
	ExpectedLabels []string `json:"expected_labels"`
	// Size and LabeledSize are aggregate counts over the selected library.
	Size        int       `json:"size"`
	LabeledSize int       `json:"labeled_size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured for rule evaluation.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
