// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"evocore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Variant aliases domain.Variant for in-memory persistence operations.
	Variant = domain.Variant
	// Round aliases domain.Round.
	Round = domain.Round
	// Label aliases domain.Label.
	Label = domain.Label
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	variants map[string]Variant
	rounds   map[int]Round
	labels   map[string]Label
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Variants map[string]Variant `json:"variants"`
	Rounds   map[int]Round      `json:"rounds"`
	Labels   map[string]Label   `json:"labels"`
}

func newMemoryState() memoryState {
	return memoryState{
		variants: make(map[string]Variant),
		rounds:   make(map[int]Round),
		labels:   make(map[string]Label),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Variants: make(map[string]Variant, len(state.variants)),
		Rounds:   make(map[int]Round, len(state.rounds)),
		Labels:   make(map[string]Label, len(state.labels)),
	}
	for k, v := range state.variants {
		s.Variants[k] = cloneVariant(v)
	}
	for k, v := range state.rounds {
		s.Rounds[k] = cloneRound(v)
	}
	for k, v := range state.labels {
		s.Labels[k] = cloneLabel(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Variants {
		state.variants[k] = cloneVariant(v)
	}
	for k, v := range s.Rounds {
		state.rounds[k] = cloneRound(v)
	}
	for k, v := range s.Labels {
		state.labels[k] = cloneLabel(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots produced by older builds or edited by
// hand: nil buckets become empty, dangling references are dropped and the
// HasChildren flags are recomputed from the surviving parent links.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Variants == nil {
		snapshot.Variants = map[string]Variant{}
	}
	if snapshot.Rounds == nil {
		snapshot.Rounds = map[int]Round{}
	}
	if snapshot.Labels == nil {
		snapshot.Labels = map[string]Label{}
	}

	variantExists := func(id string) bool {
		_, ok := snapshot.Variants[id]
		return ok
	}

	// Repeat until stable so chains rooted at a missing ancestor drop fully.
	for {
		removed := false
		for id, variant := range snapshot.Variants {
			if variant.ParentID != nil && !variantExists(*variant.ParentID) {
				delete(snapshot.Variants, id)
				removed = true
			}
		}
		if !removed {
			break
		}
	}

	for id, variant := range snapshot.Variants {
		variant.HasChildren = false
		snapshot.Variants[id] = variant
	}
	for _, variant := range snapshot.Variants {
		if variant.ParentID == nil {
			continue
		}
		parent := snapshot.Variants[*variant.ParentID]
		parent.HasChildren = true
		// The frozen flag is not part of the serialized set notation, so it
		// is re-derived from the surviving parent links.
		parent.Mutations.Freeze()
		snapshot.Variants[*variant.ParentID] = parent
	}

	for id, label := range snapshot.Labels {
		if label.VariantID == "" || !variantExists(label.VariantID) {
			delete(snapshot.Labels, id)
		}
	}

	for index, round := range snapshot.Rounds {
		if round.Status == "" {
			round.Status = domain.StatusUnknown
		}
		snapshot.Rounds[index] = round
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.variants {
		cloned.variants[k] = cloneVariant(v)
	}
	for k, v := range s.rounds {
		cloned.rounds[k] = cloneRound(v)
	}
	for k, v := range s.labels {
		cloned.labels[k] = cloneLabel(v)
	}
	return cloned
}

func cloneVariant(v Variant) Variant {
	cp := v
	cp.Mutations = v.Mutations.Clone()
	if v.ParentID != nil {
		id := *v.ParentID
		cp.ParentID = &id
	}
	if v.RoundAdded != nil {
		r := *v.RoundAdded
		cp.RoundAdded = &r
	}
	cp.RoundsPutative = append([]int(nil), v.RoundsPutative...)
	cp.RoundsExperiment = append([]int(nil), v.RoundsExperiment...)
	return cp
}

func cloneRound(r Round) Round {
	cp := r
	cp.ExpectedLabels = append([]string(nil), r.ExpectedLabels...)
	if r.StartTime != nil {
		t := *r.StartTime
		cp.StartTime = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		cp.EndTime = &t
	}
	if len(r.Params) != 0 {
		cp.Params = append([]byte(nil), r.Params...)
	}
	return cp
}

func cloneLabel(l Label) Label {
	cp := l
	if l.Round != nil {
		r := *l.Round
		cp.Round = &r
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListVariants returns all variants within the transaction snapshot.
func (v transactionView) ListVariants() []Variant {
	out := make([]Variant, 0, len(v.state.variants))
	for _, variant := range v.state.variants {
		out = append(out, cloneVariant(variant))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListRounds returns all rounds ordered by index.
func (v transactionView) ListRounds() []Round {
	out := make([]Round, 0, len(v.state.rounds))
	for _, round := range v.state.rounds {
		out = append(out, cloneRound(round))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ListLabels returns all labels in the snapshot.
func (v transactionView) ListLabels() []Label {
	out := make([]Label, 0, len(v.state.labels))
	for _, label := range v.state.labels {
		out = append(out, cloneLabel(label))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindVariant retrieves a variant by ID from the snapshot.
func (v transactionView) FindVariant(id string) (Variant, bool) {
	variant, ok := v.state.variants[id]
	if !ok {
		return Variant{}, false
	}
	return cloneVariant(variant), true
}

// FindRound retrieves a round by index from the snapshot.
func (v transactionView) FindRound(index int) (Round, bool) {
	round, ok := v.state.rounds[index]
	if !ok {
		return Round{}, false
	}
	return cloneRound(round), true
}

// LabelsForVariant returns the labels attached to a variant, oldest first.
func (v transactionView) LabelsForVariant(id string) []Label {
	var out []Label
	for _, label := range v.state.labels {
		if label.VariantID == id {
			out = append(out, cloneLabel(label))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindVariant exposes variant lookup within the transaction scope.
func (tx *transaction) FindVariant(id string) (Variant, bool) {
	variant, ok := tx.state.variants[id]
	if !ok {
		return Variant{}, false
	}
	return cloneVariant(variant), true
}

// FindRound exposes round lookup within the transaction scope.
func (tx *transaction) FindRound(index int) (Round, bool) {
	round, ok := tx.state.rounds[index]
	if !ok {
		return Round{}, false
	}
	return cloneRound(round), true
}

// CreateVariant stores a new variant within the transaction.
func (tx *transaction) CreateVariant(v Variant) (Variant, error) {
	if v.ID == "" {
		v.ID = tx.store.newID()
	}
	if _, exists := tx.state.variants[v.ID]; exists {
		return Variant{}, fmt.Errorf("variant %q already exists", v.ID)
	}
	if v.ParentID != nil {
		parent, ok := tx.state.variants[*v.ParentID]
		if !ok {
			return Variant{}, fmt.Errorf("variant %q references unknown parent %q", v.ID, *v.ParentID)
		}
		parent.HasChildren = true
		parent.Mutations.Freeze()
		parent.UpdatedAt = tx.now
		tx.state.variants[parent.ID] = parent
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	tx.state.variants[v.ID] = cloneVariant(v)
	tx.recordChange(Change{Entity: domain.EntityVariant, Action: domain.ActionCreate, After: cloneVariant(v)})
	return cloneVariant(v), nil
}

// UpdateVariant applies mutator to a stored variant.
func (tx *transaction) UpdateVariant(id string, mutator func(*Variant) error) (Variant, error) {
	existing, ok := tx.state.variants[id]
	if !ok {
		return Variant{}, fmt.Errorf("variant %q not found", id)
	}
	before := cloneVariant(existing)
	updated := cloneVariant(existing)
	if err := mutator(&updated); err != nil {
		return Variant{}, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.variants[id] = cloneVariant(updated)
	tx.recordChange(Change{Entity: domain.EntityVariant, Action: domain.ActionUpdate, Before: before, After: cloneVariant(updated)})
	return cloneVariant(updated), nil
}

// DeleteVariant removes a variant. Variants with descendants or labels stay.
func (tx *transaction) DeleteVariant(id string) error {
	existing, ok := tx.state.variants[id]
	if !ok {
		return fmt.Errorf("variant %q not found", id)
	}
	for _, other := range tx.state.variants {
		if other.ParentID != nil && *other.ParentID == id {
			return fmt.Errorf("variant %q still has children", id)
		}
	}
	for _, label := range tx.state.labels {
		if label.VariantID == id {
			return fmt.Errorf("variant %q still has labels", id)
		}
	}
	delete(tx.state.variants, id)
	if existing.ParentID != nil {
		if parent, ok := tx.state.variants[*existing.ParentID]; ok {
			still := false
			for _, other := range tx.state.variants {
				if other.ParentID != nil && *other.ParentID == parent.ID {
					still = true
					break
				}
			}
			parent.HasChildren = still
			tx.state.variants[parent.ID] = parent
		}
	}
	tx.recordChange(Change{Entity: domain.EntityVariant, Action: domain.ActionDelete, Before: cloneVariant(existing)})
	return nil
}

// CreateRound stores a new round keyed by its index.
func (tx *transaction) CreateRound(r Round) (Round, error) {
	if r.Index < 0 {
		return Round{}, fmt.Errorf("round index %d must not be negative", r.Index)
	}
	if _, exists := tx.state.rounds[r.Index]; exists {
		return Round{}, fmt.Errorf("round %d already exists", r.Index)
	}
	if r.Status == "" {
		r.Status = domain.StatusUnknown
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.rounds[r.Index] = cloneRound(r)
	tx.recordChange(Change{Entity: domain.EntityRound, Action: domain.ActionCreate, After: cloneRound(r)})
	return cloneRound(r), nil
}

// UpdateRound applies mutator to a stored round.
func (tx *transaction) UpdateRound(index int, mutator func(*Round) error) (Round, error) {
	existing, ok := tx.state.rounds[index]
	if !ok {
		return Round{}, fmt.Errorf("round %d not found", index)
	}
	before := cloneRound(existing)
	updated := cloneRound(existing)
	if err := mutator(&updated); err != nil {
		return Round{}, err
	}
	updated.Index = existing.Index
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.rounds[index] = cloneRound(updated)
	tx.recordChange(Change{Entity: domain.EntityRound, Action: domain.ActionUpdate, Before: before, After: cloneRound(updated)})
	return cloneRound(updated), nil
}

// DeleteRound removes a round. Rounds carrying labels stay.
func (tx *transaction) DeleteRound(index int) error {
	existing, ok := tx.state.rounds[index]
	if !ok {
		return fmt.Errorf("round %d not found", index)
	}
	for _, label := range tx.state.labels {
		if label.Round != nil && *label.Round == index {
			return fmt.Errorf("round %d still has labels", index)
		}
	}
	delete(tx.state.rounds, index)
	tx.recordChange(Change{Entity: domain.EntityRound, Action: domain.ActionDelete, Before: cloneRound(existing)})
	return nil
}

// CreateLabel appends a label record. Labels are append-only and unique only
// by surrogate id, so replicate measurements of the same name and value all
// land as their own rows.
func (tx *transaction) CreateLabel(l Label) (Label, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.labels[l.ID]; exists {
		return Label{}, fmt.Errorf("label %q already exists", l.ID)
	}
	if _, ok := tx.state.variants[l.VariantID]; !ok {
		return Label{}, fmt.Errorf("label references unknown variant %q", l.VariantID)
	}
	l.CreatedAt = tx.now
	tx.state.labels[l.ID] = cloneLabel(l)
	tx.recordChange(Change{Entity: domain.EntityLabel, Action: domain.ActionCreate, After: cloneLabel(l)})
	return cloneLabel(l), nil
}

// GetVariant retrieves a variant by ID.
func (s *Store) GetVariant(id string) (Variant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	variant, ok := s.state.variants[id]
	if !ok {
		return Variant{}, false
	}
	return cloneVariant(variant), true
}

// ListVariants returns all stored variants ordered by ID.
func (s *Store) ListVariants() []Variant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListVariants()
}

// GetRound retrieves a round by index.
func (s *Store) GetRound(index int) (Round, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, ok := s.state.rounds[index]
	if !ok {
		return Round{}, false
	}
	return cloneRound(round), true
}

// ListRounds returns all stored rounds ordered by index.
func (s *Store) ListRounds() []Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListRounds()
}

// ListLabels returns all stored labels ordered by ID.
func (s *Store) ListLabels() []Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListLabels()
}

// LabelsForVariant returns a variant's labels ordered by creation time.
func (s *Store) LabelsForVariant(id string) []Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).LabelsForVariant(id)
}
