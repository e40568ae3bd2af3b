package core

import (
	"context"
	"fmt"
	"time"

	"evocore/internal/infra/persistence/memory"
	"evocore/pkg/domain"
	"evocore/pkg/mutation"
)

// Service exposes higher-level transactional campaign operations: variant
// bookkeeping, round lifecycle transitions and label ingestion. Every
// operation runs inside a store transaction so the rules engine sees each
// change set atomically.
type Service struct {
	store   domain.PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// Option customizes service construction.
type Option func(*Service)

// WithClock overrides the service time source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger attaches a structured logger to service operations.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder attaches an operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		s.metrics = rec
	}
}

// WithTracer attaches a tracer opening a span per operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithAuditRecorder attaches a compliance audit sink.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Service) {
		s.audit = rec
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// run wraps an operation with tracing, metrics, logging and audit capture.
// fn returns the id of the primary entity touched, for the audit trail.
func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) (string, error)) error {
	start := s.clock.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	entityID, err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, duration)
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "entity_id", entityID, "error", err)
		s.recordAuditError(ctx, operation, entityID, duration, err)
		return err
	}
	s.logger.Debug("operation complete", "operation", operation, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, operation, entityID, duration)
	return nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	s.recordAudit(ctx, operation, entityID, duration, AuditStatusSuccess, "")
}

func (s *Service) recordAuditError(ctx context.Context, operation, entityID string, duration time.Duration, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.recordAudit(ctx, operation, entityID, duration, AuditStatusError, msg)
}

func (s *Service) recordAudit(ctx context.Context, operation, entityID string, duration time.Duration, status AuditStatus, errMsg string) {
	if s.audit == nil {
		return
	}
	profile, ok := auditProfiles[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    profile.entity,
		Action:    profile.action,
		EntityID:  entityID,
		Status:    status,
		Error:     errMsg,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

// CreateRootVariant registers a campaign root carrying a concrete sequence.
// When id is empty a content-hash identifier is derived from the sequence.
func (s *Service) CreateRootVariant(ctx context.Context, sequence, id string) (Variant, Result, error) {
	var created Variant
	var res Result
	err := s.run(ctx, "create_root_variant", func(ctx context.Context) (string, error) {
		if sequence == "" {
			return id, fmt.Errorf("root variant requires a sequence")
		}
		if id == "" {
			id = domain.SequenceID(sequence)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateVariant(Variant{Base: Base{ID: id}, Sequence: sequence})
			return txErr
		})
		return id, err
	})
	return created, res, err
}

// CreateVariant registers a child variant defined by an edit set against its
// parent. The set must apply cleanly to the parent's materialized sequence.
// When id is empty a content-hash identifier is derived from the realized
// child sequence.
func (s *Service) CreateVariant(ctx context.Context, parentID string, set mutation.Set, id string) (Variant, Result, error) {
	var created Variant
	var res Result
	err := s.run(ctx, "create_variant", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			graph := NewLineageGraph()
			graph.Load(tx.Snapshot().ListVariants())
			parentSeq, seqErr := graph.SequenceOf(parentID)
			if seqErr != nil {
				return seqErr
			}
			realized, applyErr := mutation.Apply(parentSeq, set)
			if applyErr != nil {
				return applyErr
			}
			if id == "" {
				id = domain.SequenceID(realized)
			}
			var txErr error
			created, txErr = tx.CreateVariant(Variant{
				Base:      Base{ID: id},
				ParentID:  &parentID,
				Mutations: set,
			})
			return txErr
		})
		return id, err
	})
	return created, res, err
}

// AddMutations extends a mutable variant's edit set. Variants with
// descendants or experiment stamps reject further edits.
func (s *Service) AddMutations(ctx context.Context, id string, edits ...mutation.Edit) (Variant, Result, error) {
	var updated Variant
	var res Result
	err := s.run(ctx, "add_mutations", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateVariant(id, func(v *Variant) error {
				if !v.Mutable() {
					return domain.ImmutableParentError{VariantID: id}
				}
				next := v.Mutations.Clone()
				for _, e := range edits {
					if addErr := next.Add(e); addErr != nil {
						return addErr
					}
				}
				v.Mutations = next
				return nil
			})
			if txErr != nil {
				return txErr
			}
			// The extended set must still realize against the parent chain.
			graph := NewLineageGraph()
			graph.Load(tx.Snapshot().ListVariants())
			_, seqErr := graph.SequenceOf(id)
			return seqErr
		})
		return id, err
	})
	return updated, res, err
}

// Variant retrieves a stored variant.
func (s *Service) Variant(id string) (Variant, bool) {
	return s.store.GetVariant(id)
}

// Variants lists all stored variants.
func (s *Service) Variants() []Variant {
	return s.store.ListVariants()
}

// Round retrieves a stored round.
func (s *Service) Round(index int) (Round, bool) {
	return s.store.GetRound(index)
}

// Rounds lists all stored rounds ordered by index.
func (s *Service) Rounds() []Round {
	return s.store.ListRounds()
}

// SequenceOf materializes the concrete sequence for a stored variant.
func (s *Service) SequenceOf(ctx context.Context, id string) (string, error) {
	var seq string
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		graph := NewLineageGraph()
		graph.Load(view.ListVariants())
		var gErr error
		seq, gErr = graph.SequenceOf(id)
		return gErr
	})
	return seq, err
}

// Graph loads the full lineage graph from the store.
func (s *Service) Graph(ctx context.Context) (*LineageGraph, error) {
	graph := NewLineageGraph()
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		graph.Load(view.ListVariants())
		return nil
	})
	return graph, err
}

func libraryFromView(view domain.TransactionView, keep func(Variant) bool) Library {
	lib, _ := domain.NewLibrary()
	for _, v := range view.ListVariants() {
		if keep != nil && !keep(v) {
			continue
		}
		_ = lib.Add(v)
		for _, label := range view.LabelsForVariant(v.ID) {
			_ = lib.AttachLabel(label)
		}
	}
	return lib
}

// CampaignLibrary returns every stored variant with its labels attached.
func (s *Service) CampaignLibrary(ctx context.Context) (Library, error) {
	var lib Library
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		lib = libraryFromView(view, nil)
		return nil
	})
	return lib, err
}

// PutativeLibrary returns the candidate library proposed for a round.
func (s *Service) PutativeLibrary(ctx context.Context, index int) (Library, error) {
	var lib Library
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		lib = libraryFromView(view, func(v Variant) bool { return v.PutativeIn(index) })
		return nil
	})
	return lib, err
}

// ExperimentLibrary returns the measured subset selected for a round.
func (s *Service) ExperimentLibrary(ctx context.Context, index int) (Library, error) {
	var lib Library
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		lib = libraryFromView(view, func(v Variant) bool { return v.ExperimentIn(index) })
		return nil
	})
	return lib, err
}

// CreateRound registers a round at the given index. Its status is derived
// immediately so a round behind an incomplete predecessor starts not_ready.
func (s *Service) CreateRound(ctx context.Context, round Round) (Round, Result, error) {
	var created Round
	var res Result
	err := s.run(ctx, "create_round", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			round.Status = deriveStatus(tx.Snapshot(), round)
			var txErr error
			created, txErr = tx.CreateRound(round)
			return txErr
		})
		return fmt.Sprintf("round-%d", round.Index), err
	})
	return created, res, err
}

// RoundStatus derives the current lifecycle state of a round from store
// evidence and persists the transition when it moved.
func (s *Service) RoundStatus(ctx context.Context, index int) (RoundStatus, error) {
	var status RoundStatus
	err := s.run(ctx, "recover_round", func(ctx context.Context) (string, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			round, ok := tx.FindRound(index)
			if !ok {
				return fmt.Errorf("round %d not found", index)
			}
			status = deriveStatus(tx.Snapshot(), round)
			if status == round.Status {
				return nil
			}
			_, txErr := tx.UpdateRound(index, func(r *Round) error {
				r.Status = status
				r.LabeledSize = labeledCount(tx.Snapshot(), *r)
				return nil
			})
			return txErr
		})
		return fmt.Sprintf("round-%d", index), err
	})
	return status, err
}

// GenerateLibrary runs the generator against the accumulated campaign and
// stamps the proposals as the round's candidate library. The round must be
// ready.
func (s *Service) GenerateLibrary(ctx context.Context, index int, gen Generator) (Library, Result, error) {
	var lib Library
	var res Result
	err := s.run(ctx, "generate_library", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			round, ok := tx.FindRound(index)
			if !ok {
				return fmt.Errorf("round %d not found", index)
			}
			status := deriveStatus(tx.Snapshot(), round)
			if status != StatusReady {
				return domain.CampaignStateError{Status: status, Action: "generate a library"}
			}
			campaign := libraryFromView(tx.Snapshot(), nil)
			proposed, genErr := gen.Propose(ctx, campaign, round)
			if genErr != nil {
				return fmt.Errorf("generator %s: %w", gen.Name(), genErr)
			}
			graph := NewLineageGraph()
			graph.Load(tx.Snapshot().ListVariants())
			for _, v := range proposed.Variants() {
				if v.ID == "" {
					if v.ParentID == nil {
						return fmt.Errorf("generator %s proposed a root without an id", gen.Name())
					}
					parentSeq, seqErr := graph.SequenceOf(*v.ParentID)
					if seqErr != nil {
						return seqErr
					}
					realized, applyErr := mutation.Apply(parentSeq, v.Mutations)
					if applyErr != nil {
						return applyErr
					}
					v.ID = domain.SequenceID(realized)
				}
				if _, exists := tx.FindVariant(v.ID); !exists {
					added := index
					v.RoundAdded = &added
					if _, createErr := tx.CreateVariant(v); createErr != nil {
						return createErr
					}
					graph.Insert(v)
				}
				if _, upErr := tx.UpdateVariant(v.ID, func(stored *Variant) error {
					stored.StampPutative(index)
					return nil
				}); upErr != nil {
					return upErr
				}
			}
			now := s.clock.Now()
			if _, upErr := tx.UpdateRound(index, func(r *Round) error {
				r.Status = StatusGenerated
				if r.StartTime == nil {
					r.StartTime = &now
				}
				return nil
			}); upErr != nil {
				return upErr
			}
			lib = libraryFromView(tx.Snapshot(), func(v Variant) bool { return v.PutativeIn(index) })
			return nil
		})
		return fmt.Sprintf("round-%d", index), err
	})
	return lib, res, err
}

// SelectLibrary runs the selector over the round's candidate library and
// stamps the chosen subset for measurement. The round must be generated.
func (s *Service) SelectLibrary(ctx context.Context, index int, sel Selector) (Library, Result, error) {
	var lib Library
	var res Result
	err := s.run(ctx, "select_library", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			round, ok := tx.FindRound(index)
			if !ok {
				return fmt.Errorf("round %d not found", index)
			}
			status := deriveStatus(tx.Snapshot(), round)
			if status != StatusGenerated {
				return domain.CampaignStateError{Status: status, Action: "select a library"}
			}
			putative := libraryFromView(tx.Snapshot(), func(v Variant) bool { return v.PutativeIn(index) })
			chosen, selErr := sel.Select(ctx, putative, round)
			if selErr != nil {
				return fmt.Errorf("selector %s: %w", sel.Name(), selErr)
			}
			for _, v := range chosen.Variants() {
				if !putative.Contains(v.ID) {
					return fmt.Errorf("selector %s chose %q outside the candidate library", sel.Name(), v.ID)
				}
				if _, upErr := tx.UpdateVariant(v.ID, func(stored *Variant) error {
					stored.StampExperiment(index)
					return nil
				}); upErr != nil {
					return upErr
				}
			}
			if _, upErr := tx.UpdateRound(index, func(r *Round) error {
				r.Status = StatusSelected
				r.Size = chosen.Len()
				return nil
			}); upErr != nil {
				return upErr
			}
			lib = libraryFromView(tx.Snapshot(), func(v Variant) bool { return v.ExperimentIn(index) })
			return nil
		})
		return fmt.Sprintf("round-%d", index), err
	})
	return lib, res, err
}

// SetLabels ingests measurements for the round's experimental library.
// Labels are append-only; identity duplicates are skipped so re-running an
// ingest is safe. When every expected label lands, the round moves to
// labeled.
func (s *Service) SetLabels(ctx context.Context, index int, labels []Label) (Round, Result, error) {
	var updated Round
	var res Result
	err := s.run(ctx, "set_labels", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			round, ok := tx.FindRound(index)
			if !ok {
				return fmt.Errorf("round %d not found", index)
			}
			status := deriveStatus(tx.Snapshot(), round)
			if status == StatusComplete {
				return domain.ImmutabilityViolationError{RoundIndex: index, Action: "record labels"}
			}
			if status != StatusSelected && status != StatusLabeled {
				return domain.CampaignStateError{Status: status, Action: "record labels"}
			}
			for _, label := range labels {
				scoped := index
				label.Round = &scoped
				variant, found := tx.FindVariant(label.VariantID)
				if !found {
					return fmt.Errorf("label references unknown variant %q", label.VariantID)
				}
				if !variant.ExperimentIn(index) {
					return fmt.Errorf("variant %q was not selected in round %d", label.VariantID, index)
				}
				if labelRecorded(tx.Snapshot(), label) {
					continue
				}
				if _, createErr := tx.CreateLabel(label); createErr != nil {
					return createErr
				}
			}
			var txErr error
			updated, txErr = tx.UpdateRound(index, func(r *Round) error {
				r.LabeledSize = labeledCount(tx.Snapshot(), *r)
				r.Status = deriveStatus(tx.Snapshot(), *r)
				return nil
			})
			return txErr
		})
		return fmt.Sprintf("round-%d", index), err
	})
	return updated, res, err
}

// labelRecorded reports whether a row with the label's surrogate id is
// already stored. Rows without an id always land, so replicate measurements
// coexist; callers wanting idempotent re-ingest supply stable ids.
func labelRecorded(view domain.TransactionView, label Label) bool {
	if label.ID == "" {
		return false
	}
	for _, existing := range view.LabelsForVariant(label.VariantID) {
		if existing.ID == label.ID {
			return true
		}
	}
	return false
}

// CommitRound seals a fully labeled round. Committed rounds are immutable
// and unlock the successor.
func (s *Service) CommitRound(ctx context.Context, index int) (Round, Result, error) {
	var committed Round
	var res Result
	err := s.run(ctx, "commit_round", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			round, ok := tx.FindRound(index)
			if !ok {
				return fmt.Errorf("round %d not found", index)
			}
			status := deriveStatus(tx.Snapshot(), round)
			if status == StatusSelected {
				if missing := missingLabels(tx.Snapshot(), round); len(missing) > 0 {
					return domain.IncompleteLabelsError{RoundIndex: index, Missing: missing}
				}
			}
			if status != StatusLabeled {
				return domain.CampaignStateError{Status: status, Action: "commit"}
			}
			now := s.clock.Now()
			var txErr error
			committed, txErr = tx.UpdateRound(index, func(r *Round) error {
				r.Status = StatusComplete
				r.EndTime = &now
				r.LabeledSize = labeledCount(tx.Snapshot(), *r)
				return nil
			})
			return txErr
		})
		return fmt.Sprintf("round-%d", index), err
	})
	return committed, res, err
}

// ResetRound rolls an uncommitted, unlabeled round back to ready. Candidate
// stamps are removed and variants whose only trace was this round's proposal
// are deleted. Rounds with recorded labels cannot be reset.
func (s *Service) ResetRound(ctx context.Context, index int) (Round, Result, error) {
	var reset Round
	var res Result
	err := s.run(ctx, "reset_round", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			round, ok := tx.FindRound(index)
			if !ok {
				return fmt.Errorf("round %d not found", index)
			}
			if round.Status == StatusComplete {
				return domain.ImmutabilityViolationError{RoundIndex: index, Action: "reset"}
			}
			for _, label := range tx.Snapshot().ListLabels() {
				if label.Round != nil && *label.Round == index {
					return fmt.Errorf("round %d has recorded labels and cannot be reset", index)
				}
			}
			for _, v := range roundPutative(tx.Snapshot(), index) {
				onlyTrace := v.RoundAdded != nil && *v.RoundAdded == index &&
					!v.HasChildren &&
					len(v.RoundsPutative) == 1 &&
					len(v.RoundsExperiment) == 0
				if onlyTrace {
					if delErr := tx.DeleteVariant(v.ID); delErr != nil {
						return delErr
					}
					continue
				}
				if _, upErr := tx.UpdateVariant(v.ID, func(stored *Variant) error {
					stored.RoundsPutative = removeRound(stored.RoundsPutative, index)
					stored.RoundsExperiment = removeRound(stored.RoundsExperiment, index)
					return nil
				}); upErr != nil {
					return upErr
				}
			}
			var txErr error
			reset, txErr = tx.UpdateRound(index, func(r *Round) error {
				r.Status = deriveStatus(tx.Snapshot(), Round{Index: index})
				r.Size = 0
				r.LabeledSize = 0
				r.StartTime = nil
				return nil
			})
			return txErr
		})
		return fmt.Sprintf("round-%d", index), err
	})
	return reset, res, err
}

func removeRound(rounds []int, index int) []int {
	out := rounds[:0]
	for _, r := range rounds {
		if r != index {
			out = append(out, r)
		}
	}
	return out
}

// MissingLabels reports, per experimental variant, the label names still
// outstanding for the round.
func (s *Service) MissingLabels(ctx context.Context, index int) (map[string][]string, error) {
	var missing map[string][]string
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		round, ok := view.FindRound(index)
		if !ok {
			return fmt.Errorf("round %d not found", index)
		}
		missing = missingLabels(view, round)
		return nil
	})
	return missing, err
}

// Statistics summarizes the accumulated campaign library.
func (s *Service) Statistics(ctx context.Context) (domain.Statistics, error) {
	lib, err := s.CampaignLibrary(ctx)
	if err != nil {
		return domain.Statistics{}, err
	}
	return lib.Statistics(), nil
}
