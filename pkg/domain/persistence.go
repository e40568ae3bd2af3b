package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateVariant(Variant) (Variant, error)
	UpdateVariant(id string, mutator func(*Variant) error) (Variant, error)
	DeleteVariant(id string) error
	CreateRound(Round) (Round, error)
	UpdateRound(index int, mutator func(*Round) error) (Round, error)
	DeleteRound(index int) error
	CreateLabel(Label) (Label, error)
	FindVariant(id string) (Variant, bool)
	FindRound(index int) (Round, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListVariants() []Variant
	ListRounds() []Round
	ListLabels() []Label
	FindVariant(id string) (Variant, bool)
	FindRound(index int) (Round, bool)
	LabelsForVariant(id string) []Label
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetVariant(id string) (Variant, bool)
	ListVariants() []Variant
	GetRound(index int) (Round, bool)
	ListRounds() []Round
	ListLabels() []Label
	LabelsForVariant(id string) []Label
}
