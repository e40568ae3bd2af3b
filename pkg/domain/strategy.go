package domain

import "context"

// Generator proposes candidate variants for a round's putative library.
// Implementations receive the accumulated campaign library and the round
// parameters and return the candidates to stamp into the round.
type Generator interface {
	Name() string
	Propose(ctx context.Context, campaign Library, round Round) (Library, error)
}

// Selector picks the experimental subset out of a putative library.
type Selector interface {
	Name() string
	Select(ctx context.Context, putative Library, round Round) (Library, error)
}
