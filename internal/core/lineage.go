package core

import (
	"fmt"
	"sync"

	"evocore/pkg/domain"
	"evocore/pkg/mutation"
)

// LineageGraph materializes variant sequences across parent chains. Roots
// carry concrete sequences; every other variant is realized by applying its
// edit set to the parent's materialized sequence. Results are memoized, so
// repeated lookups over a deep campaign stay cheap.
type LineageGraph struct {
	mu       sync.RWMutex
	variants map[string]domain.Variant
	seqCache map[string]string
}

// NewLineageGraph constructs an empty graph.
func NewLineageGraph() *LineageGraph {
	return &LineageGraph{
		variants: make(map[string]domain.Variant),
		seqCache: make(map[string]string),
	}
}

// Load replaces the graph contents with the given variants and clears the
// sequence cache.
func (g *LineageGraph) Load(variants []domain.Variant) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.variants = make(map[string]domain.Variant, len(variants))
	for _, v := range variants {
		g.variants[v.ID] = v
	}
	g.seqCache = make(map[string]string)
}

// Insert adds or replaces a single variant. The cache is cleared because a
// replaced edit set invalidates every descendant sequence.
func (g *LineageGraph) Insert(v domain.Variant) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.variants[v.ID] = v
	g.seqCache = make(map[string]string)
}

// Contains reports membership by id.
func (g *LineageGraph) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.variants[id]
	return ok
}

// Len returns the number of variants in the graph.
func (g *LineageGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.variants)
}

// Ancestry returns the chain of ids from the variant up to its root,
// inclusive on both ends.
func (g *LineageGraph) Ancestry(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var chain []string
	visiting := make(map[string]struct{})
	for {
		v, ok := g.variants[id]
		if !ok {
			return nil, fmt.Errorf("variant %q not in lineage graph", id)
		}
		if _, seen := visiting[id]; seen {
			return nil, fmt.Errorf("lineage cycle through variant %q", id)
		}
		visiting[id] = struct{}{}
		chain = append(chain, id)
		if v.ParentID == nil {
			return chain, nil
		}
		id = *v.ParentID
	}
}

// SequenceOf materializes the concrete sequence for a variant.
func (g *LineageGraph) SequenceOf(id string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sequenceLocked(id, make(map[string]struct{}))
}

func (g *LineageGraph) sequenceLocked(id string, visiting map[string]struct{}) (string, error) {
	if seq, ok := g.seqCache[id]; ok {
		return seq, nil
	}
	if _, seen := visiting[id]; seen {
		return "", fmt.Errorf("lineage cycle through variant %q", id)
	}
	visiting[id] = struct{}{}

	v, ok := g.variants[id]
	if !ok {
		return "", fmt.Errorf("variant %q not in lineage graph", id)
	}
	if v.ParentID == nil {
		if v.Sequence == "" {
			return "", fmt.Errorf("root variant %q carries no sequence", id)
		}
		g.seqCache[id] = v.Sequence
		return v.Sequence, nil
	}
	parentSeq, err := g.sequenceLocked(*v.ParentID, visiting)
	if err != nil {
		return "", err
	}
	seq, err := mutation.Apply(parentSeq, v.Mutations)
	if err != nil {
		return "", fmt.Errorf("materialize variant %q: %w", id, err)
	}
	g.seqCache[id] = seq
	return seq, nil
}

// Diff returns the edit set transforming variant a's sequence into b's.
func (g *LineageGraph) Diff(aID, bID string, opts ...mutation.DiffOption) (mutation.Set, error) {
	seqA, err := g.SequenceOf(aID)
	if err != nil {
		return mutation.Set{}, err
	}
	seqB, err := g.SequenceOf(bID)
	if err != nil {
		return mutation.Set{}, err
	}
	return mutation.Diff(seqA, seqB, opts...)
}

// RelativeTo expresses a variant's cumulative edits against an ancestor's
// materialized sequence rather than its direct parent.
func (g *LineageGraph) RelativeTo(ancestorID, id string, opts ...mutation.DiffOption) (mutation.Set, error) {
	chain, err := g.Ancestry(id)
	if err != nil {
		return mutation.Set{}, err
	}
	found := false
	for _, link := range chain {
		if link == ancestorID {
			found = true
			break
		}
	}
	if !found {
		return mutation.Set{}, fmt.Errorf("variant %q is not an ancestor of %q", ancestorID, id)
	}
	return g.Diff(ancestorID, id, opts...)
}
