package core

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"evocore/pkg/domain"
	"evocore/pkg/mutation"
)

// StaticGenerator proposes a fixed candidate library, typically parsed from
// user-supplied designs.
type StaticGenerator struct {
	Candidates Library
}

// Name implements Generator.
func (StaticGenerator) Name() string { return "static" }

// Propose implements Generator.
func (g StaticGenerator) Propose(_ context.Context, _ Library, _ Round) (Library, error) {
	return g.Candidates, nil
}

// SiteSaturationGenerator proposes every single-residue substitution of the
// given alphabet at the configured positions, relative to one parent.
type SiteSaturationGenerator struct {
	ParentID  string
	Positions []int
	// Alphabet defaults to the 20 proteinogenic residues when empty.
	Alphabet string
}

const proteinAlphabet = "ACDEFGHIKLMNPQRSTVWY"

// Name implements Generator.
func (SiteSaturationGenerator) Name() string { return "site_saturation" }

// Propose implements Generator.
func (g SiteSaturationGenerator) Propose(_ context.Context, campaign Library, _ Round) (Library, error) {
	parent, ok := campaign.Get(g.ParentID)
	if !ok {
		return Library{}, fmt.Errorf("parent %q not in campaign", g.ParentID)
	}
	if parent.Sequence == "" {
		return Library{}, fmt.Errorf("site saturation requires a root parent with a sequence, %q has none", g.ParentID)
	}
	alphabet := g.Alphabet
	if alphabet == "" {
		alphabet = proteinAlphabet
	}
	out, _ := domain.NewLibrary()
	for _, pos := range g.Positions {
		if pos < 1 || pos > len(parent.Sequence) {
			return Library{}, fmt.Errorf("position %d outside parent sequence of length %d", pos, len(parent.Sequence))
		}
		ref := string(parent.Sequence[pos-1])
		for _, alt := range alphabet {
			if string(alt) == ref {
				continue
			}
			set := mutation.NewSet()
			if err := set.Add(mutation.Edit{Position: pos, Ref: ref, Alt: string(alt)}); err != nil {
				return Library{}, err
			}
			realized, err := mutation.Apply(parent.Sequence, set)
			if err != nil {
				return Library{}, err
			}
			parentID := g.ParentID
			candidate := Variant{
				Base:      Base{ID: domain.SequenceID(realized)},
				ParentID:  &parentID,
				Mutations: set,
			}
			if err := out.Add(candidate); err != nil {
				return Library{}, err
			}
		}
	}
	return out, nil
}

// AllSelector puts the entire candidate library forward for measurement.
type AllSelector struct{}

// Name implements Selector.
func (AllSelector) Name() string { return "all" }

// Select implements Selector.
func (AllSelector) Select(_ context.Context, putative Library, _ Round) (Library, error) {
	return putative, nil
}

// TopSelector ranks candidates by the mean value of a named label and keeps
// the best N. Candidates without the label rank last.
type TopSelector struct {
	LabelName string
	N         int
}

// Name implements Selector.
func (TopSelector) Name() string { return "top" }

// Select implements Selector.
func (s TopSelector) Select(_ context.Context, putative Library, _ Round) (Library, error) {
	if s.N <= 0 {
		return Library{}, fmt.Errorf("top selector requires a positive n, got %d", s.N)
	}
	type ranked struct {
		id    string
		score float64
		known bool
	}
	scores := make([]ranked, 0, putative.Len())
	for _, id := range putative.IDs() {
		values := putative.Values(id, s.LabelName, nil)
		r := ranked{id: id}
		if len(values) > 0 {
			sum := 0.0
			for _, v := range values {
				sum += v
			}
			r.score = sum / float64(len(values))
			r.known = true
		}
		scores = append(scores, r)
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].known != scores[j].known {
			return scores[i].known
		}
		return scores[i].score > scores[j].score
	})
	if s.N < len(scores) {
		scores = scores[:s.N]
	}
	out, _ := domain.NewLibrary()
	for _, r := range scores {
		v, _ := putative.Get(r.id)
		if err := out.Add(v); err != nil {
			return Library{}, err
		}
	}
	return out, nil
}

// RandomSelector keeps a uniform sample of N candidates. A fixed seed makes
// round selections reproducible.
type RandomSelector struct {
	N    int
	Seed int64
}

// Name implements Selector.
func (RandomSelector) Name() string { return "random" }

// Select implements Selector.
func (s RandomSelector) Select(_ context.Context, putative Library, _ Round) (Library, error) {
	if s.N <= 0 {
		return Library{}, fmt.Errorf("random selector requires a positive n, got %d", s.N)
	}
	ids := putative.IDs()
	rng := rand.New(rand.NewSource(s.Seed))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if s.N < len(ids) {
		ids = ids[:s.N]
	}
	sort.Strings(ids)
	out, _ := domain.NewLibrary()
	for _, id := range ids {
		v, _ := putative.Get(id)
		if err := out.Add(v); err != nil {
			return Library{}, err
		}
	}
	return out, nil
}
