package mutation

// AlignParams configures the global-alignment cost model used by Diff when
// indels are expected.
type AlignParams struct {
	Match    int
	Mismatch int
	Gap      int
}

// DefaultAlignParams favors few, contiguous indels: gaps cost more than
// mismatches so the minimal edit script wins ties.
func DefaultAlignParams() AlignParams {
	return AlignParams{Match: 1, Mismatch: -1, Gap: -2}
}

// DiffOption adjusts Diff behavior.
type DiffOption func(*diffConfig)

type diffConfig struct {
	indels bool
	params AlignParams
}

// WithIndels enables gap-aware diffing via global alignment.
func WithIndels() DiffOption {
	return func(c *diffConfig) { c.indels = true }
}

// WithAlignParams overrides the alignment cost model (implies nothing about
// indels; combine with WithIndels).
func WithAlignParams(p AlignParams) DiffOption {
	return func(c *diffConfig) { c.params = p }
}

// Diff computes the edit set that transforms base into target, so that
// Apply(base, Diff(base, target)) == target.
//
// Without WithIndels the sequences are compared symbol-by-symbol at equal
// length, emitting one substitution per differing position, and unequal
// lengths fail with a LengthMismatchError. With WithIndels a global
// alignment is computed under the configured cost model; equally optimal
// alignments resolve with gaps pushed leftmost, so the result is
// deterministic for fixed inputs.
func Diff(base, target string, opts ...DiffOption) (Set, error) {
	cfg := diffConfig{params: DefaultAlignParams()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.indels {
		if len(base) != len(target) {
			return Set{}, LengthMismatchError{LenA: len(base), LenB: len(target)}
		}
		set := NewSet()
		for i := 0; i < len(base); i++ {
			if base[i] != target[i] {
				_ = set.Add(Edit{Position: i + 1, Ref: string(base[i]), Alt: string(target[i])})
			}
		}
		return set, nil
	}
	alignedBase, alignedTarget := align(base, target, cfg.params)
	return editsFromAlignment(alignedBase, alignedTarget), nil
}

// align runs Needleman-Wunsch over the two sequences and returns the gapped
// alignment rows. Traceback prefers diagonal moves, then gaps in the target,
// then gaps in the base, which pushes tied gaps toward lower positions and
// keeps the alignment deterministic.
func align(a, b string, p AlignParams) (string, string) {
	n, m := len(a), len(b)
	score := make([][]int, n+1)
	for i := range score {
		score[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		score[i][0] = i * p.Gap
	}
	for j := 1; j <= m; j++ {
		score[0][j] = j * p.Gap
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			diag := score[i-1][j-1] + substScore(a[i-1], b[j-1], p)
			up := score[i-1][j] + p.Gap
			left := score[i][j-1] + p.Gap
			best := diag
			if up > best {
				best = up
			}
			if left > best {
				best = left
			}
			score[i][j] = best
		}
	}

	var ra, rb []byte
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && score[i][j] == score[i-1][j-1]+substScore(a[i-1], b[j-1], p):
			ra = append(ra, a[i-1])
			rb = append(rb, b[j-1])
			i--
			j--
		case i > 0 && score[i][j] == score[i-1][j]+p.Gap:
			ra = append(ra, a[i-1])
			rb = append(rb, '-')
			i--
		default:
			ra = append(ra, '-')
			rb = append(rb, b[j-1])
			j--
		}
	}
	reverse(ra)
	reverse(rb)
	return string(ra), string(rb)
}

func substScore(x, y byte, p AlignParams) int {
	if x == y || x == Wildcard || y == Wildcard {
		return p.Match
	}
	return p.Mismatch
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// editsFromAlignment converts a gapped alignment into the minimal edit set:
// per-position substitutions for mismatched columns, with adjacent gap
// columns aggregated into single multi-symbol insertion or deletion edits.
func editsFromAlignment(alignedBase, alignedTarget string) Set {
	set := NewSet()
	pos := 0 // 1-based position of the last consumed base symbol

	flushDeletion := func(start int, run []byte) {
		if len(run) == 0 {
			return
		}
		dashes := make([]byte, len(run))
		for i := range dashes {
			dashes[i] = '-'
		}
		_ = set.Add(Edit{Position: start, Ref: string(run), Alt: string(dashes)})
	}
	// Runs are anchored at the preceding base symbol (A2[TM]) when that
	// column aligned cleanly; otherwise the anchorless form keeps the
	// insertion from consuming a position another edit already touches.
	flushInsertion := func(anchorPos int, anchor byte, anchorClean bool, run []byte) {
		if len(run) == 0 {
			return
		}
		if anchorPos == 0 {
			_ = set.Add(Edit{Position: 1, Ref: "", Alt: string(run)})
			return
		}
		if anchorClean {
			_ = set.Add(Edit{Position: anchorPos, Ref: string(anchor), Alt: string(anchor) + string(run)})
			return
		}
		_ = set.Add(Edit{Position: anchorPos + 1, Ref: "", Alt: string(run)})
	}

	var delStart int
	var delRun, insRun []byte
	var anchorPos int
	var anchor byte
	var anchorClean bool

	for k := 0; k < len(alignedBase); k++ {
		bc, tc := alignedBase[k], alignedTarget[k]
		switch {
		case bc == '-':
			insRun = append(insRun, tc)
		case tc == '-':
			flushInsertion(anchorPos, anchor, anchorClean, insRun)
			insRun = nil
			pos++
			if len(delRun) == 0 {
				delStart = pos
			}
			delRun = append(delRun, bc)
		default:
			flushInsertion(anchorPos, anchor, anchorClean, insRun)
			insRun = nil
			flushDeletion(delStart, delRun)
			delRun = nil
			pos++
			anchorPos, anchor, anchorClean = pos, bc, bc == tc
			if bc != tc {
				_ = set.Add(Edit{Position: pos, Ref: string(bc), Alt: string(tc)})
			}
		}
	}
	flushInsertion(anchorPos, anchor, anchorClean, insRun)
	flushDeletion(delStart, delRun)
	return set
}
