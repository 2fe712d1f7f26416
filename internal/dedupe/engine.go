// Package dedupe finds near-duplicate entries in a set of free-text names
// by scoring every distinct pair for textual similarity.
package dedupe

import (
	"context"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/sells-group/dedupe-cli/internal/similarity"
)

// DefaultHighConfidenceCutoff is the fixed secondary threshold used only for
// summary statistics. It is distinct from the user-configurable threshold.
const DefaultHighConfidenceCutoff = 95

// Options configures an Engine.
type Options struct {
	// HighConfidenceCutoff is the score at or above which a pair counts as
	// high-confidence in the summary. Zero means DefaultHighConfidenceCutoff.
	HighConfidenceCutoff int

	// Workers sets the number of goroutines scoring pairs. Zero or one means
	// sequential. Parallel and sequential runs produce identical output.
	Workers int

	// IgnoreCase folds candidates with Unicode case folding before scoring.
	// Reported pairs keep the original text.
	IgnoreCase bool
}

// Engine scores every unordered pair of distinct candidates and reports
// pairs at or above a threshold. It holds no state between runs.
type Engine struct {
	opts   Options
	cutoff int
}

// New creates an Engine with the given options.
func New(opts Options) *Engine {
	cutoff := opts.HighConfidenceCutoff
	if cutoff <= 0 {
		cutoff = DefaultHighConfidenceCutoff
	}
	return &Engine{opts: opts, cutoff: cutoff}
}

// candidate pairs original text with the form used for scoring.
type candidate struct {
	text   string // original
	scored string // folded when IgnoreCase is set, otherwise == text
}

// scoredPair carries the enumeration sequence so that parallel runs can be
// merged back into deterministic order before ranking.
type scoredPair struct {
	seq  int
	pair MatchPair
}

// Detect runs one full detection pass over names. The threshold must lie in
// [0, 100]; it is validated before any comparison work begins. Blank values
// are dropped and exact duplicates collapsed (first occurrence kept), with
// both counts surfaced on the Report. The returned pairs are sorted by score
// descending, ties keeping pair-enumeration order.
func (e *Engine) Detect(ctx context.Context, names []string, threshold float64) (*Report, error) {
	if threshold < 0 || threshold > 100 {
		return nil, eris.Errorf("dedupe: threshold must be in [0, 100] (got %v)", threshold)
	}

	report := &Report{Threshold: threshold}
	cands := e.candidates(names, report)
	report.Candidates = len(cands)
	report.Comparisons = len(cands) * (len(cands) - 1) / 2

	zap.L().Debug("dedupe: candidate set built",
		zap.Int("candidates", len(cands)),
		zap.Int("dropped_blank", report.DroppedBlank),
		zap.Int("collapsed_duplicates", report.CollapsedDuplicates),
		zap.Int("comparisons", report.Comparisons),
	)

	var (
		matches []scoredPair
		err     error
	)
	if e.opts.Workers > 1 && len(cands) > 2 {
		matches, err = e.scanParallel(ctx, cands, threshold)
	} else {
		matches, err = e.scan(ctx, cands, threshold)
	}
	if err != nil {
		return nil, err
	}

	// Enumeration order first, then rank. sort.SliceStable keeps the
	// enumeration order for equal scores.
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pair.Score > matches[j].pair.Score })

	report.Pairs = make([]MatchPair, len(matches))
	for i, m := range matches {
		report.Pairs[i] = m.pair
	}
	report.Summary = e.summarize(report.Pairs)

	zap.L().Info("dedupe: detection complete",
		zap.Float64("threshold", threshold),
		zap.Int("candidates", report.Candidates),
		zap.Int("pairs", len(report.Pairs)),
		zap.Int("high_confidence", report.Summary.HighConfidence),
	)

	return report, nil
}

// candidates cleans and deduplicates the raw input, recording drop and
// collapse counts on the report. First-seen order is kept so that runs are
// reproducible.
func (e *Engine) candidates(names []string, report *Report) []candidate {
	var folder cases.Caser
	if e.opts.IgnoreCase {
		folder = cases.Fold()
	}

	seen := make(map[string]struct{}, len(names))
	cands := make([]candidate, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			report.DroppedBlank++
			continue
		}
		if _, dup := seen[name]; dup {
			report.CollapsedDuplicates++
			continue
		}
		seen[name] = struct{}{}

		c := candidate{text: name, scored: name}
		if e.opts.IgnoreCase {
			c.scored = folder.String(name)
		}
		cands = append(cands, c)
	}
	return cands
}

// scan scores every unordered pair sequentially. The context is checked
// between pair evaluations so long scans can be cancelled.
func (e *Engine) scan(ctx context.Context, cands []candidate, threshold float64) ([]scoredPair, error) {
	var matches []scoredPair
	seq := 0
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "dedupe: scan cancelled")
			}
			if m, ok := e.scorePair(cands[i], cands[j], threshold); ok {
				matches = append(matches, scoredPair{seq: seq, pair: m})
			}
			seq++
		}
	}
	return matches, nil
}

// scanParallel partitions the outer loop across workers. Each worker owns a
// disjoint slice of rows and appends to its own bucket; buckets are merged by
// concatenation. Pair scoring has no cross-pair dependency, so this is a pure
// performance optimization.
func (e *Engine) scanParallel(ctx context.Context, cands []candidate, threshold float64) ([]scoredPair, error) {
	workers := e.opts.Workers
	if workers > runtime.NumCPU()*4 {
		workers = runtime.NumCPU() * 4
	}
	if workers > len(cands)-1 {
		workers = len(cands) - 1
	}

	n := len(cands)
	buckets := make([][]scoredPair, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			var local []scoredPair
			// Strided row assignment balances the triangular pair space
			// better than contiguous chunks.
			for i := w; i < n; i += workers {
				if ctx.Err() != nil {
					return eris.Wrap(ctx.Err(), "dedupe: scan cancelled")
				}
				for j := i + 1; j < n; j++ {
					if m, ok := e.scorePair(cands[i], cands[j], threshold); ok {
						local = append(local, scoredPair{seq: pairSeq(n, i, j), pair: m})
					}
				}
			}
			buckets[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var matches []scoredPair
	for _, b := range buckets {
		matches = append(matches, b...)
	}
	return matches, nil
}

// pairSeq maps the unordered pair (i, j) with i < j to its position in
// row-major enumeration of the upper triangle of an n x n matrix.
func pairSeq(n, i, j int) int {
	return i*(2*n-i-1)/2 + (j - i - 1)
}

func (e *Engine) scorePair(a, b candidate, threshold float64) (MatchPair, bool) {
	score := similarity.Score(a.scored, b.scored)
	if float64(score) < threshold {
		return MatchPair{}, false
	}
	return MatchPair{Left: a.text, Right: b.text, Score: score}, true
}

// summarize derives aggregate statistics over the ranked pairs. The mean is
// zero for an empty result set.
func (e *Engine) summarize(pairs []MatchPair) Summary {
	s := Summary{TotalPairs: len(pairs)}
	if len(pairs) == 0 {
		return s
	}

	sum := 0
	for _, p := range pairs {
		sum += p.Score
		if p.Score >= e.cutoff {
			s.HighConfidence++
		}
	}
	s.MeanScore = float64(sum) / float64(len(pairs))
	return s
}
