package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectThresholdValidation(t *testing.T) {
	e := New(Options{})

	tests := []struct {
		name      string
		threshold float64
		wantErr   bool
	}{
		{"negative", -1, true},
		{"above range", 100.5, true},
		{"far above range", 500, true},
		{"zero", 0, false},
		{"hundred", 100, false},
		{"mid", 72.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Detect(context.Background(), []string{"a", "b"}, tt.threshold)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDetectDropsBlanksAndCollapsesDuplicates(t *testing.T) {
	e := New(Options{})

	names := []string{"Acme Inc", "Acme Inc", "", "   ", "Acme Co"}
	report, err := e.Detect(context.Background(), names, 80)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.DroppedBlank)
	assert.Equal(t, 1, report.CollapsedDuplicates)
	// Exactly one pair compared: "Acme Inc" vs "Acme Co".
	assert.Equal(t, 1, report.Comparisons)
}

func TestDetectNoSelfPairs(t *testing.T) {
	e := New(Options{})

	report, err := e.Detect(context.Background(),
		[]string{"Acme Inc", "Acme Inc", "Acme Co", "Acme Co"}, 0)
	require.NoError(t, err)

	for _, p := range report.Pairs {
		assert.NotEqual(t, p.Left, p.Right)
	}
}

func TestDetectComparisonCount(t *testing.T) {
	e := New(Options{})

	names := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	report, err := e.Detect(context.Background(), names, 0)
	require.NoError(t, err)

	// C(5,2) comparisons, each unordered pair exactly once. At threshold 0
	// every pair is reported, so the result set proves no pair was skipped
	// or doubled.
	assert.Equal(t, 10, report.Comparisons)
	assert.Len(t, report.Pairs, 10)

	seen := make(map[[2]string]bool)
	for _, p := range report.Pairs {
		key := [2]string{p.Left, p.Right}
		if p.Right < p.Left {
			key = [2]string{p.Right, p.Left}
		}
		assert.False(t, seen[key], "pair %v reported twice", key)
		seen[key] = true
	}
}

func TestDetectThresholdMonotonicity(t *testing.T) {
	e := New(Options{})
	names := []string{"Acme Inc", "Acme Incorporated", "Acme Co", "Beta LLC", "Beta LLP", "Gamma Corp"}

	prev := -1
	for _, threshold := range []float64{0, 25, 50, 70, 80, 90, 100} {
		report, err := e.Detect(context.Background(), names, threshold)
		require.NoError(t, err)
		if prev >= 0 {
			assert.LessOrEqual(t, len(report.Pairs), prev,
				"raising threshold to %v grew the result set", threshold)
		}
		prev = len(report.Pairs)
	}
}

func TestDetectSortOrder(t *testing.T) {
	e := New(Options{})
	names := []string{"Acme Inc", "Acme Incorporated", "Acme Co", "Acme Ink", "Beta LLC"}

	report, err := e.Detect(context.Background(), names, 0)
	require.NoError(t, err)
	require.NotEmpty(t, report.Pairs)

	for i := 1; i < len(report.Pairs); i++ {
		assert.GreaterOrEqual(t, report.Pairs[i-1].Score, report.Pairs[i].Score)
	}
}

func TestDetectEndToEnd(t *testing.T) {
	e := New(Options{})

	report, err := e.Detect(context.Background(),
		[]string{"Acme Inc", "Acme Incorporated", "Beta LLC"}, 70)
	require.NoError(t, err)

	require.Len(t, report.Pairs, 1)
	pair := report.Pairs[0]
	assert.Equal(t, "Acme Inc", pair.Left)
	assert.Equal(t, "Acme Incorporated", pair.Right)
	assert.GreaterOrEqual(t, pair.Score, 80)

	for _, p := range report.Pairs {
		assert.NotEqual(t, "Beta LLC", p.Left)
		assert.NotEqual(t, "Beta LLC", p.Right)
	}
}

func TestDetectEmptyResultIsNotAnError(t *testing.T) {
	e := New(Options{})

	report, err := e.Detect(context.Background(),
		[]string{"Acme Inc", "Beta LLC", "Gamma Corp"}, 100)
	require.NoError(t, err)

	assert.Empty(t, report.Pairs)
	assert.Equal(t, 0, report.Summary.TotalPairs)
	assert.Zero(t, report.Summary.MeanScore)
	assert.Contains(t, report.Message(), "No duplicates found")
	assert.Contains(t, report.Message(), "lowering")
}

func TestDetectExactDuplicatesAtThreshold100(t *testing.T) {
	e := New(Options{IgnoreCase: true})

	// Case-folded equal strings survive collapse (they differ exactly) but
	// score 100 once folded.
	report, err := e.Detect(context.Background(),
		[]string{"ACME INC", "acme inc", "Beta LLC"}, 100)
	require.NoError(t, err)

	require.Len(t, report.Pairs, 1)
	assert.Equal(t, "ACME INC", report.Pairs[0].Left)
	assert.Equal(t, "acme inc", report.Pairs[0].Right)
	assert.Equal(t, 100, report.Pairs[0].Score)
}

func TestDetectSummary(t *testing.T) {
	e := New(Options{})

	report, err := e.Detect(context.Background(),
		[]string{"Acme Inc", "Acme Incorporated", "Acme Ink", "Beta LLC"}, 50)
	require.NoError(t, err)
	require.NotEmpty(t, report.Pairs)

	sum := 0
	high := 0
	for _, p := range report.Pairs {
		sum += p.Score
		if p.Score >= DefaultHighConfidenceCutoff {
			high++
		}
	}
	assert.Equal(t, len(report.Pairs), report.Summary.TotalPairs)
	assert.InDelta(t, float64(sum)/float64(len(report.Pairs)), report.Summary.MeanScore, 1e-9)
	assert.Equal(t, high, report.Summary.HighConfidence)
}

func TestDetectHighConfidenceCutoffOverride(t *testing.T) {
	e := New(Options{HighConfidenceCutoff: 80})

	report, err := e.Detect(context.Background(),
		[]string{"Acme Inc", "Acme Incorporated", "Beta LLC"}, 50)
	require.NoError(t, err)

	high := 0
	for _, p := range report.Pairs {
		if p.Score >= 80 {
			high++
		}
	}
	assert.Equal(t, high, report.Summary.HighConfidence)
	assert.GreaterOrEqual(t, high, 1)
}

func TestDetectParallelMatchesSequential(t *testing.T) {
	names := []string{
		"Acme Inc", "Acme Incorporated", "Acme Ink", "Acme Co",
		"Beta LLC", "Beta LLP", "Gamma Corp", "Gamma Corporation",
		"Delta Partners", "Delta Partner", "Epsilon Ltd", "Zeta Group",
	}

	seq, err := New(Options{}).Detect(context.Background(), names, 40)
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 8} {
		par, err := New(Options{Workers: workers}).Detect(context.Background(), names, 40)
		require.NoError(t, err)
		assert.Equal(t, seq.Pairs, par.Pairs, "workers=%d", workers)
		assert.Equal(t, seq.Summary, par.Summary, "workers=%d", workers)
	}
}

func TestDetectCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	names := make([]string, 100)
	for i := range names {
		names[i] = string(rune('a'+i%26)) + string(rune('a'+i/26))
	}

	_, err := New(Options{}).Detect(ctx, names, 50)
	assert.Error(t, err)

	_, err = New(Options{Workers: 4}).Detect(ctx, names, 50)
	assert.Error(t, err)
}

func TestDetectIgnoreCase(t *testing.T) {
	sensitive, err := New(Options{}).Detect(context.Background(),
		[]string{"ACME INC", "acme inc"}, 90)
	require.NoError(t, err)
	assert.Empty(t, sensitive.Pairs)

	folded, err := New(Options{IgnoreCase: true}).Detect(context.Background(),
		[]string{"ACME INC", "acme inc"}, 90)
	require.NoError(t, err)
	require.Len(t, folded.Pairs, 1)
	assert.Equal(t, 100, folded.Pairs[0].Score)
}

func TestDetectEmptyInput(t *testing.T) {
	report, err := New(Options{}).Detect(context.Background(), nil, 80)
	require.NoError(t, err)

	assert.Zero(t, report.Candidates)
	assert.Zero(t, report.Comparisons)
	assert.Empty(t, report.Pairs)
	assert.Zero(t, report.Summary.MeanScore)
}

func TestPairSeq(t *testing.T) {
	// pairSeq must match row-major upper-triangle enumeration order.
	n := 6
	seq := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			assert.Equal(t, seq, pairSeq(n, i, j), "pair (%d,%d)", i, j)
			seq++
		}
	}
}
