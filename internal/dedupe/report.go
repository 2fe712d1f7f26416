package dedupe

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
)

// MatchPair is a reported candidate pair with its similarity score.
// Left and Right always hold the original (unfolded) candidate text.
type MatchPair struct {
	Left  string `json:"name_1"`
	Right string `json:"name_2"`
	Score int    `json:"similarity_score"`
}

// Summary aggregates the filtered result set.
type Summary struct {
	TotalPairs     int     `json:"total_pairs"`
	MeanScore      float64 `json:"mean_score"`
	HighConfidence int     `json:"high_confidence_pairs"`
}

// Report is the complete outcome of one detection run. It is read-only
// once returned by Detect.
type Report struct {
	Pairs   []MatchPair `json:"pairs"` // ranked by score descending
	Summary Summary     `json:"summary"`

	Candidates          int     `json:"candidates"`
	DroppedBlank        int     `json:"dropped_blank"`
	CollapsedDuplicates int     `json:"collapsed_duplicates"`
	Comparisons         int     `json:"comparisons"`
	Threshold           float64 `json:"threshold"`
}

// Message returns the human-readable outcome line for the run.
func (r *Report) Message() string {
	if len(r.Pairs) == 0 {
		return fmt.Sprintf("No duplicates found with similarity >= %.0f%%. Try lowering the similarity threshold to find more potential matches.", r.Threshold)
	}
	return fmt.Sprintf("Found %d potential duplicate pairs with similarity >= %.0f%%.", len(r.Pairs), r.Threshold)
}

// WriteCSV writes the ranked pairs as CSV with a header row and no index
// column, matching the exportable result table.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"company_name_1", "company_name_2", "similarity_score"}); err != nil {
		return eris.Wrap(err, "report: write CSV header")
	}
	for _, p := range r.Pairs {
		row := []string{p.Left, p.Right, fmt.Sprintf("%d", p.Score)}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "report: write CSV row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush CSV")
}
