package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dedupe-cli/internal/config"
	"github.com/sells-group/dedupe-cli/internal/dataset"
	"github.com/sells-group/dedupe-cli/internal/dedupe"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect near-duplicate names in one column of a tabular file",
	Long: `Loads a CSV or XLSX file, extracts the configured column, and scores
every pair of distinct names for textual similarity. Pairs at or above the
threshold are reported ranked by score descending.

Examples:
  # Default column ("Company Name") and threshold (80)
  dedupe-cli detect --input companies.csv

  # Custom column and threshold, export to CSV
  dedupe-cli detect --input accounts.csv --column "Account Name" --threshold 70 --format csv --output dupes.csv

  # XLSX input, parallel scoring, case-insensitive
  dedupe-cli detect --input companies.xlsx --sheet Targets --workers 8 --ignore-case`,
	RunE: runDetect,
}

func init() {
	f := detectCmd.Flags()
	f.String("input", "", "path to CSV or XLSX file (required)")
	f.String("column", "", "column holding candidate names (overrides config)")
	f.Float64("threshold", 0, "minimum similarity score 0-100 (overrides config)")
	f.String("format", "table", "output format: table, csv, or json")
	f.String("output", "", "output file path (default: stdout)")
	f.Int("workers", 0, "number of scoring workers (overrides config)")
	f.Bool("ignore-case", false, "fold case before scoring")
	f.String("delimiter", "", "CSV field delimiter (default: comma)")
	f.String("sheet", "", "XLSX sheet name (default: first sheet)")
	_ = detectCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detectCfg := applyDetectOverrides(cmd, cfg.Detect)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if detectCfg.Threshold < 0 || detectCfg.Threshold > 100 {
		return eris.Errorf("detect: --threshold must be in [0, 100] (got %v)", detectCfg.Threshold)
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "csv" && format != "json" {
		return eris.Errorf("detect: --format must be table, csv, or json (got %q)", format)
	}
	outputPath, _ := cmd.Flags().GetString("output")
	inputPath, _ := cmd.Flags().GetString("input")

	log := zap.L().With(zap.String("command", "detect"))

	table, err := loadTable(ctx, cmd, inputPath)
	if err != nil {
		return err
	}
	log.Info("loaded input",
		zap.String("input", inputPath),
		zap.Int("rows", len(table.Rows)),
	)

	names, err := table.Column(detectCfg.Column)
	if err != nil {
		return eris.Wrap(err, "detect: extract column")
	}

	engine := dedupe.New(dedupe.Options{
		HighConfidenceCutoff: detectCfg.HighConfidenceCutoff,
		Workers:              detectCfg.Workers,
		IgnoreCase:           detectCfg.IgnoreCase,
	})
	report, err := engine.Detect(ctx, names, detectCfg.Threshold)
	if err != nil {
		return eris.Wrap(err, "detect: run engine")
	}

	if err := outputReport(report, format, outputPath); err != nil {
		return err
	}
	printDetectSummary(report)

	return nil
}

// applyDetectOverrides returns a copy of the base config with CLI flag
// overrides applied.
func applyDetectOverrides(cmd *cobra.Command, base config.DetectConfig) config.DetectConfig {
	c := base

	if v, _ := cmd.Flags().GetString("column"); v != "" {
		c.Column = v
	}
	if cmd.Flags().Changed("threshold") {
		c.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		c.Workers = v
	}
	if cmd.Flags().Changed("ignore-case") {
		c.IgnoreCase, _ = cmd.Flags().GetBool("ignore-case")
	}

	return c
}

// loadTable picks the reader by file extension.
func loadTable(ctx context.Context, cmd *cobra.Command, path string) (*dataset.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		sheet, _ := cmd.Flags().GetString("sheet")
		return dataset.ReadXLSXFile(path, dataset.XLSXOptions{SheetName: sheet})
	default:
		opts := dataset.CSVOptions{TrimSpace: true}
		if d, _ := cmd.Flags().GetString("delimiter"); d != "" {
			opts.Delimiter = []rune(d)[0]
		}
		return dataset.ReadCSVFile(ctx, path, opts)
	}
}

func outputReport(report *dedupe.Report, format, outputPath string) error {
	var w *os.File
	if outputPath != "" {
		var err error
		w, err = os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "detect: create output file %s", outputPath)
		}
		defer w.Close() //nolint:errcheck
	} else {
		w = os.Stdout
	}

	switch format {
	case "csv":
		return report.WriteCSV(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(report), "detect: encode json")
	default:
		return writePairTable(w, report)
	}
}

func writePairTable(w *os.File, report *dedupe.Report) error {
	if len(report.Pairs) == 0 {
		return nil
	}

	header := fmt.Sprintf("%-40s %-40s %6s\n", "Company Name 1", "Company Name 2", "Score")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "detect: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 88)); err != nil {
		return eris.Wrap(err, "detect: write table separator")
	}

	for _, p := range report.Pairs {
		line := fmt.Sprintf("%-40s %-40s %6d\n", truncate(p.Left, 40), truncate(p.Right, 40), p.Score)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "detect: write table row")
		}
	}
	return nil
}

func printDetectSummary(report *dedupe.Report) {
	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Candidates:           %d (dropped %d blank, collapsed %d duplicates)\n",
		report.Candidates, report.DroppedBlank, report.CollapsedDuplicates)
	fmt.Printf("Comparisons:          %d\n", report.Comparisons)
	fmt.Printf("Total pairs found:    %d\n", report.Summary.TotalPairs)
	fmt.Printf("Average similarity:   %.1f\n", report.Summary.MeanScore)
	fmt.Printf("High confidence:      %d\n", report.Summary.HighConfidence)
	fmt.Printf("\n%s\n", report.Message())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
