package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dedupe-cli/internal/config"
	"github.com/sells-group/dedupe-cli/internal/dataset"
	"github.com/sells-group/dedupe-cli/internal/dedupe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for duplicate detection requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("server listening", zap.Int("port", cfg.Server.Port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// detectRequest is the JSON body for POST /api/detect.
type detectRequest struct {
	Names     []string `json:"names"`
	Threshold *float64 `json:"threshold"` // nil means configured default
}

// detectResponse wraps a detection report with a run identifier.
type detectResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
	*dedupe.Report
}

// newRouter builds the HTTP routes. Separated from serve so tests can hit
// the router directly.
func newRouter(cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(rateLimit(rate.Limit(cfg.Server.RatePerSecond), cfg.Server.RateBurst))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/detect", handleDetect(cfg))
	r.Post("/api/detect/file", handleDetectFile(cfg))

	return r
}

// rateLimit rejects requests exceeding the shared token bucket with 429.
func rateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleDetect(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Names) == 0 {
			writeJSONError(w, http.StatusBadRequest, "names is required")
			return
		}

		threshold := cfg.Detect.Threshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}

		runDetection(w, r, cfg, req.Names, threshold)
	}
}

// handleDetectFile accepts a multipart CSV upload. Column and threshold come
// from form fields, defaulting to the configured values.
func handleDetectFile(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(int64(cfg.Server.MaxUploadMB) << 20); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close() //nolint:errcheck

		column := r.FormValue("column")
		if column == "" {
			column = cfg.Detect.Column
		}
		threshold := cfg.Detect.Threshold
		if v := r.FormValue("threshold"); v != "" {
			if _, err := fmt.Sscanf(v, "%f", &threshold); err != nil {
				writeJSONError(w, http.StatusBadRequest, "threshold must be numeric")
				return
			}
		}

		table, err := dataset.ReadCSV(r.Context(), file, dataset.CSVOptions{TrimSpace: true})
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "could not parse CSV upload")
			return
		}

		names, err := table.Column(column)
		if err != nil {
			var missing *dataset.MissingColumnError
			if errors.As(err, &missing) {
				writeJSONError(w, http.StatusUnprocessableEntity, missing.Error())
				return
			}
			writeJSONError(w, http.StatusBadRequest, "could not extract column")
			return
		}

		runDetection(w, r, cfg, names, threshold)
	}
}

func runDetection(w http.ResponseWriter, r *http.Request, cfg *config.Config, names []string, threshold float64) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))

	engine := dedupe.New(dedupe.Options{
		HighConfidenceCutoff: cfg.Detect.HighConfidenceCutoff,
		Workers:              cfg.Detect.Workers,
		IgnoreCase:           cfg.Detect.IgnoreCase,
	})

	report, err := engine.Detect(r.Context(), names, threshold)
	if err != nil {
		log.Warn("detection rejected", zap.Error(err))
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info("detection complete",
		zap.Int("candidates", report.Candidates),
		zap.Int("pairs", report.Summary.TotalPairs),
	)

	writeJSON(w, http.StatusOK, detectResponse{
		RunID:   runID,
		Message: report.Message(),
		Report:  report,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
