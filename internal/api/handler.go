package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayush/truth-engine/internal/cache"
	"github.com/ayush/truth-engine/internal/models"
	"github.com/ayush/truth-engine/internal/pipeline"
	"github.com/ayush/truth-engine/internal/store"
	"github.com/ayush/truth-engine/internal/synthesis"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	persistTimeout   = 10 * time.Second
	maxBodyBytes     = 1 << 16
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Runner runs the research pipeline.
type Runner interface {
	Run(ctx context.Context, niche string, bypassCache bool) (*models.Report, error)
}

// ReportStore defines the interface for report archive persistence.
type ReportStore interface {
	Insert(ctx context.Context, doc *models.ReportDocument) (string, error)
	ListRecent(ctx context.Context, limit int) ([]models.ReportDocument, error)
	GetByID(ctx context.Context, id string) (*models.ReportDocument, error)
	SetExportKey(ctx context.Context, id, key string) error
	Delete(ctx context.Context, id string) error
}

// FileStore defines the interface for export storage.
type FileStore interface {
	UploadJSON(ctx context.Context, key string, v interface{}) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	Remove(ctx context.Context, key string) error
}

// RunLedger records pipeline runs.
type RunLedger interface {
	RecordRun(ctx context.Context, run *models.Run) error
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)
}

// Deps are the handler collaborators. Only Runner is required; a nil store
// disables the endpoints and side effects that need it.
type Deps struct {
	Runner  Runner
	Reports ReportStore
	Files   FileStore
	Runs    RunLedger
}

// Handler holds the HTTP handlers.
type Handler struct {
	runner  Runner
	reports ReportStore
	files   FileStore
	runs    RunLedger
}

func NewHandler(d Deps) *Handler {
	return &Handler{runner: d.Runner, reports: d.Reports, files: d.Files, runs: d.Runs}
}

// Analyze runs the pipeline for a niche and returns the report.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runID := uuid.New().String()
	logger := zerolog.Ctx(r.Context()).With().Str("run_id", runID).Logger()
	ctx := logger.WithContext(r.Context())

	start := time.Now()
	report, err := h.runner.Run(ctx, req.Niche, req.SkipCache)
	h.record(ctx, runID, req.Niche, report, err, time.Since(start))

	w.Header().Set("X-Run-ID", runID)
	if err != nil {
		h.writeRunError(ctx, w, err)
		return
	}

	if !report.FromCache {
		if id := h.archive(ctx, runID, report); id != "" {
			w.Header().Set("X-Report-ID", id)
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeRunError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := zerolog.Ctx(ctx)

	var schemaErr *synthesis.SchemaError
	var providerErr *synthesis.ProviderError
	switch {
	case errors.Is(err, pipeline.ErrInvalidNiche):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, synthesis.ErrNotConfigured):
		logger.Error().Err(err).Msg("synthesis provider missing")
		writeError(w, http.StatusServiceUnavailable, "report synthesis is not configured")
	case errors.As(err, &schemaErr):
		logger.Error().Err(err).Str("raw", truncate(schemaErr.Raw, 500)).Msg("synthesis returned an invalid report")
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": schemaErr.Error(),
			"raw":   schemaErr.Raw,
		})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error().Err(err).Msg("pipeline timed out")
		writeError(w, http.StatusGatewayTimeout, "report generation timed out")
	case errors.As(err, &providerErr):
		logger.Error().Err(err).Msg("synthesis provider failed")
		writeError(w, http.StatusBadGateway, "report synthesis failed: "+providerErr.Err.Error())
	default:
		logger.Error().Err(err).Msg("pipeline failed")
		writeError(w, http.StatusInternalServerError, "report generation failed")
	}
}

// record writes the run ledger row. Failures are logged only.
func (h *Handler) record(ctx context.Context, runID, niche string, report *models.Report, runErr error, took time.Duration) {
	if h.runs == nil {
		return
	}
	run := &models.Run{
		ID:         runID,
		Niche:      niche,
		CacheKey:   cache.Normalize(niche),
		Status:     models.RunSucceeded,
		DurationMS: took.Milliseconds(),
	}
	if report != nil {
		run.CacheHit = report.FromCache
	}
	if runErr != nil {
		run.Status = models.RunFailed
		run.Error = runErr.Error()
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := h.runs.RecordRun(pctx, run); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("run ledger write failed (non-fatal)")
	}
}

// archive stores a fresh report and its JSON export. It returns the archive
// id, or "" when archiving is disabled or failed.
func (h *Handler) archive(ctx context.Context, runID string, report *models.Report) string {
	if h.reports == nil {
		return ""
	}
	logger := zerolog.Ctx(ctx)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	doc := &models.ReportDocument{RunID: runID, Niche: report.Niche, Report: *report}
	id, err := h.reports.Insert(pctx, doc)
	if err != nil {
		logger.Warn().Err(err).Msg("report archive failed (non-fatal)")
		return ""
	}

	if h.files != nil {
		key := store.ExportKey(runID, report.Niche)
		if err := h.files.UploadJSON(pctx, key, report); err != nil {
			logger.Warn().Err(err).Msg("report export upload failed (non-fatal)")
		} else if err := h.reports.SetExportKey(pctx, id, key); err != nil {
			logger.Warn().Err(err).Msg("export key update failed (non-fatal)")
		}
	}
	return id
}

// ListReports returns the most recent archived reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive is not configured")
		return
	}
	docs, err := h.reports.ListRecent(r.Context(), limitParam(r))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list reports")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if docs == nil {
		docs = []models.ReportDocument{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// GetReport returns a single archived report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive is not configured")
		return
	}
	doc, err := h.reports.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ExportReport streams the report's JSON export from object storage.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil || h.files == nil {
		writeError(w, http.StatusServiceUnavailable, "report export is not configured")
		return
	}
	doc, err := h.reports.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if doc.ExportKey == "" {
		writeError(w, http.StatusNotFound, "export not available")
		return
	}

	data, ct, err := h.files.Download(r.Context(), doc.ExportKey)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", "attachment; filename=report.json")
	w.Write(data)
}

// DeleteReport removes an archived report and its export.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	doc, err := h.reports.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	if doc.ExportKey != "" && h.files != nil {
		if err := h.files.Remove(r.Context(), doc.ExportKey); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("key", doc.ExportKey).Msg("export removal failed (non-fatal)")
		}
	}
	if err := h.reports.Delete(r.Context(), id); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("delete report")
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// ListRuns returns the most recent ledger rows.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger is not configured")
		return
	}
	runs, err := h.runs.ListRuns(r.Context(), limitParam(r))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list runs")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("store error")
	writeError(w, http.StatusInternalServerError, "database error")
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
