package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ayush/truth-engine/internal/models"
	"github.com/ayush/truth-engine/internal/pipeline"
	"github.com/ayush/truth-engine/internal/store"
	"github.com/ayush/truth-engine/internal/synthesis"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, niche string, bypassCache bool) (*models.Report, error) {
	args := m.Called(ctx, niche, bypassCache)
	r, _ := args.Get(0).(*models.Report)
	return r, args.Error(1)
}

type memReports struct {
	mu        sync.Mutex
	docs      map[string]*models.ReportDocument
	insertErr error
}

func newMemReports() *memReports {
	return &memReports{docs: map[string]*models.ReportDocument{}}
}

func (m *memReports) Insert(_ context.Context, doc *models.ReportDocument) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = primitive.NewObjectID()
	cp := *doc
	m.docs[doc.ID.Hex()] = &cp
	return doc.ID.Hex(), nil
}

func (m *memReports) ListRecent(_ context.Context, limit int) ([]models.ReportDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReportDocument
	for _, d := range m.docs {
		if len(out) == limit {
			break
		}
		out = append(out, *d)
	}
	return out, nil
}

func (m *memReports) GetByID(_ context.Context, id string) (*models.ReportDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memReports) SetExportKey(_ context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.ExportKey = key
	return nil
}

func (m *memReports) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

type memFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{objects: map[string][]byte{}}
}

func (m *memFiles) UploadJSON(_ context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memFiles) Download(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return data, "application/json", nil
}

func (m *memFiles) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type memRuns struct {
	mu   sync.Mutex
	runs []models.Run
}

func (m *memRuns) RecordRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memRuns) ListRuns(_ context.Context, limit int) ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) > limit {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

type harness struct {
	runner  *mockRunner
	reports *memReports
	files   *memFiles
	runs    *memRuns
	router  http.Handler
}

func newHarness() *harness {
	h := &harness{
		runner:  new(mockRunner),
		reports: newMemReports(),
		files:   newMemFiles(),
		runs:    &memRuns{},
	}
	handler := NewHandler(Deps{Runner: h.runner, Reports: h.reports, Files: h.files, Runs: h.runs})
	h.router = NewRouter(zerolog.Nop(), handler, []string{"*"})
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func sampleReport(niche string) *models.Report {
	return &models.Report{
		ViabilityScore: 68,
		Verdict:        "CAUTION",
		Niche:          niche,
		CommunityQuotes: []models.ExtractedQuote{
			{Quote: "I paid an agency $5k", Source: "r/entrepreneur", Context: "value"},
		},
	}
}

func TestHealth(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAnalyze_FreshReportIsArchivedAndExported(t *testing.T) {
	h := newHarness()
	h.runner.On("Run", mock.Anything, "AI automation agency", false).
		Return(sampleReport("AI automation agency"), nil).Once()

	rec := h.do(http.MethodPost, "/api/analyze", `{"niche":"AI automation agency"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 68, got.ViabilityScore)
	assert.False(t, got.FromCache)

	runID := rec.Header().Get("X-Run-ID")
	reportID := rec.Header().Get("X-Report-ID")
	require.NotEmpty(t, runID)
	require.NotEmpty(t, reportID)

	doc, err := h.reports.GetByID(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, runID, doc.RunID)
	assert.Equal(t, store.ExportKey(runID, "AI automation agency"), doc.ExportKey)
	assert.Contains(t, h.files.objects, doc.ExportKey)

	require.Len(t, h.runs.runs, 1)
	assert.Equal(t, models.RunSucceeded, h.runs.runs[0].Status)
	assert.Equal(t, "ai automation agency", h.runs.runs[0].CacheKey)
	assert.False(t, h.runs.runs[0].CacheHit)
	h.runner.AssertExpectations(t)
}

func TestAnalyze_CachedReportIsNotArchivedAgain(t *testing.T) {
	h := newHarness()
	cached := sampleReport("ai automation agency")
	cached.FromCache = true
	h.runner.On("Run", mock.Anything, "ai automation agency", false).Return(cached, nil).Once()

	rec := h.do(http.MethodPost, "/api/analyze", `{"niche":"ai automation agency"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Report-ID"))
	assert.Empty(t, h.reports.docs)
	require.Len(t, h.runs.runs, 1)
	assert.True(t, h.runs.runs[0].CacheHit)
}

func TestAnalyze_SkipCacheIsForwarded(t *testing.T) {
	h := newHarness()
	h.runner.On("Run", mock.Anything, "dog walking", true).Return(sampleReport("dog walking"), nil).Once()

	rec := h.do(http.MethodPost, "/api/analyze", `{"niche":"dog walking","skipCache":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	h.runner.AssertExpectations(t)
}

func TestAnalyze_ArchiveFailureIsNonFatal(t *testing.T) {
	h := newHarness()
	h.reports.insertErr = errors.New("mongo down")
	h.runner.On("Run", mock.Anything, "x", false).Return(sampleReport("x"), nil).Once()

	rec := h.do(http.MethodPost, "/api/analyze", `{"niche":"x"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Run-ID"))
	assert.Empty(t, rec.Header().Get("X-Report-ID"))
	assert.Empty(t, h.files.objects)
}

func TestAnalyze_InvalidBody(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/api/analyze", `{"niche":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	h.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid niche", fmt.Errorf("%w: niche must not be empty", pipeline.ErrInvalidNiche), http.StatusBadRequest},
		{"not configured", fmt.Errorf("synthesize: %w", synthesis.ErrNotConfigured), http.StatusServiceUnavailable},
		{"provider", fmt.Errorf("synthesize: %w", &synthesis.ProviderError{Err: errors.New("429")}), http.StatusBadGateway},
		{"timeout", fmt.Errorf("synthesize: %w", &synthesis.ProviderError{Err: context.DeadlineExceeded}), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.runner.On("Run", mock.Anything, "n", false).Return(nil, tt.err).Once()

			rec := h.do(http.MethodPost, "/api/analyze", `{"niche":"n"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Empty(t, rec.Header().Get("X-Report-ID"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])

			require.Len(t, h.runs.runs, 1)
			assert.Equal(t, models.RunFailed, h.runs.runs[0].Status)
			assert.Equal(t, tt.err.Error(), h.runs.runs[0].Error)
			assert.Equal(t, h.runs.runs[0].ID, rec.Header().Get("X-Run-ID"))
		})
	}
}

func TestAnalyze_SchemaErrorCarriesRawOutput(t *testing.T) {
	h := newHarness()
	raw := "```json\n{\"viabilityScore\": 70}\n```"
	h.runner.On("Run", mock.Anything, "n", false).
		Return(nil, fmt.Errorf("synthesize: %w", &synthesis.SchemaError{Raw: raw, Reason: "not valid JSON"})).Once()

	rec := h.do(http.MethodPost, "/api/analyze", `{"niche":"n"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, raw, body["raw"])
	assert.Contains(t, body["error"], "not valid JSON")
}

func TestReports_GetExportDelete(t *testing.T) {
	h := newHarness()
	h.runner.On("Run", mock.Anything, "pet insurance", false).Return(sampleReport("pet insurance"), nil).Once()
	id := h.do(http.MethodPost, "/api/analyze", `{"niche":"pet insurance"}`).Header().Get("X-Report-ID")
	require.NotEmpty(t, id)

	rec := h.do(http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []models.ReportDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "pet insurance", docs[0].Niche)

	rec = h.do(http.MethodGet, "/api/reports/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/reports/"+id+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var exported models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.Equal(t, "pet insurance", exported.Niche)

	rec = h.do(http.MethodDelete, "/api/reports/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.files.objects)

	rec = h.do(http.MethodGet, "/api/reports/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReports_NotConfigured(t *testing.T) {
	handler := NewHandler(Deps{Runner: new(mockRunner)})
	router := NewRouter(zerolog.Nop(), handler, []string{"*"})

	for _, path := range []string{"/api/reports", "/api/reports/abc", "/api/reports/abc/export", "/api/runs"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestAnalyze_NoStoresStillServes(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, "n", false).Return(sampleReport("n"), nil).Once()
	router := NewRouter(zerolog.Nop(), NewHandler(Deps{Runner: runner}), []string{"*"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"niche":"n"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Run-ID"))
}

func TestListRuns_Limit(t *testing.T) {
	h := newHarness()
	for i := 0; i < 3; i++ {
		h.runs.runs = append(h.runs.runs, models.Run{ID: fmt.Sprint(i)})
	}

	rec := h.do(http.MethodGet, "/api/runs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)
}

func TestLimitParam(t *testing.T) {
	for q, want := range map[string]int{"": 20, "abc": 20, "-1": 20, "5": 5, "1000": 100} {
		r := httptest.NewRequest(http.MethodGet, "/api/runs?limit="+q, nil)
		assert.Equal(t, want, limitParam(r), q)
	}
}
