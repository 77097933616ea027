package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cardpulse_scraper/config"
	"cardpulse_scraper/models"
)

// fakeStore serves canned run history and records the requested limit.
type fakeStore struct {
	runs      []models.ScrapeRun
	logs      []models.ScrapeLog
	err       error
	lastLimit int
}

func (f *fakeStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	f.lastLimit = limit
	return f.runs, f.err
}

func (f *fakeStore) RecentLogs(limit int) ([]models.ScrapeLog, error) {
	f.lastLimit = limit
	return f.logs, f.err
}

func testServer(adminToken string, store RunStore) *Server {
	cfg := &config.Config{}
	cfg.Server.AdminToken = adminToken
	return New(cfg, nil, store)
}

func TestHealth(t *testing.T) {
	srv := testServer("", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status        string          `json:"status"`
		Configuration map[string]bool `json:"configuration"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.Status != "healthy" {
		t.Fatalf("unexpected status %q", body.Status)
	}
	if body.Configuration["sink"] {
		t.Fatalf("unconfigured sink reported as configured")
	}
}

func TestScrapeNow_RejectsEmptyQuery(t *testing.T) {
	srv := testServer("", nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/scrape-now", strings.NewReader(`{"query":"   "}`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		OK   bool   `json:"ok"`
		Step string `json:"step"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.OK || body.Step != "validate" {
		t.Fatalf("unexpected error envelope %+v", body)
	}
}

func TestScrapeNow_RejectsMalformedBody(t *testing.T) {
	srv := testServer("", nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/scrape-now", strings.NewReader(`not json`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScrapeNow_AdminToken(t *testing.T) {
	srv := testServer("secret", nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/scrape-now", strings.NewReader(`{"query":"x"}`))
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token should be rejected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/scrape-now", strings.NewReader(`{"query":""}`))
	req.Header.Set("Authorization", "Bearer secret")
	srv.Router().ServeHTTP(rec, req)
	// Past the auth gate: the empty query now fails validation instead.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("valid token should reach the handler, got %d", rec.Code)
	}
}

func TestRuns(t *testing.T) {
	finished := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{runs: []models.ScrapeRun{{
		ID:            7,
		TraceID:       "trace-7",
		Query:         "charizard",
		Status:        models.RunStatusCompleted,
		FinishedAt:    &finished,
		ListingsFound: 2,
	}}}
	srv := testServer("", store)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.lastLimit != 20 {
		t.Fatalf("expected default limit 20, got %d", store.lastLimit)
	}

	var body struct {
		OK   bool               `json:"ok"`
		Runs []models.ScrapeRun `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !body.OK || len(body.Runs) != 1 || body.Runs[0].TraceID != "trace-7" {
		t.Fatalf("unexpected runs payload %+v", body)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/runs?limit=500", nil))
	if store.lastLimit != 100 {
		t.Fatalf("expected limit capped at 100, got %d", store.lastLimit)
	}
}

func TestLogs(t *testing.T) {
	runID := int64(7)
	store := &fakeStore{logs: []models.ScrapeLog{{
		ID:      1,
		RunID:   &runID,
		Level:   models.LogLevelWarn,
		Message: "Active fetch failed: blocked",
		Query:   "charizard",
	}}}
	srv := testServer("", store)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/logs?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.lastLimit != 5 {
		t.Fatalf("expected limit 5, got %d", store.lastLimit)
	}

	var body struct {
		OK   bool               `json:"ok"`
		Logs []models.ScrapeLog `json:"logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !body.OK || len(body.Logs) != 1 {
		t.Fatalf("unexpected logs payload %+v", body)
	}
	entry := body.Logs[0]
	if entry.Level != models.LogLevelWarn || entry.RunID == nil || *entry.RunID != 7 {
		t.Fatalf("unexpected log entry %+v", entry)
	}
}

func TestRuns_StoreUnavailable(t *testing.T) {
	srv := testServer("", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a store, got %d", rec.Code)
	}
}

func TestRuns_StoreError(t *testing.T) {
	srv := testServer("", &fakeStore{err: errors.New("disk gone")})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store failure, got %d", rec.Code)
	}
}
