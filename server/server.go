package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"cardpulse_scraper/config"
	"cardpulse_scraper/models"
	"cardpulse_scraper/scraper"
)

// RunStore exposes the local run history for the inspection endpoints.
type RunStore interface {
	RecentRuns(limit int) ([]models.ScrapeRun, error)
	RecentLogs(limit int) ([]models.ScrapeLog, error)
}

// Server is the boundary HTTP layer: it translates pipeline results and
// typed errors into structured ok/step/error responses.
type Server struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	store        RunStore
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, store RunStore) *Server {
	return &Server{cfg: cfg, orchestrator: orchestrator, store: store}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/scrape-now", s.requireAdmin(s.handleScrapeNow))
	r.Get("/runs", s.requireAdmin(s.handleRuns))
	r.Get("/logs", s.requireAdmin(s.handleLogs))

	return r
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	log.Printf("API listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "cardpulse-scraper",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"endpoints": map[string]string{
			"scrape_now": "/scrape-now",
			"health":     "/health",
			"runs":       "/runs",
			"logs":       "/logs",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"configuration": map[string]bool{
			"sink":             s.cfg.Sink.Configured(),
			"database":         s.cfg.DBURL != "",
			"admin_token":      s.cfg.Server.AdminToken != "",
			"browser_fallback": s.cfg.Scraper.BrowserFallback,
		},
	})
}

type scrapeRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleScrapeNow(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode", "invalid JSON body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "validate", "query cannot be empty")
		return
	}

	log.Printf("API: manual scrape request: %q", query)

	result, err := s.orchestrator.Run(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetch", err.Error())
		return
	}

	w.Header().Set("X-Trace-Id", result.TraceID)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"result": result,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store", "run store not configured")
		return
	}
	runs, err := s.store.RecentRuns(historyLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "runs": runs})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store", "run store not configured")
		return
	}
	logs, err := s.store.RecentLogs(historyLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "logs": logs})
}

func historyLimit(r *http.Request) int {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}

// requireAdmin enforces the bearer admin token when one is configured.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.AdminToken == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.cfg.Server.AdminToken {
			writeError(w, http.StatusUnauthorized, "auth", "invalid admin token")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, step, detail string) {
	writeJSON(w, status, map[string]any{
		"ok":    false,
		"step":  step,
		"error": detail,
	})
}
