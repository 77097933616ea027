package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cardpulse_scraper/config"
	"cardpulse_scraper/delivery"
	"cardpulse_scraper/logging"
	"cardpulse_scraper/models"
	"cardpulse_scraper/normalize"
	"cardpulse_scraper/storage"
)

// RunResult is the structured outcome of one pipeline run.
type RunResult struct {
	TraceID     string                  `json:"trace_id"`
	Query       string                  `json:"query"`
	Items       []models.NormalizedItem `json:"items"`
	Summary     models.DeliverySummary  `json:"delivery"`
	ActiveCount int                     `json:"active_count"`
	SoldCount   int                     `json:"sold_count"`
	ScrapedAt   time.Time               `json:"scraped_at"`
	ModeErrors  map[string]string       `json:"mode_errors,omitempty"`
}

// Orchestrator wires the full pipeline for one query: concurrent
// active/sold parses, merge, normalization and delivery, with run records
// written to the configured stores.
type Orchestrator struct {
	cfg         *config.Config
	parser      *ListingParser
	normalizer  *normalize.Normalizer
	coordinator *delivery.Coordinator

	sqlite *storage.SQLiteStore
	pg     *storage.PostgresStore
}

func NewOrchestrator(cfg *config.Config, parser *ListingParser, normalizer *normalize.Normalizer, coordinator *delivery.Coordinator) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		parser:      parser,
		normalizer:  normalizer,
		coordinator: coordinator,
	}
}

// SetStores injects the optional run stores. Either may be nil.
func (o *Orchestrator) SetStores(sqlite *storage.SQLiteStore, pg *storage.PostgresStore) {
	o.sqlite = sqlite
	o.pg = pg
}

// Run executes the pipeline for one query. One mode failing contributes
// zero listings; both failing is a structured error so the caller can tell
// "no listings" from "could not fetch".
func (o *Orchestrator) Run(ctx context.Context, query string) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Scraper.GlobalTimeout)
	defer cancel()

	run := &models.ScrapeRun{
		TraceID:   uuid.NewString(),
		Query:     query,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	o.createRun(ctx, run)
	o.logRun(run, models.LogLevelInfo, fmt.Sprintf("Starting scrape for %q", query))

	var active, sold []models.RawListing
	var activeErr, soldErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		active, activeErr = o.parser.Parse(gctx, query, models.ModeActive)
		return nil
	})
	g.Go(func() error {
		sold, soldErr = o.parser.Parse(gctx, query, models.ModeSold)
		return nil
	})
	g.Wait()

	modeErrors := make(map[string]string)
	if activeErr != nil {
		run.ErrorsCount++
		modeErrors[string(models.ModeActive)] = activeErr.Error()
		o.logRun(run, models.LogLevelWarn, fmt.Sprintf("Active fetch failed: %v", activeErr))
	}
	if soldErr != nil {
		run.ErrorsCount++
		modeErrors[string(models.ModeSold)] = soldErr.Error()
		o.logRun(run, models.LogLevelWarn, fmt.Sprintf("Sold fetch failed: %v", soldErr))
	}
	if activeErr != nil && soldErr != nil {
		o.logRun(run, models.LogLevelError, "Both modes failed, aborting run")
		o.finishRun(ctx, run, models.RunStatusFailed)
		return nil, fmt.Errorf("fetch failed for both modes: active: %w; sold: %v", activeErr, soldErr)
	}

	merged := MergeListings(active, sold)

	items := make([]models.NormalizedItem, 0, len(merged))
	for _, listing := range merged {
		items = append(items, o.normalizer.Normalize(listing, models.ParsedHints{}))
	}

	summary := o.coordinator.Deliver(ctx, items, query)

	run.ActiveCount = len(active)
	run.SoldCount = len(sold)
	run.ListingsFound = len(merged)
	run.Delivered = summary.Accepted
	run.SkippedItems = summary.Skipped
	o.finishRun(ctx, run, models.RunStatusCompleted)
	o.logRun(run, models.LogLevelInfo, fmt.Sprintf(
		"Completed: %d active, %d sold, %d merged, %d delivered (%s), %d skipped",
		len(active), len(sold), len(merged), summary.Accepted, summary.Mode, summary.Skipped))

	return &RunResult{
		TraceID:     run.TraceID,
		Query:       query,
		Items:       items,
		Summary:     summary,
		ActiveCount: len(active),
		SoldCount:   len(sold),
		ScrapedAt:   run.StartedAt,
		ModeErrors:  modeErrors,
	}, nil
}

func (o *Orchestrator) createRun(ctx context.Context, run *models.ScrapeRun) {
	if o.sqlite != nil {
		if id, err := o.sqlite.CreateRun(run); err != nil {
			logging.Warnf("Failed to create run record: %v", err)
		} else {
			run.ID = id
		}
	}
	if o.pg != nil {
		if err := o.pg.CreateScrapeRun(ctx, run); err != nil {
			logging.Warnf("Failed to create Postgres run: %v", err)
		}
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, run *models.ScrapeRun, status models.RunStatus) {
	now := time.Now()
	run.FinishedAt = &now
	run.Status = status
	if o.sqlite != nil {
		if err := o.sqlite.UpdateRun(run); err != nil {
			logging.Warnf("Failed to update run record: %v", err)
		}
	}
	if o.pg != nil {
		if err := o.pg.UpdateScrapeRun(ctx, run); err != nil {
			logging.Warnf("Failed to update Postgres run: %v", err)
		}
	}
}

func (o *Orchestrator) logRun(run *models.ScrapeRun, level models.LogLevel, message string) {
	logging.Logf(string(level), "%s: %s", run.TraceID, message)
	if o.sqlite != nil {
		o.sqlite.Log(&run.ID, level, message, run.Query)
	}
}
