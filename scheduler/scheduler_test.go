package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cardpulse_scraper/config"
	"cardpulse_scraper/models"
	"cardpulse_scraper/scraper"
)

// fakeRunner records queries and tracks concurrent invocations.
type fakeRunner struct {
	mu       sync.Mutex
	queries  []string
	failOn   string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, query string) (*scraper.RunResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if query == f.failOn {
		return nil, errors.New("fetch blocked")
	}
	return &scraper.RunResult{
		Query:   query,
		Summary: models.DeliverySummary{Mode: models.DeliveryBatch},
	}, nil
}

func testConfig(batchLimit int) *config.Config {
	cfg := &config.Config{}
	cfg.Scheduler.BatchLimit = batchLimit
	cfg.Scheduler.SleepJitter = time.Millisecond
	return cfg
}

func TestSweep_FallbackQueries(t *testing.T) {
	runner := &fakeRunner{}
	s := New(testConfig(20), runner, nil)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runner.queries) != len(fallbackQueries) {
		t.Fatalf("expected every fallback query swept, got %d of %d",
			len(runner.queries), len(fallbackQueries))
	}
	seen := make(map[string]bool, len(runner.queries))
	for _, q := range runner.queries {
		seen[q] = true
	}
	for _, q := range fallbackQueries {
		if !seen[q] {
			t.Fatalf("fallback query %q never ran", q)
		}
	}
}

func TestSweep_BatchLimitBoundsConcurrency(t *testing.T) {
	runner := &fakeRunner{}
	s := New(testConfig(2), runner, nil)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.queries) != len(fallbackQueries) {
		t.Fatalf("expected all queries processed across batches, got %d", len(runner.queries))
	}
	if peak := runner.peak.Load(); peak > 2 {
		t.Fatalf("batch limit 2 exceeded: %d concurrent runs", peak)
	}
}

func TestSweep_QueryFailureDoesNotAbort(t *testing.T) {
	runner := &fakeRunner{failOn: fallbackQueries[0]}
	s := New(testConfig(3), runner, nil)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("a failing query must not abort the sweep: %v", err)
	}
	if len(runner.queries) != len(fallbackQueries) {
		t.Fatalf("expected the sweep to continue past the failure, got %d of %d",
			len(runner.queries), len(fallbackQueries))
	}
}
