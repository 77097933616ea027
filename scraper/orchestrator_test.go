package scraper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cardpulse_scraper/config"
	"cardpulse_scraper/delivery"
	"cardpulse_scraper/models"
	"cardpulse_scraper/normalize"
)

// stubSource serves canned documents (or failures) per listing mode.
type stubSource struct {
	active    string
	sold      string
	activeErr error
	soldErr   error
}

func (s *stubSource) Fetch(ctx context.Context, query string, mode models.Mode) (string, error) {
	if mode == models.ModeActive {
		return s.active, s.activeErr
	}
	return s.sold, s.soldErr
}

func testOrchestrator(source Source) *Orchestrator {
	cfg := &config.Config{}
	cfg.Scraper.GlobalTimeout = 30 * time.Second

	parser := NewListingParser(source, NewCardExtractor("ebay", 50))
	coordinator := delivery.NewCoordinator(config.SinkConfig{}, &http.Client{Timeout: time.Second})
	return NewOrchestrator(cfg, parser, normalize.New(), coordinator)
}

func TestRun_BothModes(t *testing.T) {
	source := &stubSource{
		active: loadFixture(t, "search_active.html"),
		sold:   loadFixture(t, "search_sold.html"),
	}

	result, err := testOrchestrator(source).Run(context.Background(), "charizard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ActiveCount != 2 || result.SoldCount != 1 {
		t.Fatalf("expected 2 active and 1 sold, got %d/%d", result.ActiveCount, result.SoldCount)
	}
	// The sold copy shares an id with the first active listing.
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 merged items, got %d", len(result.Items))
	}
	soldSeen := false
	for _, item := range result.Items {
		if item.SourceListingID == "256012345678" {
			if !item.Sold {
				t.Fatalf("sold copy must win for the shared id: %+v", item.RawListing)
			}
			soldSeen = true
		}
	}
	if !soldSeen {
		t.Fatalf("shared-id listing missing from merged items")
	}
	if len(result.ModeErrors) != 0 {
		t.Fatalf("unexpected mode errors: %v", result.ModeErrors)
	}
	if result.TraceID == "" {
		t.Fatalf("missing trace id")
	}
}

func TestRun_OneModeFailing(t *testing.T) {
	source := &stubSource{
		activeErr: errors.New("blocked"),
		sold:      loadFixture(t, "search_sold.html"),
	}

	result, err := testOrchestrator(source).Run(context.Background(), "charizard")
	if err != nil {
		t.Fatalf("single-mode failure must not fail the run: %v", err)
	}
	if result.ActiveCount != 0 || result.SoldCount != 1 {
		t.Fatalf("failed mode must contribute zero listings, got %d/%d", result.ActiveCount, result.SoldCount)
	}
	if len(result.Items) != 1 || !result.Items[0].Sold {
		t.Fatalf("sold listings must still flow through, got %+v", result.Items)
	}
	if msg := result.ModeErrors[string(models.ModeActive)]; msg == "" {
		t.Fatalf("expected the active failure recorded in mode errors, got %v", result.ModeErrors)
	}
	if _, ok := result.ModeErrors[string(models.ModeSold)]; ok {
		t.Fatalf("sold mode succeeded but has a recorded error")
	}
}

func TestRun_BothModesFailing(t *testing.T) {
	source := &stubSource{
		activeErr: errors.New("blocked"),
		soldErr:   errors.New("timeout"),
	}

	result, err := testOrchestrator(source).Run(context.Background(), "charizard")
	if err == nil {
		t.Fatalf("dual failure must surface an error, got result %+v", result)
	}
	if result != nil {
		t.Fatalf("dual failure must not produce a result, got %+v", result)
	}
}
