package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cardpulse_scraper/config"
	"cardpulse_scraper/models"
)

func item(id, title string) models.NormalizedItem {
	return models.NormalizedItem{
		RawListing: models.RawListing{
			Title:           title,
			URL:             "https://www.ebay.com/itm/" + id,
			SourceListingID: id,
		},
		CanonicalKey: "pokemon_base_set_" + id,
		Confidence:   0.5,
	}
}

func newCoordinator(sinkURL string) *Coordinator {
	cfg := config.SinkConfig{URL: sinkURL, Token: "test-token", Timeout: 5 * time.Second}
	return NewCoordinator(cfg, &http.Client{Timeout: 5 * time.Second})
}

func TestDeliver_BatchSuccess(t *testing.T) {
	var requests atomic.Int32
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		gotAuth.Store(r.Header.Get("Authorization"))

		var payload Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		if payload.Query != "charizard" {
			t.Errorf("unexpected query %q", payload.Query)
		}
		if len(payload.Items) != 3 {
			t.Errorf("expected 3 items in the batch, got %d", len(payload.Items))
		}
		if payload.ScrapedAt == "" {
			t.Errorf("missing scraped_at")
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	items := []models.NormalizedItem{item("1", "Card one"), item("2", "Card two"), item("3", "Card three")}
	summary := newCoordinator(srv.URL).Deliver(context.Background(), items, "charizard")

	if summary.Total != 3 || summary.Accepted != 3 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Mode != models.DeliveryBatch {
		t.Fatalf("expected batch mode, got %s", summary.Mode)
	}
	if n := requests.Load(); n != 1 {
		t.Fatalf("expected exactly one request, got %d", n)
	}
	if auth, _ := gotAuth.Load().(string); auth != "Bearer test-token" {
		t.Fatalf("unexpected auth header %q", auth)
	}
}

func TestDeliver_BatchRejectedFallsBackPerItem(t *testing.T) {
	var batchCalls, itemCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload Payload
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("bad payload: %v", err)
			return
		}
		if len(payload.Items) > 1 {
			batchCalls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		itemCalls.Add(1)
		if payload.Items[0].SourceListingID == "2" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	items := []models.NormalizedItem{item("1", "Card one"), item("2", "Card two"), item("3", "Card three")}
	summary := newCoordinator(srv.URL).Deliver(context.Background(), items, "charizard")

	if summary.Total != 3 || summary.Accepted != 2 {
		t.Fatalf("expected {total:3 accepted:2}, got %+v", summary)
	}
	if summary.Mode != models.DeliveryPerItem {
		t.Fatalf("expected per-item mode after batch rejection, got %s", summary.Mode)
	}
	if batchCalls.Load() != 1 {
		t.Fatalf("expected one batch attempt, got %d", batchCalls.Load())
	}
	if itemCalls.Load() != 3 {
		t.Fatalf("expected one request per item, got %d", itemCalls.Load())
	}
}

func TestDeliver_SoftFailureBodyTriggersFallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls.Add(1)
		if strings.Count(string(body), `"source_listing_id"`) > 1 {
			// 200 with a failure body must still count as a rejection.
			w.Write([]byte(`{"ok":false,"error":"validation"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	items := []models.NormalizedItem{item("1", "Card one"), item("2", "Card two")}
	summary := newCoordinator(srv.URL).Deliver(context.Background(), items, "pikachu")

	if summary.Mode != models.DeliveryPerItem {
		t.Fatalf("soft failure body should force per-item fallback, got %s", summary.Mode)
	}
	if summary.Accepted != 2 {
		t.Fatalf("expected both items accepted individually, got %+v", summary)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 1 batch + 2 item requests, got %d", calls.Load())
	}
}

func TestDeliver_UnconfiguredSinkIsNoOp(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	c := NewCoordinator(config.SinkConfig{}, &http.Client{Timeout: time.Second})
	items := []models.NormalizedItem{item("1", "Card one"), item("2", "Card two")}
	summary := c.Deliver(context.Background(), items, "charizard")

	if requests.Load() != 0 {
		t.Fatalf("unconfigured sink must make no network calls, got %d", requests.Load())
	}
	if summary.Total != 2 || summary.Accepted != 0 || summary.Mode != models.DeliveryBatch {
		t.Fatalf("unexpected no-op summary %+v", summary)
	}
}

func TestDeliver_SkipsUndeliverableItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		if len(payload.Items) != 1 {
			t.Errorf("expected skipped items excluded from the batch, got %d", len(payload.Items))
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	items := []models.NormalizedItem{
		item("1", "Card one"),
		{RawListing: models.RawListing{Title: "No URL and no id"}},
		{RawListing: models.RawListing{URL: "https://www.ebay.com/itm/5"}},
	}
	summary := newCoordinator(srv.URL).Deliver(context.Background(), items, "charizard")

	if summary.Total != 1 || summary.Accepted != 1 || summary.Skipped != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestDeliver_EmptyEligibleSet(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	summary := newCoordinator(srv.URL).Deliver(context.Background(), nil, "charizard")
	if requests.Load() != 0 {
		t.Fatalf("empty eligible set must not hit the sink, got %d requests", requests.Load())
	}
	if summary.Total != 0 || summary.Accepted != 0 || summary.Mode != models.DeliveryBatch {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
