package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cardpulse_scraper/config"
	"cardpulse_scraper/logging"
	"cardpulse_scraper/models"
)

// A sink response body beginning with this marker is a failure even under a
// 2xx status.
const failureMarker = `{"ok":false`

const perItemConcurrency = 8

// Payload is the ingestion envelope the sink accepts.
type Payload struct {
	Query     string                  `json:"query"`
	Items     []models.NormalizedItem `json:"items"`
	ScrapedAt string                  `json:"scraped_at"`
}

// Coordinator validates, filters and posts normalized batches to the
// ingestion sink, degrading to concurrent per-item delivery when the batch
// is rejected. Deliver never lets a failure escape its boundary.
type Coordinator struct {
	cfg    config.SinkConfig
	client *http.Client
	now    func() time.Time
}

func NewCoordinator(cfg config.SinkConfig, client *http.Client) *Coordinator {
	return &Coordinator{cfg: cfg, client: client, now: time.Now}
}

// Deliver posts the eligible subset of items for query and reports the
// aggregate outcome. An unconfigured sink is a deliberate no-op, not an
// error.
func (c *Coordinator) Deliver(ctx context.Context, items []models.NormalizedItem, query string) models.DeliverySummary {
	eligible := make([]models.NormalizedItem, 0, len(items))
	skipped := 0
	for _, item := range items {
		if item.Deliverable() {
			eligible = append(eligible, item)
		} else {
			skipped++
		}
	}

	summary := models.DeliverySummary{
		Total:   len(eligible),
		Skipped: skipped,
		Mode:    models.DeliveryBatch,
	}

	if !c.cfg.Configured() {
		logging.Infof("Delivery: sink not configured, skipping %d items", len(eligible))
		return summary
	}
	if len(eligible) == 0 {
		return summary
	}

	outcome := c.post(ctx, Payload{Query: query, Items: eligible, ScrapedAt: c.now().UTC().Format(time.RFC3339)})
	if outcome.Status == models.DeliveryAccepted {
		summary.Accepted = len(eligible)
		return summary
	}

	logging.Warnf("Delivery: batch of %d rejected (%s, status %d), falling back to per-item",
		len(eligible), outcome.Status, outcome.HTTPStatus)

	summary.Mode = models.DeliveryPerItem
	summary.Accepted = c.deliverPerItem(ctx, eligible, query)
	return summary
}

// deliverPerItem fans out one request per item and joins on all of them;
// individual failures never cancel siblings.
func (c *Coordinator) deliverPerItem(ctx context.Context, items []models.NormalizedItem, query string) int {
	outcomes := make([]models.DeliveryOutcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(perItemConcurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			outcomes[i] = c.post(gctx, Payload{
				Query:     query,
				Items:     []models.NormalizedItem{item},
				ScrapedAt: c.now().UTC().Format(time.RFC3339),
			})
			return nil
		})
	}
	g.Wait()

	accepted := 0
	for i, outcome := range outcomes {
		if outcome.Status == models.DeliveryAccepted {
			accepted++
		} else {
			logging.Warnf("Delivery: item %s %s (status %d): %s",
				items[i].IdentityKey(), outcome.Status, outcome.HTTPStatus, outcome.Detail)
		}
	}
	return accepted
}

func (c *Coordinator) post(ctx context.Context, payload Payload) models.DeliveryOutcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.DeliveryOutcome{Status: models.DeliveryRejected, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return models.DeliveryOutcome{Status: models.DeliveryRejected, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		status := models.DeliveryRejected
		if isTimeout(err) {
			status = models.DeliveryTimedOut
		}
		return models.DeliveryOutcome{Status: status, Detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return models.DeliveryOutcome{
			Status:     models.DeliveryRejected,
			HTTPStatus: resp.StatusCode,
			Detail:     string(respBody),
		}
	}
	if strings.HasPrefix(strings.TrimSpace(string(respBody)), failureMarker) {
		return models.DeliveryOutcome{
			Status:     models.DeliveryRejected,
			HTTPStatus: resp.StatusCode,
			Detail:     fmt.Sprintf("sink reported failure: %s", respBody),
		}
	}

	return models.DeliveryOutcome{Status: models.DeliveryAccepted, HTTPStatus: resp.StatusCode}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}
