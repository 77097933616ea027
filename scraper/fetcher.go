package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"cardpulse_scraper/logging"
	"cardpulse_scraper/models"
)

type ErrorKind string

const (
	ErrTimeout ErrorKind = "timeout"
	ErrHTTP    ErrorKind = "http_error"
	ErrNetwork ErrorKind = "network_error"
)

// FetchError is the terminal failure of a fetch after the retry budget is
// exhausted.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Pool of desktop browser identities rotated per request. Best-effort
// fingerprint variation, not a security boundary.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.97",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
}

const (
	maxAttempts    = 3
	backoffFactor  = 1.6
	minPoliteDelay = 1 * time.Second
	maxPoliteDelay = 2 * time.Second
)

// Fetcher issues single outbound requests for listing-search pages with
// identity rotation, a politeness delay and bounded retry.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	agents  []string

	// Overridable in tests to avoid real sleeps.
	minDelay time.Duration
	maxDelay time.Duration
}

func NewFetcher(client *http.Client, rateLimitMS int) *Fetcher {
	if rateLimitMS <= 0 {
		rateLimitMS = 1000
	}
	every := time.Duration(rateLimitMS) * time.Millisecond
	return &Fetcher{
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(every), 1),
		agents:   defaultUserAgents,
		minDelay: minPoliteDelay,
		maxDelay: maxPoliteDelay,
	}
}

// Fetch returns the document text at targetURL, retrying transient failures
// up to three attempts. Non-200 responses and network errors are both
// retryable; the last failure is surfaced with its kind.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, mode models.Mode) (string, error) {
	var lastErr *FetchError

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", &FetchError{Kind: ErrTimeout, URL: targetURL, Err: err}
		}
		if err := f.sleep(ctx, f.attemptDelay(attempt)); err != nil {
			return "", &FetchError{Kind: ErrTimeout, URL: targetURL, Err: err}
		}

		body, ferr := f.attempt(ctx, targetURL)
		if ferr == nil {
			return body, nil
		}
		lastErr = ferr
		logging.Warnf("Fetch attempt %d/%d failed (%s): %v", attempt+1, maxAttempts, mode, ferr)
	}

	return "", lastErr
}

// attemptDelay is the pre-attempt sleep: a randomized politeness delay, and
// on retries the base delay scaled by 1.6^attempt with ±20% jitter.
func (f *Fetcher) attemptDelay(attempt int) time.Duration {
	span := f.maxDelay - f.minDelay
	base := f.minDelay
	if span > 0 {
		base += time.Duration(rand.Int63n(int64(span)))
	}
	if attempt == 0 {
		return base
	}
	scaled := float64(base) * math.Pow(backoffFactor, float64(attempt))
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(scaled * jitter)
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Fetcher) attempt(ctx context.Context, targetURL string) (string, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, "GET", targetURL, nil)
	if err != nil {
		return "", &FetchError{Kind: ErrNetwork, URL: targetURL, Err: err}
	}

	req.Header.Set("User-Agent", f.agents[rand.Intn(len(f.agents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{Kind: classify(err), URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", &FetchError{Kind: ErrHTTP, URL: targetURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{Kind: classify(err), URL: targetURL, Err: err}
	}

	return string(body), nil
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return ErrTimeout
	}
	return ErrNetwork
}
