package scraper

import (
	"context"
	"fmt"
	"net/url"

	"cardpulse_scraper/config"
	"cardpulse_scraper/logging"
	"cardpulse_scraper/models"
)

// Source produces the search-results document for a query in one listing
// mode.
type Source interface {
	Fetch(ctx context.Context, query string, mode models.Mode) (string, error)
}

// HTTPSource builds the mode's search URL from the market config and fetches
// it over plain HTTP.
type HTTPSource struct {
	fetcher *Fetcher
	market  *config.MarketConfig
}

func NewHTTPSource(fetcher *Fetcher, market *config.MarketConfig) *HTTPSource {
	return &HTTPSource{fetcher: fetcher, market: market}
}

func (s *HTTPSource) Fetch(ctx context.Context, query string, mode models.Mode) (string, error) {
	target, err := searchURL(s.market, query, mode)
	if err != nil {
		return "", err
	}
	return s.fetcher.Fetch(ctx, target, mode)
}

func searchURL(market *config.MarketConfig, query string, mode models.Mode) (string, error) {
	tmpl, ok := market.Endpoints[string(mode)]
	if !ok {
		return "", fmt.Errorf("market %s: no endpoint for mode %s", market.ID, mode)
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(query)), nil
}

// FallbackSource tries the primary source and, on a terminal failure, the
// fallback. The two stages are composed by the caller; neither stage ever
// calls back into itself.
type FallbackSource struct {
	Primary  Source
	Fallback Source
}

func (s *FallbackSource) Fetch(ctx context.Context, query string, mode models.Mode) (string, error) {
	doc, err := s.Primary.Fetch(ctx, query, mode)
	if err == nil {
		return doc, nil
	}
	if s.Fallback == nil {
		return "", err
	}
	logging.Warnf("Primary source failed for %q (%s), trying fallback: %v", query, mode, err)
	return s.Fallback.Fetch(ctx, query, mode)
}
