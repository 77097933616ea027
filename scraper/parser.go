package scraper

import (
	"context"
	"fmt"

	"cardpulse_scraper/logging"
	"cardpulse_scraper/models"
)

// ListingParser drives the fetch for one listing mode and yields the raw
// listings found on the results page.
type ListingParser struct {
	source    Source
	extractor *CardExtractor
}

func NewListingParser(source Source, extractor *CardExtractor) *ListingParser {
	return &ListingParser{source: source, extractor: extractor}
}

func (p *ListingParser) Parse(ctx context.Context, query string, mode models.Mode) ([]models.RawListing, error) {
	html, err := p.source.Fetch(ctx, query, mode)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", mode, err)
	}

	doc, err := ParseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("%s parse: %w", mode, err)
	}

	listings := p.extractor.ExtractListings(doc, query, mode)
	if len(listings) == 0 {
		logging.Infof("Parser: zero listings for %q (%s)", query, mode)
	} else {
		logging.Infof("Parser: %d listings for %q (%s)", len(listings), query, mode)
	}
	return listings, nil
}
