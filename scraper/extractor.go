package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"cardpulse_scraper/logging"
	"cardpulse_scraper/models"
)

// Selector fallback chains for the result-page markup. The site ships
// several card layouts; each chain is tried in order and the first hit wins.
var (
	cardSelectors = []string{
		"li.s-item",
		"div.s-item",
		".srp-results .s-item__wrapper",
		".sresult",
	}

	titleSelectors = []string{
		".s-item__title span[role=heading]",
		".s-item__title span",
		".s-item__title",
		"h3.s-item__title",
		"h3.lvtitle a",
		".it-ttl",
	}

	priceSelectors = []string{
		".s-item__price",
		".s-item__detail--primary .s-item__price",
		".lvprice .bold",
		".prc .bold",
	}

	imageSelectors = []string{
		".s-item__image img",
		".s-item__image-wrapper img",
		"img.s-item__image-img",
		".img img",
	}

	bidSelectors = []string{
		".s-item__bids",
		".s-item__bidCount",
		".lvformat",
	}

	soldDateSelectors = []string{
		".s-item__title--tagblock .POSITIVE",
		".s-item__caption--signal .POSITIVE",
		".s-item__caption .POSITIVE",
		".s-item__ended-date",
	}

	shippingSelectors = []string{
		".s-item__shipping",
		".s-item__logisticsCost",
		".s-item__freeXDays",
		".lvshipping",
	}

	urlDataAttrs = []string{"data-viewitemurl", "data-href"}
	idDataAttrs  = []string{"data-listingid", "data-itemid", "data-id"}

	// Two known item-detail path shapes: /itm/<id> and /itm/<slug>/<id>.
	itemIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/itm/(\d{6,})`),
		regexp.MustCompile(`/itm/[^/]+/(\d{6,})`),
	}

	decimalPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	intPattern     = regexp.MustCompile(`\d+`)
	longIDPattern  = regexp.MustCompile(`^\d{6,}$`)
)

// currencySymbols maps price-text symbols to ISO codes, checked in order.
// Multi-character symbols come first so "US $" is not swallowed by "$".
var currencySymbols = []struct {
	Symbol string
	Code   string
}{
	{"C $", "CAD"},
	{"AU $", "AUD"},
	{"US $", "USD"},
	{"£", "GBP"},
	{"€", "EUR"},
	{"¥", "JPY"},
	{"$", "USD"},
}

// Placeholder title the source injects into empty promo cards.
const placeholderTitle = "Shop on eBay"

const defaultMaxCards = 50

// CardExtractor locates repeated listing cards in a parsed document and
// extracts a normalized field set per card.
type CardExtractor struct {
	marketID string
	maxCards int
}

func NewCardExtractor(marketID string, maxCards int) *CardExtractor {
	if maxCards <= 0 {
		maxCards = defaultMaxCards
	}
	return &CardExtractor{marketID: marketID, maxCards: maxCards}
}

// ExtractCards returns the listing-card elements of the document: the first
// container selector with at least one match wins. No selector matching is
// a zero-result page, not an error.
func (e *CardExtractor) ExtractCards(doc CardHandle) []CardHandle {
	for _, sel := range cardSelectors {
		cards := doc.SelectAll(sel)
		if len(cards) > 0 {
			logging.Debugf("Extractor: selector %q matched %d cards", sel, len(cards))
			if len(cards) > e.maxCards {
				cards = cards[:e.maxCards]
			}
			return cards
		}
	}
	logging.Debugf("Extractor: no card selector matched (zero-result page)")
	return nil
}

// ExtractListings runs per-card extraction over the whole document. A panic
// while parsing one card skips that card only.
func (e *CardExtractor) ExtractListings(doc CardHandle, query string, mode models.Mode) []models.RawListing {
	cards := e.ExtractCards(doc)

	var listings []models.RawListing
	for i, card := range cards {
		listing := e.extractOne(card, query, mode, i)
		if listing != nil {
			listings = append(listings, *listing)
		}
	}
	return listings
}

func (e *CardExtractor) extractOne(card CardHandle, query string, mode models.Mode, idx int) (listing *models.RawListing) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warnf("Extractor: card %d panicked, skipping: %v", idx, r)
			listing = nil
		}
	}()
	return e.ExtractListing(card, query, mode)
}

// ExtractListing extracts one RawListing from a card. Cards without a
// resolvable URL, or with a URL but no title, are rejected (nil).
func (e *CardExtractor) ExtractListing(card CardHandle, query string, mode models.Mode) *models.RawListing {
	itemURL := extractURL(card)
	if itemURL == "" {
		return nil
	}

	title := extractTitle(card)
	if title == "" {
		return nil
	}

	listing := &models.RawListing{
		Title:           title,
		URL:             itemURL,
		SourceListingID: extractListingID(card, itemURL),
		Currency:        "USD",
		Sold:            mode == models.ModeSold,
		ImageURL:        extractImage(card),
		Bids:            extractBids(card),
		RawQuery:        query,
		Source:          e.marketID,
	}

	price, currency := extractPrice(card)
	listing.Price = price
	if currency != "" {
		listing.Currency = currency
	}
	listing.TotalPrice = totalPrice(card, price)

	if mode == models.ModeSold {
		listing.EndedAt = extractEndedAt(card)
	}

	return listing
}

func extractURL(card CardHandle) string {
	var anyHref string
	for _, a := range card.SelectAll("a") {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			continue
		}
		if strings.Contains(href, "/itm/") {
			return href
		}
		if anyHref == "" {
			anyHref = href
		}
	}
	if anyHref != "" {
		return anyHref
	}
	for _, attr := range urlDataAttrs {
		if v, ok := card.Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}

func extractListingID(card CardHandle, itemURL string) string {
	for _, pat := range itemIDPatterns {
		if m := pat.FindStringSubmatch(itemURL); m != nil {
			return m[1]
		}
	}
	for _, attr := range idDataAttrs {
		if v, ok := card.Attr(attr); ok && longIDPattern.MatchString(v) {
			return v
		}
	}
	// The card element's own id sometimes carries the listing id.
	if v, ok := card.Attr("id"); ok {
		if m := intPattern.FindString(v); m != "" && longIDPattern.MatchString(m) {
			return m
		}
	}
	return ""
}

func extractTitle(card CardHandle) string {
	for _, sel := range titleSelectors {
		for _, el := range card.SelectAll(sel) {
			text := strings.TrimSpace(el.Text())
			if text == "" || strings.EqualFold(text, placeholderTitle) {
				continue
			}
			// Some layouts prefix sold titles with a "New Listing" chip.
			text = strings.TrimSpace(strings.TrimPrefix(text, "New Listing"))
			if len(text) > 5 {
				return text
			}
		}
	}
	return ""
}

func extractPrice(card CardHandle) (*float64, string) {
	for _, sel := range priceSelectors {
		for _, el := range card.SelectAll(sel) {
			text := strings.TrimSpace(el.Text())
			if text == "" {
				continue
			}
			value := parseDecimal(text)
			if value == nil {
				continue
			}
			currency := ""
			for _, entry := range currencySymbols {
				if strings.Contains(text, entry.Symbol) {
					currency = entry.Code
					break
				}
			}
			return value, currency
		}
	}
	return nil, ""
}

// parseDecimal pulls the first decimal-looking substring after stripping
// thousands separators.
func parseDecimal(text string) *float64 {
	cleaned := strings.ReplaceAll(text, ",", "")
	m := decimalPattern.FindString(cleaned)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

func extractImage(card CardHandle) string {
	for _, sel := range imageSelectors {
		for _, img := range card.SelectAll(sel) {
			if src, ok := img.Attr("src"); ok && src != "" {
				return src
			}
			if src, ok := img.Attr("data-src"); ok && src != "" {
				return src
			}
		}
	}
	return ""
}

func extractBids(card CardHandle) *int {
	for _, sel := range bidSelectors {
		for _, el := range card.SelectAll(sel) {
			m := intPattern.FindString(el.Text())
			if m == "" {
				continue
			}
			n, err := strconv.Atoi(m)
			if err != nil {
				continue
			}
			return &n
		}
	}
	return nil
}

// extractEndedAt keeps the raw trailing text after the "Sold" marker. The
// date is stored opaque, never parsed.
func extractEndedAt(card CardHandle) string {
	for _, sel := range soldDateSelectors {
		for _, el := range card.SelectAll(sel) {
			text := strings.TrimSpace(el.Text())
			if text == "" {
				continue
			}
			if i := strings.Index(text, "Sold"); i >= 0 {
				trailing := strings.TrimSpace(text[i+len("Sold"):])
				if trailing != "" {
					return trailing
				}
				continue
			}
			return text
		}
	}
	return ""
}

func totalPrice(card CardHandle, price *float64) *float64 {
	if price == nil {
		return nil
	}
	for _, sel := range shippingSelectors {
		for _, el := range card.SelectAll(sel) {
			shipping := parseDecimal(el.Text())
			if shipping != nil && *shipping > 0 {
				total := *price + *shipping
				return &total
			}
		}
	}
	total := *price
	return &total
}
