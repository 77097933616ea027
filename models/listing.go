package models

import "strings"

type Mode string

const (
	ModeActive Mode = "active"
	ModeSold   Mode = "sold"
)

// RawListing is one scraped record before normalization. Field names follow
// the ingestion payload contract (snake_case).
type RawListing struct {
	Title           string   `json:"title"`
	URL             string   `json:"url,omitempty"`
	SourceListingID string   `json:"source_listing_id,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	Currency        string   `json:"currency"`
	TotalPrice      *float64 `json:"total_price,omitempty"`
	Sold            bool     `json:"sold"`
	EndedAt         string   `json:"ended_at,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	Bids            *int     `json:"bids,omitempty"`
	RawQuery        string   `json:"raw_query"`
	Source          string   `json:"source"`
}

// IdentityKey recognizes the same real-world listing across active/sold
// fetches: listing id wins, else the normalized URL. Empty means the record
// cannot be deduplicated (diagnostics only).
func (l *RawListing) IdentityKey() string {
	if l.SourceListingID != "" {
		return l.SourceListingID
	}
	if l.URL != "" {
		return strings.ToLower(strings.TrimSpace(l.URL))
	}
	return ""
}

// Deliverable reports whether the listing may be sent to the sink.
func (l *RawListing) Deliverable() bool {
	return l.Title != "" && (l.URL != "" || l.SourceListingID != "")
}

// ParsedHints holds heuristic metadata derived from a listing title.
// Absent matches are nil, never empty strings.
type ParsedHints struct {
	Franchise      *string  `json:"franchise"`
	SetName        *string  `json:"set_name"`
	Edition        *string  `json:"edition"`
	Number         *string  `json:"number"`
	Year           *int     `json:"year"`
	Language       *string  `json:"language"`
	GradingCompany *string  `json:"grading_company"`
	Grade          *string  `json:"grade"`
	Rarity         *string  `json:"rarity"`
	IsHolo         *bool    `json:"is_holo"`
	Tags           []string `json:"tags,omitempty"`
}

// NormalizedItem is a RawListing plus its derived hints, canonical key and
// parse confidence. CanonicalKey groups listings at the product level and is
// deterministic for a given (title, hints) pair.
type NormalizedItem struct {
	RawListing
	Parsed       ParsedHints `json:"parsed"`
	CanonicalKey string      `json:"canonical_key"`
	Confidence   float64     `json:"confidence"`
}
