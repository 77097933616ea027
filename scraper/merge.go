package scraper

import "cardpulse_scraper/models"

// MergeListings combines active and sold listings into one deduplicated set
// keyed by identity. The sold copy always wins for a shared identity: a
// listing that has ended is authoritative over a prior "still active"
// snapshot. Unkeyed listings are retained unconditionally for diagnostics.
// Pure and deterministic; the sold pass runs only after the active pass has
// fully materialized.
func MergeListings(active, sold []models.RawListing) []models.RawListing {
	type entry struct {
		listing models.RawListing
		deleted bool
	}

	var entries []*entry
	index := make(map[string]*entry)

	for _, l := range active {
		key := l.IdentityKey()
		if key == "" {
			entries = append(entries, &entry{listing: l})
			continue
		}
		if existing, ok := index[key]; ok {
			existing.listing = l
			continue
		}
		e := &entry{listing: l}
		entries = append(entries, e)
		index[key] = e
	}

	for _, l := range sold {
		key := l.IdentityKey()
		if key == "" {
			entries = append(entries, &entry{listing: l})
			continue
		}
		if existing, ok := index[key]; ok {
			existing.deleted = true
		}
		e := &entry{listing: l}
		entries = append(entries, e)
		index[key] = e
	}

	merged := make([]models.RawListing, 0, len(entries))
	for _, e := range entries {
		if !e.deleted {
			merged = append(merged, e.listing)
		}
	}
	return merged
}
