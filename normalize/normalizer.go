package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"cardpulse_scraper/models"
)

// franchiseEntry pairs a canonical franchise name with the title keywords
// that imply it. Entries are checked in order; the first keyword hit wins.
type franchiseEntry struct {
	Name     string
	Keywords []string
}

var franchises = []franchiseEntry{
	{"Pokemon", []string{
		"pokemon", "pokémon", "pikachu", "charizard", "blastoise", "venusaur",
		"mewtwo", "mew ", "gengar", "eevee", "umbreon", "rayquaza", "lugia",
		"gyarados", "dragonite", "typhlosion", "snorlax",
	}},
	{"Magic: The Gathering", []string{
		"magic: the gathering", "magic the gathering", "mtg", "black lotus",
		"mox sapphire", "planeswalker",
	}},
	{"Yu-Gi-Oh", []string{
		"yu-gi-oh", "yugioh", "blue-eyes white dragon", "dark magician",
		"exodia",
	}},
	{"Sports", []string{
		"topps", "fleer", "panini", "upper deck", "bowman", "prizm",
		"rookie card",
	}},
}

// Known set names for the Pokemon franchise, canonical name to variants.
// Only one franchise's sets are covered today; the table is extensible.
var setVariants = []struct {
	Canonical string
	Variants  []string
}{
	{"base set 1st edition", []string{"base set 1st edition", "1st edition base set"}},
	{"base set", []string{"base set", "base set unlimited"}},
	{"jungle", []string{"jungle"}},
	{"fossil", []string{"fossil"}},
	{"team rocket", []string{"team rocket"}},
	{"gym heroes", []string{"gym heroes"}},
	{"gym challenge", []string{"gym challenge"}},
	{"neo genesis", []string{"neo genesis"}},
	{"neo discovery", []string{"neo discovery"}},
	{"neo revelation", []string{"neo revelation"}},
	{"neo destiny", []string{"neo destiny"}},
	{"legendary collection", []string{"legendary collection"}},
	{"expedition base set", []string{"expedition base set", "expedition"}},
	{"aquapolis", []string{"aquapolis"}},
	{"skyridge", []string{"skyridge"}},
	{"ex deoxys", []string{"ex deoxys"}},
	{"ex dragon frontiers", []string{"ex dragon frontiers"}},
	{"diamond & pearl", []string{"diamond & pearl", "diamond and pearl"}},
	{"stormfront", []string{"stormfront"}},
	{"platinum", []string{"platinum"}},
	{"arceus", []string{"arceus"}},
	{"heartgold & soulsilver", []string{"heartgold & soulsilver", "hgss"}},
	{"call of legends", []string{"call of legends"}},
	{"black & white", []string{"black & white", "black and white"}},
	{"plasma storm", []string{"plasma storm"}},
	{"legendary treasures", []string{"legendary treasures"}},
	{"flashfire", []string{"flashfire"}},
	{"phantom forces", []string{"phantom forces"}},
	{"primal clash", []string{"primal clash"}},
	{"roaring skies", []string{"roaring skies"}},
	{"ancient origins", []string{"ancient origins"}},
	{"breakthrough", []string{"breakthrough"}},
	{"breakpoint", []string{"breakpoint"}},
	{"generations", []string{"generations"}},
	{"evolutions", []string{"evolutions"}},
	{"sun & moon", []string{"sun & moon"}},
	{"guardians rising", []string{"guardians rising"}},
	{"burning shadows", []string{"burning shadows"}},
	{"shining legends", []string{"shining legends"}},
	{"ultra prism", []string{"ultra prism"}},
	{"celestial storm", []string{"celestial storm"}},
	{"dragon majesty", []string{"dragon majesty"}},
	{"lost thunder", []string{"lost thunder"}},
	{"team up", []string{"team up"}},
	{"detective pikachu", []string{"detective pikachu"}},
	{"unbroken bonds", []string{"unbroken bonds"}},
	{"unified minds", []string{"unified minds"}},
	{"hidden fates", []string{"hidden fates"}},
	{"cosmic eclipse", []string{"cosmic eclipse"}},
	{"sword & shield", []string{"sword & shield"}},
	{"rebel clash", []string{"rebel clash"}},
	{"darkness ablaze", []string{"darkness ablaze"}},
	{"champions path", []string{"champions path", "champion's path"}},
	{"vivid voltage", []string{"vivid voltage"}},
	{"shining fates", []string{"shining fates"}},
	{"battle styles", []string{"battle styles"}},
	{"chilling reign", []string{"chilling reign"}},
	{"evolving skies", []string{"evolving skies"}},
	{"celebrations", []string{"celebrations"}},
	{"fusion strike", []string{"fusion strike"}},
	{"brilliant stars", []string{"brilliant stars"}},
	{"astral radiance", []string{"astral radiance"}},
	{"lost origin", []string{"lost origin"}},
	{"silver tempest", []string{"silver tempest"}},
	{"crown zenith", []string{"crown zenith"}},
	{"scarlet & violet", []string{"scarlet & violet"}},
	{"paldea evolved", []string{"paldea evolved"}},
	{"obsidian flames", []string{"obsidian flames"}},
	{"151", []string{"151"}},
	{"temporal forces", []string{"temporal forces"}},
	{"twilight masquerade", []string{"twilight masquerade"}},
}

var gradingCompanies = []string{"PSA", "BGS", "CGC", "SGC", "HGA", "ACE", "GMA"}

var editionVariants = []struct {
	Canonical string
	Variants  []string
}{
	{"1st edition", []string{"1st edition", "1st ed", "first edition", "first ed"}},
	{"unlimited", []string{"unlimited", "unltd", "unl"}},
	{"shadowless", []string{"shadowless", "shadow less"}},
	{"reverse holo", []string{"reverse holo", "reverse holographic", "rev holo"}},
}

var namedGrades = []string{"gem mint", "gem mt", "pristine", "mint", "near mint", "nm-mt"}

var (
	yearPattern       = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	cardNumberPattern = regexp.MustCompile(`\b(\d{1,3})\b`)
	nonAlnumRun       = regexp.MustCompile(`[^a-z0-9]+`)
	gradeAfterGrader  = regexp.MustCompile(`(?i)\b(?:psa|bgs|cgc|sgc|hga|ace|gma)[\s-]*(10|[1-9](?:\.5)?)\b`)
)

// Normalizer derives structured hints, a canonical key and a parse
// confidence from free-text listing titles. All methods are pure and
// case-insensitive over the input.
type Normalizer struct{}

func New() *Normalizer {
	return &Normalizer{}
}

// ParseTitle extracts heuristic hints from a title. Each heuristic is
// independent; the first keyword match wins per category. Absent matches
// stay nil.
func (n *Normalizer) ParseTitle(title string) models.ParsedHints {
	hints := models.ParsedHints{}
	if title == "" {
		return hints
	}
	lower := strings.ToLower(title)

	for _, f := range franchises {
		if containsAny(lower, f.Keywords) {
			hints.Franchise = strPtr(f.Name)
			break
		}
	}

	for _, s := range setVariants {
		if containsAny(lower, s.Variants) {
			hints.SetName = strPtr(s.Canonical)
			break
		}
	}

	for _, e := range editionVariants {
		if containsAny(lower, e.Variants) {
			hints.Edition = strPtr(e.Canonical)
			break
		}
	}

	for _, company := range gradingCompanies {
		if containsWord(lower, strings.ToLower(company)) {
			hints.GradingCompany = strPtr(company)
			break
		}
	}

	if m := yearPattern.FindStringSubmatch(title); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil && y >= 1900 && y <= 2099 {
			hints.Year = &y
		}
	}

	// Known limitation: the first standalone 1-3 digit number can be a
	// grade or a year fragment; the source heuristic does not disambiguate.
	if m := cardNumberPattern.FindStringSubmatch(title); m != nil {
		hints.Number = strPtr(m[1])
	}

	hints.Grade = extractGrade(lower)

	holo := strings.Contains(lower, "holo") || strings.Contains(lower, "holofoil")
	hints.IsHolo = &holo

	hints.Tags = buildTags(&hints)

	return hints
}

func extractGrade(lower string) *string {
	if m := gradeAfterGrader.FindStringSubmatch(lower); m != nil {
		return strPtr(m[1])
	}
	for _, g := range namedGrades {
		if strings.Contains(lower, g) {
			return strPtr(g)
		}
	}
	return nil
}

// buildTags assembles tags from whichever of grading-company+grade,
// edition, holo and set-name were found, in that fixed order.
func buildTags(h *models.ParsedHints) []string {
	var tags []string
	if h.GradingCompany != nil && h.Grade != nil {
		tags = append(tags, strings.ToLower(*h.GradingCompany)+" "+*h.Grade)
	}
	if h.Edition != nil {
		tags = append(tags, *h.Edition)
	}
	if h.IsHolo != nil && *h.IsHolo {
		tags = append(tags, "holo")
	}
	if h.SetName != nil {
		tags = append(tags, *h.SetName)
	}
	return tags
}

// CanonicalKey is a deterministic product-level grouping key. Never empty
// for a non-empty title.
func (n *Normalizer) CanonicalKey(title string, hints models.ParsedHints) string {
	if hints.Franchise != nil && hints.SetName != nil && hints.Number != nil {
		return slug(*hints.Franchise) + "_" + slug(*hints.SetName) + "_" + *hints.Number
	}
	if hints.Franchise != nil && hints.SetName != nil {
		return slug(*hints.Franchise) + "_" + slug(*hints.SetName)
	}
	key := strings.Trim(nonAlnumRun.ReplaceAllString(strings.ToLower(title), "_"), "_")
	if key == "" {
		return "untitled"
	}
	return key
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// Confidence is an additive parse score out of 1.0: franchise 0.30,
// set name 0.20, card number 0.20, grading company 0.15, grade 0.15.
func (n *Normalizer) Confidence(hints models.ParsedHints) float64 {
	score := 0.0
	if hints.Franchise != nil {
		score += 0.30
	}
	if hints.SetName != nil {
		score += 0.20
	}
	if hints.Number != nil {
		score += 0.20
	}
	if hints.GradingCompany != nil {
		score += 0.15
	}
	if hints.Grade != nil {
		score += 0.15
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Normalize derives hints for one listing. Fields already supplied upstream
// take precedence over the heuristic result for that field only; heuristics
// fill gaps, never overwrite.
func (n *Normalizer) Normalize(listing models.RawListing, supplied models.ParsedHints) models.NormalizedItem {
	hints := n.ParseTitle(listing.Title)
	merged := overlay(supplied, hints)
	merged.Tags = buildTags(&merged)

	return models.NormalizedItem{
		RawListing:   listing,
		Parsed:       merged,
		CanonicalKey: n.CanonicalKey(listing.Title, merged),
		Confidence:   n.Confidence(merged),
	}
}

// overlay keeps every non-nil supplied field and fills the rest from the
// heuristics.
func overlay(supplied, derived models.ParsedHints) models.ParsedHints {
	out := derived
	if supplied.Franchise != nil {
		out.Franchise = supplied.Franchise
	}
	if supplied.SetName != nil {
		out.SetName = supplied.SetName
	}
	if supplied.Edition != nil {
		out.Edition = supplied.Edition
	}
	if supplied.Number != nil {
		out.Number = supplied.Number
	}
	if supplied.Year != nil {
		out.Year = supplied.Year
	}
	if supplied.Language != nil {
		out.Language = supplied.Language
	}
	if supplied.GradingCompany != nil {
		out.GradingCompany = supplied.GradingCompany
	}
	if supplied.Grade != nil {
		out.Grade = supplied.Grade
	}
	if supplied.Rarity != nil {
		out.Rarity = supplied.Rarity
	}
	if supplied.IsHolo != nil {
		out.IsHolo = supplied.IsHolo
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// containsWord matches sub only at word boundaries so short grading
// abbreviations do not fire inside longer words.
func containsWord(s, sub string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], sub)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(sub)
		beforeOK := start == 0 || !isAlnum(s[start-1])
		afterOK := end == len(s) || !isAlnum(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func strPtr(s string) *string {
	return &s
}
