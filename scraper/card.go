package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CardHandle abstracts one parsed element so extraction logic never touches
// the parsing library directly. Exactly one concrete adapter exists.
type CardHandle interface {
	SelectAll(selector string) []CardHandle
	Attr(name string) (string, bool)
	Text() string
}

type goqueryCard struct {
	sel *goquery.Selection
}

// ParseDocument parses an HTML document into a root CardHandle.
func ParseDocument(html string) (CardHandle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &goqueryCard{sel: doc.Selection}, nil
}

func (c *goqueryCard) SelectAll(selector string) []CardHandle {
	var out []CardHandle
	c.sel.Find(selector).Each(func(i int, s *goquery.Selection) {
		out = append(out, &goqueryCard{sel: s})
	})
	return out
}

func (c *goqueryCard) Attr(name string) (string, bool) {
	return c.sel.Attr(name)
}

func (c *goqueryCard) Text() string {
	return c.sel.Text()
}
