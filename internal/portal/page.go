package portal

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page is a parsed snapshot of the rendered interface. Probes and indicators
// read from it; script probes reach back to the live session through it.
type Page struct {
	URL    string
	doc    *goquery.Document
	driver Driver
}

// ParsePage parses rendered HTML.
func ParsePage(url, content string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{URL: url, doc: goquery.NewDocumentFromNode(root)}, nil
}

// Driver returns the session the page was loaded from, or nil for pages
// parsed from static content.
func (p *Page) Driver() Driver { return p.driver }

// Find runs a CSS selector over the document.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Has reports whether selector matches at least one element.
func (p *Page) Has(selector string) bool {
	return p.doc.Find(selector).Length() > 0
}

// Text returns the collapsed text of the first match of selector.
func (p *Page) Text(selector string) string {
	return collapseSpace(p.doc.Find(selector).First().Text())
}

// BodyText returns the collapsed text of the whole document.
func (p *Page) BodyText() string {
	return collapseSpace(p.doc.Find("body").Text())
}

// Contains reports whether the document text contains every needle,
// ignoring case.
func (p *Page) Contains(needles ...string) bool {
	body := Fold(p.BodyText())
	for _, n := range needles {
		if !strings.Contains(body, Fold(n)) {
			return false
		}
	}
	return true
}

// Visible reports whether selector matches an element that is neither
// hidden itself nor inside a hidden ancestor. Only inline styles and the
// hidden attribute are considered.
func (p *Page) Visible(selector string) bool {
	visible := false
	p.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !hiddenNode(s) && s.Parents().FilterFunction(func(_ int, a *goquery.Selection) bool {
			return hiddenNode(a)
		}).Length() == 0 {
			visible = true
			return false
		}
		return true
	})
	return visible
}

func hiddenNode(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style, _ := s.Attr("style")
	style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
