package portal

// Predicate tests one property of a rendered page.
type Predicate func(*Page) bool

// Indicators are the per-tribunal signals the result classifier reads.
// Nil members never fire.
type Indicators struct {
	// NoMatch detects an explicit "no results" message.
	NoMatch Predicate
	// ResultCount returns the number of results a listing announces, 0 if none.
	ResultCount func(*Page) int
	// DetailView detects the case detail layout.
	DetailView Predicate
	// QueryForm detects that the portal silently returned to its query form.
	QueryForm Predicate
}

// Classify decides the result state. The checks run in strict precedence:
// an explicit no-match message beats a result count, which beats the detail
// marker, which beats a bare query form. Anything else is ambiguous.
func (ind Indicators) Classify(p *Page) ResultState {
	switch {
	case fires(ind.NoMatch, p):
		return StateNotFound
	case ind.ResultCount != nil && ind.ResultCount(p) >= 2:
		return StateMultiple
	case fires(ind.DetailView, p):
		return StateFound
	case fires(ind.QueryForm, p):
		return StateNotFound
	}
	return StateAmbiguous
}

func fires(pred Predicate, p *Page) bool {
	return pred != nil && pred(p)
}

// HasSelector is a Predicate that matches when selector is present.
func HasSelector(selector string) Predicate {
	return func(p *Page) bool { return p.Has(selector) }
}

// VisibleSelector is a Predicate that matches when selector is visible.
func VisibleSelector(selector string) Predicate {
	return func(p *Page) bool { return p.Visible(selector) }
}

// TextMatches is a Predicate that matches when the text under selector
// contains any of the needles, ignoring case. An empty selector reads the body.
func TextMatches(selector string, needles ...string) Predicate {
	return func(p *Page) bool {
		text := p.BodyText()
		if selector != "" {
			text = p.Find(selector).Text()
		}
		return ContainsAny(text, needles...)
	}
}
