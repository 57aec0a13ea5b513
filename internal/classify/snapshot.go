package classify

import "strings"

// ElementProbe reports how many visible interactive elements currently match
// a selector. Selectors prefixed with "//" are treated as XPath expressions,
// anything else as a CSS selector.
type ElementProbe func(selector string) int

// Snapshot is a read-only capture of a page at one instant: its URL, title
// and rendered text, plus a probe for visible element matches. A Snapshot is
// produced fresh for every classification and discarded afterwards; it is
// never reused across navigations.
type Snapshot struct {
	URL   string
	Title string
	// Text is the rendered body text, lowercased at capture time so rules
	// can match case-insensitively with plain substring checks.
	Text string

	probe ElementProbe
}

// NewSnapshot builds a Snapshot. The text is lowercased here so callers do
// not have to remember to do it. probe may be nil, in which case element
// based rules simply never match.
func NewSnapshot(url, title, text string, probe ElementProbe) *Snapshot {
	return &Snapshot{
		URL:   url,
		Title: title,
		Text:  strings.ToLower(text),
		probe: probe,
	}
}

// ContainsAny reports whether the page text contains any of the phrases.
// Phrases are expected in lowercase.
func (s *Snapshot) ContainsAny(phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(s.Text, p) {
			return true
		}
	}
	return false
}

// VisibleCount returns the number of visible elements matching the selector,
// or zero when no probe is attached.
func (s *Snapshot) VisibleCount(selector string) int {
	if s.probe == nil {
		return 0
	}
	return s.probe(selector)
}

// AnyVisible reports whether any of the selectors matches at least one
// visible element, trying them in order.
func (s *Snapshot) AnyVisible(selectors ...string) bool {
	for _, sel := range selectors {
		if s.VisibleCount(sel) > 0 {
			return true
		}
	}
	return false
}
