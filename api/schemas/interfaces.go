// Package schemas holds the shared contracts between the browser layer and
// the login flow. Keeping them here lets the orchestrator be tested against
// fakes without importing chromedp.
package schemas

import "context"

// Element is a handle to one visible interactive element on the current page.
// Handles are short-lived: they are only valid until the next navigation and
// should be re-queried after any page transition.
type Element interface {
	// Click focuses and clicks the element.
	Click(ctx context.Context) error
	// Clear empties the element's value.
	Clear(ctx context.Context) error
	// Type sends the text to the element as keystrokes.
	Type(ctx context.Context, text string) error
	// PressEnter sends a terminal Enter keystroke to the element.
	PressEnter(ctx context.Context) error
}

// Driver abstracts the browser session for the login flow. The production
// implementation is internal/browser.Session; tests use scripted fakes.
type Driver interface {
	// Navigate loads the URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error
	// URL returns the current page URL, best effort.
	URL(ctx context.Context) string
	// Title returns the current page title, best effort.
	Title(ctx context.Context) string
	// PageText returns the rendered body text of the current page, best
	// effort. Callers lowercase and match it through a fresh snapshot; the
	// text is never cached across navigations.
	PageText(ctx context.Context) string
	// VisibleBySelector returns handles for visible elements matching the
	// CSS selector, in document order. A miss is an empty slice, not an
	// error.
	VisibleBySelector(ctx context.Context, selector string) ([]Element, error)
	// VisibleByXPath is VisibleBySelector for XPath expressions.
	VisibleByXPath(ctx context.Context, expr string) ([]Element, error)
	// Screenshot captures a named PNG into the run directory. Best effort:
	// failures are logged, never returned.
	Screenshot(ctx context.Context, name string)
}
