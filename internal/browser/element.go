package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jobdesk/naukri-refresh/api/schemas"
)

// isVisibleJS runs with the element as `this` and mirrors the usual
// is-displayed heuristic: rendered, not display:none/visibility:hidden, and
// occupying space.
const isVisibleJS = `function() {
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden') return false;
	const rect = this.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`

// clearValueJS empties an input and notifies framework listeners; naukri's
// React widgets ignore value changes without the input event.
const clearValueJS = `function() {
	this.value = '';
	this.dispatchEvent(new Event('input', { bubbles: true }));
}`

// element wraps one DOM node of the session's tab. It implements
// schemas.Element and is only valid until the next navigation.
type element struct {
	session  *Session
	node     *cdp.Node
	selector string
}

var _ schemas.Element = (*element)(nil)

// Click implements schemas.Element.
func (e *element) Click(ctx context.Context) error {
	runCtx, cancel := e.session.opContext(ctx, e.session.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("click on %q failed: %w", e.selector, err)
	}
	return nil
}

// Clear implements schemas.Element.
func (e *element) Clear(ctx context.Context) error {
	runCtx, cancel := e.session.opContext(ctx, e.session.cfg.NavigationTimeout)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		_, err := e.callFunctionOn(c, clearValueJS)
		return err
	}))
	if err != nil {
		return fmt.Errorf("clear on %q failed: %w", e.selector, err)
	}
	return nil
}

// Type implements schemas.Element. The text is sent as real keystrokes so
// per-key handlers fire, matching what the site expects from a human.
func (e *element) Type(ctx context.Context, text string) error {
	runCtx, cancel := e.session.opContext(ctx, e.session.cfg.NavigationTimeout)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(c context.Context) error {
			return dom.Focus().WithNodeID(e.node.NodeID).Do(c)
		}),
		chromedp.ActionFunc(func(c context.Context) error {
			for _, r := range text {
				if err := input.InsertText(string(r)).Do(c); err != nil {
					return err
				}
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("type into %q failed: %w", e.selector, err)
	}
	return nil
}

// PressEnter implements schemas.Element.
func (e *element) PressEnter(ctx context.Context) error {
	runCtx, cancel := e.session.opContext(ctx, e.session.cfg.NavigationTimeout)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(c context.Context) error {
			return dom.Focus().WithNodeID(e.node.NodeID).Do(c)
		}),
		chromedp.KeyEvent(kb.Enter),
	)
	if err != nil {
		return fmt.Errorf("enter on %q failed: %w", e.selector, err)
	}
	return nil
}

// callFunctionOn resolves the node to a remote object and invokes fn with the
// element bound as `this`.
func (e *element) callFunctionOn(ctx context.Context, fn string) (*runtime.RemoteObject, error) {
	obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
	if err != nil {
		return nil, err
	}
	res, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(obj.ObjectID).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, fmt.Errorf("remote call failed: %s", exc.Text)
	}
	return res, nil
}

// isVisible evaluates the visibility heuristic against a node.
func (s *Session) isVisible(ctx context.Context, node *cdp.Node) (bool, error) {
	e := &element{session: s, node: node}
	var visible bool
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		res, err := e.callFunctionOn(c, isVisibleJS)
		if err != nil {
			return err
		}
		if res != nil && len(res.Value) > 0 {
			visible = string(res.Value) == "true"
		}
		return nil
	}))
	return visible, err
}

func writeScreenshot(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".png"), data, 0o644)
}
