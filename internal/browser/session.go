// Package browser owns the chromedp session: one launched Chrome, one tab,
// released exactly once on every exit path.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jobdesk/naukri-refresh/api/schemas"
	"github.com/jobdesk/naukri-refresh/internal/config"
)

// webdriverScrub hides the most common automation tell before any page
// script runs.
const webdriverScrub = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Session is an active browser session. It implements schemas.Driver.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	// shotDir receives step screenshots; empty disables capture.
	shotDir string

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.Driver = (*Session)(nil)

// NewSession launches Chrome and opens the tab used for the whole run. The
// caller must Close the session on every exit path.
func NewSession(ctx context.Context, cfg config.BrowserConfig, shotDir string, logger *zap.Logger) (*Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         cfg,
		logger:      logger.Named("browser"),
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      tabCancel,
		shotDir:     shotDir,
	}

	// Start the browser and apply the automation scrub before the first
	// navigation.
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(c context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(webdriverScrub).Do(c)
		return err
	}))
	if err != nil {
		s.release()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s.logger.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// Navigate implements schemas.Driver. It loads the URL, waits for document
// ready and then sits out the configured post-load settle delay; the login
// widgets render well after ready fires.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	runCtx, cancel := s.opContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.cfg.PostLoadWait > 0 {
		tasks = append(tasks, chromedp.Sleep(s.cfg.PostLoadWait))
	}
	if err := chromedp.Run(runCtx, tasks); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// URL implements schemas.Driver.
func (s *Session) URL(ctx context.Context) string {
	runCtx, cancel := s.opContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	var url string
	if err := chromedp.Run(runCtx, chromedp.Location(&url)); err != nil {
		s.logger.Debug("Failed to read location.", zap.Error(err))
		return ""
	}
	return url
}

// Title implements schemas.Driver.
func (s *Session) Title(ctx context.Context) string {
	runCtx, cancel := s.opContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	var title string
	if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
		s.logger.Debug("Failed to read title.", zap.Error(err))
		return ""
	}
	return title
}

// PageText implements schemas.Driver. It returns the rendered body text; an
// empty string on failure, never an error, because classification treats
// missing text as just another weak signal.
func (s *Session) PageText(ctx context.Context) string {
	runCtx, cancel := s.opContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	var text string
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		s.logger.Debug("Failed to read page text.", zap.Error(err))
		return ""
	}
	return text
}

// VisibleBySelector implements schemas.Driver.
func (s *Session) VisibleBySelector(ctx context.Context, selector string) ([]schemas.Element, error) {
	return s.visible(ctx, selector, chromedp.ByQueryAll)
}

// VisibleByXPath implements schemas.Driver.
func (s *Session) VisibleByXPath(ctx context.Context, expr string) ([]schemas.Element, error) {
	return s.visible(ctx, expr, chromedp.BySearch)
}

func (s *Session) visible(ctx context.Context, sel string, by func(*chromedp.Selector)) ([]schemas.Element, error) {
	runCtx, cancel := s.opContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(runCtx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("element query %q failed: %w", sel, err)
	}

	elements := make([]schemas.Element, 0, len(nodes))
	for _, node := range nodes {
		visible, err := s.isVisible(runCtx, node)
		if err != nil {
			// Stale node, likely a re-render mid-query. Skip it.
			s.logger.Debug("Visibility check failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if visible {
			elements = append(elements, &element{session: s, node: node, selector: sel})
		}
	}
	return elements, nil
}

// Screenshot implements schemas.Driver. Capture is best effort and disabled
// when no shot directory was configured.
func (s *Session) Screenshot(ctx context.Context, name string) {
	if s.shotDir == "" {
		return
	}
	runCtx, cancel := s.opContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		s.logger.Warn("Screenshot capture failed.", zap.String("name", name), zap.Error(err))
		return
	}
	if err := writeScreenshot(s.shotDir, name, buf); err != nil {
		s.logger.Warn("Screenshot write failed.", zap.String("name", name), zap.Error(err))
		return
	}
	s.logger.Debug("Screenshot saved.", zap.String("name", name))
}

// Close releases the tab and the browser process. Safe to call more than
// once; only the first call does the work.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return
	}
	s.isClosed = true
	s.release()
	s.logger.Info("Browser session closed.")
}

func (s *Session) release() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// opContext derives a bounded chromedp context that also dies if the caller
// context is cancelled. Every blocking wait carries a maximum duration.
func (s *Session) opContext(callerCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(callerCtx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
