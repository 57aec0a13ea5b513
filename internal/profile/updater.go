// Package profile performs the post-login resume refresh: rewriting the
// resume headline so the profile surfaces as recently active.
package profile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jobdesk/naukri-refresh/api/schemas"
	"github.com/jobdesk/naukri-refresh/internal/config"
)

const (
	headlineEditXPath = `//span[text()='Resume headline']/following-sibling::span[contains(@class, 'edit')]`
	headlineTextarea  = "#resumeHeadlineTxt"
	saveButtonXPath   = `//button[text()='Save']`

	pollInterval = 500 * time.Millisecond
	elementWait  = 20 * time.Second
)

// Updater edits the resume headline through an authenticated browser session.
type Updater struct {
	driver schemas.Driver
	cfg    config.ProfileConfig
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option customizes an Updater.
type Option func(*Updater)

// WithClock overrides the wall clock and sleep function for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(u *Updater) {
		if now != nil {
			u.now = now
		}
		if sleep != nil {
			u.sleep = sleep
		}
	}
}

// New builds an Updater over an existing session.
func New(driver schemas.Driver, cfg config.ProfileConfig, logger *zap.Logger, opts ...Option) *Updater {
	u := &Updater{
		driver: driver,
		cfg:    cfg,
		logger: logger.Named("profile"),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update opens the profile page and rewrites the resume headline. An empty
// configured headline skips the edit entirely; there is nothing useful to
// write.
func (u *Updater) Update(ctx context.Context) error {
	if u.cfg.Headline == "" {
		u.logger.Info("No headline configured, skipping profile update.")
		return nil
	}

	if err := u.driver.Navigate(ctx, u.cfg.URL); err != nil {
		return fmt.Errorf("open profile page: %w", err)
	}
	u.driver.Screenshot(ctx, "step_2_profile_page")

	edit, err := u.waitXPath(ctx, headlineEditXPath)
	if err != nil {
		return fmt.Errorf("headline edit control: %w", err)
	}
	if err := edit.Click(ctx); err != nil {
		return fmt.Errorf("open headline editor: %w", err)
	}

	textarea, err := u.waitSelector(ctx, headlineTextarea)
	if err != nil {
		return fmt.Errorf("headline textarea: %w", err)
	}
	if err := textarea.Click(ctx); err != nil {
		return fmt.Errorf("focus headline textarea: %w", err)
	}
	if err := textarea.Clear(ctx); err != nil {
		return fmt.Errorf("clear headline: %w", err)
	}
	if err := textarea.Type(ctx, u.cfg.Headline); err != nil {
		return fmt.Errorf("type headline: %w", err)
	}
	u.driver.Screenshot(ctx, "step_2_headline_filled")

	save, err := u.waitXPath(ctx, saveButtonXPath)
	if err != nil {
		return fmt.Errorf("save button: %w", err)
	}
	if err := save.Click(ctx); err != nil {
		return fmt.Errorf("save headline: %w", err)
	}
	u.logger.Info("Resume headline updated.")
	u.driver.Screenshot(ctx, "step_2_headline_saved")
	return nil
}

func (u *Updater) waitSelector(ctx context.Context, selector string) (schemas.Element, error) {
	return u.wait(ctx, selector, u.driver.VisibleBySelector)
}

func (u *Updater) waitXPath(ctx context.Context, expr string) (schemas.Element, error) {
	return u.wait(ctx, expr, u.driver.VisibleByXPath)
}

func (u *Updater) wait(
	ctx context.Context,
	query string,
	lookup func(ctx context.Context, query string) ([]schemas.Element, error),
) (schemas.Element, error) {
	deadline := u.now().Add(elementWait)
	for {
		elements, err := lookup(ctx, query)
		if err == nil && len(elements) > 0 {
			return elements[0], nil
		}
		if err != nil {
			u.logger.Debug("Element lookup failed, retrying.", zap.String("query", query), zap.Error(err))
		}
		if u.now().After(deadline) {
			return nil, fmt.Errorf("element %q never appeared within %s", query, elementWait)
		}
		if err := u.sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
