// Package login drives the credential and OTP flow to a terminal outcome.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobdesk/naukri-refresh/api/schemas"
	"github.com/jobdesk/naukri-refresh/internal/classify"
	"github.com/jobdesk/naukri-refresh/internal/config"
	"github.com/jobdesk/naukri-refresh/internal/mailbox"
)

// CodeSource produces a passcode for a request, or mailbox.ErrTimedOut when
// the budget elapses. mailbox.Poller is the production implementation.
type CodeSource interface {
	Fetch(ctx context.Context, req mailbox.Request) (string, error)
}

const (
	usernameSelector = "#usernameField"
	passwordSelector = "#passwordField"
	submitSelector   = "button[type='submit']"

	// elementPollInterval paces the bounded wait for interactable fields.
	elementPollInterval = 500 * time.Millisecond
)

// confirmXPaths are the ranked ways to fire OTP verification, tried in
// order. When none is present the fallback is an Enter keystroke on the last
// filled field; some variants of the form auto-submit on it.
var confirmXPaths = []string{
	`//button[contains(translate(text(), 'VERIFY', 'verify'), 'verify')]`,
	`//button[contains(translate(text(), 'SUBMIT', 'submit'), 'submit')]`,
	`//button[contains(translate(text(), 'CONTINUE', 'continue'), 'continue')]`,
	`//button[@type='submit']`,
	`//input[@type='submit']`,
}

// invalidOtpPhrases distinguish a rejected code from a transient render
// delay after submission.
var invalidOtpPhrases = []string{
	"invalid otp",
	"incorrect otp",
	"otp expired",
	"please enter valid otp",
	"wrong otp",
}

// Orchestrator owns the lifecycle of one login attempt and is the sole
// producer of its Outcome.
type Orchestrator struct {
	driver     schemas.Driver
	classifier *classify.Classifier
	codes      CodeSource
	cfg        config.LoginConfig
	mailCfg    config.MailboxConfig
	logger     *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock and sleep function for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// New assembles an orchestrator from its collaborators.
func New(
	driver schemas.Driver,
	classifier *classify.Classifier,
	codes CodeSource,
	cfg config.LoginConfig,
	mailCfg config.MailboxConfig,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		driver:     driver,
		classifier: classifier,
		codes:      codes,
		cfg:        cfg,
		mailCfg:    mailCfg,
		logger:     logger.Named("login"),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the login state machine to a terminal Outcome. It never
// panics outward; any fault is converted into OutcomeUnexpectedError with
// the page URL and title captured for diagnosis.
func (o *Orchestrator) Run(ctx context.Context) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = o.terminal(ctx, OutcomeUnexpectedError, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := o.driver.Navigate(ctx, o.cfg.URL); err != nil {
		return o.terminal(ctx, OutcomeUnexpectedError, fmt.Sprintf("open login page: %v", err))
	}
	o.driver.Screenshot(ctx, "step_1_login_page")

	if err := o.submitCredentials(ctx); err != nil {
		o.driver.Screenshot(ctx, "step_1_login_failed")
		return o.terminal(ctx, OutcomeUnexpectedError, fmt.Sprintf("submit credentials: %v", err))
	}
	o.driver.Screenshot(ctx, "step_1_after_login_click")

	state := o.classifyWithRetry(ctx)
	o.logger.Info("Post-credential page state.", zap.String("state", string(state)))

	switch state {
	case classify.StateRateLimited:
		o.driver.Screenshot(ctx, "step_1_otp_rate_limited")
		return o.terminal(ctx, OutcomeRateLimited, "platform throttled otp generation")
	case classify.StateAuthenticated:
		o.driver.Screenshot(ctx, "step_1_login_success")
		return o.terminal(ctx, OutcomeSuccess, "authenticated without otp challenge")
	case classify.StateOtpPrompt:
		return o.resolveOtp(ctx)
	case classify.StateLoginForm:
		o.driver.Screenshot(ctx, "step_1_login_failed")
		return o.terminal(ctx, OutcomeVerificationFailed, "still on login form after submit")
	default:
		o.driver.Screenshot(ctx, "step_1_state_unresolved")
		return o.terminal(ctx, OutcomeVerificationFailed, "page state never resolved after submit")
	}
}

// submitCredentials fills and submits the login form. The credential fields
// get a bounded interactability wait that is separate from all OTP budgets.
func (o *Orchestrator) submitCredentials(ctx context.Context) error {
	email, err := o.waitInteractable(ctx, usernameSelector)
	if err != nil {
		return err
	}
	if err := fillField(ctx, email, o.cfg.Email); err != nil {
		return fmt.Errorf("email field: %w", err)
	}

	password, err := o.waitInteractable(ctx, passwordSelector)
	if err != nil {
		return err
	}
	if err := fillField(ctx, password, o.cfg.Password); err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	o.driver.Screenshot(ctx, "step_1_credentials_filled")

	submit, err := o.waitInteractable(ctx, submitSelector)
	if err != nil {
		return err
	}
	if err := submit.Click(ctx); err != nil {
		return fmt.Errorf("login button: %w", err)
	}
	o.logger.Info("Credentials submitted.")
	return o.sleep(ctx, o.cfg.SettleDelay)
}

// resolveOtp handles the OtpPrompt branch: fetch the code from the mailbox,
// enter it, confirm, and re-classify until a terminal state emerges.
func (o *Orchestrator) resolveOtp(ctx context.Context) Outcome {
	o.logger.Info("OTP verification required.")
	o.driver.Screenshot(ctx, "step_1_otp_prompt")

	code, err := o.codes.Fetch(ctx, mailbox.Request{
		SenderDomain: o.mailCfg.SenderDomain,
		MaxWait:      o.mailCfg.MaxWait,
		IssuedAt:     o.now(),
	})
	if err != nil {
		if errors.Is(err, mailbox.ErrTimedOut) {
			return o.terminal(ctx, OutcomeOtpTimeout, "mailbox produced no code within budget")
		}
		return o.terminal(ctx, OutcomeUnexpectedError, fmt.Sprintf("fetch otp: %v", err))
	}
	o.logger.Info("Passcode retrieved from mailbox.")

	fields, err := o.otpFields(ctx)
	if err != nil {
		return o.terminal(ctx, OutcomeUnexpectedError, fmt.Sprintf("locate otp fields: %v", err))
	}
	if len(fields) == 0 {
		return o.terminal(ctx, OutcomeVerificationFailed, "otp prompt detected but input fields never appeared")
	}

	if err := o.enterCode(ctx, fields, code); err != nil {
		return o.terminal(ctx, OutcomeUnexpectedError, fmt.Sprintf("enter otp: %v", err))
	}
	o.driver.Screenshot(ctx, "step_1_otp_entered")

	if err := o.confirmOtp(ctx, fields); err != nil {
		return o.terminal(ctx, OutcomeUnexpectedError, fmt.Sprintf("confirm otp: %v", err))
	}
	if err := o.sleep(ctx, o.cfg.SettleDelay); err != nil {
		return o.terminal(ctx, OutcomeUnexpectedError, err.Error())
	}
	o.driver.Screenshot(ctx, "step_1_after_otp_verification")

	return o.verifyOtpResult(ctx)
}

// verifyOtpResult re-classifies after OTP submission. Lingering on the login
// or OTP form means either an explicit rejection or a slow render; only the
// first is OtpRejected, the second gets one more chance before
// VerificationFailed.
func (o *Orchestrator) verifyOtpResult(ctx context.Context) Outcome {
	state := o.classifyWithRetry(ctx)
	switch state {
	case classify.StateAuthenticated:
		o.driver.Screenshot(ctx, "step_1_login_success")
		return o.terminal(ctx, OutcomeSuccess, "authenticated after otp")
	case classify.StateRateLimited:
		o.driver.Screenshot(ctx, "step_1_otp_rate_limited")
		return o.terminal(ctx, OutcomeRateLimited, "platform throttled otp generation")
	case classify.StateLoginForm, classify.StateOtpPrompt:
		if o.pageMentionsInvalidOtp(ctx) {
			o.driver.Screenshot(ctx, "step_1_otp_rejected")
			return o.terminal(ctx, OutcomeOtpRejected, "page reports the code invalid or expired")
		}
		// Transient render delay: allow one re-check before giving up.
		if err := o.sleep(ctx, o.cfg.ClassifyDelay); err != nil {
			return o.terminal(ctx, OutcomeUnexpectedError, err.Error())
		}
		switch o.classify(ctx) {
		case classify.StateAuthenticated:
			o.driver.Screenshot(ctx, "step_1_login_success")
			return o.terminal(ctx, OutcomeSuccess, "authenticated after otp")
		case classify.StateRateLimited:
			o.driver.Screenshot(ctx, "step_1_otp_rate_limited")
			return o.terminal(ctx, OutcomeRateLimited, "platform throttled otp generation")
		default:
			o.driver.Screenshot(ctx, "step_1_otp_verification_failed")
			return o.terminal(ctx, OutcomeVerificationFailed, "page did not leave the login flow after otp")
		}
	default:
		o.driver.Screenshot(ctx, "step_1_otp_verification_failed")
		return o.terminal(ctx, OutcomeVerificationFailed, "page state never resolved after otp")
	}
}

// enterCode distributes the code across the visible fields: one digit per
// field when the counts line up, the whole code into the first field
// otherwise.
func (o *Orchestrator) enterCode(ctx context.Context, fields []schemas.Element, code string) error {
	if len(fields) == len(code) {
		o.logger.Info("Entering code digit by digit.", zap.Int("fields", len(fields)))
		for i, digit := range code {
			field := fields[i]
			if err := field.Click(ctx); err != nil {
				return err
			}
			if err := field.Clear(ctx); err != nil {
				return err
			}
			if err := field.Type(ctx, string(digit)); err != nil {
				return err
			}
		}
		return nil
	}

	o.logger.Info("Entering code into a single field.", zap.Int("fields", len(fields)))
	field := fields[0]
	if err := field.Click(ctx); err != nil {
		return err
	}
	if err := field.Clear(ctx); err != nil {
		return err
	}
	return field.Type(ctx, code)
}

// confirmOtp fires the first available confirm action, falling back to an
// Enter keystroke on the last filled field.
func (o *Orchestrator) confirmOtp(ctx context.Context, fields []schemas.Element) error {
	for _, expr := range confirmXPaths {
		buttons, err := o.driver.VisibleByXPath(ctx, expr)
		if err != nil {
			o.logger.Debug("Confirm lookup failed.", zap.String("xpath", expr), zap.Error(err))
			continue
		}
		if len(buttons) == 0 {
			continue
		}
		if err := buttons[0].Click(ctx); err != nil {
			o.logger.Debug("Confirm click failed, trying next.", zap.String("xpath", expr), zap.Error(err))
			continue
		}
		o.logger.Debug("Confirm action fired.", zap.String("xpath", expr))
		return nil
	}
	o.logger.Debug("No confirm button found, sending Enter to last field.")
	return fields[len(fields)-1].PressEnter(ctx)
}

// otpFields returns the visible OTP inputs using the ranked selector list,
// with one delayed retry because the fields often render after the prompt
// text.
func (o *Orchestrator) otpFields(ctx context.Context) ([]schemas.Element, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if err := o.sleep(ctx, o.cfg.ClassifyDelay); err != nil {
				return nil, err
			}
		}
		for _, sel := range classify.OtpFieldSelectors {
			fields, err := o.driver.VisibleBySelector(ctx, sel)
			if err != nil {
				o.logger.Debug("OTP selector failed.", zap.String("selector", sel), zap.Error(err))
				continue
			}
			if len(fields) > 0 {
				o.logger.Debug("OTP fields located.",
					zap.String("selector", sel), zap.Int("count", len(fields)))
				return fields, nil
			}
		}
	}
	return nil, nil
}

// waitInteractable polls for the first visible element matching the selector
// within the configured element wait bound.
func (o *Orchestrator) waitInteractable(ctx context.Context, selector string) (schemas.Element, error) {
	deadline := o.now().Add(o.cfg.ElementWait)
	for {
		elements, err := o.driver.VisibleBySelector(ctx, selector)
		if err == nil && len(elements) > 0 {
			return elements[0], nil
		}
		if err != nil {
			o.logger.Debug("Element lookup failed, retrying.",
				zap.String("selector", selector), zap.Error(err))
		}
		if o.now().After(deadline) {
			return nil, fmt.Errorf("element %q never became interactable within %s", selector, o.cfg.ElementWait)
		}
		if err := o.sleep(ctx, elementPollInterval); err != nil {
			return nil, err
		}
	}
}

// classifyWithRetry re-polls an indeterminate classification a bounded
// number of times, re-reading a fresh snapshot each round.
func (o *Orchestrator) classifyWithRetry(ctx context.Context) classify.State {
	state := o.classify(ctx)
	for attempt := 0; attempt < o.cfg.ClassifyRetries && state == classify.StateIndeterminate; attempt++ {
		if err := o.sleep(ctx, o.cfg.ClassifyDelay); err != nil {
			return state
		}
		state = o.classify(ctx)
	}
	return state
}

// classify builds a fresh snapshot and classifies it. Snapshots are never
// reused across calls; each classification sees the page as it is now.
func (o *Orchestrator) classify(ctx context.Context) classify.State {
	return o.classifier.Classify(o.snapshot(ctx))
}

func (o *Orchestrator) snapshot(ctx context.Context) *classify.Snapshot {
	probe := func(selector string) int {
		var (
			elements []schemas.Element
			err      error
		)
		if strings.HasPrefix(selector, "//") {
			elements, err = o.driver.VisibleByXPath(ctx, selector)
		} else {
			elements, err = o.driver.VisibleBySelector(ctx, selector)
		}
		if err != nil {
			return 0
		}
		return len(elements)
	}
	return classify.NewSnapshot(
		o.driver.URL(ctx),
		o.driver.Title(ctx),
		o.driver.PageText(ctx),
		probe,
	)
}

func (o *Orchestrator) pageMentionsInvalidOtp(ctx context.Context) bool {
	text := strings.ToLower(o.driver.PageText(ctx))
	for _, phrase := range invalidOtpPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// terminal builds the single Outcome of the run, capturing page context.
func (o *Orchestrator) terminal(ctx context.Context, kind OutcomeKind, detail string) Outcome {
	out := Outcome{
		Kind:   kind,
		Detail: detail,
		URL:    o.driver.URL(ctx),
		Title:  o.driver.Title(ctx),
	}
	o.logger.Info("Login attempt reached terminal outcome.",
		zap.String("outcome", string(out.Kind)),
		zap.String("detail", out.Detail),
		zap.String("url", out.URL),
	)
	return out
}

func fillField(ctx context.Context, field schemas.Element, value string) error {
	if err := field.Click(ctx); err != nil {
		return err
	}
	if err := field.Clear(ctx); err != nil {
		return err
	}
	return field.Type(ctx, value)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
