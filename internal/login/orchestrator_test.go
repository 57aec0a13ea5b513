package login

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jobdesk/naukri-refresh/api/schemas"
	"github.com/jobdesk/naukri-refresh/internal/classify"
	"github.com/jobdesk/naukri-refresh/internal/config"
	"github.com/jobdesk/naukri-refresh/internal/mailbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Fakes --

// fakeElement records interactions and can mutate driver state on click or
// enter, simulating page transitions.
type fakeElement struct {
	mu      sync.Mutex
	clicked bool
	cleared bool
	typed   string
	entered bool
	onClick func()
	onEnter func()
}

func (e *fakeElement) Click(context.Context) error {
	e.mu.Lock()
	e.clicked = true
	cb := e.onClick
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (e *fakeElement) Clear(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared = true
	e.typed = ""
	return nil
}

func (e *fakeElement) Type(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.typed += text
	return nil
}

func (e *fakeElement) PressEnter(context.Context) error {
	e.mu.Lock()
	e.entered = true
	cb := e.onEnter
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (e *fakeElement) typedText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typed
}

// fakePage is one renderable page state.
type fakePage struct {
	url       string
	title     string
	text      string
	selectors map[string][]*fakeElement
	xpaths    map[string][]*fakeElement
}

// fakeDriver serves the current fakePage; element callbacks swap pages to
// model navigation and form submission. Setting swapAfterReads schedules a
// swap to swapTo once that many page-text reads have happened, which models
// content that changes between two classifications with no interaction.
type fakeDriver struct {
	mu             sync.Mutex
	page           fakePage
	screenshots    []string
	navigations    []string
	textReads      int
	swapAfterReads int
	swapTo         fakePage
}

var _ schemas.Driver = (*fakeDriver)(nil)

func (d *fakeDriver) setPage(p fakePage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.page = p
}

func (d *fakeDriver) current() fakePage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *fakeDriver) URL(context.Context) string   { return d.current().url }
func (d *fakeDriver) Title(context.Context) string { return d.current().title }

func (d *fakeDriver) PageText(context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	text := d.page.text
	d.textReads++
	if d.swapAfterReads > 0 && d.textReads >= d.swapAfterReads {
		d.page = d.swapTo
		d.swapAfterReads = 0
	}
	return text
}

func (d *fakeDriver) VisibleBySelector(_ context.Context, selector string) ([]schemas.Element, error) {
	return toElements(d.current().selectors[selector]), nil
}

func (d *fakeDriver) VisibleByXPath(_ context.Context, expr string) ([]schemas.Element, error) {
	return toElements(d.current().xpaths[expr]), nil
}

func (d *fakeDriver) Screenshot(_ context.Context, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screenshots = append(d.screenshots, name)
}

func toElements(fakes []*fakeElement) []schemas.Element {
	elements := make([]schemas.Element, 0, len(fakes))
	for _, f := range fakes {
		elements = append(elements, f)
	}
	return elements
}

// fakeCodes is a scripted CodeSource.
type fakeCodes struct {
	code string
	err  error
}

func (c *fakeCodes) Fetch(context.Context, mailbox.Request) (string, error) {
	return c.code, c.err
}

// -- Helpers --

func testLoginConfig() config.LoginConfig {
	return config.LoginConfig{
		URL:             "https://www.naukri.com/mnjuser/login",
		Email:           "user@example.test",
		Password:        "hunter2",
		ElementWait:     10 * time.Second,
		ClassifyRetries: 2,
		ClassifyDelay:   time.Second,
		SettleDelay:     time.Second,
	}
}

func testMailboxConfig() config.MailboxConfig {
	return config.MailboxConfig{
		SenderDomain: "naukri.com",
		MaxWait:      90 * time.Second,
	}
}

// newTestOrchestrator wires a fake clock whose sleeps return instantly while
// still advancing time, so element-wait deadlines stay meaningful.
func newTestOrchestrator(t *testing.T, driver schemas.Driver, codes CodeSource) *Orchestrator {
	t.Helper()
	clock := struct {
		mu  sync.Mutex
		now time.Time
	}{now: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)}

	now := func() time.Time {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		return clock.now
	}
	sleep := func(_ context.Context, d time.Duration) error {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		clock.now = clock.now.Add(d)
		return nil
	}
	return New(driver, classify.New(zap.NewNop()), codes,
		testLoginConfig(), testMailboxConfig(), zap.NewNop(), WithClock(now, sleep))
}

// loginFormPage builds the standard login form whose submit button swaps the
// driver to the given next page.
func loginFormPage(d *fakeDriver, next func() fakePage) fakePage {
	email := &fakeElement{}
	password := &fakeElement{}
	submit := &fakeElement{onClick: func() { d.setPage(next()) }}
	return fakePage{
		url:   "https://www.naukri.com/mnjuser/login",
		title: "Login",
		text:  "login to manage your career",
		selectors: map[string][]*fakeElement{
			"#usernameField":        {email},
			"#passwordField":        {password},
			"button[type='submit']": {submit},
		},
	}
}

func authenticatedPage() fakePage {
	return fakePage{
		url:       "https://www.naukri.com/mnjuser/homepage",
		title:     "My Naukri",
		text:      "My Naukri - jobs curated for you",
		selectors: map[string][]*fakeElement{},
	}
}

// -- Tests --

func TestRunSuccessWithoutOtp(t *testing.T) {
	driver := &fakeDriver{}
	driver.setPage(loginFormPage(driver, authenticatedPage))

	o := newTestOrchestrator(t, driver, &fakeCodes{})
	outcome := o.Run(context.Background())

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.False(t, outcome.Failed())
	assert.Contains(t, driver.navigations, "https://www.naukri.com/mnjuser/login")
	assert.Contains(t, driver.screenshots, "step_1_login_success")
}

func TestRunSuccessWithOtpDigitBoxes(t *testing.T) {
	driver := &fakeDriver{}

	boxes := make([]*fakeElement, 6)
	for i := range boxes {
		boxes[i] = &fakeElement{}
	}
	verify := &fakeElement{onClick: func() { driver.setPage(authenticatedPage()) }}

	otpPage := fakePage{
		url:   "https://www.naukri.com/mnjuser/login",
		title: "Verify",
		text:  "enter the otp sent to your email",
		selectors: map[string][]*fakeElement{
			"input[type='text'][maxlength='1']": boxes,
		},
		xpaths: map[string][]*fakeElement{
			`//button[contains(translate(text(), 'VERIFY', 'verify'), 'verify')]`: {verify},
		},
	}
	driver.setPage(loginFormPage(driver, func() fakePage { return otpPage }))

	o := newTestOrchestrator(t, driver, &fakeCodes{code: "930182"})
	outcome := o.Run(context.Background())

	require.Equal(t, OutcomeSuccess, outcome.Kind, "detail: %s", outcome.Detail)
	for i, want := range []string{"9", "3", "0", "1", "8", "2"} {
		assert.Equal(t, want, boxes[i].typedText(), "digit box %d", i)
	}
	assert.True(t, verify.clicked)
	assert.Contains(t, driver.screenshots, "step_1_otp_entered")
}

func TestRunOtpSingleFieldFallback(t *testing.T) {
	driver := &fakeDriver{}

	single := &fakeElement{}
	confirm := &fakeElement{onClick: func() { driver.setPage(authenticatedPage()) }}
	otpPage := fakePage{
		url:   "https://www.naukri.com/mnjuser/login",
		title: "Verify",
		text:  "enter otp",
		selectors: map[string][]*fakeElement{
			"input[id*='otp' i]": {single},
		},
		xpaths: map[string][]*fakeElement{
			`//button[@type='submit']`: {confirm},
		},
	}
	driver.setPage(loginFormPage(driver, func() fakePage { return otpPage }))

	o := newTestOrchestrator(t, driver, &fakeCodes{code: "482913"})
	outcome := o.Run(context.Background())

	require.Equal(t, OutcomeSuccess, outcome.Kind, "detail: %s", outcome.Detail)
	assert.Equal(t, "482913", single.typedText())
}

func TestRunOtpConfirmFallsBackToEnter(t *testing.T) {
	driver := &fakeDriver{}

	single := &fakeElement{}
	single.onEnter = func() { driver.setPage(authenticatedPage()) }
	otpPage := fakePage{
		url:   "https://www.naukri.com/mnjuser/login",
		title: "Verify",
		text:  "enter otp",
		selectors: map[string][]*fakeElement{
			"input[name*='otp' i]": {single},
		},
	}
	driver.setPage(loginFormPage(driver, func() fakePage { return otpPage }))

	o := newTestOrchestrator(t, driver, &fakeCodes{code: "4455"})
	outcome := o.Run(context.Background())

	require.Equal(t, OutcomeSuccess, outcome.Kind, "detail: %s", outcome.Detail)
	assert.True(t, single.entered)
}

func TestRunOtpTimeout(t *testing.T) {
	driver := &fakeDriver{}
	otpPage := fakePage{
		url:       "https://www.naukri.com/mnjuser/login",
		title:     "Verify",
		text:      "enter the otp sent to your email",
		selectors: map[string][]*fakeElement{},
	}
	driver.setPage(loginFormPage(driver, func() fakePage { return otpPage }))

	o := newTestOrchestrator(t, driver, &fakeCodes{err: mailbox.ErrTimedOut})
	outcome := o.Run(context.Background())

	assert.Equal(t, OutcomeOtpTimeout, outcome.Kind)
	assert.True(t, outcome.Failed())
}

func TestRunRateLimitedIsNonError(t *testing.T) {
	driver := &fakeDriver{}
	limited := fakePage{
		url:       "https://www.naukri.com/mnjuser/login",
		title:     "Login",
		text:      "you have reached max limit to generate otp, try after 24 hours. enter the otp.",
		selectors: map[string][]*fakeElement{},
	}
	driver.setPage(loginFormPage(driver, func() fakePage { return limited }))

	o := newTestOrchestrator(t, driver, &fakeCodes{})
	outcome := o.Run(context.Background())

	// Rate limiting is expected throttling, never UnexpectedError and never
	// a failure exit.
	assert.Equal(t, OutcomeRateLimited, outcome.Kind)
	assert.False(t, outcome.Failed())
}

func TestRunOtpRejected(t *testing.T) {
	driver := &fakeDriver{}

	single := &fakeElement{}
	rejected := fakePage{
		url:   "https://www.naukri.com/mnjuser/login",
		title: "Verify",
		text:  "enter otp. invalid otp, please try again",
		selectors: map[string][]*fakeElement{
			"input[id*='otp' i]": {single},
		},
		xpaths: map[string][]*fakeElement{},
	}
	otpPage := fakePage{
		url:   "https://www.naukri.com/mnjuser/login",
		title: "Verify",
		text:  "enter otp",
		selectors: map[string][]*fakeElement{
			"input[id*='otp' i]": {single},
		},
		xpaths: map[string][]*fakeElement{
			`//button[@type='submit']`: {{onClick: func() {}}},
		},
	}
	driver.setPage(loginFormPage(driver, func() fakePage { return otpPage }))

	o := newTestOrchestrator(t, driver, &fakeCodes{code: "111111"})

	// After the confirm click nothing changes except the rejection banner.
	otpPage.xpaths[`//button[@type='submit']`][0].onClick = func() { driver.setPage(rejected) }

	outcome := o.Run(context.Background())
	assert.Equal(t, OutcomeOtpRejected, outcome.Kind)
	assert.True(t, outcome.Failed())
}

func TestRunOtpRecheckHonorsRateLimit(t *testing.T) {
	driver := &fakeDriver{}

	single := &fakeElement{}
	otpPage := fakePage{
		url:   "https://www.naukri.com/mnjuser/login",
		title: "Verify",
		text:  "enter otp",
		selectors: map[string][]*fakeElement{
			"input[id*='otp' i]": {single},
		},
		xpaths: map[string][]*fakeElement{
			// Click lands but the page does not move on.
			`//button[@type='submit']`: {{}},
		},
	}
	limited := fakePage{
		url:       "https://www.naukri.com/mnjuser/login",
		title:     "Login",
		text:      "you have reached max limit to generate otp, try after 24 hours",
		selectors: map[string][]*fakeElement{},
	}
	// Text reads before the throttle banner renders: the post-submit
	// classification, the post-confirm classification, and the rejection
	// phrase check. The delayed re-check then sees the banner.
	driver.swapTo = limited
	driver.swapAfterReads = 3
	driver.setPage(loginFormPage(driver, func() fakePage { return otpPage }))

	o := newTestOrchestrator(t, driver, &fakeCodes{code: "123456"})
	outcome := o.Run(context.Background())

	assert.Equal(t, OutcomeRateLimited, outcome.Kind, "detail: %s", outcome.Detail)
	assert.False(t, outcome.Failed())
}

func TestRunStillOnLoginFormAfterSubmit(t *testing.T) {
	driver := &fakeDriver{}
	var page fakePage
	page = loginFormPage(driver, func() fakePage { return page })
	driver.setPage(page)

	o := newTestOrchestrator(t, driver, &fakeCodes{})
	outcome := o.Run(context.Background())

	assert.Equal(t, OutcomeVerificationFailed, outcome.Kind)
	assert.Contains(t, outcome.Detail, "login form")
}

func TestRunIndeterminateNeverResolves(t *testing.T) {
	driver := &fakeDriver{}
	blank := fakePage{
		url:       "https://www.naukri.com/blank",
		title:     "Loading",
		text:      "",
		selectors: map[string][]*fakeElement{},
	}
	driver.setPage(loginFormPage(driver, func() fakePage { return blank }))

	o := newTestOrchestrator(t, driver, &fakeCodes{})
	outcome := o.Run(context.Background())

	assert.Equal(t, OutcomeVerificationFailed, outcome.Kind)
	assert.Contains(t, outcome.Detail, "never resolved")
}

func TestRunCredentialFieldsNeverAppear(t *testing.T) {
	driver := &fakeDriver{}
	driver.setPage(fakePage{
		url:       "https://www.naukri.com/mnjuser/login",
		title:     "Login",
		text:      "loading",
		selectors: map[string][]*fakeElement{},
	})

	o := newTestOrchestrator(t, driver, &fakeCodes{})
	outcome := o.Run(context.Background())

	assert.Equal(t, OutcomeUnexpectedError, outcome.Kind)
	assert.Contains(t, outcome.Detail, "usernameField")
}

func TestRunCapturesPageContextOnFailure(t *testing.T) {
	driver := &fakeDriver{}
	driver.setPage(fakePage{
		url:       "https://www.naukri.com/maintenance",
		title:     "Maintenance",
		text:      "be right back",
		selectors: map[string][]*fakeElement{},
	})

	o := newTestOrchestrator(t, driver, &fakeCodes{})
	outcome := o.Run(context.Background())

	assert.Equal(t, "https://www.naukri.com/maintenance", outcome.URL)
	assert.Equal(t, "Maintenance", outcome.Title)
}

func TestOutcomeFailed(t *testing.T) {
	assert.False(t, Outcome{Kind: OutcomeSuccess}.Failed())
	assert.False(t, Outcome{Kind: OutcomeRateLimited}.Failed())
	for _, kind := range []OutcomeKind{
		OutcomeOtpTimeout, OutcomeOtpRejected, OutcomeVerificationFailed, OutcomeUnexpectedError,
	} {
		assert.True(t, Outcome{Kind: kind}.Failed(), string(kind))
	}
}

func TestCodeSourceErrorBecomesUnexpected(t *testing.T) {
	driver := &fakeDriver{}
	otpPage := fakePage{
		url:       "https://www.naukri.com/mnjuser/login",
		title:     "Verify",
		text:      "enter the otp",
		selectors: map[string][]*fakeElement{},
	}
	driver.setPage(loginFormPage(driver, func() fakePage { return otpPage }))

	o := newTestOrchestrator(t, driver, &fakeCodes{err: errors.New("imap exploded")})
	outcome := o.Run(context.Background())

	assert.Equal(t, OutcomeUnexpectedError, outcome.Kind)
	assert.Contains(t, outcome.Detail, "imap exploded")
}
