// Package classify decides which authentication state a page snapshot is in.
//
// Real pages exhibit overlapping and sometimes contradictory signals: a
// rate-limit banner can mention "OTP", stale cached text can sit next to a
// freshly rendered OTP form. The classifier therefore evaluates a fixed,
// ranked list of rules and returns the state of the first rule that matches,
// instead of scattering the precedence across branching code.
package classify

import (
	"strings"

	"go.uber.org/zap"
)

// State is the classification result for one snapshot. It is derived, never
// stored: every call recomputes it from a fresh Snapshot.
type State string

const (
	StateLoginForm     State = "login_form"
	StateOtpPrompt     State = "otp_prompt"
	StateRateLimited   State = "rate_limited"
	StateAuthenticated State = "authenticated"
	// StateIndeterminate means no rule matched conclusively. Callers should
	// re-snapshot and retry after a short delay before treating it as failure.
	StateIndeterminate State = "indeterminate"
)

// Phrase and selector sets observed on naukri.com. Kept as package data so
// the precedence stays visible and each set is independently testable.
var (
	RateLimitPhrases = []string{
		"max limit to generate otp",
		"reached max limit",
		"try after 24 hours",
		"too many otp requests",
		"otp limit exceeded",
	}

	OtpPhrases = []string{
		"enter the otp",
		"enter otp",
		"otp sent",
		"verification code",
		"otp to login",
	}

	// OtpFieldSelectors are tried in order; the first one producing at least
	// one visible element wins. Visibility filtering happens in the probe,
	// hidden duplicate fields are a common false-positive source.
	OtpFieldSelectors = []string{
		"input[type='text'][maxlength='1']",
		"input[type='tel'][maxlength='1']",
		"input[placeholder*='otp' i]",
		"input[id*='otp' i]",
		"input[name*='otp' i]",
		"input[class*='otp' i]",
	}

	AuthenticatedPhrases = []string{
		"naukri360",
		"my naukri",
		"profile update",
	}

	AuthenticatedLinkSelectors = []string{
		"a[href*='/mnjuser/profile']",
		"a[href*='/mnjuser/homepage']",
	}

	LoginFormSelectors = []string{
		"#usernameField",
		"#passwordField",
		"input[placeholder*='email' i]",
	}
)

// rule pairs a state with its predicate. Rules are evaluated in order and the
// first match wins.
type rule struct {
	state State
	match func(s *Snapshot) bool
}

// Classifier turns page snapshots into States using the ranked rule list.
type Classifier struct {
	logger *zap.Logger
	rules  []rule
}

// New builds a Classifier with the standard rule order:
// RateLimited > OtpPrompt > Authenticated > LoginForm.
func New(logger *zap.Logger) *Classifier {
	c := &Classifier{logger: logger.Named("classifier")}
	c.rules = []rule{
		// Rate limiting outranks everything: the banner often mentions "OTP"
		// and must not be mistaken for an OTP prompt.
		{StateRateLimited, func(s *Snapshot) bool {
			return s.ContainsAny(RateLimitPhrases...)
		}},
		// OTP prompt by phrase or by visible input fields. Either signal
		// alone is enough; the fields sometimes render before the text and
		// vice versa.
		{StateOtpPrompt, func(s *Snapshot) bool {
			return s.ContainsAny(OtpPhrases...) || s.AnyVisible(OtpFieldSelectors...)
		}},
		{StateAuthenticated, c.matchAuthenticated},
		{StateLoginForm, func(s *Snapshot) bool {
			return s.AnyVisible(LoginFormSelectors...)
		}},
	}
	return c
}

// Classify returns the state of the first matching rule, or
// StateIndeterminate when nothing matches.
func (c *Classifier) Classify(s *Snapshot) State {
	for _, r := range c.rules {
		if r.match(s) {
			c.logger.Debug("Page classified.",
				zap.String("state", string(r.state)),
				zap.String("url", s.URL),
				zap.String("title", s.Title),
			)
			return r.state
		}
	}
	c.logger.Debug("Page state indeterminate.",
		zap.String("url", s.URL),
		zap.String("title", s.Title),
	)
	return StateIndeterminate
}

// matchAuthenticated requires the absence of login form markers combined with
// either a session indicator or an authenticated route in the URL. URL based
// and text based signals can disagree on naukri.com, so the URL alone only
// counts when no login form is detectable on the same snapshot.
func (c *Classifier) matchAuthenticated(s *Snapshot) bool {
	if s.AnyVisible(LoginFormSelectors...) {
		return false
	}
	if s.ContainsAny(AuthenticatedPhrases...) || s.AnyVisible(AuthenticatedLinkSelectors...) {
		return true
	}
	url := strings.ToLower(s.URL)
	return strings.Contains(url, "mnjuser") && !strings.Contains(url, "login")
}
