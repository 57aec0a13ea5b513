package login

// OutcomeKind enumerates the terminal results of one login attempt.
type OutcomeKind string

const (
	// OutcomeSuccess means an authenticated session was established.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeRateLimited means the platform throttled OTP issuance. This is
	// an expected condition, not a failure: the caller exits cleanly and the
	// next scheduled run retries.
	OutcomeRateLimited OutcomeKind = "rate_limited"
	// OutcomeOtpTimeout means the mailbox never produced a code in budget.
	OutcomeOtpTimeout OutcomeKind = "otp_timeout"
	// OutcomeOtpRejected means a code was submitted and the page reported it
	// invalid or expired. Kept distinct from timeout for diagnostics.
	OutcomeOtpRejected OutcomeKind = "otp_rejected"
	// OutcomeVerificationFailed means the post-submit page state never
	// resolved to authenticated.
	OutcomeVerificationFailed OutcomeKind = "verification_failed"
	// OutcomeUnexpectedError covers everything uncategorized.
	OutcomeUnexpectedError OutcomeKind = "unexpected_error"
)

// Outcome is the terminal, immutable result of one login attempt. The
// orchestrator produces exactly one per run. URL and Title capture where the
// page was when the outcome was decided, for diagnosis.
type Outcome struct {
	Kind   OutcomeKind
	Detail string
	URL    string
	Title  string
}

// Failed reports whether the outcome should produce a non-zero process exit.
// RateLimited is deliberately not a failure; schedulers must not alert on it.
func (o Outcome) Failed() bool {
	return o.Kind != OutcomeSuccess && o.Kind != OutcomeRateLimited
}
