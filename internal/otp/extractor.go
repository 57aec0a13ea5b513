// Package otp extracts one-time passcodes from free-form message text.
package otp

import "regexp"

// codePattern pairs a compiled expression with a short label used for
// diagnostics. Patterns are evaluated in declaration order and the first
// match wins, so more specific phrasings must come first.
type codePattern struct {
	label string
	re    *regexp.Regexp
}

// Labeled patterns, most specific first. Each one captures a 4-6 digit group.
// The blind fallback lives separately in fallbackPattern because matching any
// standalone number risks picking up dates or amounts.
var labeledPatterns = []codePattern{
	{"otp_is", regexp.MustCompile(`(?i)OTP\s*(?:is|:)?\s*(\d{4,6})`)},
	{"verification_code", regexp.MustCompile(`(?i)(?:verification|confirm(?:ation)?)\s*code\s*(?:is|:)?\s*(\d{4,6})`)},
	{"digits_is_your", regexp.MustCompile(`(?i)(\d{4,6})\s*is\s*your\s*(?:OTP|code)`)},
	{"code_is", regexp.MustCompile(`(?i)code\s*(?:is|:)?\s*(\d{4,6})`)},
	{"one_time_password", regexp.MustCompile(`(?i)(?:one[- ]time|temporary)\s*(?:password|code)\s*(?:is|:)?\s*(\d{4,6})`)},
}

var fallbackPattern = regexp.MustCompile(`\b(\d{6})\b`)

// Extract scans text for a 4-6 digit passcode. It returns the code and true
// when one of the ranked patterns matches, or "" and false otherwise. Absence
// is not an error; callers treat it as "no code available yet".
func Extract(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, p := range labeledPatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	if m := fallbackPattern.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}
