package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected string
		found    bool
	}{
		{
			name:     "otp is phrasing",
			text:     "Your OTP is 482913. Do not share it with anyone.",
			expected: "482913",
			found:    true,
		},
		{
			name:     "otp with colon",
			text:     "Your OTP: 930182",
			expected: "930182",
			found:    true,
		},
		{
			name:     "verification code phrasing",
			text:     "The verification code is 55123 for your login attempt.",
			expected: "55123",
			found:    true,
		},
		{
			name:     "confirmation code phrasing",
			text:     "confirmation code: 8821",
			expected: "8821",
			found:    true,
		},
		{
			name:     "digits first phrasing",
			text:     "718293 is your OTP for Naukri.",
			expected: "718293",
			found:    true,
		},
		{
			name:     "one time password phrasing",
			text:     "Use this one-time password 341596 within 10 minutes.",
			expected: "341596",
			found:    true,
		},
		{
			name:     "fallback standalone six digits",
			text:     "Here you go 654321 thanks",
			expected: "654321",
			found:    true,
		},
		{
			name:  "no digits at all",
			text:  "Welcome to our newsletter, lots of great jobs inside!",
			found: false,
		},
		{
			name:  "empty text",
			text:  "",
			found: false,
		},
		{
			name: "digit run too long for fallback",
			// 8 digits is not word-boundary delimited as a 6 digit group.
			text:  "Order reference 20260829 confirmed",
			found: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, ok := Extract(tc.text)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.expected, code)
		})
	}
}

// A labeled pattern must win over the blind six digit fallback even when the
// fallback candidate appears earlier in the text.
func TestExtractPatternPriority(t *testing.T) {
	code, ok := Extract("ref 222222 ... your OTP is 111111")
	assert.True(t, ok)
	assert.Equal(t, "111111", code)
}

func TestExtractPrefersLabeledOverFallback(t *testing.T) {
	// "code is" pattern (rank 4) beats the standalone number fallback.
	code, ok := Extract("invoice 987654 paid. Your login code is 4455.")
	assert.True(t, ok)
	assert.Equal(t, "4455", code)
}
