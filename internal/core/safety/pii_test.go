package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrubRedactsDefaultTypes(t *testing.T) {
	s := NewScrubber()

	cases := []struct {
		name  string
		in    string
		want  string
		types []string
	}{
		{"email", "mail me at jane.doe+x@example.co.uk please", "mail me at [EMAIL_REDACTED] please", []string{PIIEmail}},
		{"card with spaces", "card 4111 1111 1111 1111 on file", "card [CREDIT_CARD_REDACTED] on file", []string{PIICreditCard}},
		{"card with dashes", "4111-1111-1111-1111", "[CREDIT_CARD_REDACTED]", []string{PIICreditCard}},
		{"ssn", "ssn is 123-45-6789.", "ssn is [SSN_REDACTED].", []string{PIISSN}},
		{"phone dashed", "call 555-123-4567 now", "call [PHONE_REDACTED] now", []string{PIIPhone}},
		{"phone parens", "call (555) 123-4567", "call [PHONE_REDACTED]", []string{PIIPhone}},
		{"phone intl", "call +1 555.123.4567", "call [PHONE_REDACTED]", []string{PIIPhone}},
		{"ipv4", "from 192.168.10.254 today", "from [IP_ADDRESS_REDACTED] today", []string{PIIIPAddress}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := s.Scrub(tc.in)
			assert.True(t, res.HasPII)
			assert.Equal(t, tc.want, res.SanitizedContent)
			assert.Equal(t, tc.types, res.DetectedTypes)
			assert.Equal(t, 1, res.MatchCount)
		})
	}
}

func TestScrubIgnoresInvalidIPOctets(t *testing.T) {
	res := NewScrubber().Scrub("version 999.300.1.1 shipped")
	assert.False(t, res.HasPII)
	assert.Equal(t, "version 999.300.1.1 shipped", res.SanitizedContent)
}

func TestScrubIsIdempotent(t *testing.T) {
	s := NewScrubber()
	inputs := []string{
		"",
		"nothing sensitive here",
		"jane@example.com, 555-123-4567, 123-45-6789, 4111 1111 1111 1111, 10.0.0.1",
		"a@b.com123-45-6789",
		"(555) 123-4567 and +44 555 123 4567 and 1234-5678-9012-3456",
		"[EMAIL_REDACTED] already [PHONE_REDACTED]",
	}
	for _, in := range inputs {
		once := s.Scrub(in).SanitizedContent
		twice := s.Scrub(once).SanitizedContent
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestScrubCountsMultipleMatches(t *testing.T) {
	res := NewScrubber().Scrub("a@x.io b@y.io and 10.1.1.1")
	assert.Equal(t, 3, res.MatchCount)
	assert.Equal(t, []string{PIIEmail, PIIIPAddress}, res.DetectedTypes)
}

func TestDetectDoesNotMutate(t *testing.T) {
	s := NewScrubber()
	in := "reach me at 555-123-4567"
	det := s.Detect(in)
	assert.True(t, det.HasPII)
	assert.Equal(t, []string{PIIPhone}, det.Types)
	assert.Equal(t, "reach me at 555-123-4567", in)
}

func TestNewScrubberWithExtraPattern(t *testing.T) {
	p, err := CompilePattern("employee_id", `\bEMP-\d{6}\b`, "")
	require.NoError(t, err)
	require.Equal(t, "EMPLOYEE_ID", p.Type)

	res := NewScrubber(p).Scrub("badge EMP-123456 issued")
	assert.Equal(t, "badge [EMPLOYEE_ID_REDACTED] issued", res.SanitizedContent)
	assert.Equal(t, []string{"EMPLOYEE_ID"}, res.DetectedTypes)
}

func TestCompilePatternRejectsBadInput(t *testing.T) {
	_, err := CompilePattern("", `x`, "")
	require.Error(t, err)

	_, err = CompilePattern("bad", `(`, "")
	require.Error(t, err)
}

func TestScrubRecoversFromPanic(t *testing.T) {
	// A zero PIIPattern has a nil regexp; calling it panics.
	s := &Scrubber{patterns: []PIIPattern{{Type: "BROKEN"}}}
	res := s.Scrub("keep 555-123-4567")
	assert.False(t, res.HasPII)
	assert.Equal(t, "keep 555-123-4567", res.SanitizedContent)
}

func TestPreviewScrubsAndTruncates(t *testing.T) {
	s := NewScrubber()
	got := s.Preview("contact jane@example.com about the refund policy", 20)
	assert.Equal(t, "contact [EMAIL_REDAC...", got)
	assert.Equal(t, "short", Truncate("short", 100))
}
