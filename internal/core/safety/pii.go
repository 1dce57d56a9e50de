package safety

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	PIIEmail      = "EMAIL"
	PIICreditCard = "CREDIT_CARD"
	PIISSN        = "SSN"
	PIIPhone      = "PHONE"
	PIIIPAddress  = "IP_ADDRESS"
)

// PIIPattern is one redaction rule. Replacement must not itself match any
// registered pattern, otherwise scrubbing stops being idempotent.
type PIIPattern struct {
	Type        string
	Expr        *regexp.Regexp
	Replacement string
}

// CompilePattern builds an extra redaction rule. An empty replacement
// defaults to "[<TYPE>_REDACTED]".
func CompilePattern(piiType, expr, replacement string) (PIIPattern, error) {
	piiType = strings.ToUpper(strings.TrimSpace(piiType))
	if piiType == "" {
		return PIIPattern{}, fmt.Errorf("compile pii pattern: empty type")
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return PIIPattern{}, fmt.Errorf("compile pii pattern %s: %w", piiType, err)
	}
	if replacement == "" {
		replacement = redactionToken(piiType)
	}
	return PIIPattern{Type: piiType, Expr: re, Replacement: replacement}, nil
}

func redactionToken(piiType string) string {
	return "[" + piiType + "_REDACTED]"
}

// Card runs before phone so 4-digit groups are not half-consumed.
var defaultPatterns = []PIIPattern{
	{
		Type:        PIIEmail,
		Expr:        regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		Replacement: redactionToken(PIIEmail),
	},
	{
		Type:        PIICreditCard,
		Expr:        regexp.MustCompile(`\b(?:\d{4}[\s-]?){3}\d{4}\b`),
		Replacement: redactionToken(PIICreditCard),
	},
	{
		Type:        PIISSN,
		Expr:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Replacement: redactionToken(PIISSN),
	},
	{
		Type:        PIIPhone,
		Expr:        regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(\d{3}\)[\s.-]?|\b\d{3}[\s.-])\d{3}[\s.-]\d{4}\b`),
		Replacement: redactionToken(PIIPhone),
	},
	{
		Type:        PIIIPAddress,
		Expr:        regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
		Replacement: redactionToken(PIIIPAddress),
	},
}

type ScrubResult struct {
	HasPII           bool     `json:"has_pii"`
	SanitizedContent string   `json:"sanitized_content"`
	DetectedTypes    []string `json:"detected_types,omitempty"`
	MatchCount       int      `json:"match_count"`
}

type Detection struct {
	HasPII bool     `json:"has_pii"`
	Types  []string `json:"types,omitempty"`
}

// Scrubber is immutable after construction and safe for concurrent use.
type Scrubber struct {
	patterns []PIIPattern
}

// NewScrubber returns a scrubber with the built-in patterns followed by extra.
func NewScrubber(extra ...PIIPattern) *Scrubber {
	patterns := make([]PIIPattern, 0, len(defaultPatterns)+len(extra))
	patterns = append(patterns, defaultPatterns...)
	for _, p := range extra {
		if p.Expr == nil || p.Type == "" {
			continue
		}
		patterns = append(patterns, p)
	}
	return &Scrubber{patterns: patterns}
}

// Scrub redacts every pattern in order on a working copy. A panic inside a
// pattern yields the original text unchanged.
func (s *Scrubber) Scrub(text string) (result ScrubResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ScrubResult{SanitizedContent: text}
		}
	}()

	result.SanitizedContent = text
	if text == "" {
		return result
	}

	working := text
	for _, p := range s.patterns {
		matches := p.Expr.FindAllStringIndex(working, -1)
		if len(matches) == 0 {
			continue
		}
		result.MatchCount += len(matches)
		result.DetectedTypes = appendUnique(result.DetectedTypes, p.Type)
		working = p.Expr.ReplaceAllLiteralString(working, p.Replacement)
	}

	result.HasPII = result.MatchCount > 0
	result.SanitizedContent = working
	return result
}

// Detect reports which types Scrub would redact without returning content.
func (s *Scrubber) Detect(text string) Detection {
	res := s.Scrub(text)
	return Detection{HasPII: res.HasPII, Types: res.DetectedTypes}
}

// Preview scrubs text and truncates it to limit runes for logs and audit payloads.
func (s *Scrubber) Preview(text string, limit int) string {
	return Truncate(s.Scrub(text).SanitizedContent, limit)
}

// Truncate cuts text to at most limit runes, appending "..." when cut.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
