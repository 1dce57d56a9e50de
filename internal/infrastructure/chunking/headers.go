package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// HeaderThreshold is the minimum ScoreHeader value for a soft header.
const HeaderThreshold = 2

var markdownHeading = regexp.MustCompile(`^#{1,6}\s+\S`)

// ScoreHeader rates how much a line looks like a section header. It is a
// heuristic, not a parser: ambiguous lines can land on either side of the
// threshold. next is the following non-empty line, or "".
func ScoreHeader(line, next string) int {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0
	}

	length := utf8.RuneCountInString(line)
	score := 0
	if length < 80 {
		score++
	}
	if strings.HasSuffix(line, ":") {
		score++
	}
	if markdownHeading.MatchString(line) {
		score++
	}
	if isCapitalizedLine(line) {
		score++
	}
	if next = strings.TrimSpace(next); next != "" && utf8.RuneCountInString(next) >= 2*length {
		score++
	}
	if strings.HasSuffix(line, ".") {
		score--
	}
	return score
}

// IsHeader reports whether line qualifies as a soft header.
func IsHeader(line, next string) bool {
	return ScoreHeader(line, next) >= HeaderThreshold
}

// CleanHeader strips heading markers and the trailing colon.
func CleanHeader(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "#")
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, ":")
	return strings.TrimSpace(line)
}

// isCapitalizedLine is true when at least 70% of the words carrying letters
// are ALL-CAPS or start with an upper-case letter.
func isCapitalizedLine(line string) bool {
	words := strings.Fields(CleanHeader(line))
	letterWords, capitalized := 0, 0
	for _, w := range words {
		first, hasLetter := firstLetter(w)
		if !hasLetter {
			continue
		}
		letterWords++
		if unicode.IsUpper(first) || isAllCaps(w) {
			capitalized++
		}
	}
	if letterWords == 0 {
		return false
	}
	return float64(capitalized) >= 0.7*float64(letterWords)
}

func firstLetter(w string) (rune, bool) {
	for _, r := range w {
		if unicode.IsLetter(r) {
			return r, true
		}
	}
	return 0, false
}

func isAllCaps(w string) bool {
	seen := false
	for _, r := range w {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			seen = true
		}
	}
	return seen
}
