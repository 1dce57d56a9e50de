package chunking

import (
	"regexp"
	"strings"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// semanticBlock is the unit between raw lines and chunks. Content includes
// the header line itself.
type semanticBlock struct {
	header     string
	content    string
	tokenCount int
}

// normalize converts line endings, trims each line and collapses runs of
// blank lines to a single paragraph break.
func normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	content = strings.Join(lines, "\n")
	content = excessNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

func splitBlocks(text string, counter TokenCounter, smallBlockTokens int) []semanticBlock {
	lines := strings.Split(text, "\n")

	var blocks []semanticBlock
	header := domain.DefaultSection
	var current []string
	flush := func() {
		content := strings.TrimSpace(strings.Join(current, "\n"))
		current = current[:0]
		if content == "" {
			return
		}
		blocks = append(blocks, semanticBlock{header: header, content: content, tokenCount: counter.Count(content)})
	}

	for i, line := range lines {
		if line != "" && IsHeader(line, nextNonEmpty(lines, i+1)) {
			flush()
			if cleaned := CleanHeader(line); cleaned != "" {
				header = cleaned
			}
		}
		current = append(current, line)
	}
	flush()

	return mergeSmallBlocks(blocks, counter, smallBlockTokens)
}

func nextNonEmpty(lines []string, from int) string {
	for i := from; i < len(lines); i++ {
		if lines[i] != "" {
			return lines[i]
		}
	}
	return ""
}

// mergeSmallBlocks folds blocks under the threshold into their predecessor.
func mergeSmallBlocks(blocks []semanticBlock, counter TokenCounter, threshold int) []semanticBlock {
	if len(blocks) < 2 {
		return blocks
	}
	out := make([]semanticBlock, 0, len(blocks))
	for _, b := range blocks {
		if len(out) > 0 && b.tokenCount < threshold {
			prev := &out[len(out)-1]
			prev.content = prev.content + "\n\n" + b.content
			prev.tokenCount = counter.Count(prev.content)
			continue
		}
		out = append(out, b)
	}
	return out
}
