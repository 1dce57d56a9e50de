package chunking

import (
	"strings"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

// split granularity, coarsest first
const (
	levelBlock = iota
	levelParagraph
	levelLine
	levelSentence
	levelWord
	levelRune
)

type piece struct {
	text string
	sep  string
}

// pendingChunk is a chunk under construction. seed holds the overlap words
// carried from the previous chunk; parts is the fresh content.
type pendingChunk struct {
	seed    []string
	parts   []piece
	section string
}

func (p pendingChunk) hasFresh() bool {
	return len(p.parts) > 0
}

func (p pendingChunk) text() string {
	return p.textWith(piece{})
}

func (p pendingChunk) textWith(extra piece) string {
	var b strings.Builder
	b.WriteString(strings.Join(p.seed, " "))
	write := func(pc piece) {
		if pc.text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString(pc.sep)
		}
		b.WriteString(pc.text)
	}
	for _, pc := range p.parts {
		write(pc)
	}
	write(extra)
	return b.String()
}

func (p pendingChunk) freshText() string {
	return pendingChunk{parts: p.parts}.text()
}

type assembler struct {
	cfg           domain.ChunkingConfig
	counter       TokenCounter
	overlapTokens int

	cur pendingChunk
	out []pendingChunk
}

func newAssembler(cfg domain.ChunkingConfig, counter TokenCounter) *assembler {
	return &assembler{
		cfg:           cfg,
		counter:       counter,
		overlapTokens: cfg.TargetTokens * cfg.OverlapPercent / 100,
	}
}

// assemble packs blocks greedily into chunks of at most MaxTokens.
func (a *assembler) assemble(blocks []semanticBlock) []pendingChunk {
	for _, b := range blocks {
		a.add(b.content, "\n\n", levelBlock, b.header)
	}
	a.finalize()
	a.mergeTrailing()
	return a.out
}

func (a *assembler) fits(pc piece) bool {
	return a.counter.Count(a.cur.textWith(pc)) <= a.cfg.MaxTokens
}

func (a *assembler) appendPiece(pc piece, section string) {
	if !a.cur.hasFresh() {
		a.cur.section = section
	}
	a.cur.parts = append(a.cur.parts, pc)
}

func (a *assembler) add(text, sep string, level int, section string) {
	if level < levelRune {
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return
	}
	pc := piece{text: text, sep: sep}

	if a.fits(pc) {
		a.appendPiece(pc, section)
		return
	}
	// Pieces that fit a fresh chunk start one; larger pieces are split and
	// fill the current chunk first.
	if level == levelRune || a.counter.Count(text) <= a.seededBudget() {
		a.finalize()
		if a.fits(pc) {
			a.appendPiece(pc, section)
			return
		}
		if level == levelRune {
			// Sized to fit alone; drop the seed when it does not fit with it.
			a.cur.seed = nil
			a.appendPiece(pc, section)
			return
		}
	}

	parts, nextSep := a.splitAt(text, level+1)
	if len(parts) <= 1 {
		a.add(text, sep, level+1, section)
		return
	}
	for i, part := range parts {
		s := nextSep
		if i == 0 {
			s = sep
		}
		a.add(part, s, level+1, section)
	}
}

// seededBudget is the token room of a freshly seeded chunk.
func (a *assembler) seededBudget() int {
	budget := a.cfg.MaxTokens - a.overlapTokens - 1
	if budget < 1 {
		budget = 1
	}
	return budget
}

func (a *assembler) finalize() {
	if !a.cur.hasFresh() {
		return
	}
	a.out = append(a.out, a.cur)
	a.cur = pendingChunk{seed: a.overlapTail(a.cur)}
}

// overlapTail takes trailing words of the fresh content up to overlapTokens,
// never half or more of those words.
func (a *assembler) overlapTail(p pendingChunk) []string {
	if a.overlapTokens <= 0 {
		return nil
	}
	words := strings.Fields(p.freshText())
	maxWords := (len(words) - 1) / 2
	if maxWords <= 0 {
		return nil
	}

	n := 0
	for n < maxWords {
		candidate := strings.Join(words[len(words)-n-1:], " ")
		if a.counter.Count(candidate) > a.overlapTokens {
			break
		}
		n++
	}
	if n == 0 {
		return nil
	}
	tail := make([]string, n)
	copy(tail, words[len(words)-n:])
	return tail
}

// mergeTrailing folds a short final chunk into its predecessor when the
// result still fits. The trailing seed is dropped since it repeats the
// predecessor's tail.
func (a *assembler) mergeTrailing() {
	if len(a.out) < 2 {
		return
	}
	last := a.out[len(a.out)-1]
	if a.counter.Count(last.text()) >= a.cfg.MinTokens {
		return
	}
	prev := a.out[len(a.out)-2]
	merged := pendingChunk{
		seed:    prev.seed,
		parts:   append(append([]piece(nil), prev.parts...), last.parts...),
		section: prev.section,
	}
	if a.counter.Count(merged.text()) > a.cfg.MaxTokens {
		return
	}
	a.out = append(a.out[:len(a.out)-2], merged)
}

// splitAt breaks text at the given granularity and returns the parts with
// the separator that rejoins them.
func (a *assembler) splitAt(text string, level int) ([]string, string) {
	switch level {
	case levelParagraph:
		return nonEmpty(strings.Split(text, "\n\n")), "\n\n"
	case levelLine:
		return nonEmpty(strings.Split(text, "\n")), "\n"
	case levelSentence:
		return splitSentences(text), " "
	case levelWord:
		return strings.Fields(text), " "
	default:
		return splitRunes(text, a.seededBudget(), a.counter), ""
	}
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if isSpace(runes[i+1]) {
				if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

// splitRunes hard-cuts a single oversized word into windows of at most
// budget tokens.
func splitRunes(text string, budget int, counter TokenCounter) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		n := len(runes)
		if limit := 4 * budget; n > limit {
			n = limit
		}
		for n > 1 && counter.Count(string(runes[:n])) > budget {
			n = n * 3 / 4
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
