package chunking

import (
	"strings"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

// Chunker splits documents into token-bounded, section-labelled passages.
// It is stateless and safe for concurrent use.
type Chunker struct {
	counter TokenCounter
}

func NewChunker(counter TokenCounter) *Chunker {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Chunker{counter: counter}
}

// Chunk returns the ordered chunks of content. Chunk IDs and document IDs
// are left for the caller to assign. Empty input yields no chunks.
func (c *Chunker) Chunk(content, title string, cfg domain.ChunkingConfig) []domain.Chunk {
	cfg = cfg.WithDefaults()
	planned := c.plan(content, cfg)
	if len(planned) == 0 {
		return nil
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}

	out := make([]domain.Chunk, 0, len(planned))
	for i, p := range planned {
		raw := p.text()
		section := p.section
		if section == "" {
			section = domain.DefaultSection
		}
		out = append(out, domain.Chunk{
			Index:      i,
			Content:    domain.ContextHeader(title, section) + raw,
			RawContent: raw,
			Section:    section,
			TokenCount: c.counter.Count(raw),
		})
	}
	return out
}

func (c *Chunker) plan(content string, cfg domain.ChunkingConfig) []pendingChunk {
	text := normalize(content)
	if text == "" {
		return nil
	}
	blocks := splitBlocks(text, c.counter, cfg.SmallBlockTokens)
	return newAssembler(cfg, c.counter).assemble(blocks)
}
