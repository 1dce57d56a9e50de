package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Title      string         `json:"title"`
	RawContent string         `json:"raw_content,omitempty"`
	DocType    string         `json:"doc_type,omitempty"`
	Version    int            `json:"version"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Chunk is immutable once produced. Re-ingestion supersedes the whole set.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	RawContent string    `json:"raw_content"`
	Section    string    `json:"section"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
}

const DefaultSection = "General"

// ContextHeader is the deterministic prefix of every chunk's Content.
func ContextHeader(title, section string) string {
	return "Document: " + title + "\nSection: " + section + "\n\n"
}

type ChunkingConfig struct {
	TargetTokens     int `json:"target_tokens"`
	MaxTokens        int `json:"max_tokens"`
	MinTokens        int `json:"min_tokens"`
	OverlapPercent   int `json:"overlap_percent"`
	SmallBlockTokens int `json:"small_block_tokens"`
}

func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		TargetTokens:     350,
		MaxTokens:        500,
		MinTokens:        120,
		OverlapPercent:   15,
		SmallBlockTokens: 50,
	}
}

// WithDefaults fills zero fields from DefaultChunkingConfig. OverlapPercent 0
// disables overlap; only out of range values are replaced.
func (c ChunkingConfig) WithDefaults() ChunkingConfig {
	d := DefaultChunkingConfig()
	if c.TargetTokens <= 0 {
		c.TargetTokens = d.TargetTokens
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.MaxTokens < c.TargetTokens {
		c.MaxTokens = c.TargetTokens
	}
	if c.MinTokens <= 0 {
		c.MinTokens = d.MinTokens
	}
	if c.OverlapPercent < 0 || c.OverlapPercent >= 100 {
		c.OverlapPercent = d.OverlapPercent
	}
	if c.SmallBlockTokens <= 0 {
		c.SmallBlockTokens = d.SmallBlockTokens
	}
	return c
}
