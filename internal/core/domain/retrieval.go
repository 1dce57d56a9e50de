package domain

import "time"

// IndexCandidate is a passage returned by the vector/lexical index.
type IndexCandidate struct {
	ChunkID      string    `json:"chunk_id"`
	DocumentID   string    `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	Title        string    `json:"title,omitempty"`
	Section      string    `json:"section,omitempty"`
	DocType      string    `json:"doc_type,omitempty"`
	Similarity   float64   `json:"similarity"`
	DocCreatedAt time.Time `json:"doc_created_at"`
	DocUpdatedAt time.Time `json:"doc_updated_at"`
}

// HybridCandidate carries the per-signal scores behind a fused rank.
// KeywordRank is 1-based; zero means the lexical signal did not match.
type HybridCandidate struct {
	IndexCandidate
	SemanticSimilarity float64 `json:"semantic_similarity"`
	KeywordRank        int     `json:"keyword_rank"`
	SemanticRank       int     `json:"semantic_rank"`
	RRFScore           float64 `json:"rrf_score"`
}

type ResultMetadata struct {
	Title              string    `json:"title,omitempty"`
	Section            string    `json:"section,omitempty"`
	DocType            string    `json:"doc_type,omitempty"`
	ChunkIndex         int       `json:"chunk_index"`
	SemanticSimilarity float64   `json:"semantic_similarity,omitempty"`
	KeywordRank        int       `json:"keyword_rank,omitempty"`
	RRFScore           float64   `json:"rrf_score,omitempty"`
	FusedScore         float64   `json:"fused_score,omitempty"`
	Reranked           bool      `json:"reranked,omitempty"`
	Boosts             []string  `json:"boosts,omitempty"`
	DocCreatedAt       time.Time `json:"doc_created_at"`
	DocUpdatedAt       time.Time `json:"doc_updated_at"`
}

// SearchResult.Similarity is the last-applied composite score.
type SearchResult struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Metadata   ResultMetadata `json:"metadata"`
}

type SearchRequest struct {
	OwnerID             string `json:"owner_id"`
	Query               string `json:"query"`
	Limit               int    `json:"limit"`
	SkipQueryProcessing bool   `json:"skip_query_processing,omitempty"`
	ConversationID      string `json:"conversation_id,omitempty"`
	CorrelationID       string `json:"correlation_id,omitempty"`
}

// SearchResponse is always valid. Degraded reports that a provider failed
// and Results should be treated as missing grounding.
type SearchResponse struct {
	Results        []SearchResult `json:"results"`
	Query          ProcessedQuery `json:"query"`
	Degraded       bool           `json:"degraded,omitempty"`
	DegradedReason string         `json:"degraded_reason,omitempty"`
}

type Answer struct {
	Text           string         `json:"text"`
	Sources        []SearchResult `json:"sources"`
	Grounded       bool           `json:"grounded"`
	Blocked        bool           `json:"blocked,omitempty"`
	UsedFallback   bool           `json:"used_fallback,omitempty"`
	DegradedReason string         `json:"degraded_reason,omitempty"`
}
