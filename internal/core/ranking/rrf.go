package ranking

import (
	"fmt"
	"sort"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

// DefaultK is the RRF smoothing constant.
const DefaultK = 60

type fused struct {
	candidate domain.HybridCandidate
	bestRank  int
}

// FuseRRF merges a semantic and a lexical ranking with Reciprocal Rank
// Fusion: score = sum over lists of 1/(k+rank), rank 1-based. Ties break on
// best single-list rank, then document id, then chunk index.
func FuseRRF(semantic, lexical []domain.IndexCandidate, k int) []domain.HybridCandidate {
	if k <= 0 {
		k = DefaultK
	}

	acc := make(map[string]*fused, len(semantic)+len(lexical))
	order := make([]string, 0, len(semantic)+len(lexical))
	add := func(list []domain.IndexCandidate, isSemantic bool) {
		seen := make(map[string]struct{}, len(list))
		for i, c := range list {
			key := CandidateKey(c)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			rank := len(seen)

			entry, ok := acc[key]
			if !ok {
				entry = &fused{candidate: domain.HybridCandidate{IndexCandidate: c}, bestRank: rank}
				acc[key] = entry
				order = append(order, key)
			} else {
				entry.candidate.IndexCandidate = preferRicher(entry.candidate.IndexCandidate, c)
			}
			if rank < entry.bestRank {
				entry.bestRank = rank
			}
			entry.candidate.RRFScore += 1.0 / float64(k+rank)
			if isSemantic {
				entry.candidate.SemanticRank = rank
				entry.candidate.SemanticSimilarity = list[i].Similarity
			} else {
				entry.candidate.KeywordRank = rank
			}
		}
	}
	add(semantic, true)
	add(lexical, false)

	items := make([]*fused, 0, len(order))
	for _, key := range order {
		items = append(items, acc[key])
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.candidate.RRFScore != b.candidate.RRFScore {
			return a.candidate.RRFScore > b.candidate.RRFScore
		}
		if a.bestRank != b.bestRank {
			return a.bestRank < b.bestRank
		}
		if a.candidate.DocumentID != b.candidate.DocumentID {
			return a.candidate.DocumentID < b.candidate.DocumentID
		}
		return a.candidate.ChunkIndex < b.candidate.ChunkIndex
	})

	out := make([]domain.HybridCandidate, 0, len(items))
	for _, item := range items {
		c := item.candidate
		c.Similarity = c.RRFScore
		out = append(out, c)
	}
	return out
}

// Trim returns at most limit elements; limit <= 0 keeps everything.
func Trim[T any](items []T, limit int) []T {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[:limit]
}

// CandidateKey identifies a chunk across result lists.
func CandidateKey(c domain.IndexCandidate) string {
	if c.ChunkID != "" {
		return c.ChunkID
	}
	return fmt.Sprintf("%s:%d", c.DocumentID, c.ChunkIndex)
}

func preferRicher(current, candidate domain.IndexCandidate) domain.IndexCandidate {
	if current.Content == "" && candidate.Content != "" {
		current.Content = candidate.Content
	}
	if current.Title == "" {
		current.Title = candidate.Title
	}
	if current.Section == "" {
		current.Section = candidate.Section
	}
	if current.DocType == "" {
		current.DocType = candidate.DocType
	}
	if current.DocCreatedAt.IsZero() {
		current.DocCreatedAt = candidate.DocCreatedAt
	}
	if current.DocUpdatedAt.IsZero() {
		current.DocUpdatedAt = candidate.DocUpdatedAt
	}
	return current
}
