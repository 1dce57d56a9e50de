package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

func cand(id string, sim float64) domain.IndexCandidate {
	return domain.IndexCandidate{ChunkID: id, DocumentID: "doc-" + id, Content: "text " + id, Similarity: sim}
}

func TestFuseRRFBothFirstDominates(t *testing.T) {
	semantic := []domain.IndexCandidate{cand("a", 0.9), cand("b", 0.8), cand("c", 0.7)}
	lexical := []domain.IndexCandidate{cand("a", 0), cand("d", 0), cand("b", 0)}

	out := FuseRRF(semantic, lexical, DefaultK)
	require.Len(t, out, 4)
	assert.Equal(t, "a", out[0].ChunkID)
	assert.InDelta(t, 2.0/61.0, out[0].RRFScore, 1e-12)
	assert.Equal(t, 1, out[0].SemanticRank)
	assert.Equal(t, 1, out[0].KeywordRank)
	assert.InDelta(t, 0.9, out[0].SemanticSimilarity, 1e-12)
	assert.Equal(t, out[0].RRFScore, out[0].Similarity)
}

func TestFuseRRFBothFirstBeatsSingleFirst(t *testing.T) {
	// Second case: x is only second in both lists and still beats y and z,
	// which each lead a single list.
	for _, tc := range []struct {
		semantic, lexical []domain.IndexCandidate
		top               string
	}{
		{[]domain.IndexCandidate{cand("x", 0.5)}, []domain.IndexCandidate{cand("x", 0), cand("y", 0)}, "x"},
		{[]domain.IndexCandidate{cand("y", 0.5), cand("x", 0.4)}, []domain.IndexCandidate{cand("z", 0), cand("x", 0)}, "x"},
	} {
		out := FuseRRF(tc.semantic, tc.lexical, 60)
		require.NotEmpty(t, out)
		assert.Equal(t, tc.top, out[0].ChunkID)
	}
}

func TestFuseRRFDeterministicTieBreak(t *testing.T) {
	// b is first lexically, a is first semantically: equal score.
	semantic := []domain.IndexCandidate{cand("b", 0.5)}
	lexical := []domain.IndexCandidate{cand("a", 0)}

	out := FuseRRF(semantic, lexical, 60)
	require.Len(t, out, 2)
	assert.Equal(t, "doc-a", out[0].DocumentID)
	assert.Equal(t, "doc-b", out[1].DocumentID)
	assert.Equal(t, 0, out[0].SemanticRank)
	assert.Equal(t, 1, out[0].KeywordRank)
}

func TestFuseRRFDefaultsKAndSkipsDuplicates(t *testing.T) {
	semantic := []domain.IndexCandidate{cand("a", 0.9), cand("a", 0.8), cand("b", 0.7)}
	out := FuseRRF(semantic, nil, 0)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.0/61.0, out[0].RRFScore, 1e-12)
	assert.InDelta(t, 1.0/62.0, out[1].RRFScore, 1e-12)
}

func TestFuseRRFKeysByDocumentAndIndexWithoutChunkID(t *testing.T) {
	semantic := []domain.IndexCandidate{{DocumentID: "d1", ChunkIndex: 2}}
	lexical := []domain.IndexCandidate{{DocumentID: "d1", ChunkIndex: 2, Title: "Return Policy"}}

	out := FuseRRF(semantic, lexical, 60)
	require.Len(t, out, 1)
	assert.Equal(t, "Return Policy", out[0].Title)
}

func TestTrim(t *testing.T) {
	assert.Equal(t, []int{1, 2}, Trim([]int{1, 2, 3}, 2))
	assert.Equal(t, []int{1, 2, 3}, Trim([]int{1, 2, 3}, 0))
	assert.Equal(t, []int{1}, Trim([]int{1}, 5))
}
