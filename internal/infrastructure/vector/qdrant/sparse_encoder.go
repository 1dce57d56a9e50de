package qdrant

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// sparseVector is the lexical leg of a point: hashed terms weighted with
// BM25 term-frequency saturation. Qdrant applies IDF server-side.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	bm25K1         = 1.2
	headingWeight  = 1.5
	maxSparseTerms = 256
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"do": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"my": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "what": {}, "with": {},
}

func encodeSparseDocument(text, heading string) sparseVector {
	tf := make(map[uint32]float64, 64)
	addTerms(tf, tokenizeAlphaNum(text), 1.0)
	addTerms(tf, tokenizeAlphaNum(heading), headingWeight)
	return saturate(tf)
}

func encodeSparseQuery(query string) sparseVector {
	tf := make(map[uint32]float64, 16)
	addTerms(tf, tokenizeAlphaNum(query), 1.0)
	return saturate(tf)
}

func addTerms(tf map[uint32]float64, tokens []string, weight float64) {
	for _, token := range tokens {
		if _, stop := stopwords[token]; stop {
			continue
		}
		tf[hashToken(token)] += weight
	}
}

// saturate keeps the heaviest maxSparseTerms terms and returns them sorted
// by index, which Qdrant requires.
func saturate(tf map[uint32]float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	if len(indices) > maxSparseTerms {
		sort.Slice(indices, func(i, j int) bool {
			if tf[indices[i]] != tf[indices[j]] {
				return tf[indices[i]] > tf[indices[j]]
			}
			return indices[i] < indices[j]
		})
		indices = indices[:maxSparseTerms]
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	out := sparseVector{Indices: indices, Values: make([]float32, len(indices))}
	for i, idx := range indices {
		f := tf[idx]
		out.Values[i] = float32(f * (bm25K1 + 1) / (f + bm25K1))
	}
	return out
}

// hashToken never returns 0 so an index is always a real term.
func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

func tokenizeAlphaNum(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
