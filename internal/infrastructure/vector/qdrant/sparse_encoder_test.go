package qdrant

import (
	"fmt"
	"strings"
	"testing"
)

func TestEncodeSparseQueryIsDeterministicAndSorted(t *testing.T) {
	v1 := encodeSparseQuery("Refund window for order ORD-1042")
	v2 := encodeSparseQuery("Refund window for order ORD-1042")
	if len(v1.Indices) == 0 || len(v1.Indices) != len(v2.Indices) {
		t.Fatalf("unexpected sizes: %d vs %d", len(v1.Indices), len(v2.Indices))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] || v1.Values[i] != v2.Values[i] {
			t.Fatalf("vectors differ at %d", i)
		}
		if i > 0 && v1.Indices[i-1] >= v1.Indices[i] {
			t.Fatalf("indices not strictly sorted at %d", i)
		}
	}
}

func TestEncodeSparseQueryIgnoresPunctuationOnly(t *testing.T) {
	if v := encodeSparseQuery("?!... --- ***"); len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatalf("expected empty sparse vector, got %+v", v)
	}
}

func TestEncodeSparseDocumentBoostsHeadingTerms(t *testing.T) {
	plain := encodeSparseDocument("shipping takes five days", "")
	boosted := encodeSparseDocument("shipping takes five days", "Shipping")

	idx := hashToken("shipping")
	weight := func(v sparseVector) float32 {
		for i, candidate := range v.Indices {
			if candidate == idx {
				return v.Values[i]
			}
		}
		return 0
	}
	if weight(boosted) <= weight(plain) {
		t.Fatalf("expected heading boost: plain=%f boosted=%f", weight(plain), weight(boosted))
	}
}

func TestTokenizeAlphaNumSplitsOnSeparators(t *testing.T) {
	tokens := tokenizeAlphaNum("SKU_88-b Wi-Fi router")
	want := []string{"sku", "88", "b", "wi", "fi", "router"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, tokens)
		}
	}
}

func TestEncodeSparseQueryDropsStopwords(t *testing.T) {
	withStopwords := encodeSparseQuery("what is the refund policy")
	bare := encodeSparseQuery("refund policy")
	if len(withStopwords.Indices) != len(bare.Indices) {
		t.Fatalf("stopwords should not produce terms: %v vs %v", withStopwords.Indices, bare.Indices)
	}
}

func TestEncodeSparseDocumentCapsTerms(t *testing.T) {
	var b strings.Builder
	for i := 0; i < maxSparseTerms+50; i++ {
		fmt.Fprintf(&b, "term%d ", i)
	}
	b.WriteString("refund refund refund")
	v := encodeSparseDocument(b.String(), "")
	if len(v.Indices) != maxSparseTerms {
		t.Fatalf("expected %d terms, got %d", maxSparseTerms, len(v.Indices))
	}
	found := false
	for _, idx := range v.Indices {
		if idx == hashToken("refund") {
			found = true
		}
	}
	if !found {
		t.Fatalf("heaviest term must survive the cap")
	}
}
