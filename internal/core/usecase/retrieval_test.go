package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ports"
)

func newRetrievalForTest(index *indexFake, queries *queryRewriterFake, completer *completerFake, audit *auditFake) *RetrievalUseCase {
	var rewriter ports.QueryRewriter
	if queries != nil {
		rewriter = queries
	}
	var model ports.Completer
	if completer != nil {
		model = completer
	}
	var sink ports.AuditSink
	if audit != nil {
		sink = audit
	}
	return NewRetrievalUseCase(&embedderFake{}, index, rewriter, model, sink, nil, nil, DefaultRetrievalConfig())
}

func hybridCandidates(n int) []domain.HybridCandidate {
	out := make([]domain.HybridCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.HybridCandidate{
			IndexCandidate: domain.IndexCandidate{
				ChunkID:    fmt.Sprintf("c%d", i),
				DocumentID: "doc-1",
				ChunkIndex: i,
				Content:    fmt.Sprintf("passage number %d", i),
			},
			SemanticRank: i + 1,
			KeywordRank:  i + 1,
			RRFScore:     2.0 / float64(60+i+1),
		})
	}
	return out
}

func chunkIDs(results []domain.SearchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ChunkID)
	}
	return ids
}

func sameIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSearchAppliesDocTypeBoost(t *testing.T) {
	index := &indexFake{similar: []domain.IndexCandidate{
		{ChunkID: "guide-chunk", DocumentID: "d1", Similarity: 0.80, DocType: "guide"},
		{ChunkID: "faq-chunk", DocumentID: "d2", Similarity: 0.78, DocType: "FAQ"},
	}}
	queries := &queryRewriterFake{result: domain.ProcessedQuery{
		RewrittenQuery: "what is the warranty period for laptops",
		QueryType:      domain.QueryFactual,
		Confidence:     0.7,
	}}
	uc := newRetrievalForTest(index, queries, nil, nil)

	resp := uc.Search(context.Background(), domain.SearchRequest{OwnerID: "tenant-a", Query: "warranty?"})
	if resp.Degraded {
		t.Fatalf("unexpected degraded response: %s", resp.DegradedReason)
	}
	if !sameIDs(chunkIDs(resp.Results), "faq-chunk", "guide-chunk") {
		t.Fatalf("unexpected order: %v", chunkIDs(resp.Results))
	}
	if math.Abs(resp.Results[0].Similarity-0.83) > 1e-9 {
		t.Fatalf("expected boosted similarity 0.83, got %v", resp.Results[0].Similarity)
	}
	if len(resp.Results[0].Metadata.Boosts) != 1 || resp.Results[0].Metadata.Boosts[0] != "doc_type" {
		t.Fatalf("expected doc_type boost marker, got %v", resp.Results[0].Metadata.Boosts)
	}
	if resp.Results[0].Metadata.SemanticSimilarity != 0.78 {
		t.Fatalf("expected raw similarity kept in metadata, got %v", resp.Results[0].Metadata.SemanticSimilarity)
	}
	if index.owner != "tenant-a" || index.limit != 5 || index.threshold != 0.2 {
		t.Fatalf("unexpected index call: owner=%q limit=%d threshold=%v", index.owner, index.limit, index.threshold)
	}
	if resp.Query.RewrittenQuery != "what is the warranty period for laptops" || queries.calls != 1 {
		t.Fatalf("expected processed query in response, got %+v", resp.Query)
	}
}

func TestHybridSearchAuditsRewriteFailure(t *testing.T) {
	audit := &auditFake{}
	processor := NewQueryProcessor(&completerFake{err: errors.New("provider down")}, nil, nil, nil)
	index := &indexFake{hybrid: hybridCandidates(3)}
	uc := NewRetrievalUseCase(&embedderFake{}, index, processor, nil, audit, nil, nil, DefaultRetrievalConfig())

	resp := uc.HybridSearch(context.Background(), domain.SearchRequest{
		OwnerID:        "tenant-a",
		Query:          "why was I charged twice",
		ConversationID: "conv-1",
		CorrelationID:  "corr-1",
	})
	if resp.Degraded {
		t.Fatalf("rewrite failure must not degrade search: %s", resp.DegradedReason)
	}
	if resp.Query.QueryType != domain.QueryGeneral || resp.Query.Confidence != 0.5 {
		t.Fatalf("unexpected fallback query: %+v", resp.Query)
	}
	events := audit.byType(domain.AuditRewriteError)
	if len(events) != 1 {
		t.Fatalf("expected one rewrite_error event, got %d", len(events))
	}
	ev := events[0]
	if ev.OwnerID != "tenant-a" || ev.ConversationID != "conv-1" || ev.CorrelationID != "corr-1" {
		t.Fatalf("unexpected audit event: %+v", ev)
	}
}

func TestSearchDegradesOnEmbeddingFailure(t *testing.T) {
	audit := &auditFake{}
	uc := NewRetrievalUseCase(&embedderFake{err: errors.New("connection refused")}, &indexFake{}, nil, nil, audit, nil, nil, DefaultRetrievalConfig())

	resp := uc.Search(context.Background(), domain.SearchRequest{OwnerID: "tenant-a", Query: "reset password", CorrelationID: "corr-1"})
	if !resp.Degraded || resp.DegradedReason != "search_error" {
		t.Fatalf("expected degraded search_error, got %+v", resp)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", resp.Results)
	}

	events := audit.byType(domain.AuditSearchError)
	if len(events) != 1 {
		t.Fatalf("expected one search_error audit event, got %d", len(events))
	}
	if events[0].Payload["stage"] != "embed" || events[0].Payload["mode"] != "vector" {
		t.Fatalf("unexpected payload: %+v", events[0].Payload)
	}
	if events[0].OwnerID != "tenant-a" || events[0].CorrelationID != "corr-1" {
		t.Fatalf("unexpected audit identity: %+v", events[0])
	}
}

func TestHybridSearchDegradesOnIndexFailure(t *testing.T) {
	audit := &auditFake{}
	index := &indexFake{err: domain.WrapError(domain.ErrTemporary, "hybrid search", errors.New("timeout"))}
	uc := newRetrievalForTest(index, nil, nil, audit)

	resp := uc.HybridSearch(context.Background(), domain.SearchRequest{OwnerID: "tenant-a", Query: "billing cycle"})
	if !resp.Degraded || len(resp.Results) != 0 {
		t.Fatalf("expected degraded empty response, got %+v", resp)
	}
	events := audit.byType(domain.AuditSearchError)
	if len(events) != 1 || events[0].Payload["temporary"] != true || events[0].Payload["stage"] != "hybrid_search" {
		t.Fatalf("unexpected audit events: %+v", audit.events)
	}
}

func TestSearchRejectsMissingOwnerOrQuery(t *testing.T) {
	embedder := &embedderFake{}
	uc := NewRetrievalUseCase(embedder, &indexFake{}, nil, nil, nil, nil, nil, DefaultRetrievalConfig())

	for _, req := range []domain.SearchRequest{
		{OwnerID: "", Query: "refunds"},
		{OwnerID: "tenant-a", Query: "   "},
	} {
		resp := uc.HybridSearch(context.Background(), req)
		if !resp.Degraded || resp.DegradedReason != "invalid_request" {
			t.Fatalf("expected invalid_request for %+v, got %+v", req, resp)
		}
	}
	if len(embedder.queries) != 0 {
		t.Fatalf("embedder must not be called for invalid requests")
	}
}

func TestHybridSearchCandidateLimit(t *testing.T) {
	cases := []struct {
		limit int
		want  int
	}{
		{limit: 3, want: 6},
		{limit: 8, want: 10},
		{limit: 0, want: 10},
	}
	for _, tc := range cases {
		index := &indexFake{}
		uc := newRetrievalForTest(index, nil, nil, nil)
		uc.HybridSearch(context.Background(), domain.SearchRequest{OwnerID: "o", Query: "q", Limit: tc.limit})
		if index.limit != tc.want {
			t.Fatalf("limit %d: expected %d candidates, got %d", tc.limit, tc.want, index.limit)
		}
		if index.rrfK != 60 {
			t.Fatalf("expected rrf k 60, got %d", index.rrfK)
		}
	}
}

func TestHybridSearchUsesRewrittenQueryForKeywords(t *testing.T) {
	index := &indexFake{}
	queries := &queryRewriterFake{result: domain.ProcessedQuery{RewrittenQuery: "refund policy returned items", QueryType: domain.QueryBilling}}
	uc := newRetrievalForTest(index, queries, nil, nil)

	uc.HybridSearch(context.Background(), domain.SearchRequest{OwnerID: "o", Query: "refnd?"})
	if index.queryText != "refund policy returned items" {
		t.Fatalf("expected rewritten query for keyword leg, got %q", index.queryText)
	}
}

func TestHybridSearchRecencyBoost(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	candidates := hybridCandidates(2)
	candidates[0].DocUpdatedAt = now.Add(-90 * 24 * time.Hour)
	candidates[1].DocUpdatedAt = now.Add(-2 * 24 * time.Hour)

	uc := newRetrievalForTest(&indexFake{hybrid: candidates}, nil, nil, nil)
	uc.now = func() time.Time { return now }

	resp := uc.HybridSearch(context.Background(), domain.SearchRequest{OwnerID: "o", Query: "q", SkipQueryProcessing: true})
	if !sameIDs(chunkIDs(resp.Results), "c1", "c0") {
		t.Fatalf("expected recent chunk first, got %v", chunkIDs(resp.Results))
	}
	top := resp.Results[0]
	if len(top.Metadata.Boosts) != 1 || top.Metadata.Boosts[0] != "recency" {
		t.Fatalf("expected recency boost marker, got %v", top.Metadata.Boosts)
	}
	if math.Abs(top.Metadata.RRFScore-2.0/62) > 1e-12 {
		t.Fatalf("expected fused score preserved in metadata, got %v", top.Metadata.RRFScore)
	}
}

func TestHybridSearchRerankReordersAndTrims(t *testing.T) {
	completer := &completerFake{responses: []string{"3,1,5,2,4"}}
	uc := newRetrievalForTest(&indexFake{hybrid: hybridCandidates(5)}, nil, completer, nil)

	resp := uc.HybridSearch(context.Background(), domain.SearchRequest{
		OwnerID:             "o",
		Query:               "how do refunds work",
		Limit:               3,
		SkipQueryProcessing: true,
	})
	if !sameIDs(chunkIDs(resp.Results), "c2", "c0", "c4") {
		t.Fatalf("unexpected rerank order: %v", chunkIDs(resp.Results))
	}
	wantScores := []float64{1, 2.0 / 3, 1.0 / 3}
	for i, r := range resp.Results {
		if math.Abs(r.Similarity-wantScores[i]) > 1e-9 {
			t.Fatalf("result %d: expected score %v, got %v", i, wantScores[i], r.Similarity)
		}
		if !r.Metadata.Reranked || r.Metadata.FusedScore == 0 {
			t.Fatalf("result %d: expected rerank metadata, got %+v", i, r.Metadata)
		}
	}
	if completer.calls != 1 {
		t.Fatalf("expected a single rerank call, got %d", completer.calls)
	}
	if opts := completer.options[0]; opts.Temperature != 0 || opts.MaxTokens != 60 {
		t.Fatalf("unexpected rerank options: %+v", opts)
	}
}

func TestHybridSearchRerankFallback(t *testing.T) {
	cases := []struct {
		name      string
		completer *completerFake
		reason    string
	}{
		{name: "model error", completer: &completerFake{err: errors.New("503")}, reason: "model_error"},
		{name: "unparsable", completer: &completerFake{responses: []string{"I cannot rank these."}}, reason: "unparsable_response"},
		{name: "out of range", completer: &completerFake{responses: []string{"0, 9, 12"}}, reason: "unparsable_response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			audit := &auditFake{}
			uc := newRetrievalForTest(&indexFake{hybrid: hybridCandidates(5)}, nil, tc.completer, audit)

			resp := uc.HybridSearch(context.Background(), domain.SearchRequest{OwnerID: "o", Query: "q", Limit: 3, SkipQueryProcessing: true})
			if resp.Degraded {
				t.Fatalf("rerank failure must not degrade the search")
			}
			if !sameIDs(chunkIDs(resp.Results), "c0", "c1", "c2") {
				t.Fatalf("expected fused order, got %v", chunkIDs(resp.Results))
			}
			if resp.Results[0].Metadata.Reranked {
				t.Fatalf("fallback results must not be marked reranked")
			}
			events := audit.byType(domain.AuditRerankFallback)
			if len(events) != 1 || events[0].Payload["reason"] != tc.reason {
				t.Fatalf("expected rerank_fallback %s, got %+v", tc.reason, audit.events)
			}
		})
	}
}

func TestHybridSearchRerankFillsFromFusedOrder(t *testing.T) {
	completer := &completerFake{responses: []string{"Most relevant: 4"}}
	uc := newRetrievalForTest(&indexFake{hybrid: hybridCandidates(5)}, nil, completer, nil)

	resp := uc.HybridSearch(context.Background(), domain.SearchRequest{OwnerID: "o", Query: "q", Limit: 3, SkipQueryProcessing: true})
	if !sameIDs(chunkIDs(resp.Results), "c3", "c0", "c1") {
		t.Fatalf("unexpected order: %v", chunkIDs(resp.Results))
	}
}

func TestHybridSearchSkipsRerankForFewCandidates(t *testing.T) {
	completer := &completerFake{responses: []string{"2,1"}}
	uc := newRetrievalForTest(&indexFake{hybrid: hybridCandidates(2)}, nil, completer, nil)

	resp := uc.HybridSearch(context.Background(), domain.SearchRequest{OwnerID: "o", Query: "q", SkipQueryProcessing: true})
	if completer.calls != 0 {
		t.Fatalf("expected no rerank call, got %d", completer.calls)
	}
	if !sameIDs(chunkIDs(resp.Results), "c0", "c1") {
		t.Fatalf("unexpected order: %v", chunkIDs(resp.Results))
	}
}

func TestParseRanking(t *testing.T) {
	got := parseRanking("Ranking: 2, 2, 7, 1", 3)
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("unexpected parse: %v", got)
	}
	if got := parseRanking("", 3); len(got) != 0 {
		t.Fatalf("expected empty parse, got %v", got)
	}
}
