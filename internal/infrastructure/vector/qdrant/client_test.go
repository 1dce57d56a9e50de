package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

func testDocument() *domain.Document {
	return &domain.Document{
		ID:        "doc-1",
		OwnerID:   "tenant-a",
		Title:     "Return Policy",
		DocType:   "policy",
		Version:   2,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 2, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testChunks() []domain.Chunk {
	return []domain.Chunk{
		{ID: "11111111-1111-1111-1111-111111111111", Index: 0, Content: "Document: Return Policy\nSection: Refunds\n\nRefunds take 5 days.", RawContent: "Refunds take 5 days.", Section: "Refunds", Embedding: []float32{0.1, 0.2}},
		{ID: "22222222-2222-2222-2222-222222222222", Index: 1, Content: "Document: Return Policy\nSection: Exchanges\n\nExchanges are free.", RawContent: "Exchanges are free.", Section: "Exchanges", Embedding: []float32{0.3, 0.4}},
	}
}

func TestReplaceChunksEnsuresCollectionOnceAndDeletesStaleVersions(t *testing.T) {
	var ensureCalls int32
	var mu sync.Mutex
	var upserted []point
	var deleteFilter map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/index":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			var body struct {
				Points []point `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			upserted = append(upserted, body.Points...)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/delete":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			deleteFilter, _ = body["filter"].(map[string]any)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	for i := 0; i < 2; i++ {
		if err := client.ReplaceChunks(context.Background(), testDocument(), testChunks()); err != nil {
			t.Fatalf("ReplaceChunks() error = %v", err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(upserted) != 4 {
		t.Fatalf("expected 4 upserted points, got %d", len(upserted))
	}
	payload := upserted[0].Payload
	if payload["owner_id"] != "tenant-a" || payload["doc_type"] != "policy" || payload["section"] != "Refunds" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload["doc_updated_at"] != "2026-02-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp payload: %v", payload["doc_updated_at"])
	}
	if _, ok := upserted[0].Vector["text"]; !ok {
		t.Fatalf("expected sparse vector on point")
	}
	mustNot, _ := deleteFilter["must_not"].([]any)
	if len(mustNot) != 1 {
		t.Fatalf("expected version exclusion in delete filter, got %+v", deleteFilter)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/chunks" {
			http.Error(w, "wrong vector config", http.StatusBadRequest)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	err := New(server.URL, "chunks").ReplaceChunks(context.Background(), testDocument(), testChunks())
	if err == nil || !strings.Contains(err.Error(), "wrong vector config") {
		t.Fatalf("expected error to include body, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("400 must not be temporary")
	}
}

func TestSimilaritySearchFiltersByOwner(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":[{"id":"c-1","score":0.91,"payload":{"doc_id":"doc-1","chunk_index":3,"text":"hello","title":"FAQ","section":"General","doc_type":"faq","doc_updated_at":"2026-02-02T03:04:05Z"}}]}`))
	}))
	defer server.Close()

	got, err := New(server.URL, "chunks").SimilaritySearch(context.Background(), "tenant-a", []float32{0.1}, 5, 0.2)
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "c-1" || got[0].ChunkIndex != 3 || got[0].DocType != "faq" || got[0].Similarity != 0.91 {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if got[0].DocUpdatedAt.IsZero() {
		t.Fatalf("expected parsed doc timestamp")
	}
	if captured["score_threshold"] != 0.2 {
		t.Fatalf("expected score threshold, got %v", captured["score_threshold"])
	}
	raw, _ := json.Marshal(captured["filter"])
	if !strings.Contains(string(raw), `"owner_id"`) || !strings.Contains(string(raw), `"tenant-a"`) {
		t.Fatalf("expected owner filter, got %s", raw)
	}
}

func TestHybridSearchFusesDenseAndSparseLegs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vector struct {
				Name string `json:"name"`
			} `json:"vector"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body.Vector.Name {
		case "dense":
			_, _ = w.Write([]byte(`{"result":[
				{"id":"a","score":0.9,"payload":{"doc_id":"d1","chunk_index":0,"text":"A"}},
				{"id":"b","score":0.8,"payload":{"doc_id":"d1","chunk_index":1,"text":"B"}}]}`))
		case "text":
			_, _ = w.Write([]byte(`{"result":[
				{"id":"b","score":7.1,"payload":{"doc_id":"d1","chunk_index":1,"text":"B"}},
				{"id":"c","score":3.2,"payload":{"doc_id":"d2","chunk_index":0,"text":"C"}}]}`))
		default:
			http.Error(w, "unexpected vector", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	got, err := New(server.URL, "chunks").HybridSearch(context.Background(), "tenant-a", "exchange policy", []float32{0.1}, 3, 60)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if len(got) != 3 || got[0].ChunkID != "b" {
		t.Fatalf("expected chunk in both legs first, got %+v", got)
	}
	if got[0].SemanticRank != 2 || got[0].KeywordRank != 1 || got[0].SemanticSimilarity != 0.8 {
		t.Fatalf("unexpected rank metadata: %+v", got[0])
	}
}
