package usecase

import (
	"context"
	"sync"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

type completerFake struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	messages  [][]domain.ChatMessage
	options   []domain.CompletionOptions
}

func (f *completerFake) Complete(_ context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (domain.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, messages)
	f.options = append(f.options, opts)
	if f.err != nil {
		return domain.Completion{}, f.err
	}
	content := ""
	if len(f.responses) > 0 {
		content = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	return domain.Completion{Content: content, Model: "fake", FinishReason: "stop"}, nil
}

type embedderFake struct {
	err     error
	queries []string
	batches [][]string
	shortBy int
}

func (f *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *embedderFake) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts)-f.shortBy)
	for i := range out {
		out[i] = []float32{float32(i), 0.5}
	}
	return out, nil
}

type indexFake struct {
	similar   []domain.IndexCandidate
	hybrid    []domain.HybridCandidate
	err       error
	owner     string
	limit     int
	threshold float64
	rrfK      int
	queryText string
}

func (f *indexFake) SimilaritySearch(_ context.Context, ownerID string, _ []float32, limit int, threshold float64) ([]domain.IndexCandidate, error) {
	f.owner, f.limit, f.threshold = ownerID, limit, threshold
	if f.err != nil {
		return nil, f.err
	}
	return f.similar, nil
}

func (f *indexFake) HybridSearch(_ context.Context, ownerID, queryText string, _ []float32, limit, rrfK int) ([]domain.HybridCandidate, error) {
	f.owner, f.queryText, f.limit, f.rrfK = ownerID, queryText, limit, rrfK
	if f.err != nil {
		return nil, f.err
	}
	return f.hybrid, nil
}

type auditFake struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (f *auditFake) Log(_ context.Context, event domain.AuditEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *auditFake) byType(eventType string) []domain.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type mapCache struct {
	items map[string]domain.ProcessedQuery
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]domain.ProcessedQuery{}}
}

func (c *mapCache) Get(key string) (domain.ProcessedQuery, bool) {
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(key string, value domain.ProcessedQuery) {
	c.items[key] = value
}

type queryRewriterFake struct {
	result domain.ProcessedQuery
	calls  int
}

func (f *queryRewriterFake) ProcessQuery(_ context.Context, query string) domain.ProcessedQuery {
	f.calls++
	r := f.result
	r.OriginalQuery = query
	if r.RewrittenQuery == "" {
		r.RewrittenQuery = query
	}
	return r
}
