package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ranking"
	"github.com/relayos/knowledge-core/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "text"
)

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

// Client stores chunks as points with a named dense vector and a hashed
// BM25 sparse vector. Every query is filtered by owner_id.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return NewWithOptions(baseURL, collection, Options{})
}

func NewWithOptions(baseURL, collection string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// ReplaceChunks upserts the chunks of the current document version and then
// removes points left over from older versions.
func (c *Client) ReplaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant replace chunks", errors.New("document is nil"))
	}
	if len(chunks) == 0 {
		return c.deleteStale(ctx, doc)
	}
	if len(chunks[0].Embedding) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant replace chunks", errors.New("chunk has no embedding"))
	}

	if err := c.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for _, ch := range chunks {
		points = append(points, point{
			ID: ch.ID,
			Vector: map[string]any{
				denseVectorName:  ch.Embedding,
				sparseVectorName: encodeSparseDocument(ch.RawContent, doc.Title+" "+ch.Section),
			},
			Payload: map[string]any{
				"owner_id":       doc.OwnerID,
				"doc_id":         doc.ID,
				"version":        doc.Version,
				"title":          doc.Title,
				"doc_type":       doc.DocType,
				"section":        ch.Section,
				"chunk_index":    ch.Index,
				"text":           ch.Content,
				"token_count":    ch.TokenCount,
				"doc_created_at": formatTime(doc.CreatedAt),
				"doc_updated_at": formatTime(doc.UpdatedAt),
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	if err := c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return err
	}
	return c.deleteStale(ctx, doc)
}

func (c *Client) deleteStale(ctx context.Context, doc *domain.Document) error {
	body := map[string]any{
		"filter": map[string]any{
			"must":     []any{matchValue("doc_id", doc.ID)},
			"must_not": []any{matchValue("version", doc.Version)},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	return c.do(ctx, "delete_stale", http.MethodPost, path, body, nil)
}

type searchHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) SimilaritySearch(
	ctx context.Context,
	ownerID string,
	vector []float32,
	limit int,
	threshold float64,
) ([]domain.IndexCandidate, error) {
	body := map[string]any{
		"vector":       map[string]any{"name": denseVectorName, "vector": vector},
		"limit":        limit,
		"with_payload": true,
		"filter":       ownerFilter(ownerID),
	}
	if threshold > 0 {
		body["score_threshold"] = threshold
	}
	return c.search(ctx, "search_dense", body)
}

// HybridSearch runs a dense and a sparse leg of limit candidates each and
// fuses them with reciprocal rank fusion.
func (c *Client) HybridSearch(
	ctx context.Context,
	ownerID string,
	queryText string,
	vector []float32,
	limit int,
	rrfK int,
) ([]domain.HybridCandidate, error) {
	semantic, err := c.search(ctx, "search_dense", map[string]any{
		"vector":       map[string]any{"name": denseVectorName, "vector": vector},
		"limit":        limit,
		"with_payload": true,
		"filter":       ownerFilter(ownerID),
	})
	if err != nil {
		return nil, err
	}

	var lexical []domain.IndexCandidate
	if sparse := encodeSparseQuery(queryText); len(sparse.Indices) > 0 {
		lexical, err = c.search(ctx, "search_sparse", map[string]any{
			"vector":       map[string]any{"name": sparseVectorName, "vector": sparse},
			"limit":        limit,
			"with_payload": true,
			"filter":       ownerFilter(ownerID),
		})
		if err != nil {
			return nil, err
		}
	}

	return ranking.Trim(ranking.FuseRRF(semantic, lexical, rrfK), limit), nil
}

func (c *Client) search(ctx context.Context, operation string, body map[string]any) ([]domain.IndexCandidate, error) {
	var resp struct {
		Result []searchHit `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, operation, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.IndexCandidate, 0, len(resp.Result))
	for _, hit := range resp.Result {
		out = append(out, candidateFromHit(hit))
	}
	return out, nil
}

func candidateFromHit(hit searchHit) domain.IndexCandidate {
	return domain.IndexCandidate{
		ChunkID:      fmt.Sprintf("%v", hit.ID),
		DocumentID:   getStringPayload(hit.Payload, "doc_id"),
		ChunkIndex:   getIntPayload(hit.Payload, "chunk_index"),
		Content:      getStringPayload(hit.Payload, "text"),
		Title:        getStringPayload(hit.Payload, "title"),
		Section:      getStringPayload(hit.Payload, "section"),
		DocType:      getStringPayload(hit.Payload, "doc_type"),
		Similarity:   hit.Score,
		DocCreatedAt: getTimePayload(hit.Payload, "doc_created_at"),
		DocUpdatedAt: getTimePayload(hit.Payload, "doc_updated_at"),
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{"size": vectorSize, "distance": "Cosine"},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}
	err := c.do(ctx, "ensure_collection", http.MethodPut, "/collections/"+c.collection, body, nil)
	var statusErr *HTTPStatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict:
		// Already exists.
	case err != nil:
		return err
	}

	for _, field := range []string{"owner_id", "doc_id"} {
		index := map[string]any{"field_name": field, "field_schema": "keyword"}
		path := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
		if err := c.do(ctx, "ensure_index", http.MethodPut, path, index, nil); err != nil {
			return err
		}
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	run := func(callCtx context.Context) error {
		return c.send(callCtx, operation, method, path, payload, out)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant."+operation, run, classifyQdrantError)
	} else {
		err = run(ctx)
	}
	if err == nil {
		return nil
	}
	if class := classifyQdrantError(err); class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "qdrant "+operation, err)
	}
	return err
}

func (c *Client) send(ctx context.Context, operation, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrParse, "qdrant "+operation, err)
	}
	return nil
}

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func ownerFilter(ownerID string) map[string]any {
	return map[string]any{"must": []any{matchValue("owner_id", ownerID)}}
}

func matchValue(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func getTimePayload(payload map[string]any, key string) time.Time {
	s := getStringPayload(payload, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
