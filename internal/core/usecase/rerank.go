package usecase

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ranking"
	"github.com/relayos/knowledge-core/internal/core/safety"
)

const (
	rerankTemperature = 0.0
	rerankMaxTokens   = 60

	rerankOutcomeApplied  = "applied"
	rerankOutcomeFallback = "fallback"
	rerankOutcomeSkipped  = "skipped"
)

var rankNumber = regexp.MustCompile(`\d+`)

// rerankResults asks the model to order all candidates and keeps the top
// limit. A failed or unusable answer falls back to the incoming order.
// Reranked results get positional scores (n-i)/n; the previous score is
// kept in Metadata.FusedScore.
func (uc *RetrievalUseCase) rerankResults(
	ctx context.Context,
	req domain.SearchRequest,
	question string,
	results []domain.SearchResult,
	limit int,
) []domain.SearchResult {
	if uc.completer == nil {
		uc.telemetry.ObserveRerank(rerankOutcomeSkipped)
		return ranking.Trim(results, limit)
	}

	previews := make([]string, len(results))
	for i, r := range results {
		previews[i] = rerankPreview(r.Content, uc.cfg.RerankPreviewChars)
	}

	completion, err := uc.completer.Complete(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: rerankSystemPrompt},
		{Role: domain.RoleUser, Content: buildRerankPrompt(question, previews)},
	}, domain.CompletionOptions{Temperature: rerankTemperature, MaxTokens: rerankMaxTokens})
	if err != nil {
		uc.logger.Warn("rerank_failed", "error", err)
		uc.rerankFallback(ctx, req, "model_error")
		return ranking.Trim(results, limit)
	}

	order := parseRanking(completion.Content, len(results))
	if len(order) == 0 {
		uc.logger.Warn("rerank_unparsable", "response", safety.Truncate(completion.Content, 80))
		uc.rerankFallback(ctx, req, "unparsable_response")
		return ranking.Trim(results, limit)
	}

	uc.telemetry.ObserveRerank(rerankOutcomeApplied)
	return applyRanking(results, order, limit)
}

func (uc *RetrievalUseCase) rerankFallback(ctx context.Context, req domain.SearchRequest, reason string) {
	uc.telemetry.ObserveRerank(rerankOutcomeFallback)
	uc.audit.Log(ctx, domain.AuditEvent{
		OwnerID:        req.OwnerID,
		EventType:      domain.AuditRerankFallback,
		Payload:        map[string]any{"reason": reason},
		ConversationID: req.ConversationID,
		CorrelationID:  req.CorrelationID,
	})
}

// parseRanking extracts 1-based passage numbers, dropping out-of-range
// values and repeats. The result is 0-based.
func parseRanking(text string, n int) []int {
	seen := make(map[int]struct{}, n)
	var out []int
	for _, token := range rankNumber.FindAllString(text, -1) {
		v, err := strconv.Atoi(token)
		if err != nil || v < 1 || v > n {
			continue
		}
		idx := v - 1
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}

// applyRanking takes ranked candidates first, fills the quota from the
// rest in original order and assigns descending positional scores.
func applyRanking(results []domain.SearchResult, order []int, limit int) []domain.SearchResult {
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	used := make([]bool, len(results))
	picked := make([]domain.SearchResult, 0, limit)
	for _, idx := range order {
		if len(picked) == limit {
			break
		}
		picked = append(picked, results[idx])
		used[idx] = true
	}
	for i := range results {
		if len(picked) == limit {
			break
		}
		if !used[i] {
			picked = append(picked, results[i])
		}
	}

	n := float64(len(picked))
	for i := range picked {
		picked[i].Metadata.FusedScore = picked[i].Similarity
		picked[i].Metadata.Reranked = true
		picked[i].Similarity = (n - float64(i)) / n
	}
	return picked
}

func rerankPreview(content string, limit int) string {
	return safety.Truncate(strings.Join(strings.Fields(content), " "), limit)
}
