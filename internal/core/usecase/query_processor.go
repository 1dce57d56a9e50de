package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ports"
)

const (
	rewriteTemperature = 0.1
	rewriteMaxTokens   = 100
	skipMaxWords       = 3
)

var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(hi|hello|hey|howdy|yo|hiya)( there| all| everyone)?$`),
	regexp.MustCompile(`^good (morning|afternoon|evening|day)$`),
	regexp.MustCompile(`^(thanks|thank you|thx|ty|cheers|much appreciated)( a lot| so much| again)?$`),
	regexp.MustCompile(`^(ok|okay|k|cool|great|nice|perfect|awesome|alright|got it|sounds good|sure|yes|no|yep|nope)$`),
	regexp.MustCompile(`^(bye|goodbye|bye bye|see you|see ya|later|take care)$`),
}

// QueryProcessor rewrites and classifies user queries. Results are cached
// by normalized text; failures and skipped queries are not cached.
type QueryProcessor struct {
	completer ports.Completer
	cache     ports.QueryCache
	telemetry ports.Telemetry
	logger    *slog.Logger
}

func NewQueryProcessor(
	completer ports.Completer,
	cache ports.QueryCache,
	telemetry ports.Telemetry,
	logger *slog.Logger,
) *QueryProcessor {
	return &QueryProcessor{
		completer: completer,
		cache:     cache,
		telemetry: telemetryOrNoop(telemetry),
		logger:    loggerOrDefault(logger),
	}
}

func (p *QueryProcessor) ProcessQuery(ctx context.Context, query string) domain.ProcessedQuery {
	if isSkippableQuery(query) {
		return domain.ProcessedQuery{
			OriginalQuery:  query,
			RewrittenQuery: query,
			QueryType:      domain.QueryGeneral,
			Confidence:     1.0,
			Skipped:        true,
		}
	}

	fallback := domain.ProcessedQuery{
		OriginalQuery:  query,
		RewrittenQuery: query,
		QueryType:      domain.QueryGeneral,
		Confidence:     0.5,
	}
	if strings.TrimSpace(query) == "" || p.completer == nil {
		return fallback
	}

	key := NormalizeQueryKey(query)
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			p.telemetry.ObserveQueryCache(true)
			cached.OriginalQuery = query
			cached.Cached = true
			return cached
		}
		p.telemetry.ObserveQueryCache(false)
	}

	rewritten, err := p.rewrite(ctx, query)
	if err != nil {
		p.logger.Warn("query_rewrite_failed", "error", err)
		fallback.RewriteFailed = true
		return fallback
	}

	queryType, confidence := classifyQuery(rewritten)
	result := domain.ProcessedQuery{
		OriginalQuery:  query,
		RewrittenQuery: rewritten,
		QueryType:      queryType,
		Confidence:     confidence,
	}
	if p.cache != nil {
		p.cache.Set(key, result)
	}
	return result
}

func (p *QueryProcessor) rewrite(ctx context.Context, query string) (string, error) {
	completion, err := p.completer.Complete(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: rewriteSystemPrompt},
		{Role: domain.RoleUser, Content: query},
	}, domain.CompletionOptions{Temperature: rewriteTemperature, MaxTokens: rewriteMaxTokens})
	if err != nil {
		return "", domain.WrapError(domain.ErrExternalService, "rewrite query", err)
	}
	if rewritten := firstLine(completion.Content); rewritten != "" {
		return rewritten, nil
	}
	return query, nil
}

// firstLine returns the first non-empty line with wrapping quotes and a
// leading label removed.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i := strings.Index(line, ":"); i > 0 && strings.Contains(strings.ToLower(line[:i]), "query") {
			line = strings.TrimSpace(line[i+1:])
		}
		return strings.TrimSpace(strings.Trim(line, "\"'`“”"))
	}
	return ""
}

// NormalizeQueryKey lower-cases and collapses whitespace.
func NormalizeQueryKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func isSkippableQuery(query string) bool {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, query)
	words := strings.Fields(normalized)
	if len(words) == 0 || len(words) > skipMaxWords {
		return false
	}
	joined := strings.Join(words, " ")
	for _, re := range skipPatterns {
		if re.MatchString(joined) {
			return true
		}
	}
	return false
}
