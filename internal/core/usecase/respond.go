package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ports"
)

const (
	BlockedInputMessage = "I can't help with that request. Please ask a question about our products or services."

	answerTemperature = 0.3
	answerMaxTokens   = 800
)

// RespondUseCase runs the full message path: input guard, hybrid
// retrieval, generation and output guard. A degraded search still yields
// an answer, generated without context.
type RespondUseCase struct {
	input     ports.InputGuard
	searcher  ports.Searcher
	completer ports.Completer
	output    ports.OutputGuard
	policy    domain.GuardrailPolicy
	logger    *slog.Logger
}

func NewRespondUseCase(
	input ports.InputGuard,
	searcher ports.Searcher,
	completer ports.Completer,
	output ports.OutputGuard,
	policy domain.GuardrailPolicy,
	logger *slog.Logger,
) *RespondUseCase {
	return &RespondUseCase{
		input:     input,
		searcher:  searcher,
		completer: completer,
		output:    output,
		policy:    policy,
		logger:    loggerOrDefault(logger),
	}
}

func (uc *RespondUseCase) Respond(ctx context.Context, req domain.SearchRequest) (*domain.Answer, error) {
	guarded := uc.input.ProcessInput(ctx, req.Query, req.OwnerID, req.ConversationID)
	if !guarded.Allowed {
		return &domain.Answer{Text: BlockedInputMessage, Sources: []domain.SearchResult{}, Blocked: true}, nil
	}

	question := guarded.SanitizedContent
	req.Query = question
	found := uc.searcher.HybridSearch(ctx, req)
	if found.Degraded {
		uc.logger.Info("answer_without_grounding", "reason", found.DegradedReason, "correlation_id", req.CorrelationID)
	}

	completion, err := uc.completer.Complete(ctx, buildAnswerMessages(uc.policy, question, found.Results, found.Degraded),
		domain.CompletionOptions{Temperature: answerTemperature, MaxTokens: answerMaxTokens})
	if err != nil {
		return nil, domain.WrapError(domain.ErrExternalService, "generate answer", fmt.Errorf("complete: %w", err))
	}

	checked := uc.output.ProcessOutput(ctx, completion.Content, req.OwnerID, req.ConversationID)
	return &domain.Answer{
		Text:           checked.Content,
		Sources:        found.Results,
		Grounded:       len(found.Results) > 0,
		UsedFallback:   checked.UseFallback,
		DegradedReason: found.DegradedReason,
	}, nil
}
