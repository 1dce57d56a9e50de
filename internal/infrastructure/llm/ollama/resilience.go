package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/infrastructure/resilience"
)

// Statuses Ollama returns while a model is loading or the host is saturated.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	var statusErr *HTTPStatusError
	var netErr net.Error

	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.As(err, &statusErr):
		// 4xx other than 408/429 is a caller problem and must not trip the breaker.
		retryable := retryableStatuses[statusErr.StatusCode]
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	case errors.As(err, &netErr):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// classifyResult maps a final call error onto a domain kind: retryable
// failures are temporary, decode failures stay parse errors, the rest is
// an external service failure.
func classifyResult(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrParse):
		return err
	case classifyOllamaError(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.WrapError(domain.ErrExternalService, operation, err)
	}
}
