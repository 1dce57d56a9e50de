package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ports"
	"github.com/relayos/knowledge-core/internal/core/safety"
)

const (
	guardStageInput  = "input"
	guardStageOutput = "output"

	guardMethodHeuristic = "heuristic"
	guardMethodModel     = "model"
	guardMethodPattern   = "pattern"

	guardTemperature = 0.0
	guardMaxTokens   = 5
)

var errUnparsableVerdict = errors.New("unparsable verdict")

type GuardrailConfig struct {
	ModelCheckMinChars int
	PreviewRunes       int
	ModelChecks        bool
}

func DefaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{ModelCheckMinChars: 50, PreviewRunes: 100, ModelChecks: true}
}

// GuardrailUseCase screens user input and model output. Heuristic
// injection hits block without a model call; model checks fail open.
type GuardrailUseCase struct {
	completer ports.Completer
	scrubber  *safety.Scrubber
	audit     ports.AuditSink
	telemetry ports.Telemetry
	logger    *slog.Logger
	policy    domain.GuardrailPolicy
	cfg       GuardrailConfig
}

func NewGuardrailUseCase(
	completer ports.Completer,
	scrubber *safety.Scrubber,
	audit ports.AuditSink,
	telemetry ports.Telemetry,
	logger *slog.Logger,
	policy domain.GuardrailPolicy,
	cfg GuardrailConfig,
) *GuardrailUseCase {
	if scrubber == nil {
		scrubber = safety.NewScrubber()
	}
	if cfg.PreviewRunes <= 0 {
		cfg.PreviewRunes = 100
	}
	if cfg.ModelCheckMinChars <= 0 {
		cfg.ModelCheckMinChars = 50
	}
	if strings.TrimSpace(policy.FallbackMessage) == "" {
		policy.FallbackMessage = domain.DefaultFallbackMessage
	}
	return &GuardrailUseCase{
		completer: completer,
		scrubber:  scrubber,
		audit:     auditOrNoop(audit),
		telemetry: telemetryOrNoop(telemetry),
		logger:    loggerOrDefault(logger),
		policy:    policy,
		cfg:       cfg,
	}
}

func (uc *GuardrailUseCase) ProcessInput(ctx context.Context, text, ownerID, conversationID string) domain.InputGuardResult {
	if matches := safety.DetectInjection(text); len(matches) > 0 {
		categories := safety.Categories(matches)
		uc.record(ctx, ownerID, conversationID, domain.AuditInjectionBlocked, map[string]any{
			"stage":      guardStageInput,
			"method":     guardMethodHeuristic,
			"pattern":    matches[0].Pattern,
			"categories": categories,
			"preview":    uc.preview(text),
		})
		uc.telemetry.ObserveGuardrail(guardStageInput, domain.ActionBlock, guardMethodHeuristic)
		return blockedInput("prompt_injection_detected", categories)
	}

	if uc.shouldRunModelGate(text) {
		unsafe, err := uc.classifyInput(ctx, text)
		switch {
		case err != nil:
			uc.checkFailed(ctx, ownerID, conversationID, guardStageInput, text, err)
		case unsafe:
			uc.record(ctx, ownerID, conversationID, domain.AuditInjectionBlocked, map[string]any{
				"stage":   guardStageInput,
				"method":  guardMethodModel,
				"summary": "model classified input as UNSAFE",
				"preview": uc.preview(text),
			})
			uc.telemetry.ObserveGuardrail(guardStageInput, domain.ActionBlock, guardMethodModel)
			return blockedInput("model_flagged_unsafe", []string{"model_unsafe"})
		}
	}

	scrub := uc.scrubber.Scrub(text)
	action := domain.ActionAllow
	if scrub.HasPII {
		action = domain.ActionSanitize
		uc.record(ctx, ownerID, conversationID, domain.AuditPIIDetected, map[string]any{
			"stage":       guardStageInput,
			"method":      guardMethodPattern,
			"types":       scrub.DetectedTypes,
			"match_count": scrub.MatchCount,
			"preview":     safety.Truncate(scrub.SanitizedContent, uc.cfg.PreviewRunes),
		})
	}
	uc.telemetry.ObserveGuardrail(guardStageInput, action, guardMethodPattern)

	return domain.InputGuardResult{
		Allowed:          true,
		SanitizedContent: scrub.SanitizedContent,
		PIIDetected:      scrub.HasPII,
		PIITypes:         scrub.DetectedTypes,
		Decision: domain.GuardrailResult{
			Passed:          true,
			Action:          action,
			DetectedThreats: scrub.DetectedTypes,
		},
	}
}

func (uc *GuardrailUseCase) ProcessOutput(ctx context.Context, text, ownerID, conversationID string) domain.OutputGuardResult {
	scrub := uc.scrubber.Scrub(text)
	content := scrub.SanitizedContent
	action := domain.ActionAllow
	if scrub.HasPII {
		action = domain.ActionSanitize
		uc.record(ctx, ownerID, conversationID, domain.AuditPIIDetected, map[string]any{
			"stage":       guardStageOutput,
			"method":      guardMethodPattern,
			"types":       scrub.DetectedTypes,
			"match_count": scrub.MatchCount,
			"preview":     safety.Truncate(content, uc.cfg.PreviewRunes),
		})
	}

	result := domain.OutputGuardResult{
		Content:     content,
		PIIScrubbed: scrub.HasPII,
		PIITypes:    scrub.DetectedTypes,
		Validated:   true,
		Decision:    domain.GuardrailResult{Passed: true, Action: action, DetectedThreats: scrub.DetectedTypes},
	}

	if !uc.cfg.ModelChecks || uc.completer == nil || strings.TrimSpace(content) == "" {
		uc.telemetry.ObserveGuardrail(guardStageOutput, action, guardMethodPattern)
		return result
	}

	valid, err := uc.validateOutput(ctx, content)
	if err != nil {
		uc.checkFailed(ctx, ownerID, conversationID, guardStageOutput, content, err)
		return result
	}
	if !valid {
		uc.record(ctx, ownerID, conversationID, domain.AuditOutputInvalid, map[string]any{
			"stage":   guardStageOutput,
			"method":  guardMethodModel,
			"summary": "model classified reply as INVALID",
			"preview": safety.Truncate(content, uc.cfg.PreviewRunes),
		})
		uc.telemetry.ObserveGuardrail(guardStageOutput, domain.ActionBlock, guardMethodModel)
		result.Content = uc.policy.FallbackMessage
		result.Validated = false
		result.UseFallback = true
		result.Decision = domain.GuardrailResult{
			Passed:          false,
			Action:          domain.ActionBlock,
			Reason:          "output_policy_violation",
			DetectedThreats: []string{"policy_violation"},
		}
		return result
	}

	uc.telemetry.ObserveGuardrail(guardStageOutput, action, guardMethodModel)
	return result
}

func (uc *GuardrailUseCase) shouldRunModelGate(text string) bool {
	if !uc.cfg.ModelChecks || uc.completer == nil {
		return false
	}
	return utf8.RuneCountInString(text) > uc.cfg.ModelCheckMinChars && safety.HasSuspiciousIndicator(text)
}

// classifyInput reports true for UNSAFE. UNSAFE is checked first because
// it contains SAFE.
func (uc *GuardrailUseCase) classifyInput(ctx context.Context, text string) (bool, error) {
	verdict, err := uc.verdict(ctx, inputGateSystemPrompt, text)
	if err != nil {
		return false, err
	}
	switch {
	case strings.Contains(verdict, "UNSAFE"):
		return true, nil
	case strings.Contains(verdict, "SAFE"):
		return false, nil
	default:
		return false, domain.WrapError(domain.ErrParse, "classify input", errUnparsableVerdict)
	}
}

// validateOutput reports true for VALID. INVALID is checked first because
// it contains VALID.
func (uc *GuardrailUseCase) validateOutput(ctx context.Context, text string) (bool, error) {
	verdict, err := uc.verdict(ctx, buildOutputValidationPrompt(uc.policy), text)
	if err != nil {
		return true, err
	}
	switch {
	case strings.Contains(verdict, "INVALID"):
		return false, nil
	case strings.Contains(verdict, "VALID"):
		return true, nil
	default:
		return true, domain.WrapError(domain.ErrParse, "validate output", errUnparsableVerdict)
	}
}

func (uc *GuardrailUseCase) verdict(ctx context.Context, system, text string) (string, error) {
	completion, err := uc.completer.Complete(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: text},
	}, domain.CompletionOptions{Temperature: guardTemperature, MaxTokens: guardMaxTokens})
	if err != nil {
		return "", domain.WrapError(domain.ErrExternalService, "guardrail classify", err)
	}
	return strings.ToUpper(strings.TrimSpace(completion.Content)), nil
}

// checkFailed records a model check that could not complete; the caller
// proceeds as if the check passed.
func (uc *GuardrailUseCase) checkFailed(ctx context.Context, ownerID, conversationID, stage, text string, err error) {
	uc.logger.Warn("guardrail_check_failed", "stage", stage, "error", err)
	uc.record(ctx, ownerID, conversationID, domain.AuditGuardrailCheckFailed, map[string]any{
		"stage":   stage,
		"method":  guardMethodModel,
		"parse":   domain.IsKind(err, domain.ErrParse),
		"preview": uc.preview(text),
	})
	uc.telemetry.ObserveGuardrail(stage, domain.ActionAllow, "model_error")
}

func (uc *GuardrailUseCase) record(ctx context.Context, ownerID, conversationID, eventType string, payload map[string]any) {
	uc.audit.Log(ctx, domain.AuditEvent{
		OwnerID:        ownerID,
		EventType:      eventType,
		Payload:        payload,
		ConversationID: conversationID,
	})
}

func (uc *GuardrailUseCase) preview(text string) string {
	return uc.scrubber.Preview(text, uc.cfg.PreviewRunes)
}

func blockedInput(reason string, threats []string) domain.InputGuardResult {
	return domain.InputGuardResult{
		Allowed:     false,
		Blocked:     true,
		BlockReason: reason,
		Decision: domain.GuardrailResult{
			Passed:          false,
			Action:          domain.ActionBlock,
			Reason:          reason,
			DetectedThreats: threats,
		},
	}
}
