package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/safety"
)

// LoadGuardrailPolicy reads the persona/topic policy. An empty path yields
// the built-in default policy.
func LoadGuardrailPolicy(path string) (domain.GuardrailPolicy, error) {
	policy := domain.DefaultGuardrailPolicy()
	path = strings.TrimSpace(path)
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.GuardrailPolicy{}, domain.WrapError(domain.ErrConfiguration, "read guardrail policy", err)
	}
	return ParseGuardrailPolicy(raw)
}

// ParseGuardrailPolicy overlays the YAML document on the default policy.
func ParseGuardrailPolicy(raw []byte) (domain.GuardrailPolicy, error) {
	policy := domain.DefaultGuardrailPolicy()
	if len(bytes.TrimSpace(raw)) == 0 {
		return policy, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&policy); err != nil {
		return domain.GuardrailPolicy{}, domain.WrapError(domain.ErrConfiguration, "parse guardrail policy", err)
	}

	policy.AssistantName = strings.TrimSpace(policy.AssistantName)
	policy.Persona = strings.TrimSpace(policy.Persona)
	policy.FallbackMessage = strings.TrimSpace(policy.FallbackMessage)
	if policy.FallbackMessage == "" {
		policy.FallbackMessage = domain.DefaultFallbackMessage
	}
	topics := policy.AllowedTopics[:0]
	for _, topic := range policy.AllowedTopics {
		if t := strings.TrimSpace(topic); t != "" {
			topics = append(topics, t)
		}
	}
	policy.AllowedTopics = topics

	if _, err := CompileExtraPII(policy); err != nil {
		return domain.GuardrailPolicy{}, err
	}
	return policy, nil
}

// CompileExtraPII turns the policy's operator patterns into scrubber rules.
func CompileExtraPII(policy domain.GuardrailPolicy) ([]safety.PIIPattern, error) {
	out := make([]safety.PIIPattern, 0, len(policy.ExtraPII))
	for i, rule := range policy.ExtraPII {
		pattern, err := safety.CompilePattern(rule.Type, rule.Pattern, rule.Replacement)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, fmt.Sprintf("extra_pii[%d]", i), err)
		}
		out = append(out, pattern)
	}
	return out, nil
}
