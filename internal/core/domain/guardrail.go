package domain

type GuardAction string

const (
	ActionAllow    GuardAction = "allow"
	ActionBlock    GuardAction = "block"
	ActionSanitize GuardAction = "sanitize"
)

type GuardrailResult struct {
	Passed          bool        `json:"passed"`
	Action          GuardAction `json:"action"`
	Reason          string      `json:"reason,omitempty"`
	DetectedThreats []string    `json:"detected_threats,omitempty"`
}

type InputGuardResult struct {
	Allowed          bool            `json:"allowed"`
	SanitizedContent string          `json:"sanitized_content"`
	PIIDetected      bool            `json:"pii_detected"`
	PIITypes         []string        `json:"pii_types,omitempty"`
	Blocked          bool            `json:"blocked,omitempty"`
	BlockReason      string          `json:"block_reason,omitempty"`
	Decision         GuardrailResult `json:"decision"`
}

type OutputGuardResult struct {
	Content     string          `json:"content"`
	PIIScrubbed bool            `json:"pii_scrubbed"`
	PIITypes    []string        `json:"pii_types,omitempty"`
	Validated   bool            `json:"validated"`
	UseFallback bool            `json:"use_fallback"`
	Decision    GuardrailResult `json:"decision"`
}

// PIIPatternSpec is an operator-supplied redaction rule.
type PIIPatternSpec struct {
	Type        string `json:"type" yaml:"type"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

// GuardrailPolicy describes the assistant persona that output is validated against.
type GuardrailPolicy struct {
	AssistantName   string           `json:"assistant_name" yaml:"assistant_name"`
	Persona         string           `json:"persona" yaml:"persona"`
	AllowedTopics   []string         `json:"allowed_topics" yaml:"allowed_topics"`
	FallbackMessage string           `json:"fallback_message" yaml:"fallback_message"`
	ExtraPII        []PIIPatternSpec `json:"extra_pii" yaml:"extra_pii"`
}

const DefaultFallbackMessage = "I'm sorry, I can only help with questions about our products and services. Could you rephrase your question?"

func DefaultGuardrailPolicy() GuardrailPolicy {
	return GuardrailPolicy{
		AssistantName:   "Support Assistant",
		Persona:         "a helpful, professional customer support assistant that answers questions using the organization's knowledge base",
		FallbackMessage: DefaultFallbackMessage,
	}
}
