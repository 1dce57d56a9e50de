package safety

import (
	"regexp"
	"strings"
)

type ThreatCategory string

const (
	ThreatInstructionOverride ThreatCategory = "instruction_override"
	ThreatJailbreak           ThreatCategory = "jailbreak"
	ThreatPromptExtraction    ThreatCategory = "system_prompt_extraction"
	ThreatRoleManipulation    ThreatCategory = "role_manipulation"
	ThreatEncodedPayload      ThreatCategory = "encoded_payload"
	ThreatDelimiterTokens     ThreatCategory = "delimiter_tokens"
)

type injectionSignature struct {
	category ThreatCategory
	expr     *regexp.Regexp
}

// InjectionMatch is a single heuristic hit.
type InjectionMatch struct {
	Category ThreatCategory `json:"category"`
	Pattern  string         `json:"pattern"`
}

func sig(category ThreatCategory, expr string) injectionSignature {
	return injectionSignature{category: category, expr: regexp.MustCompile(expr)}
}

var injectionSignatures = []injectionSignature{
	sig(ThreatInstructionOverride, `(?i)\b(ignore|disregard|forget|override|bypass)\s+(all\s+|any\s+|the\s+|your\s+)?(previous|prior|above|earlier|preceding|system)\s+(instructions?|prompts?|rules|directions?|guidelines?|commands?)`),
	sig(ThreatInstructionOverride, `(?i)\bforget\s+(everything|all\s+previous|what\s+you\s+(were\s+told|learned))`),
	sig(ThreatInstructionOverride, `(?i)\b(new|updated)\s+instructions?\s*:`),
	sig(ThreatInstructionOverride, `(?i)\bstart\s+over\s+with\s+new\s+instructions?`),

	sig(ThreatJailbreak, `(?i)\bDAN\s+mode\b`),
	sig(ThreatJailbreak, `(?i)\bdo\s+anything\s+now\b`),
	sig(ThreatJailbreak, `(?i)\bjailbreak(ed|ing)?\b`),
	sig(ThreatJailbreak, `(?i)\b(developer|unrestricted|god|evil)\s+mode\b`),
	sig(ThreatJailbreak, `(?i)\bwithout\s+(any\s+)?(ethical|moral|safety)\s+(restrictions?|limitations?|filters?|guidelines?)`),

	sig(ThreatPromptExtraction, `(?i)\b(reveal|show|print|repeat|display|output|leak)\s+(me\s+)?(your|the)\s+(system|original|initial|hidden|secret)\s+(prompt|instructions?|message)`),
	sig(ThreatPromptExtraction, `(?i)\bwhat\s+(is|are|was|were)\s+(your|the)\s+(system|original|initial)\s+(prompt|instructions?)`),

	sig(ThreatRoleManipulation, `(?i)\byou\s+are\s+now\s+(a|an|the|my|in)\b`),
	sig(ThreatRoleManipulation, `(?i)\bfrom\s+now\s+on,?\s+you\s+(are|will|must)\b`),
	sig(ThreatRoleManipulation, `(?i)\bpretend\s+(to\s+be|you\s+are|that\s+you\s+are)\b`),
	sig(ThreatRoleManipulation, `(?i)\b(assume|take\s+on)\s+the\s+(role|identity|persona)\s+of\b`),
	sig(ThreatRoleManipulation, `(?i)\broleplay\s+as\b`),

	sig(ThreatEncodedPayload, `(?i)\bbase64\s*[:=]?\s*[A-Za-z0-9+/]{20,}={0,2}`),
	sig(ThreatEncodedPayload, `(?i)\bhex\s*[:=]\s*[0-9a-f]{20,}`),
	sig(ThreatEncodedPayload, `(?:\\x[0-9a-fA-F]{2}){8,}`),
	sig(ThreatEncodedPayload, `(?:\\u[0-9a-fA-F]{4}){6,}`),

	sig(ThreatDelimiterTokens, `(?i)\[/?(SYSTEM|INST|USER|ASSISTANT)\]`),
	sig(ThreatDelimiterTokens, `<\|(system|user|assistant|im_start|im_end|end|endoftext)\|>`),
	sig(ThreatDelimiterTokens, `(?im)^\s*###\s*(system|instruction|assistant)\b`),
	sig(ThreatDelimiterTokens, `(?i)<<\s*SYS\s*>>`),
}

// DetectInjection returns every heuristic signature that matches text.
func DetectInjection(text string) []InjectionMatch {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []InjectionMatch
	for _, s := range injectionSignatures {
		if s.expr.MatchString(text) {
			out = append(out, InjectionMatch{Category: s.category, Pattern: s.expr.String()})
		}
	}
	return out
}

// Categories collapses matches to their distinct categories in match order.
func Categories(matches []InjectionMatch) []string {
	var out []string
	for _, m := range matches {
		out = appendUnique(out, string(m.Category))
	}
	return out
}

var suspiciousIndicators = []string{
	"instruction", "system", "prompt", "ignore", "forget", "disregard",
	"pretend", "roleplay", "role play", "bypass", "override", "rules",
	"restriction", "hypothetical", "admin", "developer", "confidential",
	"secret", "unfiltered", "persona",
}

// HasSuspiciousIndicator is a broad, low-precision screen that decides
// whether the model gatekeeper is worth calling.
func HasSuspiciousIndicator(text string) bool {
	lower := strings.ToLower(text)
	for _, token := range suspiciousIndicators {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
