package usecase

import (
	"strings"
	"unicode"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

type queryRule struct {
	queryType domain.QueryType
	keywords  []string
}

// Checked in order; the first type with any keyword hit wins.
var queryRules = []queryRule{
	{domain.QueryTroubleshooting, []string{
		"error", "not working", "doesn't work", "does not work", "broken", "issue", "problem",
		"fail", "failed", "failing", "crash", "bug", "can't", "cannot", "unable", "stuck", "troubleshoot",
	}},
	{domain.QueryBilling, []string{
		"bill", "billing", "billed", "invoice", "charge", "charged", "payment", "pay", "refund",
		"price", "pricing", "cost", "subscription", "credit card", "receipt", "fee", "fees",
	}},
	{domain.QueryProcedural, []string{
		"how do i", "how to", "how can i", "steps", "step by step", "guide", "set up", "setup",
		"configure", "install", "enable", "disable", "change", "reset", "update", "create",
	}},
	{domain.QueryFactual, []string{
		"what is", "what are", "what's", "who", "when", "where", "which", "is there", "are there",
		"define", "definition", "policy", "explain", "does",
	}},
}

// classifyQuery maps a query to a type with a heuristic confidence:
// 0.7 for one keyword hit plus 0.1 per extra hit, capped at 0.9.
func classifyQuery(query string) (domain.QueryType, float64) {
	padded := " " + normalizeForKeywords(query) + " "
	for _, rule := range queryRules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := 0.7 + 0.1*float64(hits-1)
		if confidence > 0.9 {
			confidence = 0.9
		}
		return rule.queryType, confidence
	}
	return domain.QueryGeneral, 0.6
}

func normalizeForKeywords(s string) string {
	s = strings.ReplaceAll(s, "’", "'")
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
