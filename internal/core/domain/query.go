package domain

type QueryType string

const (
	QueryFactual         QueryType = "factual"
	QueryProcedural      QueryType = "procedural"
	QueryTroubleshooting QueryType = "troubleshooting"
	QueryBilling         QueryType = "billing"
	QueryGeneral         QueryType = "general"
)

var preferredDocTypes = map[QueryType][]string{
	QueryFactual:         {"faq", "policy", "documentation"},
	QueryProcedural:      {"guide", "tutorial", "documentation", "how-to"},
	QueryTroubleshooting: {"troubleshooting", "faq", "guide"},
	QueryBilling:         {"billing", "policy", "faq"},
}

// PreferredDocTypes lists the document types boosted for this query type.
func (t QueryType) PreferredDocTypes() []string {
	return preferredDocTypes[t]
}

type ProcessedQuery struct {
	OriginalQuery  string    `json:"original_query"`
	RewrittenQuery string    `json:"rewritten_query"`
	QueryType      QueryType `json:"query_type"`
	Confidence     float64   `json:"confidence"`
	Skipped        bool      `json:"skipped"`
	Cached         bool      `json:"cached"`
	RewriteFailed  bool      `json:"rewrite_failed,omitempty"`
}

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

type CompletionOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type Completion struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason"`
}
