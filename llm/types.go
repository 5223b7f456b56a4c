// Package llm provides a provider-agnostic client for blocking chat
// completions. A Client pairs a retry policy with a ProviderAdapter; the
// gollm-backed adapter covers the real providers and CompletionFunc lets
// tests stand in a function for the model.
package llm

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single text turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes one blocking completion call.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`

	// JSONOnly hints that the response must be a single JSON object.
	// Adapters without a native response-format control translate this into
	// a system prompt directive.
	JSONOnly bool `json:"json_only,omitempty"`
}

// Response is the result of a completion call.
type Response struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Text  string `json:"text"`
}
