// Package provider abstracts the language-model completion service behind a
// narrow text-generation contract.
package provider

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks the provider for a single text completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is the provider's answer: plain text plus accounting.
type Completion struct {
	Text  string  `json:"text"`
	Model string  `json:"model"`
	Usage Usage   `json:"usage"`
	Cost  float64 `json:"cost"`
}

// CompletionProvider is the external completion capability. Implementations
// must honor ctx cancellation and carry their own request timeout.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
