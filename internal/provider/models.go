package provider

import "time"

// Endpoint describes one configured AI model provider. Providers are
// opaque request/response services; the client never interprets anything
// beyond the chat-completions wire shape.
type Endpoint struct {
	ID          string
	DisplayName string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
}

// Result is the canonical outcome of one provider call. OK is false for
// provider-side failure, in which case Content still carries a
// human-readable error string so downstream consumers render something
// instead of silently dropping the provider.
type Result struct {
	ModelID        string
	OK             bool
	Content        string
	Title          string
	Snippet        string
	ResponseTimeMs int
}

// Request models (OpenAI-style chat completions)
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response models
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
