package service

import "context"

// Chat message roles, mirroring the upstream chat completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a generative call.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}

// Completion is the generative response with token accounting.
type Completion struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompletionClient defines the interface for the generative service.
type CompletionClient interface {
	GenerateCompletion(ctx context.Context, req CompletionRequest) (*Completion, error)
}
