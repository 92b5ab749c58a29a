package service

import "context"

// ChatMessage is one turn in an upstream chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a single non-streaming completion call.
// Temperature is always explicit: repair attempts depend on sending 0.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatClient is the upstream transport shared by every council stage.
// Implementations must pass the model id through unchanged so routed
// endpoints can dispatch on the provider prefix.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}
