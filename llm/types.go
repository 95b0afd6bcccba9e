package llm

import (
	"context"
	"strings"
)

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	// MessageRoleSystem is for system instructions.
	MessageRoleSystem MessageRole = "system"
	// MessageRoleUser is for user messages.
	MessageRoleUser MessageRole = "user"
	// MessageRoleAssistant is for assistant responses.
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatMessage represents a message in a chat conversation.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NewChatMessage creates a new chat message.
func NewChatMessage(role MessageRole, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return NewChatMessage(MessageRoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return NewChatMessage(MessageRoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return NewChatMessage(MessageRoleAssistant, content)
}

// Defaults for chat generation.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 300
)

// StreamChunk is one piece of a streamed answer. A chunk carrying Err is the
// last one on the channel and means the answer was cut short.
type StreamChunk struct {
	Delta string
	Err   error
}

// Collect drains a stream into one string. On a failed stream it returns the
// text received so far and the error.
func Collect(chunks <-chan StreamChunk) (string, error) {
	var b strings.Builder
	for c := range chunks {
		if c.Err != nil {
			return b.String(), c.Err
		}
		b.WriteString(c.Delta)
	}
	return b.String(), nil
}

// sendChunk delivers c unless ctx is done first.
func sendChunk(ctx context.Context, ch chan<- StreamChunk, c StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
