package llm

import "context"

// LLM is the interface for interacting with Large Language Models.
type LLM interface {
	// Complete generates a completion for a given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	// Chat generates a response for a list of chat messages.
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
	// Stream generates a streaming completion for a given prompt.
	Stream(ctx context.Context, prompt string) (<-chan StreamChunk, error)
}

// StreamingChat is implemented by models that can stream a chat response.
type StreamingChat interface {
	LLM
	StreamChat(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error)
}
