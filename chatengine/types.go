// Package chatengine answers questions about indexed call records in a
// multi-turn conversation.
package chatengine

import (
	"context"
	"errors"
	"strings"

	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/schema"
)

var (
	// ErrNoLLM is returned when the engine has no model to call.
	ErrNoLLM = errors.New("chat engine: LLM not configured")
	// ErrNoRetriever is returned when a context engine has no retriever.
	ErrNoRetriever = errors.New("chat engine: retriever not configured")
)

// ChatResponse is one assistant turn.
type ChatResponse struct {
	// Response is the text response.
	Response string
	// SourceNodes are the chunks the answer was grounded on.
	SourceNodes []schema.NodeWithScore
	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// NewChatResponse creates a new ChatResponse.
func NewChatResponse(response string) *ChatResponse {
	return &ChatResponse{
		Response:    response,
		SourceNodes: []schema.NodeWithScore{},
		Metadata:    make(map[string]interface{}),
	}
}

func (r *ChatResponse) String() string {
	return r.Response
}

// StreamingChatResponse delivers the answer token by token. The turn is
// written to history after the channel is drained, and only if the stream
// completed without an error chunk.
type StreamingChatResponse struct {
	// ResponseChan carries the answer; a chunk with Err set ends it early.
	ResponseChan <-chan llm.StreamChunk
	// SourceNodes are the chunks the answer was grounded on.
	SourceNodes []schema.NodeWithScore

	done         bool
	err          error
	fullResponse strings.Builder
}

// NewStreamingChatResponse creates a new StreamingChatResponse.
func NewStreamingChatResponse(responseChan <-chan llm.StreamChunk) *StreamingChatResponse {
	return &StreamingChatResponse{
		ResponseChan: responseChan,
		SourceNodes:  []schema.NodeWithScore{},
	}
}

// Response returns the text accumulated by Consume.
func (r *StreamingChatResponse) Response() string {
	return r.fullResponse.String()
}

// IsDone returns whether streaming is complete.
func (r *StreamingChatResponse) IsDone() bool {
	return r.done
}

// Err returns the error that ended the stream, if any, once it is consumed.
func (r *StreamingChatResponse) Err() error {
	return r.err
}

// Consume reads the whole stream and returns the text received along with
// the error that cut it short, if any.
func (r *StreamingChatResponse) Consume() (string, error) {
	for c := range r.ResponseChan {
		if c.Err != nil {
			r.err = c.Err
			continue
		}
		r.fullResponse.WriteString(c.Delta)
	}
	r.done = true
	return r.fullResponse.String(), r.err
}

// ChatEngine is the interface for chat engines.
type ChatEngine interface {
	// Chat sends a message and returns a response.
	Chat(ctx context.Context, message string) (*ChatResponse, error)

	// StreamChat sends a message and returns a streaming response.
	StreamChat(ctx context.Context, message string) (*StreamingChatResponse, error)

	// Reset clears the conversation state.
	Reset(ctx context.Context) error

	// ChatHistory returns the current chat history.
	ChatHistory(ctx context.Context) ([]llm.ChatMessage, error)
}

// windowedMemory is implemented by memories that trim to a token budget.
type windowedMemory interface {
	GetWithInitialTokenCount(ctx context.Context, input string, initialTokenCount int) ([]llm.ChatMessage, error)
}

// streamChat streams when the model supports it and otherwise sends the
// whole answer as a single token.
func streamChat(ctx context.Context, model llm.LLM, messages []llm.ChatMessage) (<-chan llm.StreamChunk, error) {
	if s, ok := model.(llm.StreamingChat); ok {
		return s.StreamChat(ctx, messages)
	}
	resp, err := model.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Delta: resp}
	close(ch)
	return ch, nil
}

// relay forwards chunks to out and returns the answer text. ok is false when
// the stream failed or ctx ended before the answer was complete.
func relay(ctx context.Context, chunks <-chan llm.StreamChunk, out chan<- llm.StreamChunk) (answer string, ok bool) {
	var full strings.Builder
	for c := range chunks {
		select {
		case out <- c:
		case <-ctx.Done():
			return "", false
		}
		if c.Err != nil {
			return "", false
		}
		full.WriteString(c.Delta)
	}
	return strings.TrimSpace(full.String()), true
}
