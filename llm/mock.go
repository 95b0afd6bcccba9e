package llm

import (
	"context"
	"sync"
)

// MockLLM is a test double that records what it was asked.
type MockLLM struct {
	// Response is returned when Fn is nil.
	Response string
	// Err is returned from every call when set.
	Err error
	// Fn computes the response from the messages when set.
	Fn func(messages []ChatMessage) (string, error)
	// StreamErr, when set, ends every stream with this error after the
	// response text has been sent.
	StreamErr error

	mu    sync.Mutex
	calls [][]ChatMessage
}

var _ StreamingChat = (*MockLLM)(nil)

// NewMockLLM creates a new MockLLM with a fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a new MockLLM that always fails.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Err: err}
}

func (m *MockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.Chat(ctx, []ChatMessage{NewUserMessage(prompt)})
}

func (m *MockLLM) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]ChatMessage(nil), messages...))
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.Fn != nil {
		return m.Fn(messages)
	}
	return m.Response, nil
}

func (m *MockLLM) Stream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	return m.StreamChat(ctx, []ChatMessage{NewUserMessage(prompt)})
}

func (m *MockLLM) StreamChat(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error) {
	resp, err := m.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Delta: resp}
	if m.StreamErr != nil {
		ch <- StreamChunk{Err: m.StreamErr}
	}
	close(ch)
	return ch, nil
}

// Calls returns the message lists received so far.
func (m *MockLLM) Calls() [][]ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]ChatMessage(nil), m.calls...)
}

// LastCall returns the most recent message list, or nil.
func (m *MockLLM) LastCall() []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}
