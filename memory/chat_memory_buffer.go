package memory

import (
	"context"
	"fmt"

	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/storage/chatstore"
)

// DefaultTokenLimit is the history budget in tokens.
const DefaultTokenLimit = 3000

// ChatMemoryBuffer returns the most recent turns that fit in a token budget.
type ChatMemoryBuffer struct {
	*BaseMemory
	tokenLimit  int
	tokenizerFn TokenizerFunc
}

var _ Memory = (*ChatMemoryBuffer)(nil)

// ChatMemoryBufferOption configures a ChatMemoryBuffer.
type ChatMemoryBufferOption func(*ChatMemoryBuffer)

// WithTokenLimit sets the token limit.
func WithTokenLimit(limit int) ChatMemoryBufferOption {
	return func(m *ChatMemoryBuffer) {
		if limit > 0 {
			m.tokenLimit = limit
		}
	}
}

// WithTokenizer sets the tokenizer function.
func WithTokenizer(fn TokenizerFunc) ChatMemoryBufferOption {
	return func(m *ChatMemoryBuffer) {
		m.tokenizerFn = fn
	}
}

// NewChatMemoryBuffer keeps the history of session key in store.
func NewChatMemoryBuffer(store chatstore.ChatStore, key string, opts ...ChatMemoryBufferOption) *ChatMemoryBuffer {
	m := &ChatMemoryBuffer{
		BaseMemory:  NewBaseMemory(store, key),
		tokenLimit:  DefaultTokenLimit,
		tokenizerFn: DefaultTokenizer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TokenLimit returns the token limit.
func (m *ChatMemoryBuffer) TokenLimit() int {
	return m.tokenLimit
}

// Get retrieves chat history within the token limit.
func (m *ChatMemoryBuffer) Get(ctx context.Context, input string) ([]llm.ChatMessage, error) {
	return m.GetWithInitialTokenCount(ctx, input, 0)
}

// GetWithInitialTokenCount returns the longest suffix of the history that fits
// in the budget left after initialTokenCount. The suffix never starts with an
// assistant message.
func (m *ChatMemoryBuffer) GetWithInitialTokenCount(ctx context.Context, input string, initialTokenCount int) ([]llm.ChatMessage, error) {
	history, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if initialTokenCount > m.tokenLimit {
		return nil, fmt.Errorf("initial token count %d exceeds token limit %d", initialTokenCount, m.tokenLimit)
	}

	budget := m.tokenLimit - initialTokenCount
	start := len(history)
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		total += m.tokenizerFn(history[i].Content)
		if total > budget {
			break
		}
		if history[i].Role != llm.MessageRoleAssistant {
			start = i
		}
	}
	return append([]llm.ChatMessage{}, history[start:]...), nil
}
