// Package memory keeps a session's chat history in a chat store and trims it
// to a token budget for the next prompt.
package memory

import (
	"context"

	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/storage/chatstore"
	"github.com/aqua777/go-callrag/textsplitter"
)

// DefaultChatStoreKey is the default key for chat history storage.
const DefaultChatStoreKey = "chat_history"

// Memory is the interface for all memory types.
type Memory interface {
	// Get retrieves the history to send with the next prompt.
	Get(ctx context.Context, input string) ([]llm.ChatMessage, error)

	// GetAll retrieves all chat history.
	GetAll(ctx context.Context) ([]llm.ChatMessage, error)

	// Put adds a message to the chat history.
	Put(ctx context.Context, message llm.ChatMessage) error

	// PutMessages adds multiple messages to the chat history.
	PutMessages(ctx context.Context, messages []llm.ChatMessage) error

	// Set replaces the entire chat history.
	Set(ctx context.Context, messages []llm.ChatMessage) error

	// Reset clears all chat history.
	Reset(ctx context.Context) error
}

// BaseMemory stores history under one key of a chat store.
type BaseMemory struct {
	chatStore    chatstore.ChatStore
	chatStoreKey string
}

// NewBaseMemory creates a BaseMemory. A nil store means a fresh in-memory one;
// an empty key means DefaultChatStoreKey.
func NewBaseMemory(store chatstore.ChatStore, key string) *BaseMemory {
	if store == nil {
		store = chatstore.NewSimpleChatStore()
	}
	if key == "" {
		key = DefaultChatStoreKey
	}
	return &BaseMemory{chatStore: store, chatStoreKey: key}
}

// ChatStore returns the underlying chat store.
func (m *BaseMemory) ChatStore() chatstore.ChatStore {
	return m.chatStore
}

// ChatStoreKey returns the chat store key.
func (m *BaseMemory) ChatStoreKey() string {
	return m.chatStoreKey
}

func (m *BaseMemory) GetAll(ctx context.Context) ([]llm.ChatMessage, error) {
	return m.chatStore.GetMessages(ctx, m.chatStoreKey)
}

func (m *BaseMemory) Put(ctx context.Context, message llm.ChatMessage) error {
	return m.chatStore.AddMessage(ctx, m.chatStoreKey, message, chatstore.IndexNotSpecified)
}

func (m *BaseMemory) PutMessages(ctx context.Context, messages []llm.ChatMessage) error {
	for _, msg := range messages {
		if err := m.Put(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *BaseMemory) Set(ctx context.Context, messages []llm.ChatMessage) error {
	return m.chatStore.SetMessages(ctx, m.chatStoreKey, messages)
}

func (m *BaseMemory) Reset(ctx context.Context) error {
	_, err := m.chatStore.DeleteMessages(ctx, m.chatStoreKey)
	return err
}

// TokenizerFunc counts tokens in a string.
type TokenizerFunc func(text string) int

// DefaultTokenizer counts cl100k_base tokens.
func DefaultTokenizer(text string) int {
	return textsplitter.CountTokens(text)
}
