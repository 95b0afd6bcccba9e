package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aqua777/go-callrag/llm"
)

// DefaultPersistFilename is the file SimpleChatStore persists to inside a data dir.
const DefaultPersistFilename = "chat_store.json"

// SimpleChatStore is an in-memory chat store with optional JSON persistence.
type SimpleChatStore struct {
	mu    sync.RWMutex
	store map[string][]llm.ChatMessage
}

var _ ChatStore = (*SimpleChatStore)(nil)

// NewSimpleChatStore creates an empty store.
func NewSimpleChatStore() *SimpleChatStore {
	return &SimpleChatStore{
		store: make(map[string][]llm.ChatMessage),
	}
}

func (s *SimpleChatStore) SetMessages(ctx context.Context, key string, messages []llm.ChatMessage) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = append([]llm.ChatMessage(nil), messages...)
	return nil
}

func (s *SimpleChatStore) GetMessages(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]llm.ChatMessage{}, s.store[key]...), nil
}

func (s *SimpleChatStore) AddMessage(ctx context.Context, key string, message llm.ChatMessage, idx int) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.store[key]
	if idx < 0 || idx >= len(messages) {
		s.store[key] = append(messages, message)
		return nil
	}
	out := make([]llm.ChatMessage, 0, len(messages)+1)
	out = append(out, messages[:idx]...)
	out = append(out, message)
	s.store[key] = append(out, messages[idx:]...)
	return nil
}

func (s *SimpleChatStore) DeleteMessages(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, ok := s.store[key]
	if !ok {
		return nil, nil
	}
	delete(s.store, key)
	return messages, nil
}

func (s *SimpleChatStore) DeleteMessage(ctx context.Context, key string, idx int) (*llm.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.store[key]
	if idx < 0 || idx >= len(messages) {
		return nil, nil
	}
	deleted := messages[idx]
	out := make([]llm.ChatMessage, 0, len(messages)-1)
	out = append(out, messages[:idx]...)
	s.store[key] = append(out, messages[idx+1:]...)
	return &deleted, nil
}

func (s *SimpleChatStore) DeleteLastMessage(ctx context.Context, key string) (*llm.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.store[key]
	if len(messages) == 0 {
		return nil, nil
	}
	deleted := messages[len(messages)-1]
	s.store[key] = messages[:len(messages)-1]
	return &deleted, nil
}

func (s *SimpleChatStore) GetKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.store))
	for key := range s.store {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Persist writes every session to persistPath as JSON.
func (s *SimpleChatStore) Persist(persistPath string) error {
	if err := os.MkdirAll(filepath.Dir(persistPath), 0o755); err != nil {
		return fmt.Errorf("failed to create chat store dir: %w", err)
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s.store, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode chat store: %w", err)
	}
	return os.WriteFile(persistPath, data, 0o644)
}

// LoadSimpleChatStore reads a store written by Persist. A missing file
// yields an empty store.
func LoadSimpleChatStore(persistPath string) (*SimpleChatStore, error) {
	s := NewSimpleChatStore()
	data, err := os.ReadFile(persistPath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &s.store); err != nil {
		return nil, fmt.Errorf("failed to decode chat store %s: %w", persistPath, err)
	}
	if s.store == nil {
		s.store = make(map[string][]llm.ChatMessage)
	}
	return s, nil
}

// FileChatStore is a SimpleChatStore bound to a JSON file. Close writes it back.
type FileChatStore struct {
	*SimpleChatStore
	path string
}

var _ PersistentChatStore = (*FileChatStore)(nil)

// OpenFileChatStore loads path, or starts empty when it does not exist yet.
func OpenFileChatStore(path string) (*FileChatStore, error) {
	s, err := LoadSimpleChatStore(path)
	if err != nil {
		return nil, err
	}
	return &FileChatStore{SimpleChatStore: s, path: path}, nil
}

func (s *FileChatStore) Close() error {
	return s.Persist(s.path)
}
