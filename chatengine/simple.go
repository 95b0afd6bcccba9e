package chatengine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/memory"
)

// SimpleChatEngine talks to the model directly, without retrieval. It backs
// the chat command when no index has been built yet.
type SimpleChatEngine struct {
	llm          llm.LLM
	memory       memory.Memory
	systemPrompt string
	logger       *slog.Logger
}

var _ ChatEngine = (*SimpleChatEngine)(nil)

// NewSimpleChatEngine creates a SimpleChatEngine. A nil memory means an
// in-memory buffer; an empty prompt sends no system message.
func NewSimpleChatEngine(model llm.LLM, mem memory.Memory, systemPrompt string) *SimpleChatEngine {
	if mem == nil {
		mem = memory.NewChatMemoryBuffer(nil, "")
	}
	return &SimpleChatEngine{llm: model, memory: mem, systemPrompt: systemPrompt, logger: slog.Default()}
}

// WithLogger replaces the default logger.
func (e *SimpleChatEngine) WithLogger(logger *slog.Logger) *SimpleChatEngine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

func (e *SimpleChatEngine) messages(ctx context.Context, message string) ([]llm.ChatMessage, error) {
	if e.llm == nil {
		return nil, ErrNoLLM
	}
	history, err := e.memory.Get(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	var out []llm.ChatMessage
	if e.systemPrompt != "" {
		out = append(out, llm.NewSystemMessage(e.systemPrompt))
	}
	out = append(out, history...)
	return append(out, llm.NewUserMessage(message)), nil
}

func (e *SimpleChatEngine) Chat(ctx context.Context, message string) (*ChatResponse, error) {
	msgs, err := e.messages(ctx, message)
	if err != nil {
		return nil, err
	}
	answer, err := e.llm.Chat(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if err := e.memory.PutMessages(ctx, []llm.ChatMessage{llm.NewUserMessage(message), llm.NewAssistantMessage(answer)}); err != nil {
		return nil, fmt.Errorf("failed to save chat turn: %w", err)
	}
	return NewChatResponse(answer), nil
}

func (e *SimpleChatEngine) StreamChat(ctx context.Context, message string) (*StreamingChatResponse, error) {
	msgs, err := e.messages(ctx, message)
	if err != nil {
		return nil, err
	}
	tokens, err := streamChat(ctx, e.llm, msgs)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		answer, ok := relay(ctx, tokens, out)
		if !ok {
			e.logger.Warn("streamed answer incomplete, not saving chat turn")
			return
		}
		err := e.memory.PutMessages(ctx, []llm.ChatMessage{
			llm.NewUserMessage(message),
			llm.NewAssistantMessage(answer),
		})
		if err != nil {
			e.logger.Warn("failed to save chat turn", "error", err)
		}
	}()
	return NewStreamingChatResponse(out), nil
}

func (e *SimpleChatEngine) Reset(ctx context.Context) error {
	return e.memory.Reset(ctx)
}

func (e *SimpleChatEngine) ChatHistory(ctx context.Context) ([]llm.ChatMessage, error) {
	return e.memory.GetAll(ctx)
}
