package chatengine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/memory"
	"github.com/aqua777/go-callrag/postprocessor"
	"github.com/aqua777/go-callrag/rag/retriever"
	"github.com/aqua777/go-callrag/schema"
)

const (
	// DefaultSystemPrompt restricts answers to the retrieved records.
	DefaultSystemPrompt = "You are a helpful assistant that answers questions about Microsoft Teams call quality " +
		"only using the provided context. " +
		"If the answer is not found in the context, respond with: 'I don't know based on the given data.'"

	// DefaultContextTemplate frames the retrieved chunks and the question.
	// The first verb receives the context, the second the question.
	DefaultContextTemplate = "Context:\n%s\n\nQuestion: %s\nAnswer:"
)

// ContextChatEngine retrieves chunks for every user message and sends them to
// the model together with the windowed session history.
type ContextChatEngine struct {
	llm             llm.LLM
	retriever       retriever.Retriever
	memory          memory.Memory
	systemPrompt    string
	contextTemplate string
	filters         *schema.MetadataFilters
	postprocessors  postprocessor.Chain
	logger          *slog.Logger
}

var _ ChatEngine = (*ContextChatEngine)(nil)

// ContextChatEngineOption configures a ContextChatEngine.
type ContextChatEngineOption func(*ContextChatEngine)

// WithMemory sets where history is kept. The default is an in-memory buffer.
func WithMemory(m memory.Memory) ContextChatEngineOption {
	return func(e *ContextChatEngine) {
		e.memory = m
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) ContextChatEngineOption {
	return func(e *ContextChatEngine) {
		e.systemPrompt = prompt
	}
}

// WithContextTemplate replaces DefaultContextTemplate.
func WithContextTemplate(template string) ContextChatEngineOption {
	return func(e *ContextChatEngine) {
		e.contextTemplate = template
	}
}

// WithFilters restricts retrieval, for example to one organizer.
func WithFilters(filters *schema.MetadataFilters) ContextChatEngineOption {
	return func(e *ContextChatEngine) {
		e.filters = filters
	}
}

// WithPostprocessors refines retrieved chunks before they enter the prompt.
func WithPostprocessors(p ...postprocessor.NodePostprocessor) ContextChatEngineOption {
	return func(e *ContextChatEngine) {
		e.postprocessors = append(e.postprocessors, p...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ContextChatEngineOption {
	return func(e *ContextChatEngine) {
		e.logger = logger
	}
}

// NewContextChatEngine creates a new ContextChatEngine.
func NewContextChatEngine(ret retriever.Retriever, model llm.LLM, opts ...ContextChatEngineOption) *ContextChatEngine {
	e := &ContextChatEngine{
		llm:             model,
		retriever:       ret,
		systemPrompt:    DefaultSystemPrompt,
		contextTemplate: DefaultContextTemplate,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.memory == nil {
		e.memory = memory.NewChatMemoryBuffer(nil, "")
	}
	return e
}

// Chat answers message and records the turn in history.
func (e *ContextChatEngine) Chat(ctx context.Context, message string) (*ChatResponse, error) {
	nodes, messages, err := e.prepare(ctx, message)
	if err != nil {
		return nil, err
	}

	answer, err := e.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if err := e.record(ctx, message, answer); err != nil {
		return nil, err
	}

	resp := NewChatResponse(answer)
	resp.SourceNodes = nodes
	resp.Metadata["context_chunks"] = len(nodes)
	return resp, nil
}

// StreamChat is Chat with the answer streamed. History is written once the
// stream ends, and not at all when it fails part way.
func (e *ContextChatEngine) StreamChat(ctx context.Context, message string) (*StreamingChatResponse, error) {
	nodes, messages, err := e.prepare(ctx, message)
	if err != nil {
		return nil, err
	}
	tokens, err := streamChat(ctx, e.llm, messages)
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
		if err := e.record(ctx, message, answer); err != nil {
			e.logger.Warn("failed to save chat turn", "error", err)
		}
	}()

	resp := NewStreamingChatResponse(out)
	resp.SourceNodes = nodes
	return resp, nil
}

// Reset clears the conversation state.
func (e *ContextChatEngine) Reset(ctx context.Context) error {
	return e.memory.Reset(ctx)
}

// ChatHistory returns the full stored history.
func (e *ContextChatEngine) ChatHistory(ctx context.Context) ([]llm.ChatMessage, error) {
	return e.memory.GetAll(ctx)
}

func (e *ContextChatEngine) prepare(ctx context.Context, message string) ([]schema.NodeWithScore, []llm.ChatMessage, error) {
	if e.llm == nil {
		return nil, nil, ErrNoLLM
	}
	if e.retriever == nil {
		return nil, nil, ErrNoRetriever
	}

	query := schema.QueryBundle{QueryString: message, Filters: e.filters}
	nodes, err := e.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval failed: %w", err)
	}
	if len(e.postprocessors) > 0 {
		nodes, err = e.postprocessors.PostprocessNodes(ctx, nodes, &query)
		if err != nil {
			return nil, nil, fmt.Errorf("postprocessing failed: %w", err)
		}
	}

	system := llm.NewSystemMessage(e.systemPrompt)
	user := llm.NewUserMessage(fmt.Sprintf(e.contextTemplate, BuildContext(nodes), message))

	var history []llm.ChatMessage
	if w, ok := e.memory.(windowedMemory); ok {
		initial := memory.DefaultTokenizer(system.Content) + memory.DefaultTokenizer(user.Content)
		history, err = w.GetWithInitialTokenCount(ctx, message, initial)
		if err != nil {
			// The prompt alone exceeds the budget; send it without history.
			e.logger.Warn("dropping chat history", "error", err)
			history = nil
		}
	} else {
		history, err = e.memory.Get(ctx, message)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load chat history: %w", err)
		}
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, user)

	e.logger.Debug("prepared chat prompt", "context_chunks", len(nodes), "history", len(history))
	return nodes, messages, nil
}

// record stores the plain question, not the context-laden prompt, so history
// stays small.
func (e *ContextChatEngine) record(ctx context.Context, message, answer string) error {
	err := e.memory.PutMessages(ctx, []llm.ChatMessage{
		llm.NewUserMessage(message),
		llm.NewAssistantMessage(answer),
	})
	if err != nil {
		return fmt.Errorf("failed to save chat turn: %w", err)
	}
	return nil
}

// BuildContext joins chunk texts with blank lines, best match first.
func BuildContext(nodes []schema.NodeWithScore) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, n.Node.Text)
	}
	return strings.Join(parts, "\n\n")
}
