package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const (
	OpenAI_API_URL_v1  = "https://api.openai.com/v1"
	DefaultOpenAIModel = openai.GPT4oMini
)

// ErrNoChoices is returned when the service answers without any choice.
var ErrNoChoices = errors.New("model returned no choices")

// chatClient is the go-openai core shared by the OpenAI and Azure providers.
type chatClient struct {
	client      *openai.Client
	model       string
	provider    string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

// Option configures generation settings of an OpenAI-compatible model.
type Option func(*chatClient)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(c *chatClient) {
		c.temperature = t
	}
}

// WithMaxTokens caps the number of generated tokens. Zero means no cap.
func WithMaxTokens(n int) Option {
	return func(c *chatClient) {
		c.maxTokens = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *chatClient) {
		c.logger = logger
	}
}

func newChatClient(client *openai.Client, model, provider string, opts []Option) chatClient {
	c := chatClient{
		client:      client,
		model:       model,
		provider:    provider,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *chatClient) request(messages []ChatMessage, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertToOpenAIMessages(messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
}

// Complete generates a completion for a single user prompt.
func (c *chatClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, []ChatMessage{NewUserMessage(prompt)})
}

// Chat generates a response for a list of chat messages.
func (c *chatClient) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	c.logger.Debug("chat called", "provider", c.provider, "model", c.model, "message_count", len(messages))

	resp, err := c.client.CreateChatCompletion(ctx, c.request(messages, false))
	if err != nil {
		c.logger.Error("chat failed", "provider", c.provider, "error", err)
		return "", fmt.Errorf("%s chat failed: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", c.provider, ErrNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream generates a streaming completion for a single user prompt.
func (c *chatClient) Stream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	return c.StreamChat(ctx, []ChatMessage{NewUserMessage(prompt)})
}

// StreamChat streams the response to a list of chat messages.
func (c *chatClient) StreamChat(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error) {
	c.logger.Debug("stream called", "provider", c.provider, "model", c.model, "message_count", len(messages))

	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(messages, true))
	if err != nil {
		c.logger.Error("stream failed", "provider", c.provider, "error", err)
		return nil, fmt.Errorf("%s stream failed: %w", c.provider, err)
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				c.logger.Error("stream receive error", "provider", c.provider, "error", err)
				sendChunk(ctx, chunks, StreamChunk{Err: fmt.Errorf("%s stream interrupted: %w", c.provider, err)})
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			if delta := response.Choices[0].Delta.Content; delta != "" {
				if !sendChunk(ctx, chunks, StreamChunk{Delta: delta}) {
					return
				}
			}
		}
	}()

	return chunks, nil
}

// OpenAILLM talks to the OpenAI API or any compatible endpoint.
type OpenAILLM struct {
	chatClient
}

var _ StreamingChat = (*OpenAILLM)(nil)

// NewOpenAILLM creates an OpenAI chat model. Empty arguments fall back to
// OPENAI_URL, OPENAI_API_KEY and DefaultOpenAIModel.
func NewOpenAILLM(baseUrl, model, apiKey string, opts ...Option) *OpenAILLM {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if baseUrl == "" {
		baseUrl = os.Getenv("OPENAI_URL")
		if baseUrl == "" {
			baseUrl = OpenAI_API_URL_v1
		}
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseUrl
	return NewOpenAILLMWithClient(openai.NewClientWithConfig(config), model, opts...)
}

// NewOpenAILLMWithClient wraps an existing go-openai client.
func NewOpenAILLMWithClient(client *openai.Client, model string, opts ...Option) *OpenAILLM {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAILLM{chatClient: newChatClient(client, model, "openai", opts)}
}

// Model returns the model name.
func (o *OpenAILLM) Model() string {
	return o.model
}

func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return out
}
