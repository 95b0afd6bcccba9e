package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// DefaultBedrockModel is the Bedrock model used when none is configured.
const DefaultBedrockModel = "anthropic.claude-3-5-haiku-20241022-v1:0"

// ErrNoBedrockClient is returned when no AWS configuration could be loaded.
var ErrNoBedrockClient = errors.New("bedrock client not initialized")

// ConverseAPI is the part of the Bedrock runtime client BedrockLLM uses.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockLLM answers through the AWS Bedrock Converse API.
type BedrockLLM struct {
	client      ConverseAPI
	model       string
	region      string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

var _ StreamingChat = (*BedrockLLM)(nil)

// BedrockOption configures a BedrockLLM.
type BedrockOption func(*BedrockLLM)

// WithBedrockModel sets the model id.
func WithBedrockModel(model string) BedrockOption {
	return func(b *BedrockLLM) {
		if model != "" {
			b.model = model
		}
	}
}

// WithBedrockRegion sets the AWS region.
func WithBedrockRegion(region string) BedrockOption {
	return func(b *BedrockLLM) {
		if region != "" {
			b.region = region
		}
	}
}

// WithBedrockTemperature sets the sampling temperature.
func WithBedrockTemperature(t float32) BedrockOption {
	return func(b *BedrockLLM) {
		b.temperature = t
	}
}

// WithBedrockMaxTokens caps the number of generated tokens.
func WithBedrockMaxTokens(n int) BedrockOption {
	return func(b *BedrockLLM) {
		b.maxTokens = n
	}
}

// WithBedrockClient sets the Converse client, mostly for tests.
func WithBedrockClient(client ConverseAPI) BedrockOption {
	return func(b *BedrockLLM) {
		b.client = client
	}
}

// WithBedrockLogger sets the logger.
func WithBedrockLogger(logger *slog.Logger) BedrockOption {
	return func(b *BedrockLLM) {
		b.logger = logger
	}
}

// NewBedrockLLM creates a Bedrock chat model. Credentials come from the
// default AWS chain; the region falls back to AWS_REGION, AWS_DEFAULT_REGION
// and then us-east-1.
func NewBedrockLLM(ctx context.Context, opts ...BedrockOption) (*BedrockLLM, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	b := &BedrockLLM{
		model:       DefaultBedrockModel,
		region:      region,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(b.region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		b.client = bedrockruntime.NewFromConfig(cfg)
	}
	return b, nil
}

// Model returns the model id.
func (b *BedrockLLM) Model() string {
	return b.model
}

func (b *BedrockLLM) inference() *types.InferenceConfiguration {
	cfg := &types.InferenceConfiguration{Temperature: aws.Float32(b.temperature)}
	if b.maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(b.maxTokens))
	}
	return cfg
}

func (b *BedrockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return b.Chat(ctx, []ChatMessage{NewUserMessage(prompt)})
}

func (b *BedrockLLM) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	if b.client == nil {
		return "", ErrNoBedrockClient
	}
	b.logger.Debug("chat called", "provider", "bedrock", "model", b.model, "message_count", len(messages))

	msgs, system := convertToBedrockMessages(messages)
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(b.model),
		Messages:        msgs,
		InferenceConfig: b.inference(),
	}
	if len(system) > 0 {
		input.System = system
	}

	resp, err := b.client.Converse(ctx, input)
	if err != nil {
		b.logger.Error("chat failed", "provider", "bedrock", "error", err)
		return "", fmt.Errorf("bedrock converse failed: %w", err)
	}
	return bedrockText(resp), nil
}

func (b *BedrockLLM) Stream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	return b.StreamChat(ctx, []ChatMessage{NewUserMessage(prompt)})
}

func (b *BedrockLLM) StreamChat(ctx context.Context, messages []ChatMessage) (<-chan StreamChunk, error) {
	if b.client == nil {
		return nil, ErrNoBedrockClient
	}
	msgs, system := convertToBedrockMessages(messages)
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(b.model),
		Messages:        msgs,
		InferenceConfig: b.inference(),
	}
	if len(system) > 0 {
		input.System = system
	}

	resp, err := b.client.ConverseStream(ctx, input)
	if err != nil {
		b.logger.Error("stream failed", "provider", "bedrock", "error", err)
		return nil, fmt.Errorf("bedrock stream failed: %w", err)
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		stream := resp.GetStream()
		defer stream.Close()

		for event := range stream.Events() {
			delta, ok := event.(*types.ConverseStreamOutputMemberContentBlockDelta)
			if !ok {
				continue
			}
			text, ok := delta.Value.Delta.(*types.ContentBlockDeltaMemberText)
			if !ok {
				continue
			}
			if !sendChunk(ctx, chunks, StreamChunk{Delta: text.Value}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			b.logger.Error("stream receive error", "provider", "bedrock", "error", err)
			sendChunk(ctx, chunks, StreamChunk{Err: fmt.Errorf("bedrock stream interrupted: %w", err)})
		}
	}()
	return chunks, nil
}

// convertToBedrockMessages splits system prompts out and merges consecutive
// turns of the same role, which the Converse API rejects.
func convertToBedrockMessages(messages []ChatMessage) ([]types.Message, []types.SystemContentBlock) {
	var (
		out    []types.Message
		system []types.SystemContentBlock
	)
	for _, m := range messages {
		var role types.ConversationRole
		switch m.Role {
		case MessageRoleSystem:
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		case MessageRoleAssistant:
			role = types.ConversationRoleAssistant
		default:
			role = types.ConversationRoleUser
		}
		block := &types.ContentBlockMemberText{Value: m.Content}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			continue
		}
		out = append(out, types.Message{Role: role, Content: []types.ContentBlock{block}})
	}
	return out, system
}

func bedrockText(resp *bedrockruntime.ConverseOutput) string {
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var parts []string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	return strings.Join(parts, "")
}
