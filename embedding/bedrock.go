package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultBedrockEmbeddingModel is Amazon Titan Text Embeddings V2.
const DefaultBedrockEmbeddingModel = "amazon.titan-embed-text-v2:0"

// DefaultBedrockDimensions is the Titan V2 default vector size. Titan V2
// also accepts 256 and 512.
const DefaultBedrockDimensions = 1024

// InvokeModelAPI is the part of the Bedrock runtime client BedrockEmbedding uses.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEmbedding embeds text with a Titan model on AWS Bedrock.
type BedrockEmbedding struct {
	client     InvokeModelAPI
	model      string
	region     string
	dimensions int
	logger     *slog.Logger
}

var (
	_ EmbeddingModelWithBatch = (*BedrockEmbedding)(nil)
	_ EmbeddingModelWithInfo  = (*BedrockEmbedding)(nil)
)

// BedrockOption configures a BedrockEmbedding.
type BedrockOption func(*BedrockEmbedding)

// WithBedrockModel sets the model id.
func WithBedrockModel(model string) BedrockOption {
	return func(b *BedrockEmbedding) {
		if model != "" {
			b.model = model
		}
	}
}

// WithBedrockRegion sets the AWS region.
func WithBedrockRegion(region string) BedrockOption {
	return func(b *BedrockEmbedding) {
		if region != "" {
			b.region = region
		}
	}
}

// WithBedrockDimensions sets the requested vector size.
func WithBedrockDimensions(n int) BedrockOption {
	return func(b *BedrockEmbedding) {
		if n > 0 {
			b.dimensions = n
		}
	}
}

// WithBedrockClient sets the runtime client, mostly for tests.
func WithBedrockClient(client InvokeModelAPI) BedrockOption {
	return func(b *BedrockEmbedding) {
		b.client = client
	}
}

// WithBedrockLogger sets the logger.
func WithBedrockLogger(logger *slog.Logger) BedrockOption {
	return func(b *BedrockEmbedding) {
		b.logger = logger
	}
}

// NewBedrockEmbedding creates a Titan embedding model using the default AWS
// credential chain.
func NewBedrockEmbedding(ctx context.Context, opts ...BedrockOption) (*BedrockEmbedding, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	b := &BedrockEmbedding{
		model:      DefaultBedrockEmbeddingModel,
		region:     region,
		dimensions: DefaultBedrockDimensions,
		logger:     slog.Default(),
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

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float64 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func (b *BedrockEmbedding) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	if b.client == nil {
		return nil, errors.New("bedrock client not initialized")
	}
	body, err := json.Marshal(titanRequest{InputText: text, Dimensions: b.dimensions, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		b.logger.Error("bedrock embedding failed", "model", b.model, "error", err)
		return nil, fmt.Errorf("bedrock invoke model failed: %w", err)
	}
	var out titanResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode bedrock response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, ErrNoEmbeddings
	}
	return out.Embedding, nil
}

func (b *BedrockEmbedding) GetQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return b.GetTextEmbedding(ctx, query)
}

// GetTextEmbeddingsBatch embeds one text per request; Titan has no batch endpoint.
func (b *BedrockEmbedding) GetTextEmbeddingsBatch(ctx context.Context, texts []string, callback ProgressCallback) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := b.GetTextEmbedding(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
		if callback != nil {
			callback(i+1, len(texts))
		}
	}
	return out, nil
}

func (b *BedrockEmbedding) Info() EmbeddingInfo {
	return EmbeddingInfo{ModelName: b.model, Dimensions: b.dimensions, MaxTokens: 8192}
}
