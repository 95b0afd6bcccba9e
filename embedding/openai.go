package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBatchSize is the number of inputs per embeddings request.
const DefaultBatchSize = 2048

// ErrNoEmbeddings is returned when the service answers without vectors.
var ErrNoEmbeddings = errors.New("no embeddings returned")

// embedClient is the go-openai core shared by the OpenAI and Azure providers.
type embedClient struct {
	client     *openai.Client
	model      string
	provider   string
	batchSize  int
	dimensions int
	logger     *slog.Logger
}

// Option configures an OpenAI-compatible embedding model.
type Option func(*embedClient)

// WithBatchSize sets how many texts are sent per request.
func WithBatchSize(n int) Option {
	return func(e *embedClient) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithDimensions asks text-embedding-3 models for shortened vectors.
func WithDimensions(n int) Option {
	return func(e *embedClient) {
		e.dimensions = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *embedClient) {
		e.logger = logger
	}
}

func newEmbedClient(client *openai.Client, model, provider string, opts []Option) embedClient {
	e := embedClient{
		client:    client,
		model:     model,
		provider:  provider,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// GetTextEmbedding generates an embedding for a given text.
func (e *embedClient) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	out, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GetQueryEmbedding generates an embedding for a given query.
func (e *embedClient) GetQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return e.GetTextEmbedding(ctx, query)
}

// GetTextEmbeddingsBatch embeds texts in requests of at most batchSize inputs.
func (e *embedClient) GetTextEmbeddingsBatch(ctx context.Context, texts []string, callback ProgressCallback) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("embedding batch", "provider", e.provider, "model", e.model, "count", len(texts))

	results := make([][]float64, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.request(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vectors...)
		if callback != nil {
			callback(end, len(texts))
		}
	}
	return results, nil
}

// Info returns information about the model's capabilities.
func (e *embedClient) Info() EmbeddingInfo {
	info := InfoForModel(e.model)
	if e.dimensions > 0 {
		info.Dimensions = e.dimensions
	}
	return info
}

func (e *embedClient) request(ctx context.Context, input []string) ([][]float64, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      input,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		e.logger.Error("embedding request failed", "provider", e.provider, "error", err)
		return nil, fmt.Errorf("%s embedding failed: %w", e.provider, err)
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("%s: %w: got %d for %d inputs", e.provider, ErrNoEmbeddings, len(resp.Data), len(input))
	}

	out := make([][]float64, len(input))
	for pos, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = pos
		}
		out[idx] = toFloat64(data.Embedding)
	}
	return out, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// OpenAIEmbedding embeds text with the OpenAI API or a compatible endpoint.
type OpenAIEmbedding struct {
	embedClient
}

var (
	_ EmbeddingModelWithBatch = (*OpenAIEmbedding)(nil)
	_ EmbeddingModelWithInfo  = (*OpenAIEmbedding)(nil)
)

// NewOpenAIEmbedding creates an OpenAI embedding model. Empty arguments fall
// back to OPENAI_URL, OPENAI_API_KEY and text-embedding-3-small.
func NewOpenAIEmbedding(baseURL, apiKey, modelName string, opts ...Option) *OpenAIEmbedding {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_URL")
	}
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return NewOpenAIEmbeddingWithClient(openai.NewClientWithConfig(config), modelName, opts...)
}

// NewOpenAIEmbeddingWithClient wraps an existing go-openai client.
func NewOpenAIEmbeddingWithClient(client *openai.Client, modelName string, opts ...Option) *OpenAIEmbedding {
	if modelName == "" {
		modelName = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedding{embedClient: newEmbedClient(client, modelName, "openai", opts)}
}

// AzureOpenAIEmbedding embeds text with an Azure OpenAI deployment.
type AzureOpenAIEmbedding struct {
	embedClient
}

var (
	_ EmbeddingModelWithBatch = (*AzureOpenAIEmbedding)(nil)
	_ EmbeddingModelWithInfo  = (*AzureOpenAIEmbedding)(nil)
)

// DefaultAzureAPIVersion is used when no API version is configured.
const DefaultAzureAPIVersion = "2024-10-21"

// NewAzureOpenAIEmbedding creates an Azure OpenAI embedding model. Empty
// arguments fall back to AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY,
// AZURE_OPENAI_EMBEDDING_DEPLOYMENT and AZURE_OPENAI_API_VERSION.
func NewAzureOpenAIEmbedding(endpoint, apiKey, deployment, apiVersion string, opts ...Option) *AzureOpenAIEmbedding {
	if endpoint == "" {
		endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if apiKey == "" {
		apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
	}
	if deployment == "" {
		deployment = os.Getenv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT")
	}
	if apiVersion == "" {
		apiVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
		if apiVersion == "" {
			apiVersion = DefaultAzureAPIVersion
		}
	}

	config := openai.DefaultAzureConfig(apiKey, endpoint)
	config.APIVersion = apiVersion
	config.AzureModelMapperFunc = func(model string) string { return model }

	return &AzureOpenAIEmbedding{
		embedClient: newEmbedClient(openai.NewClientWithConfig(config), deployment, "azure openai", opts),
	}
}

// Deployment returns the deployment name.
func (a *AzureOpenAIEmbedding) Deployment() string {
	return a.model
}
