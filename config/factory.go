package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aqua777/go-callrag/embedding"
	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/rag/store"
	"github.com/aqua777/go-callrag/rag/store/chromem"
	"github.com/aqua777/go-callrag/storage/chatstore"
	"github.com/aqua777/go-callrag/textsplitter"
)

// NewEmbeddingModel builds the embedding model for the configured provider.
// Hosted models are wrapped with rate limiting and retries.
func NewEmbeddingModel(ctx context.Context, cfg Config, logger *slog.Logger) (embedding.EmbeddingModel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var inner embedding.EmbeddingModel
	switch cfg.Provider {
	case ProviderHash:
		return embedding.NewHashEmbedding(cfg.HashDimensions), nil
	case ProviderAzure:
		inner = embedding.NewAzureOpenAIEmbedding(cfg.AzureEndpoint, cfg.AzureAPIKey, cfg.AzureEmbeddingDeployment, cfg.AzureAPIVersion,
			embedding.WithBatchSize(cfg.EmbedBatchSize), embedding.WithLogger(logger))
	case ProviderOpenAI:
		inner = embedding.NewOpenAIEmbedding(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingModel,
			embedding.WithBatchSize(cfg.EmbedBatchSize), embedding.WithLogger(logger))
	case ProviderBedrock:
		b, err := embedding.NewBedrockEmbedding(ctx, embedding.WithBedrockRegion(cfg.BedrockRegion), embedding.WithBedrockLogger(logger))
		if err != nil {
			return nil, err
		}
		inner = b
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return embedding.NewResilientEmbedding(inner,
		embedding.WithRateLimit(cfg.RateLimit, 1),
		embedding.WithMaxRetries(uint64(cfg.MaxRetries)),
		embedding.WithBackoff(500*time.Millisecond, time.Minute),
		embedding.WithResilientLogger(logger),
	), nil
}

// EmbeddingModelID names the provider and model that produce vectors.
func (c Config) EmbeddingModelID() string {
	switch c.Provider {
	case ProviderAzure:
		return ProviderAzure + ":" + c.AzureEmbeddingDeployment
	case ProviderOpenAI:
		return ProviderOpenAI + ":" + c.OpenAIEmbeddingModel
	case ProviderBedrock:
		return ProviderBedrock + ":" + embedding.DefaultBedrockEmbeddingModel
	case ProviderHash:
		return fmt.Sprintf("%s:%d", ProviderHash, c.HashDimensions)
	default:
		return c.Provider
	}
}

// EmbeddingCacheCollection keys cached vectors by collection and embedding
// model, so switching models never reuses another model's vectors.
func (c Config) EmbeddingCacheCollection() string {
	return c.Collection + "/" + c.EmbeddingModelID()
}

// NewLLM builds the chat model for the configured provider. The hash
// provider has no chat model and returns an error.
func NewLLM(ctx context.Context, cfg Config, logger *slog.Logger) (llm.LLM, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case ProviderAzure:
		if cfg.AzureChatDeployment == "" {
			return nil, errors.New("AZURE_OPENAI_CHAT_DEPLOYMENT is required for chat")
		}
		return llm.NewAzureOpenAILLM(cfg.AzureEndpoint, cfg.AzureAPIKey, cfg.AzureChatDeployment, cfg.AzureAPIVersion, llm.WithLogger(logger)), nil
	case ProviderOpenAI:
		return llm.NewOpenAILLM(cfg.OpenAIBaseURL, cfg.OpenAIChatModel, cfg.OpenAIAPIKey, llm.WithLogger(logger)), nil
	case ProviderBedrock:
		return llm.NewBedrockLLM(ctx,
			llm.WithBedrockModel(cfg.BedrockModel),
			llm.WithBedrockRegion(cfg.BedrockRegion),
			llm.WithBedrockLogger(logger))
	case ProviderHash:
		return nil, fmt.Errorf("provider %q has no chat model", cfg.Provider)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewSplitter builds the configured chunker. Sentence chunks are packed by
// tiktoken count using the neurosnap sentence segmenter.
func NewSplitter(cfg Config) (textsplitter.TextSplitter, error) {
	switch cfg.Splitter {
	case SplitterWord, "":
		return textsplitter.NewWordWindowSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	case SplitterToken:
		return textsplitter.NewTokenTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap, nil)
	case SplitterSentence:
		tok, err := textsplitter.DefaultTokenizer()
		if err != nil {
			return nil, err
		}
		strategy, err := textsplitter.NewNeurosnapSplitterStrategy()
		if err != nil {
			return nil, err
		}
		return textsplitter.NewSentenceSplitter(cfg.ChunkSize, cfg.ChunkOverlap, tok, strategy)
	default:
		return nil, fmt.Errorf("unknown splitter %q", cfg.Splitter)
	}
}

// OpenVectorStore opens the configured store. A simple store is loaded from
// IndexDir when one was persisted there, and starts empty otherwise.
func OpenVectorStore(cfg Config, logger *slog.Logger) (store.VectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.StoreKind {
	case StoreChromem:
		s, err := chromem.NewChromemStore(cfg.ChromemDir(), cfg.Collection)
		if err != nil {
			return nil, err
		}
		return s.WithLogger(logger), nil
	case StoreSimple:
		s, err := store.LoadSimpleVectorStore(cfg.IndexDir(), store.WithLogger(logger))
		if errors.Is(err, os.ErrNotExist) {
			return store.NewSimpleVectorStore(store.WithLogger(logger)), nil
		}
		return s, err
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.StoreKind)
	}
}

// SaveVectorStore persists stores that do not write through on their own.
func SaveVectorStore(cfg Config, vs store.VectorStore) error {
	if s, ok := vs.(*store.SimpleVectorStore); ok {
		return s.Persist(cfg.IndexDir())
	}
	return nil
}

// OpenChatStore opens the chat history backend, creating DataDir for the
// default SQLite file. A json:// DSN keeps history in a JSON file that is
// written back on Close.
func OpenChatStore(cfg Config, logger *slog.Logger) (chatstore.PersistentChatStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := cfg.ChatHistoryDSN()
	if path, ok := strings.CutPrefix(dsn, "json://"); ok {
		logger.Debug("using JSON chat history", "path", path)
		return chatstore.OpenFileChatStore(path)
	}
	if cfg.ChatDSN == "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return chatstore.OpenSQLChatStore(dsn, chatstore.WithLogger(logger))
}
