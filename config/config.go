// Package config resolves runtime settings from flags, environment, a config
// file and .env, and builds the model, store and chat history backends they
// describe.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aqua777/krait"
	"github.com/joho/godotenv"
)

// Providers.
const (
	ProviderAzure   = "azure"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
	ProviderHash    = "hash"
)

// Vector store kinds.
const (
	StoreSimple  = "simple"
	StoreChromem = "chromem"
)

// Text splitters.
const (
	SplitterWord     = "word"
	SplitterToken    = "token"
	SplitterSentence = "sentence"
)

// Defaults.
const (
	DefaultProvider        = ProviderAzure
	DefaultAPIVersion      = "2024-10-21"
	DefaultDataDir         = ".callrag"
	DefaultStoreKind       = StoreSimple
	DefaultSplitter        = SplitterWord
	DefaultCollection      = "teams_cdrs"
	DefaultChunkSize       = 200
	DefaultChunkOverlap    = 50
	DefaultTopK            = 5
	DefaultHashDimensions  = 384
	DefaultMaxRetries      = 3
	DefaultEmbedBatchSize  = 64
	DefaultChatModel       = "gpt-4o-mini"
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultChatHistoryFile = "chat_history.db"
)

// Config keys as seen by krait (and therefore by config files).
const (
	KeyProvider                 = "provider"
	KeyAzureEndpoint            = "azure.endpoint"
	KeyAzureAPIKey              = "azure.api-key"
	KeyAzureAPIVersion          = "azure.api-version"
	KeyAzureChatDeployment      = "azure.chat-deployment"
	KeyAzureEmbeddingDeployment = "azure.embedding-deployment"
	KeyOpenAIAPIKey             = "openai.api-key"
	KeyOpenAIBaseURL            = "openai.base-url"
	KeyOpenAIChatModel          = "openai.chat-model"
	KeyOpenAIEmbeddingModel     = "openai.embedding-model"
	KeyBedrockModel             = "bedrock.model"
	KeyBedrockRegion            = "bedrock.region"
	KeyHashDimensions           = "hash.dimensions"
	KeyDataDir                  = "data.dir"
	KeyStoreKind                = "store.kind"
	KeyCollection               = "store.collection"
	KeySplitter                 = "index.splitter"
	KeyChunkSize                = "index.chunk-size"
	KeyChunkOverlap             = "index.chunk-overlap"
	KeyEmbedBatchSize           = "index.batch-size"
	KeyTopK                     = "query.top-k"
	KeyMinScore                 = "query.min-score"
	KeyChatDSN                  = "chat.dsn"
	KeyRateLimit                = "embedding.rate-limit"
	KeyMaxRetries               = "embedding.max-retries"
)

// Config holds every runtime setting.
type Config struct {
	Provider string

	AzureEndpoint            string
	AzureAPIKey              string
	AzureAPIVersion          string
	AzureChatDeployment      string
	AzureEmbeddingDeployment string

	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string

	BedrockModel  string
	BedrockRegion string

	HashDimensions int

	DataDir    string
	StoreKind  string
	Collection string
	// Splitter is word, token or sentence. ChunkSize and ChunkOverlap are
	// counted in the splitter's unit.
	Splitter       string
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
	TopK           int
	// MinScore drops retrieved chunks scoring below it; zero keeps all.
	MinScore float64
	// ChatDSN selects the chat history backend: a sqlite path, a postgres URL
	// or json://file. Empty means a SQLite file in DataDir.
	ChatDSN string

	// RateLimit is embedding requests per second; zero disables limiting.
	RateLimit  float64
	MaxRetries int
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider:             DefaultProvider,
		AzureAPIVersion:      DefaultAPIVersion,
		OpenAIChatModel:      DefaultChatModel,
		OpenAIEmbeddingModel: DefaultEmbeddingModel,
		HashDimensions:       DefaultHashDimensions,
		DataDir:              DefaultDataDir,
		StoreKind:            DefaultStoreKind,
		Collection:           DefaultCollection,
		Splitter:             DefaultSplitter,
		ChunkSize:            DefaultChunkSize,
		ChunkOverlap:         DefaultChunkOverlap,
		EmbedBatchSize:       DefaultEmbedBatchSize,
		TopK:                 DefaultTopK,
		MaxRetries:           DefaultMaxRetries,
	}
}

// Source is a key/value view of resolved settings. *viper.Viper satisfies it.
type Source interface {
	GetString(key string) string
	GetInt(key string) int
	GetFloat64(key string) float64
}

type kraitSource struct{}

func (kraitSource) GetString(key string) string   { return krait.GetString(key) }
func (kraitSource) GetInt(key string) int         { return krait.GetInt(key) }
func (kraitSource) GetFloat64(key string) float64 { return krait.GetFloat64(key) }

// Load reads the settings of the running krait command.
func Load() Config {
	return FromSource(kraitSource{})
}

// FromSource overlays every non-zero value in src onto Default.
func FromSource(src Source) Config {
	cfg := Default()
	str := func(dst *string, key string) {
		if v := strings.TrimSpace(src.GetString(key)); v != "" {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		if v := src.GetInt(key); v != 0 {
			*dst = v
		}
	}

	str(&cfg.Provider, KeyProvider)
	cfg.Provider = strings.ToLower(cfg.Provider)
	str(&cfg.AzureEndpoint, KeyAzureEndpoint)
	str(&cfg.AzureAPIKey, KeyAzureAPIKey)
	str(&cfg.AzureAPIVersion, KeyAzureAPIVersion)
	str(&cfg.AzureChatDeployment, KeyAzureChatDeployment)
	str(&cfg.AzureEmbeddingDeployment, KeyAzureEmbeddingDeployment)
	str(&cfg.OpenAIAPIKey, KeyOpenAIAPIKey)
	str(&cfg.OpenAIBaseURL, KeyOpenAIBaseURL)
	str(&cfg.OpenAIChatModel, KeyOpenAIChatModel)
	str(&cfg.OpenAIEmbeddingModel, KeyOpenAIEmbeddingModel)
	str(&cfg.BedrockModel, KeyBedrockModel)
	str(&cfg.BedrockRegion, KeyBedrockRegion)
	num(&cfg.HashDimensions, KeyHashDimensions)
	str(&cfg.DataDir, KeyDataDir)
	str(&cfg.StoreKind, KeyStoreKind)
	cfg.StoreKind = strings.ToLower(cfg.StoreKind)
	str(&cfg.Collection, KeyCollection)
	str(&cfg.Splitter, KeySplitter)
	cfg.Splitter = strings.ToLower(cfg.Splitter)
	num(&cfg.ChunkSize, KeyChunkSize)
	num(&cfg.ChunkOverlap, KeyChunkOverlap)
	num(&cfg.EmbedBatchSize, KeyEmbedBatchSize)
	num(&cfg.TopK, KeyTopK)
	str(&cfg.ChatDSN, KeyChatDSN)
	if v := src.GetFloat64(KeyMinScore); v != 0 {
		cfg.MinScore = v
	}
	if v := src.GetFloat64(KeyRateLimit); v != 0 {
		cfg.RateLimit = v
	}
	num(&cfg.MaxRetries, KeyMaxRetries)
	return cfg
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment. Missing files are ignored and existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Params describes every setting for krait: config key, flag, environment
// variable and default. Attach it to each command with WithParams.
func Params() *krait.ConfigParams {
	d := Default()
	return krait.NewConfigParams().
		With(KeyProvider, "provider", "", "CALLRAG_PROVIDER", "Model provider: azure, openai, bedrock or hash", d.Provider, nil).
		With(KeyAzureEndpoint, "azure-endpoint", "", "AZURE_OPENAI_ENDPOINT", "Azure OpenAI endpoint", "", nil).
		With(KeyAzureAPIKey, "azure-api-key", "", "AZURE_OPENAI_API_KEY", "Azure OpenAI API key", "", nil).
		With(KeyAzureAPIVersion, "azure-api-version", "", "AZURE_OPENAI_API_VERSION", "Azure OpenAI API version", d.AzureAPIVersion, nil).
		With(KeyAzureChatDeployment, "chat-deployment", "", "AZURE_OPENAI_CHAT_DEPLOYMENT", "Azure chat deployment", "", nil).
		With(KeyAzureEmbeddingDeployment, "embedding-deployment", "", "AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "Azure embedding deployment", "", nil).
		With(KeyOpenAIAPIKey, "openai-api-key", "", "OPENAI_API_KEY", "OpenAI API key", "", nil).
		With(KeyOpenAIBaseURL, "openai-url", "", "OPENAI_URL", "OpenAI compatible base URL", "", nil).
		With(KeyOpenAIChatModel, "chat-model", "", "OPENAI_CHAT_MODEL", "OpenAI chat model", d.OpenAIChatModel, nil).
		With(KeyOpenAIEmbeddingModel, "embedding-model", "", "OPENAI_EMBEDDING_MODEL", "OpenAI embedding model", d.OpenAIEmbeddingModel, nil).
		With(KeyBedrockModel, "bedrock-model", "", "BEDROCK_MODEL", "Bedrock model id", "", nil).
		With(KeyBedrockRegion, "bedrock-region", "", "AWS_REGION", "Bedrock region", "", nil).
		With(KeyHashDimensions, "hash-dimensions", "", "CALLRAG_HASH_DIMENSIONS", "Vector size of the offline hash embedding", d.HashDimensions, nil).
		With(KeyDataDir, "data-dir", "", "CALLRAG_DATA_DIR", "Directory holding the index and chat history", d.DataDir, nil).
		With(KeyStoreKind, "store", "", "CALLRAG_STORE", "Vector store: simple or chromem", d.StoreKind, nil).
		With(KeyCollection, "collection", "", "CALLRAG_COLLECTION", "Vector store collection", d.Collection, nil).
		With(KeySplitter, "splitter", "", "CALLRAG_SPLITTER", "Chunking: word, token or sentence", d.Splitter, nil).
		With(KeyChunkSize, "chunk-size", "", "CALLRAG_CHUNK_SIZE", "Words or tokens per chunk", d.ChunkSize, nil).
		With(KeyChunkOverlap, "chunk-overlap", "", "CALLRAG_CHUNK_OVERLAP", "Words or tokens shared by neighbouring chunks", d.ChunkOverlap, nil).
		With(KeyEmbedBatchSize, "batch-size", "", "CALLRAG_BATCH_SIZE", "Chunks embedded per request", d.EmbedBatchSize, nil).
		With(KeyTopK, "top-k", "k", "CALLRAG_TOP_K", "Chunks retrieved per question", d.TopK, nil).
		With(KeyMinScore, "min-score", "", "CALLRAG_MIN_SCORE", "Drop retrieved chunks scoring below this", 0.0, nil).
		With(KeyChatDSN, "chat-dsn", "", "CALLRAG_CHAT_DSN", "Chat history backend (sqlite path, postgres URL or json://file)", "", nil).
		With(KeyRateLimit, "rate-limit", "", "CALLRAG_RATE_LIMIT", "Embedding requests per second, 0 for unlimited", 0.0, nil).
		With(KeyMaxRetries, "max-retries", "", "CALLRAG_MAX_RETRIES", "Retries for transient embedding failures", d.MaxRetries, nil)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderAzure:
		if c.AzureEndpoint == "" {
			errs = append(errs, errors.New("AZURE_OPENAI_ENDPOINT is required for the azure provider"))
		}
		if c.AzureAPIKey == "" {
			errs = append(errs, errors.New("AZURE_OPENAI_API_KEY is required for the azure provider"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderBedrock, ProviderHash:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	switch c.StoreKind {
	case StoreSimple, StoreChromem:
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.StoreKind))
	}
	switch c.Splitter {
	case SplitterWord, SplitterToken, SplitterSentence:
	default:
		errs = append(errs, fmt.Errorf("unknown splitter %q", c.Splitter))
	}
	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be in [0, chunk size %d)", c.ChunkOverlap, c.ChunkSize))
	}
	if c.TopK < 1 {
		errs = append(errs, fmt.Errorf("top-k must be at least 1, got %d", c.TopK))
	}
	if c.Provider == ProviderHash && c.HashDimensions < 1 {
		errs = append(errs, fmt.Errorf("hash dimensions must be positive, got %d", c.HashDimensions))
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		errs = append(errs, fmt.Errorf("min score must be in [0, 1], got %g", c.MinScore))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	return errors.Join(errs...)
}

// IndexDir is where the simple vector store persists.
func (c Config) IndexDir() string {
	return filepath.Join(c.DataDir, "index")
}

// ChromemDir is where the chromem store persists.
func (c Config) ChromemDir() string {
	return filepath.Join(c.DataDir, "chromem")
}

// EmbeddingCachePath is where computed embeddings are cached.
func (c Config) EmbeddingCachePath() string {
	return filepath.Join(c.DataDir, "embeddings.json")
}

// ChatHistoryDSN returns ChatDSN or the default SQLite file in DataDir.
func (c Config) ChatHistoryDSN() string {
	if c.ChatDSN != "" {
		return c.ChatDSN
	}
	return filepath.Join(c.DataDir, DefaultChatHistoryFile)
}
