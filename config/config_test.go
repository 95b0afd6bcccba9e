package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-callrag/embedding"
	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/rag/store"
	"github.com/aqua777/go-callrag/rag/store/chromem"
	"github.com/aqua777/go-callrag/schema"
	"github.com/aqua777/go-callrag/textsplitter"
)

func TestFromSourceDefaults(t *testing.T) {
	cfg := FromSource(viper.New())
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "2024-10-21", cfg.AzureAPIVersion)
	assert.Equal(t, 200, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.TopK)
}

func TestFromSourceOverrides(t *testing.T) {
	v := viper.New()
	v.Set(KeyProvider, "OpenAI")
	v.Set(KeyOpenAIAPIKey, "sk-test")
	v.Set(KeyStoreKind, "Chromem")
	v.Set(KeyChunkSize, 120)
	v.Set(KeyTopK, 3)
	v.Set(KeyRateLimit, 2.5)
	v.Set(KeyChatDSN, "postgres://u:p@localhost/calls")

	cfg := FromSource(v)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, StoreChromem, cfg.StoreKind)
	assert.Equal(t, 120, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, "postgres://u:p@localhost/calls", cfg.ChatHistoryDSN())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_OPENAI_ENDPOINT")
	assert.Contains(t, err.Error(), "AZURE_OPENAI_API_KEY")

	cfg.AzureEndpoint = "https://example.openai.azure.com"
	cfg.AzureAPIKey = "key"
	assert.NoError(t, cfg.Validate())

	bad := Default()
	bad.Provider = "watson"
	bad.StoreKind = "milvus"
	bad.ChunkOverlap = 200
	bad.TopK = 0
	bad.Splitter = "paragraph"
	err = bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"watson", "milvus", "chunk overlap", "top-k", "paragraph"} {
		assert.Contains(t, err.Error(), want)
	}

	hash := Default()
	hash.Provider = ProviderHash
	assert.NoError(t, hash.Validate())
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/callrag"
	assert.Equal(t, filepath.Join("/var/lib/callrag", "index"), cfg.IndexDir())
	assert.Equal(t, filepath.Join("/var/lib/callrag", "chromem"), cfg.ChromemDir())
	assert.Equal(t, filepath.Join("/var/lib/callrag", DefaultChatHistoryFile), cfg.ChatHistoryDSN())
	assert.Equal(t, filepath.Join("/var/lib/callrag", "embeddings.json"), cfg.EmbeddingCachePath())
}

func TestEmbeddingCacheCollection(t *testing.T) {
	cfg := Default()
	cfg.Provider = ProviderOpenAI
	cfg.OpenAIEmbeddingModel = "text-embedding-3-small"
	small := cfg.EmbeddingCacheCollection()
	assert.Equal(t, cfg.Collection+"/openai:text-embedding-3-small", small)

	cfg.OpenAIEmbeddingModel = "text-embedding-3-large"
	assert.NotEqual(t, small, cfg.EmbeddingCacheCollection())

	cfg.Provider = ProviderAzure
	cfg.AzureEmbeddingDeployment = "embed-prod"
	assert.Equal(t, "azure:embed-prod", cfg.EmbeddingModelID())

	cfg.Provider = ProviderHash
	cfg.HashDimensions = 64
	assert.Equal(t, "hash:64", cfg.EmbeddingModelID())

	cfg.Provider = ProviderBedrock
	assert.Equal(t, "bedrock:"+embedding.DefaultBedrockEmbeddingModel, cfg.EmbeddingModelID())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CALLRAG_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("CALLRAG_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("CALLRAG_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("CALLRAG_TEST_DOTENV"))
}

func TestParams(t *testing.T) {
	params := Params().List()
	envs := map[string]string{}
	for _, p := range params {
		envs[p.Name] = p.EnvironmentVarName
	}
	assert.Equal(t, "AZURE_OPENAI_ENDPOINT", envs[KeyAzureEndpoint])
	assert.Equal(t, "AZURE_OPENAI_API_KEY", envs[KeyAzureAPIKey])
	assert.Equal(t, "AZURE_OPENAI_API_VERSION", envs[KeyAzureAPIVersion])
	assert.Equal(t, "AZURE_OPENAI_CHAT_DEPLOYMENT", envs[KeyAzureChatDeployment])
	assert.Equal(t, "AZURE_OPENAI_EMBEDDING_DEPLOYMENT", envs[KeyAzureEmbeddingDeployment])
	assert.Equal(t, "OPENAI_API_KEY", envs[KeyOpenAIAPIKey])
}

func TestFactories(t *testing.T) {
	ctx := context.Background()

	cfg := Default()
	cfg.Provider = ProviderHash
	cfg.HashDimensions = 32
	model, err := NewEmbeddingModel(ctx, cfg, nil)
	require.NoError(t, err)
	vec, err := model.GetTextEmbedding(ctx, "poor jitter")
	require.NoError(t, err)
	assert.Len(t, vec, 32)

	_, err = NewLLM(ctx, cfg, nil)
	assert.Error(t, err)

	cfg.Provider = ProviderAzure
	cfg.AzureEndpoint = "https://example.openai.azure.com"
	cfg.AzureAPIKey = "key"
	cfg.AzureChatDeployment = "gpt-4o"
	model, err = NewEmbeddingModel(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &embedding.ResilientEmbedding{}, model)
	chat, err := NewLLM(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &llm.AzureOpenAILLM{}, chat)

	cfg.AzureChatDeployment = ""
	_, err = NewLLM(ctx, cfg, nil)
	assert.Error(t, err)

	cfg.Provider = ProviderOpenAI
	chat, err = NewLLM(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAILLM{}, chat)
}

func TestNewSplitter(t *testing.T) {
	cfg := Default()
	cfg.ChunkSize = 4
	cfg.ChunkOverlap = 1

	sp, err := NewSplitter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &textsplitter.WordWindowSplitter{}, sp)
	assert.Equal(t, []string{"a b c d", "d e"}, sp.SplitText("a b c d e"))

	cfg.Splitter = "paragraph"
	_, err = NewSplitter(cfg)
	assert.Error(t, err)

	cfg.ChunkOverlap = 4
	cfg.Splitter = SplitterWord
	_, err = NewSplitter(cfg)
	assert.Error(t, err)

	if _, err := textsplitter.DefaultTokenizer(); err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	cfg.ChunkSize = 50
	cfg.ChunkOverlap = 5
	cfg.Splitter = SplitterToken
	sp, err = NewSplitter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &textsplitter.TokenTextSplitter{}, sp)

	cfg.Splitter = SplitterSentence
	sp, err = NewSplitter(cfg)
	require.NoError(t, err)
	chunks := sp.SplitText("Jitter was 48 ms. Packet loss stayed low.")
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0], "Jitter was 48 ms.")
}

func TestOpenVectorStore(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	cfg.DataDir = t.TempDir()

	vs, err := OpenVectorStore(cfg, nil)
	require.NoError(t, err)
	simple, ok := vs.(*store.SimpleVectorStore)
	require.True(t, ok)
	assert.Equal(t, 0, simple.Count())

	_, err = vs.Add(ctx, []schema.Node{{ID: "n1", Text: "jitter 48 ms", Type: schema.ObjectTypeText, Embedding: []float64{1, 0}}})
	require.NoError(t, err)
	require.NoError(t, SaveVectorStore(cfg, vs))

	reopened, err := OpenVectorStore(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.(*store.SimpleVectorStore).Count())

	cfg.StoreKind = StoreChromem
	vs, err = OpenVectorStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &chromem.ChromemStore{}, vs)
	assert.NoError(t, SaveVectorStore(cfg, vs))
}

func TestOpenChatStore(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested")

	cs, err := OpenChatStore(cfg, nil)
	require.NoError(t, err)
	defer cs.Close()

	ctx := context.Background()
	require.NoError(t, cs.AddMessage(ctx, "s1", llm.NewUserMessage("hi"), -1))
	msgs, err := cs.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.FileExists(t, cfg.ChatHistoryDSN())
}

func TestOpenChatStore_JSON(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	path := filepath.Join(t.TempDir(), "history", "chat.json")
	cfg.ChatDSN = "json://" + path

	cs, err := OpenChatStore(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, cs.AddMessage(ctx, "s1", llm.NewUserMessage("kept"), -1))
	require.NoError(t, cs.Close())
	assert.FileExists(t, path)

	cs, err = OpenChatStore(cfg, nil)
	require.NoError(t, err)
	defer cs.Close()
	msgs, err := cs.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", msgs[0].Content)
}
