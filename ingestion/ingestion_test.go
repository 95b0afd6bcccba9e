package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-callrag/embedding"
	"github.com/aqua777/go-callrag/rag/store"
	"github.com/aqua777/go-callrag/schema"
	"github.com/aqua777/go-callrag/textsplitter"
)

func words(n int, word string) string {
	w := make([]string, n)
	for i := range w {
		w[i] = word
	}
	return strings.Join(w, " ")
}

func TestPipeline_Chunk(t *testing.T) {
	splitter, err := textsplitter.NewWordWindowSplitter(4, 1)
	require.NoError(t, err)
	p := NewPipeline(embedding.NewHashEmbedding(8), store.NewSimpleVectorStore(), WithSplitter(splitter))

	docs := []schema.Node{
		*schema.NewDocument("call-1", "one two three four five six seven", map[string]interface{}{"route": "network"}),
		*schema.NewDocument("empty", "   ", nil),
		*schema.NewDocument("call-2", "one two three four five six seven", nil),
	}
	chunks, dups := p.Chunk(docs)

	require.Len(t, chunks, 3)
	assert.Equal(t, 3, dups)
	assert.Equal(t, "call-1-chunk-0", chunks[0].ID)
	assert.Equal(t, "one two three four", chunks[0].Text)
	assert.Equal(t, "call-1-chunk-1", chunks[1].ID)
	assert.Equal(t, "four five six seven", chunks[1].Text)
	assert.Equal(t, "call-1-chunk-2", chunks[2].ID)
	assert.Equal(t, "seven", chunks[2].Text)

	for _, c := range chunks {
		assert.Equal(t, "call-1", c.SourceID)
		assert.Equal(t, schema.ObjectTypeText, c.Type)
		assert.Equal(t, "network", c.Metadata["route"])
		assert.NotEmpty(t, c.Hash)
	}
	assert.Equal(t, 2, chunks[2].Metadata[MetaChunkIndex])
	// The source document metadata must not be shared with its chunks.
	assert.NotContains(t, docs[0].Metadata, MetaChunkIndex)
}

func TestPipeline_Run(t *testing.T) {
	vs := store.NewSimpleVectorStore()
	var progress [][2]int
	p := NewPipeline(embedding.NewHashEmbedding(16), vs,
		WithBatchSize(2),
		WithProgress(func(done, total int) { progress = append(progress, [2]int{done, total}) }),
	)

	docs := []schema.Node{
		*schema.NewDocument("a", "average jitter 45 ms on wifi", nil),
		*schema.NewDocument("b", "mic glitch rate 12 per 5 min", nil),
		*schema.NewDocument("c", "teams vdi optimized client", nil),
	}
	stats, err := p.Run(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 16, stats.Dimensions)
	assert.Equal(t, 3, vs.Count())
	assert.Equal(t, [][2]int{{2, 3}, {3, 3}}, progress)

	r, err := vs.Query(context.Background(), schema.VectorStoreQuery{
		Embedding: mustEmbed(t, "average jitter 45 ms on wifi"),
		TopK:      1,
	})
	require.NoError(t, err)
	require.Len(t, r, 1)
	assert.Equal(t, "a-chunk-0", r[0].Node.ID)

	require.NoError(t, vs.Delete(context.Background(), "a"))
	assert.Equal(t, 2, vs.Count())
}

func mustEmbed(t *testing.T, text string) []float64 {
	t.Helper()
	v, err := embedding.NewHashEmbedding(16).GetQueryEmbedding(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestPipeline_Cache(t *testing.T) {
	mock := &embedding.MockEmbeddingModel{Embedding: []float64{1, 0, 0}}
	cache := NewEmbeddingCache(WithCacheCollection("mock"))
	docs := []schema.Node{*schema.NewDocument("a", "packet loss", nil)}

	_, err := NewPipeline(mock, store.NewSimpleVectorStore(), WithCache(cache)).Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Len(t, mock.Texts(), 1)
	assert.Equal(t, 1, cache.Len(""))

	stats, err := NewPipeline(mock, store.NewSimpleVectorStore(), WithCache(cache)).Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Len(t, mock.Texts(), 1)
	assert.Equal(t, 1, stats.Cached)
}

func TestPipeline_CacheCollectionsPerModel(t *testing.T) {
	docs := []schema.Node{*schema.NewDocument("a", "packet loss", nil)}
	cache := NewEmbeddingCache()

	modelA := &embedding.MockEmbeddingModel{Embedding: []float64{1, 0, 0}}
	_, err := NewPipeline(modelA, store.NewSimpleVectorStore(), WithCache(cache)).Run(context.Background(), docs)
	require.NoError(t, err)

	modelB := &embedding.MockEmbeddingModel{Embedding: []float64{0, 1, 0}}
	vs := store.NewSimpleVectorStore()
	stats, err := NewPipeline(modelB, vs, WithCache(cache), WithCacheCollectionName("model-b")).Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Zero(t, stats.Cached)
	assert.Len(t, modelB.Texts(), 1)

	vec, ok := cache.Get(ContentKey("packet loss"), "model-b")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1, 0}, vec)
}

func TestPipeline_Errors(t *testing.T) {
	docs := []schema.Node{*schema.NewDocument("a", "round trip time", nil)}

	_, err := NewPipeline(embedding.NewHashEmbedding(4), nil).Run(context.Background(), docs)
	assert.ErrorIs(t, err, ErrNoStore)

	boom := errors.New("rate limited")
	_, err = NewPipeline(&embedding.MockEmbeddingModel{Err: boom}, store.NewSimpleVectorStore()).Run(context.Background(), docs)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewPipeline(embedding.NewHashEmbedding(4), store.NewSimpleVectorStore()).Run(ctx, docs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbeddingCache_Persist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c := NewEmbeddingCache()
	c.Put(ContentKey("jitter"), []float64{0.1, 0.2}, "")
	c.Put(ContentKey("jitter"), []float64{9}, "other")
	require.NoError(t, c.Persist(path))

	loaded, err := NewEmbeddingCacheFromPath(path)
	require.NoError(t, err)
	vec, ok := loaded.Get(ContentKey("jitter"), "")
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.2}, vec)
	vec, ok = loaded.Get(ContentKey("jitter"), "other")
	require.True(t, ok)
	assert.Equal(t, []float64{9}, vec)

	loaded.Clear("other")
	_, ok = loaded.Get(ContentKey("jitter"), "other")
	assert.False(t, ok)

	fresh, err := NewEmbeddingCacheFromPath(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Len(""))
}
