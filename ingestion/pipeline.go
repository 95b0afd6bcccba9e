package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aqua777/go-callrag/embedding"
	"github.com/aqua777/go-callrag/rag/store"
	"github.com/aqua777/go-callrag/schema"
	"github.com/aqua777/go-callrag/textsplitter"
)

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 64

// Metadata keys set on every chunk.
const (
	MetaChunkIndex = "chunk_index"
	MetaDocumentID = "document_id"
)

// ErrNoStore is returned when the pipeline has nowhere to write.
var ErrNoStore = errors.New("ingestion pipeline has no vector store")

// Stats summarizes one pipeline run.
type Stats struct {
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Duplicates int           `json:"duplicates"`
	Cached     int           `json:"cached"`
	Dimensions int           `json:"dimensions"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Pipeline splits documents into chunks, embeds them in batches and adds
// them to a vector store.
type Pipeline struct {
	splitter    textsplitter.TextSplitter
	embedModel  embedding.EmbeddingModel
	vectorStore store.VectorStore
	batchSize   int
	progress    embedding.ProgressCallback
	cache       *EmbeddingCache
	cacheColl   string
	logger      *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSplitter sets the text splitter. The default is the 200/50 word window.
func WithSplitter(splitter textsplitter.TextSplitter) PipelineOption {
	return func(p *Pipeline) {
		p.splitter = splitter
	}
}

// WithBatchSize sets how many chunks are embedded per batch.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithProgress sets a callback invoked after every batch with chunks done and total.
func WithProgress(cb embedding.ProgressCallback) PipelineOption {
	return func(p *Pipeline) {
		p.progress = cb
	}
}

// WithCache reuses embeddings for chunk text seen in an earlier run.
func WithCache(cache *EmbeddingCache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = cache
	}
}

// WithCacheCollectionName selects the cache collection, normally one per
// embedding model. Empty means the cache's default collection.
func WithCacheCollectionName(name string) PipelineOption {
	return func(p *Pipeline) {
		p.cacheColl = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline writing to vectorStore.
func NewPipeline(embedModel embedding.EmbeddingModel, vectorStore store.VectorStore, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		splitter:    textsplitter.NewDefaultWordWindowSplitter(),
		embedModel:  embedModel,
		vectorStore: vectorStore,
		batchSize:   DefaultBatchSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chunk splits documents into chunk nodes with ids of the form
// <docID>-chunk-<i>. Chunks whose text already appeared earlier in the
// batch are dropped; the second return value counts them.
func (p *Pipeline) Chunk(docs []schema.Node) ([]schema.Node, int) {
	seen := make(map[string]bool)
	var (
		chunks     []schema.Node
		duplicates int
	)
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		for i, text := range p.splitter.SplitText(doc.Text) {
			key := ContentKey(text)
			if seen[key] {
				duplicates++
				continue
			}
			seen[key] = true

			meta := make(map[string]interface{}, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta[MetaChunkIndex] = i
			meta[MetaDocumentID] = doc.ID

			chunk := schema.Node{
				ID:       doc.ID + "-chunk-" + strconv.Itoa(i),
				Text:     text,
				Type:     schema.ObjectTypeText,
				Metadata: meta,
				SourceID: doc.ID,
			}
			chunk.Hash = chunk.GenerateHash()
			chunks = append(chunks, chunk)
		}
	}
	return chunks, duplicates
}

// Run chunks, embeds and stores docs.
func (p *Pipeline) Run(ctx context.Context, docs []schema.Node) (Stats, error) {
	start := time.Now()
	stats := Stats{Documents: len(docs)}
	if p.vectorStore == nil {
		return stats, ErrNoStore
	}
	if p.embedModel == nil {
		return stats, errors.New("ingestion pipeline has no embedding model")
	}

	chunks, dups := p.Chunk(docs)
	stats.Chunks = len(chunks)
	stats.Duplicates = dups
	p.logger.Info("chunked documents", "documents", len(docs), "chunks", len(chunks), "duplicates", dups)

	for from := 0; from < len(chunks); from += p.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		to := from + p.batchSize
		if to > len(chunks) {
			to = len(chunks)
		}
		batch := chunks[from:to]
		cached, err := p.embedBatch(ctx, batch)
		if err != nil {
			return stats, fmt.Errorf("failed to embed chunks %d-%d: %w", from, to-1, err)
		}
		stats.Cached += cached
		if stats.Dimensions == 0 && len(batch) > 0 {
			stats.Dimensions = len(batch[0].Embedding)
		}
		if _, err := p.vectorStore.Add(ctx, batch); err != nil {
			return stats, fmt.Errorf("failed to add chunks to vector store: %w", err)
		}
		if p.progress != nil {
			p.progress(to, len(chunks))
		}
		p.logger.Debug("embedded batch", "done", to, "total", len(chunks), "cached", cached)
	}

	stats.Elapsed = time.Since(start)
	p.logger.Info("ingestion complete",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"dimensions", stats.Dimensions,
		"elapsed", stats.Elapsed.Round(time.Millisecond),
	)
	return stats, nil
}

// embedBatch fills in the Embedding of every chunk and returns how many came from the cache.
func (p *Pipeline) embedBatch(ctx context.Context, batch []schema.Node) (int, error) {
	var (
		missing []int
		texts   []string
		cached  int
	)
	for i := range batch {
		if p.cache != nil {
			if vec, ok := p.cache.Get(ContentKey(batch[i].Text), p.cacheColl); ok {
				batch[i].Embedding = vec
				cached++
				continue
			}
		}
		missing = append(missing, i)
		texts = append(texts, batch[i].Text)
	}
	if len(texts) == 0 {
		return cached, nil
	}

	vecs, err := embedding.GetTextEmbeddings(ctx, p.embedModel, texts, nil)
	if err != nil {
		return cached, err
	}
	if len(vecs) != len(texts) {
		return cached, fmt.Errorf("embedding model returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for j, i := range missing {
		batch[i].Embedding = vecs[j]
		if p.cache != nil {
			p.cache.Put(ContentKey(batch[i].Text), vecs[j], p.cacheColl)
		}
	}
	return cached, nil
}
