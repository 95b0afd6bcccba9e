package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aqua777/go-callrag/embedding"
	"github.com/aqua777/go-callrag/rag/store"
	"github.com/aqua777/go-callrag/schema"
)

// DefaultTopK is the number of chunks returned when no top-k is set.
const DefaultTopK = 5

// ErrEmptyQuery is returned for a blank query string.
var ErrEmptyQuery = errors.New("empty query")

// VectorRetriever embeds the query and searches a vector store.
type VectorRetriever struct {
	// VectorStore is the vector store to query.
	VectorStore store.VectorStore
	// EmbeddingModel is the model used to embed queries.
	EmbeddingModel embedding.EmbeddingModel
	// TopK is the number of results to return.
	TopK int
	// Filters apply to every query, in addition to the query's own filters.
	Filters *schema.MetadataFilters
	// Mode is the query mode for the vector store.
	Mode   schema.VectorStoreQueryMode
	logger *slog.Logger
}

// VectorRetrieverOption is a functional option for VectorRetriever.
type VectorRetrieverOption func(*VectorRetriever)

// WithTopK sets the number of results to return.
func WithTopK(topK int) VectorRetrieverOption {
	return func(vr *VectorRetriever) {
		vr.TopK = topK
	}
}

// WithFilters sets filters applied to every query.
func WithFilters(filters *schema.MetadataFilters) VectorRetrieverOption {
	return func(vr *VectorRetriever) {
		vr.Filters = filters
	}
}

// WithQueryMode sets the query mode.
func WithQueryMode(mode schema.VectorStoreQueryMode) VectorRetrieverOption {
	return func(vr *VectorRetriever) {
		vr.Mode = mode
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) VectorRetrieverOption {
	return func(vr *VectorRetriever) {
		vr.logger = logger
	}
}

// NewVectorRetriever creates a new VectorRetriever.
func NewVectorRetriever(
	vectorStore store.VectorStore,
	embeddingModel embedding.EmbeddingModel,
	opts ...VectorRetrieverOption,
) *VectorRetriever {
	vr := &VectorRetriever{
		VectorStore:    vectorStore,
		EmbeddingModel: embeddingModel,
		TopK:           DefaultTopK,
		Mode:           schema.QueryModeDefault,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(vr)
	}
	if vr.TopK < 1 {
		vr.TopK = DefaultTopK
	}
	return vr
}

// Retrieve retrieves nodes from the vector store, best match first.
func (vr *VectorRetriever) Retrieve(ctx context.Context, query schema.QueryBundle) ([]schema.NodeWithScore, error) {
	if strings.TrimSpace(query.QueryString) == "" {
		return nil, ErrEmptyQuery
	}
	queryEmbedding, err := vr.EmbeddingModel.GetQueryEmbedding(ctx, query.QueryString)
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}

	storeQuery := schema.VectorStoreQuery{
		Embedding: queryEmbedding,
		TopK:      vr.TopK,
		QueryStr:  query.QueryString,
		Filters:   mergeFilters(vr.Filters, query.Filters),
		Mode:      vr.Mode,
	}
	nodes, err := vr.VectorStore.Query(ctx, storeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}
	vr.logger.Debug("retrieved chunks", "query_len", len(query.QueryString), "top_k", vr.TopK, "hits", len(nodes))
	return nodes, nil
}

var _ Retriever = (*VectorRetriever)(nil)
