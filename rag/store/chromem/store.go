// Package chromem adapts chromem-go to the store.VectorStore interface.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/philippgille/chromem-go"

	"github.com/aqua777/go-callrag/rag/store"
	"github.com/aqua777/go-callrag/schema"
)

// Reserved metadata keys used to round-trip node fields through chromem.
const (
	metaNodeType = "_node_type"
	metaSourceID = "_source_id"
	metaHash     = "_hash"
)

// ChromemStore is a vector store implementation using chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *slog.Logger
}

var (
	_ store.VectorStore = (*ChromemStore)(nil)
	_ store.Counter     = (*ChromemStore)(nil)
)

// NewChromemStore creates a new ChromemStore.
// If persistPath is empty, the store will be in-memory only.
func NewChromemStore(persistPath string, collectionName string) (*ChromemStore, error) {
	var db *chromem.DB
	if persistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Embeddings are computed by the ingestion pipeline, so no embedding func.
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		logger:     slog.Default(),
	}, nil
}

// WithLogger sets the logger and returns the store.
func (s *ChromemStore) WithLogger(logger *slog.Logger) *ChromemStore {
	s.logger = logger
	return s
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

// Add adds nodes to the store.
func (s *ChromemStore) Add(ctx context.Context, nodes []schema.Node) ([]string, error) {
	docs := make([]chromem.Document, len(nodes))
	ids := make([]string, len(nodes))

	for i, node := range nodes {
		if len(node.Embedding) == 0 {
			return nil, fmt.Errorf("node %s: %w", node.ID, store.ErrNoEmbedding)
		}

		// chromem metadata is map[string]string.
		meta := make(map[string]string, len(node.Metadata)+3)
		for k, v := range node.Metadata {
			meta[k] = schema.FormatValue(v)
		}
		meta[metaNodeType] = string(node.Type)
		if node.SourceID != "" {
			meta[metaSourceID] = node.SourceID
		}
		if node.Hash != "" {
			meta[metaHash] = node.Hash
		}

		docs[i] = chromem.Document{
			ID:        node.ID,
			Content:   node.Text,
			Metadata:  meta,
			Embedding: toFloat32(node.Embedding),
		}
		ids[i] = node.ID
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents to chromem collection: %w", err)
	}
	s.logger.Debug("nodes added to chromem collection", "count", len(ids), "total", s.collection.Count())
	return ids, nil
}

// Query finds the top-k most similar nodes to the query embedding.
// Equality filters joined by AND are pushed down to chromem; anything else
// is applied to the full candidate list afterwards.
func (s *ChromemStore) Query(ctx context.Context, query schema.VectorStoreQuery) ([]schema.NodeWithScore, error) {
	if len(query.Embedding) == 0 {
		return nil, fmt.Errorf("query: %w", store.ErrNoEmbedding)
	}
	total := s.collection.Count()
	if total == 0 {
		return nil, nil
	}

	topK := query.GetTopK()
	where, pushed := pushDown(query.Filters)
	n := topK
	if !pushed {
		n = total
	}
	n = min(n, total)

	res, err := s.collection.QueryEmbedding(ctx, toFloat32(query.Embedding), n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromem collection: %w", err)
	}

	nodes := make([]schema.NodeWithScore, 0, len(res))
	for _, doc := range res {
		node := fromDocument(doc)
		if !pushed && !query.Filters.Match(node.Metadata) {
			continue
		}
		nodes = append(nodes, schema.NodeWithScore{Node: node, Score: float64(doc.Similarity)})
		if len(nodes) == topK {
			break
		}
	}
	return nodes, nil
}

// Delete removes a node by ID along with every chunk derived from it.
func (s *ChromemStore) Delete(ctx context.Context, refDocID string) error {
	if err := s.collection.Delete(ctx, nil, nil, refDocID); err != nil {
		return fmt.Errorf("failed to delete %s: %w", refDocID, err)
	}
	if err := s.collection.Delete(ctx, map[string]string{metaSourceID: refDocID}, nil); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", refDocID, err)
	}
	return nil
}

// pushDown converts filters chromem can evaluate natively into a where map.
// It reports false when post-filtering is needed.
func pushDown(filters *schema.MetadataFilters) (map[string]string, bool) {
	if filters == nil || len(filters.Filters) == 0 {
		return nil, true
	}
	if filters.Condition == schema.FilterConditionOr && len(filters.Filters) > 1 {
		return nil, false
	}
	where := make(map[string]string, len(filters.Filters))
	for _, f := range filters.Filters {
		if f.Operator != schema.FilterOperatorEq && f.Operator != "" {
			return nil, false
		}
		where[f.Key] = schema.FormatValue(f.Value)
	}
	return where, true
}

func fromDocument(doc chromem.Result) schema.Node {
	node := schema.Node{
		ID:       doc.ID,
		Text:     doc.Content,
		Type:     schema.ObjectTypeText,
		Metadata: make(map[string]interface{}, len(doc.Metadata)),
	}
	for k, v := range doc.Metadata {
		switch k {
		case metaNodeType:
			node.Type = schema.NodeType(v)
		case metaSourceID:
			node.SourceID = v
		case metaHash:
			node.Hash = v
		default:
			node.Metadata[k] = v
		}
	}
	return node
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
