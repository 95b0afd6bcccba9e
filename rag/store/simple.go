package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aqua777/go-callrag/embedding"
	"github.com/aqua777/go-callrag/schema"
)

// DistanceStrategy selects how SimpleVectorStore scores candidates.
type DistanceStrategy string

const (
	// DistanceCosine scores by cosine similarity.
	DistanceCosine DistanceStrategy = "cosine"
	// DistanceL2 ranks by euclidean distance and scores 1/(1+d).
	DistanceL2 DistanceStrategy = "l2"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the store's dimension.
	ErrDimensionMismatch = embedding.ErrDimensionMismatch
	// ErrNoEmbedding is returned when a node or query carries no vector.
	ErrNoEmbedding = errors.New("missing embedding")
)

// SimpleVectorStore is an in-memory exact search store. Results with equal
// scores come back in insertion order.
type SimpleVectorStore struct {
	mu       sync.RWMutex
	strategy DistanceStrategy
	dim      int
	order    []string
	nodes    map[string]schema.Node
	logger   *slog.Logger
}

var (
	_ VectorStore = (*SimpleVectorStore)(nil)
	_ Counter     = (*SimpleVectorStore)(nil)
)

// SimpleOption configures a SimpleVectorStore.
type SimpleOption func(*SimpleVectorStore)

// WithDistanceStrategy sets the scoring strategy. Unknown values fall back to cosine.
func WithDistanceStrategy(strategy DistanceStrategy) SimpleOption {
	return func(s *SimpleVectorStore) {
		if strategy == DistanceL2 {
			s.strategy = DistanceL2
			return
		}
		s.strategy = DistanceCosine
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SimpleOption {
	return func(s *SimpleVectorStore) {
		s.logger = logger
	}
}

// NewSimpleVectorStore creates a new SimpleVectorStore.
func NewSimpleVectorStore(opts ...SimpleOption) *SimpleVectorStore {
	s := &SimpleVectorStore{
		strategy: DistanceCosine,
		nodes:    make(map[string]schema.Node),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strategy returns the scoring strategy.
func (s *SimpleVectorStore) Strategy() DistanceStrategy {
	return s.strategy
}

// Dimension returns the vector size fixed by the first added node, or 0.
func (s *SimpleVectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

func (s *SimpleVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Add stores nodes. Re-adding an ID replaces the node but keeps its position.
// The batch is validated before any node is stored.
func (s *SimpleVectorStore) Add(ctx context.Context, nodes []schema.Node) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for _, node := range nodes {
		if node.ID == "" {
			return nil, errors.New("node ID cannot be empty")
		}
		if len(node.Embedding) == 0 {
			return nil, fmt.Errorf("node %s: %w", node.ID, ErrNoEmbedding)
		}
		if dim == 0 {
			dim = len(node.Embedding)
		}
		if len(node.Embedding) != dim {
			return nil, fmt.Errorf("node %s: %w: got %d, want %d", node.ID, ErrDimensionMismatch, len(node.Embedding), dim)
		}
	}

	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if _, exists := s.nodes[node.ID]; !exists {
			s.order = append(s.order, node.ID)
		}
		s.nodes[node.ID] = node.Clone()
		ids = append(ids, node.ID)
	}
	s.dim = dim
	s.logger.Debug("nodes added to simple vector store", "count", len(ids), "total", len(s.order))
	return ids, nil
}

func (s *SimpleVectorStore) Query(ctx context.Context, query schema.VectorStoreQuery) ([]schema.NodeWithScore, error) {
	if len(query.Embedding) == 0 {
		return nil, fmt.Errorf("query: %w", ErrNoEmbedding)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(query.Embedding) != s.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(query.Embedding), s.dim)
	}

	results := make([]schema.NodeWithScore, 0, len(s.order))
	for _, id := range s.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := s.nodes[id]
		if !query.Filters.Match(node.Metadata) {
			continue
		}
		score, err := s.score(query.Embedding, node.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to score node %s: %w", id, err)
		}
		results = append(results, schema.NodeWithScore{Node: node.Clone(), Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k := query.GetTopK(); len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *SimpleVectorStore) score(q, v []float64) (float64, error) {
	if s.strategy == DistanceL2 {
		return embedding.EuclideanSimilarity(q, v)
	}
	return embedding.CosineSimilarity(q, v)
}

// Delete removes a node by ID along with every chunk derived from it.
func (s *SimpleVectorStore) Delete(ctx context.Context, refDocID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		node := s.nodes[id]
		if id == refDocID || node.SourceID == refDocID {
			delete(s.nodes, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	if len(s.order) == 0 {
		s.dim = 0
	}
	return nil
}
