// Package store holds the vector stores chunks are indexed into.
package store

import (
	"context"

	"github.com/aqua777/go-callrag/schema"
)

// VectorStore is the interface for storing and querying vectors.
type VectorStore interface {
	// Add adds nodes to the store.
	Add(ctx context.Context, nodes []schema.Node) ([]string, error)
	// Query finds the top-k most similar nodes to the query embedding.
	Query(ctx context.Context, query schema.VectorStoreQuery) ([]schema.NodeWithScore, error)
	// Delete removes the node with this ID and every chunk whose SourceID is refDocID.
	Delete(ctx context.Context, refDocID string) error
}

// Counter is implemented by stores that can report their size.
type Counter interface {
	Count() int
}
