package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aqua777/go-callrag/schema"
)

// File names written by Persist.
const (
	IndexFileName    = "index.json"
	MetadataFileName = "metadata.json"
)

type indexFile struct {
	Strategy  DistanceStrategy `json:"strategy"`
	Dimension int              `json:"dimension"`
	Vectors   [][]float64      `json:"vectors"`
}

// metadataRow mirrors one vector in index.json by position.
type metadataRow struct {
	RowIndex int                    `json:"row_index"`
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Type     schema.NodeType        `json:"type,omitempty"`
	SourceID string                 `json:"source_id,omitempty"`
	Hash     string                 `json:"hash,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Persist writes the vectors and their metadata rows into dir.
func (s *SimpleVectorStore) Persist(dir string) error {
	s.mu.RLock()
	idx := indexFile{Strategy: s.strategy, Dimension: s.dim, Vectors: make([][]float64, len(s.order))}
	rows := make([]metadataRow, len(s.order))
	for i, id := range s.order {
		n := s.nodes[id]
		idx.Vectors[i] = n.Embedding
		rows[i] = metadataRow{
			RowIndex: i,
			ID:       n.ID,
			Text:     n.Text,
			Type:     n.Type,
			SourceID: n.SourceID,
			Hash:     n.Hash,
			Metadata: n.Metadata,
		}
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, IndexFileName), idx); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetadataFileName), rows); err != nil {
		return err
	}
	s.logger.Info("vector store persisted", "dir", dir, "vectors", len(rows), "dimension", idx.Dimension)
	return nil
}

// LoadSimpleVectorStore restores a store written by Persist.
// Options apply after loading, so WithDistanceStrategy overrides the saved strategy.
func LoadSimpleVectorStore(dir string, opts ...SimpleOption) (*SimpleVectorStore, error) {
	var idx indexFile
	if err := readJSON(filepath.Join(dir, IndexFileName), &idx); err != nil {
		return nil, err
	}
	var rows []metadataRow
	if err := readJSON(filepath.Join(dir, MetadataFileName), &rows); err != nil {
		return nil, err
	}
	if len(rows) != len(idx.Vectors) {
		return nil, fmt.Errorf("corrupt store in %s: %d vectors but %d metadata rows", dir, len(idx.Vectors), len(rows))
	}

	s := NewSimpleVectorStore(append([]SimpleOption{WithDistanceStrategy(idx.Strategy)}, opts...)...)
	for i, row := range rows {
		if row.RowIndex < 0 || row.RowIndex >= len(idx.Vectors) {
			return nil, fmt.Errorf("corrupt store in %s: row %d points at vector %d", dir, i, row.RowIndex)
		}
		vec := idx.Vectors[row.RowIndex]
		if idx.Dimension != 0 && len(vec) != idx.Dimension {
			return nil, fmt.Errorf("row %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(vec), idx.Dimension)
		}
		node := schema.Node{
			ID:        row.ID,
			Text:      row.Text,
			Type:      row.Type,
			SourceID:  row.SourceID,
			Hash:      row.Hash,
			Metadata:  row.Metadata,
			Embedding: vec,
		}
		if node.Type == "" {
			node.Type = schema.ObjectTypeText
		}
		if _, exists := s.nodes[node.ID]; !exists {
			s.order = append(s.order, node.ID)
		}
		s.nodes[node.ID] = node
	}
	s.dim = idx.Dimension
	return s, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
