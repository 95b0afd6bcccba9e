package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/aqua777/go-callrag/schema"
)

type SimpleVectorStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *SimpleVectorStore
}

func TestSimpleVectorStoreSuite(t *testing.T) {
	suite.Run(t, new(SimpleVectorStoreSuite))
}

func (s *SimpleVectorStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewSimpleVectorStore()
	_, err := s.store.Add(s.ctx, []schema.Node{
		node("a", "call-1", []float64{1, 0}, map[string]interface{}{"route": "network", "row_index": 0}),
		node("b", "call-2", []float64{0, 1}, map[string]interface{}{"route": "vdi", "row_index": 1}),
		node("c", "call-3", []float64{1, 0}, map[string]interface{}{"route": "log", "row_index": 2}),
	})
	s.Require().NoError(err)
}

func node(id, source string, emb []float64, meta map[string]interface{}) schema.Node {
	return schema.Node{
		ID:        id,
		Text:      "text " + id,
		Type:      schema.ObjectTypeText,
		SourceID:  source,
		Metadata:  meta,
		Embedding: emb,
	}
}

func ids(results []schema.NodeWithScore) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Node.ID
	}
	return out
}

func (s *SimpleVectorStoreSuite) TestQuery_CosineTiesKeepInsertionOrder() {
	results, err := s.store.Query(s.ctx, schema.VectorStoreQuery{Embedding: []float64{1, 0}, TopK: 3})
	s.Require().NoError(err)
	s.Equal([]string{"a", "c", "b"}, ids(results))
	s.InDelta(1.0, results[0].Score, 1e-9)
	s.InDelta(0.0, results[2].Score, 1e-9)
}

func (s *SimpleVectorStoreSuite) TestQuery_TopK() {
	results, err := s.store.Query(s.ctx, schema.VectorStoreQuery{Embedding: []float64{0, 1}, TopK: 1})
	s.Require().NoError(err)
	s.Equal([]string{"b"}, ids(results))

	results, err = s.store.Query(s.ctx, schema.VectorStoreQuery{Embedding: []float64{0, 1}})
	s.Require().NoError(err)
	s.Len(results, 3)
}

func (s *SimpleVectorStoreSuite) TestQuery_L2() {
	st := NewSimpleVectorStore(WithDistanceStrategy(DistanceL2))
	_, err := st.Add(s.ctx, []schema.Node{
		node("far", "", []float64{3, 4}, nil),
		node("near", "", []float64{0, 1}, nil),
	})
	s.Require().NoError(err)

	results, err := st.Query(s.ctx, schema.VectorStoreQuery{Embedding: []float64{0, 0}, TopK: 2})
	s.Require().NoError(err)
	s.Equal([]string{"near", "far"}, ids(results))
	s.InDelta(0.5, results[0].Score, 1e-9)
	s.InDelta(1.0/6.0, results[1].Score, 1e-9)
}

func (s *SimpleVectorStoreSuite) TestQuery_Filters() {
	q := schema.NewVectorStoreQuery([]float64{1, 0}, 5).WithFilters(
		schema.NewMetadataFiltersWithCondition(schema.FilterConditionOr,
			schema.NewMetadataFilter("route", "vdi"),
			schema.NewMetadataFilter("route", "log"),
		))
	results, err := s.store.Query(s.ctx, *q)
	s.Require().NoError(err)
	s.Equal([]string{"c", "b"}, ids(results))

	q = schema.NewVectorStoreQuery([]float64{1, 0}, 5).WithFilters(
		schema.NewMetadataFilters(schema.NewMetadataFilterWithOp("row_index", 1, schema.FilterOperatorGte)))
	results, err = s.store.Query(s.ctx, *q)
	s.Require().NoError(err)
	s.Equal([]string{"c", "b"}, ids(results))
}

func (s *SimpleVectorStoreSuite) TestDimensionMismatch() {
	_, err := s.store.Add(s.ctx, []schema.Node{node("d", "", []float64{1, 2, 3}, nil)})
	s.ErrorIs(err, ErrDimensionMismatch)
	s.Equal(3, s.store.Count())

	_, err = s.store.Query(s.ctx, schema.VectorStoreQuery{Embedding: []float64{1, 2, 3}})
	s.ErrorIs(err, ErrDimensionMismatch)
}

func (s *SimpleVectorStoreSuite) TestAddValidation() {
	_, err := s.store.Add(s.ctx, []schema.Node{{Text: "no id", Embedding: []float64{1, 0}}})
	s.Error(err)

	_, err = s.store.Add(s.ctx, []schema.Node{{ID: "x"}})
	s.ErrorIs(err, ErrNoEmbedding)

	_, err = s.store.Query(s.ctx, schema.VectorStoreQuery{})
	s.ErrorIs(err, ErrNoEmbedding)
}

func (s *SimpleVectorStoreSuite) TestAddReplacesInPlace() {
	_, err := s.store.Add(s.ctx, []schema.Node{node("a", "call-1", []float64{0, 1}, nil)})
	s.Require().NoError(err)
	s.Equal(3, s.store.Count())

	results, err := s.store.Query(s.ctx, schema.VectorStoreQuery{Embedding: []float64{0, 1}, TopK: 3})
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c"}, ids(results))
}

func (s *SimpleVectorStoreSuite) TestDelete() {
	s.Require().NoError(s.store.Delete(s.ctx, "call-2"))
	s.Equal(2, s.store.Count())

	s.Require().NoError(s.store.Delete(s.ctx, "a"))
	s.Require().NoError(s.store.Delete(s.ctx, "c"))
	s.Equal(0, s.store.Count())
	s.Equal(0, s.store.Dimension())
}

func (s *SimpleVectorStoreSuite) TestPersistAndLoad() {
	dir := filepath.Join(s.T().TempDir(), "index")
	s.Require().NoError(s.store.Persist(dir))
	s.FileExists(filepath.Join(dir, IndexFileName))
	s.FileExists(filepath.Join(dir, MetadataFileName))

	loaded, err := LoadSimpleVectorStore(dir)
	s.Require().NoError(err)
	s.Equal(3, loaded.Count())
	s.Equal(2, loaded.Dimension())
	s.Equal(DistanceCosine, loaded.Strategy())

	results, err := loaded.Query(s.ctx, schema.VectorStoreQuery{Embedding: []float64{1, 0}, TopK: 3})
	s.Require().NoError(err)
	s.Equal([]string{"a", "c", "b"}, ids(results))
	s.Equal("call-1", results[0].Node.SourceID)
	s.Equal("network", results[0].Node.Metadata["route"])
	s.EqualValues(0, results[0].Node.Metadata["row_index"])
}

func (s *SimpleVectorStoreSuite) TestLoadCorrupt() {
	dir := s.T().TempDir()
	s.Require().NoError(s.store.Persist(dir))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, MetadataFileName), []byte(`[]`), 0o644))

	_, err := LoadSimpleVectorStore(dir)
	s.Error(err)

	_, err = LoadSimpleVectorStore(filepath.Join(dir, "missing"))
	s.Error(err)
}
