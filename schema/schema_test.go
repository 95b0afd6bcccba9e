package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTextNode(t *testing.T) {
	node := NewTextNode("Call record for user adele.vance@contoso.com")
	assert.NotEmpty(t, node.ID)
	assert.Equal(t, ObjectTypeText, node.Type)
	assert.NotEmpty(t, node.Hash)
	assert.NotNil(t, node.Metadata)
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument("conf-1", "body", map[string]interface{}{"callType": "groupCall"})
	assert.Equal(t, "conf-1", doc.ID)
	assert.Equal(t, ObjectTypeDocument, doc.Type)
	assert.Equal(t, "groupCall", doc.Metadata["callType"])

	anon := NewDocument("", "body", nil)
	assert.NotEmpty(t, anon.ID)
	assert.NotNil(t, anon.Metadata)
}

func TestNodeGetContent(t *testing.T) {
	node := NewTextNode("jitter 45ms")
	node.Metadata = map[string]interface{}{
		"organizerUPN": "alex.wilber@contoso.com",
		"callType":     "peerToPeer",
	}

	assert.Equal(t, "jitter 45ms", node.GetContent(MetadataModeNone))

	content := node.GetContent(MetadataModeAll)
	assert.Equal(t, "callType: peerToPeer\norganizerUPN: alex.wilber@contoso.com\n\njitter 45ms", content)
}

func TestNodeMetadataExclusion(t *testing.T) {
	node := NewTextNode("content")
	node.Metadata = map[string]interface{}{
		"row_index": 3,
		"source":    "cdrs.jsonl",
		"route":     "network",
	}
	node.ExcludedLLMMetadataKeys = []string{"row_index"}
	node.ExcludedEmbedMetadataKeys = []string{"source"}

	llmStr := node.GetMetadataStr(MetadataModeLLM)
	assert.NotContains(t, llmStr, "row_index")
	assert.Contains(t, llmStr, "source: cdrs.jsonl")

	embedStr := node.GetMetadataStr(MetadataModeEmbed)
	assert.NotContains(t, embedStr, "source")
	assert.Contains(t, embedStr, "row_index: 3")
}

func TestNodeHash(t *testing.T) {
	a := NewTextNode("same")
	b := NewTextNode("same")
	assert.Equal(t, a.Hash, b.Hash)

	b.SetContent("different")
	assert.NotEqual(t, a.Hash, b.Hash)

	c := &Node{Text: "same", Type: ObjectTypeText}
	assert.Equal(t, a.Hash, c.GetHash())
}

func TestNodeClone(t *testing.T) {
	n := NewTextNode("x")
	n.Metadata["k"] = "v"
	n.Embedding = []float64{1, 2}

	c := n.Clone()
	c.Metadata["k"] = "changed"
	c.Embedding[0] = 9

	assert.Equal(t, "v", n.Metadata["k"])
	assert.Equal(t, 1.0, n.Embedding[0])
}

func TestVectorStoreQueryTopK(t *testing.T) {
	q := NewVectorStoreQuery([]float64{1}, 0)
	assert.Equal(t, DefaultTopK, q.GetTopK())
	q.TopK = 5
	assert.Equal(t, 5, q.GetTopK())
}

func TestMetadataFiltersMatch(t *testing.T) {
	meta := map[string]interface{}{
		"organizerUPN": "megan.bowen@contoso.com",
		"row_index":    4,
		"jitter_ms":    "42.5",
		"modalities":   []interface{}{"audio", "video"},
		"summary":      "Call type was groupCall",
	}

	tests := []struct {
		name    string
		filters *MetadataFilters
		want    bool
	}{
		{"nil matches", nil, true},
		{"eq string", NewMetadataFilters(NewMetadataFilter("organizerUPN", "megan.bowen@contoso.com")), true},
		{"eq mismatch", NewMetadataFilters(NewMetadataFilter("organizerUPN", "diego.siciliani@contoso.com")), false},
		{"eq numeric across types", NewMetadataFilters(NewMetadataFilter("row_index", 4.0)), true},
		{"gt numeric string", NewMetadataFilters(NewMetadataFilterWithOp("jitter_ms", 30, FilterOperatorGt)), true},
		{"lte", NewMetadataFilters(NewMetadataFilterWithOp("row_index", 3, FilterOperatorLte)), false},
		{"ne missing key", NewMetadataFilters(NewMetadataFilterWithOp("missing", "x", FilterOperatorNe)), true},
		{"in", NewMetadataFilters(NewMetadataFilterWithOp("row_index", []interface{}{1, 4}, FilterOperatorIn)), true},
		{"nin", NewMetadataFilters(NewMetadataFilterWithOp("row_index", []interface{}{1, 4}, FilterOperatorNin)), false},
		{"contains list", NewMetadataFilters(NewMetadataFilterWithOp("modalities", "video", FilterOperatorContains)), true},
		{"text match", NewMetadataFilters(NewMetadataFilterWithOp("summary", "GROUPCALL", FilterOperatorTextMatch)), true},
		{"missing key", NewMetadataFilters(NewMetadataFilter("missing", "x")), false},
		{
			"or condition",
			NewMetadataFiltersWithCondition(FilterConditionOr,
				NewMetadataFilter("organizerUPN", "nobody"),
				NewMetadataFilter("row_index", 4)),
			true,
		},
		{
			"and condition",
			NewMetadataFilters(
				NewMetadataFilter("organizerUPN", "megan.bowen@contoso.com"),
				NewMetadataFilter("row_index", 5)),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Match(meta))
		})
	}
}
