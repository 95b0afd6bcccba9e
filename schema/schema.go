package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Default templates for text formatting.
const (
	DefaultTextNodeTemplate  = "{metadata_str}\n\n{content}"
	DefaultMetadataTemplate  = "{key}: {value}"
	DefaultMetadataSeparator = "\n"
)

// NodeType represents the type of the node.
type NodeType string

const (
	// ObjectTypeText is a chunk of text produced by a splitter.
	ObjectTypeText NodeType = "TEXT"
	// ObjectTypeDocument is a whole source document before splitting.
	ObjectTypeDocument NodeType = "DOCUMENT"
)

// Node is a unit of text that can be embedded and stored.
type Node struct {
	ID                        string                 `json:"id"`
	Text                      string                 `json:"text"`
	Type                      NodeType               `json:"type"`
	Metadata                  map[string]interface{} `json:"metadata,omitempty"`
	Embedding                 []float64              `json:"embedding,omitempty"`
	Hash                      string                 `json:"hash,omitempty"`
	SourceID                  string                 `json:"source_id,omitempty"`
	ExcludedEmbedMetadataKeys []string               `json:"excluded_embed_metadata_keys,omitempty"`
	ExcludedLLMMetadataKeys   []string               `json:"excluded_llm_metadata_keys,omitempty"`
	MetadataTemplate          string                 `json:"metadata_template,omitempty"`
	MetadataSeparator         string                 `json:"metadata_separator,omitempty"`
	TextTemplate              string                 `json:"text_template,omitempty"`
}

// NewNode creates a new Node with default values.
func NewNode() *Node {
	return &Node{
		ID:                uuid.New().String(),
		Type:              ObjectTypeText,
		Metadata:          make(map[string]interface{}),
		MetadataTemplate:  DefaultMetadataTemplate,
		MetadataSeparator: DefaultMetadataSeparator,
		TextTemplate:      DefaultTextNodeTemplate,
	}
}

// NewTextNode creates a new text node with the given text.
func NewTextNode(text string) *Node {
	node := NewNode()
	node.Text = text
	node.Hash = node.GenerateHash()
	return node
}

// NewDocument creates a document node with the given id, text and metadata.
// An empty id is replaced with a random one.
func NewDocument(id, text string, metadata map[string]interface{}) *Node {
	node := NewNode()
	if id != "" {
		node.ID = id
	}
	node.Type = ObjectTypeDocument
	node.Text = text
	if metadata != nil {
		node.Metadata = metadata
	}
	node.Hash = node.GenerateHash()
	return node
}

// GetContent returns the content with metadata based on mode.
func (n *Node) GetContent(mode MetadataMode) string {
	metadataStr := strings.TrimSpace(n.GetMetadataStr(mode))
	if mode == MetadataModeNone || metadataStr == "" {
		return n.Text
	}
	template := n.TextTemplate
	if template == "" {
		template = DefaultTextNodeTemplate
	}
	result := strings.ReplaceAll(template, "{metadata_str}", metadataStr)
	result = strings.ReplaceAll(result, "{content}", n.Text)
	return strings.TrimSpace(result)
}

// SetContent sets the text content and refreshes the hash.
func (n *Node) SetContent(content string) {
	n.Text = content
	n.Hash = n.GenerateHash()
}

// GetMetadataStr returns metadata as a formatted string based on mode.
func (n *Node) GetMetadataStr(mode MetadataMode) string {
	if mode == MetadataModeNone {
		return ""
	}

	excludedKeys := make(map[string]bool)
	switch mode {
	case MetadataModeLLM:
		for _, key := range n.ExcludedLLMMetadataKeys {
			excludedKeys[key] = true
		}
	case MetadataModeEmbed:
		for _, key := range n.ExcludedEmbedMetadataKeys {
			excludedKeys[key] = true
		}
	}

	keys := make([]string, 0, len(n.Metadata))
	for key := range n.Metadata {
		if !excludedKeys[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	template := n.MetadataTemplate
	if template == "" {
		template = DefaultMetadataTemplate
	}
	separator := n.MetadataSeparator
	if separator == "" {
		separator = DefaultMetadataSeparator
	}

	var parts []string
	for _, key := range keys {
		formatted := strings.ReplaceAll(template, "{key}", key)
		formatted = strings.ReplaceAll(formatted, "{value}", FormatValue(n.Metadata[key]))
		parts = append(parts, formatted)
	}

	return strings.Join(parts, separator)
}

// FormatValue renders a metadata value as a string.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case nil:
		return ""
	default:
		bytes, _ := json.Marshal(val)
		return string(bytes)
	}
}

// GetHash returns the hash, computing it on first use.
func (n *Node) GetHash() string {
	if n.Hash == "" {
		n.Hash = n.GenerateHash()
	}
	return n.Hash
}

// GenerateHash generates a SHA256 hash of the node content.
func (n *Node) GenerateHash() string {
	h := sha256.New()
	h.Write([]byte("type=" + string(n.Type)))
	h.Write([]byte(n.GetContent(MetadataModeAll)))
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a copy of the node with its own metadata map and embedding.
func (n Node) Clone() Node {
	c := n
	if n.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	if n.Embedding != nil {
		c.Embedding = append([]float64(nil), n.Embedding...)
	}
	return c
}

// NodeWithScore represents a node with a similarity score.
type NodeWithScore struct {
	Node  Node    `json:"node"`
	Score float64 `json:"score"`
}

// QueryBundle carries the query string and optional metadata filters.
type QueryBundle struct {
	QueryString string           `json:"query_string"`
	Filters     *MetadataFilters `json:"filters,omitempty"`
}

// VectorStoreQueryMode represents the query mode for vector store queries.
type VectorStoreQueryMode string

const (
	// QueryModeDefault is exact similarity search.
	QueryModeDefault VectorStoreQueryMode = "default"
)

// DefaultTopK is used when a query does not set TopK.
const DefaultTopK = 10

// VectorStoreQuery represents a query to the vector store.
type VectorStoreQuery struct {
	Embedding []float64            `json:"embedding,omitempty"`
	TopK      int                  `json:"top_k,omitempty"`
	QueryStr  string               `json:"query_str,omitempty"`
	Mode      VectorStoreQueryMode `json:"mode,omitempty"`
	Filters   *MetadataFilters     `json:"filters,omitempty"`
}

// NewVectorStoreQuery creates a new VectorStoreQuery with defaults.
func NewVectorStoreQuery(embedding []float64, topK int) *VectorStoreQuery {
	return &VectorStoreQuery{
		Embedding: embedding,
		TopK:      topK,
		Mode:      QueryModeDefault,
	}
}

// WithFilters sets the metadata filters.
func (q *VectorStoreQuery) WithFilters(filters *MetadataFilters) *VectorStoreQuery {
	q.Filters = filters
	return q
}

// GetTopK returns the requested result count or DefaultTopK.
func (q *VectorStoreQuery) GetTopK() int {
	if q.TopK > 0 {
		return q.TopK
	}
	return DefaultTopK
}
