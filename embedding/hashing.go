package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of HashEmbedding.
const DefaultHashDimensions = 384

// HashEmbedding is an offline embedding model based on feature hashing.
// Lower-cased word unigrams and bigrams are hashed into signed buckets and
// the vector is L2-normalized, so texts that share words score high under
// cosine similarity. It needs no network access and is deterministic.
type HashEmbedding struct {
	dimensions int
}

var (
	_ EmbeddingModelWithBatch = (*HashEmbedding)(nil)
	_ EmbeddingModelWithInfo  = (*HashEmbedding)(nil)
)

// NewHashEmbedding creates a hashing embedder with the given dimensions.
// Non-positive values select DefaultHashDimensions.
func NewHashEmbedding(dimensions int) *HashEmbedding {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedding{dimensions: dimensions}
}

// GetTextEmbedding hashes text into a vector.
func (h *HashEmbedding) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

// GetQueryEmbedding hashes a query into a vector.
func (h *HashEmbedding) GetQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return h.GetTextEmbedding(ctx, query)
}

// GetTextEmbeddingsBatch hashes every text.
func (h *HashEmbedding) GetTextEmbeddingsBatch(ctx context.Context, texts []string, callback ProgressCallback) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
		if callback != nil {
			callback(i+1, len(texts))
		}
	}
	return out, nil
}

// Info describes the hashing model.
func (h *HashEmbedding) Info() EmbeddingInfo {
	return EmbeddingInfo{
		ModelName:  "feature-hash",
		Dimensions: h.dimensions,
		MaxTokens:  math.MaxInt32,
	}
}

func (h *HashEmbedding) embed(text string) []float64 {
	vec := make([]float64, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	norm := Magnitude(vec)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (h *HashEmbedding) add(vec []float64, feature string, weight float64) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
