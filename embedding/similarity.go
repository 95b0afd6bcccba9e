package embedding

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when two vectors differ in length.
var ErrDimensionMismatch = errors.New("vectors must have same length")

// SimilarityType represents the type of similarity metric.
type SimilarityType string

const (
	// SimilarityTypeCosine uses cosine similarity (default for most use cases).
	SimilarityTypeCosine SimilarityType = "cosine"
	// SimilarityTypeEuclidean uses Euclidean distance converted to 1/(1+d).
	SimilarityTypeEuclidean SimilarityType = "euclidean"
	// SimilarityTypeDotProduct uses dot product similarity.
	SimilarityTypeDotProduct SimilarityType = "dot_product"
)

func checkPair(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return errors.New("vectors must not be empty")
	}
	return nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float64) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// DotProduct calculates the dot product between two vectors.
func DotProduct(a, b []float64) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	var result float64
	for i := range a {
		result += a[i] * b[i]
	}
	return result, nil
}

// EuclideanDistance calculates the Euclidean (L2) distance between two vectors.
func EuclideanDistance(a, b []float64) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum), nil
}

// EuclideanSimilarity converts Euclidean distance to a similarity in (0, 1].
func EuclideanSimilarity(a, b []float64) (float64, error) {
	dist, err := EuclideanDistance(a, b)
	if err != nil {
		return 0, err
	}
	return 1.0 / (1.0 + dist), nil
}

// Similarity calculates similarity between two vectors using the specified metric.
func Similarity(a, b []float64, simType SimilarityType) (float64, error) {
	switch simType {
	case SimilarityTypeDotProduct:
		return DotProduct(a, b)
	case SimilarityTypeEuclidean:
		return EuclideanSimilarity(a, b)
	default:
		return CosineSimilarity(a, b)
	}
}

// Normalize returns v scaled to unit length.
func Normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, errors.New("vector must not be empty")
	}
	norm := Magnitude(v)
	if norm == 0 {
		return nil, errors.New("cannot normalize zero vector")
	}
	result := make([]float64, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result, nil
}

// Magnitude calculates the L2 norm of a vector.
func Magnitude(v []float64) float64 {
	var sum float64
	for _, val := range v {
		sum += val * val
	}
	return math.Sqrt(sum)
}

// TopKSimilar finds the top K most similar vectors to a query vector.
// Results are sorted by similarity, descending; ties keep input order.
func TopKSimilar(query []float64, vectors [][]float64, k int, simType SimilarityType) ([]int, []float64, error) {
	if k <= 0 {
		return nil, nil, errors.New("k must be positive")
	}
	if len(vectors) == 0 {
		return nil, nil, nil
	}
	if k > len(vectors) {
		k = len(vectors)
	}

	type scoredIndex struct {
		index int
		score float64
	}
	scores := make([]scoredIndex, len(vectors))
	for i, v := range vectors {
		sim, err := Similarity(query, v, simType)
		if err != nil {
			return nil, nil, fmt.Errorf("error computing similarity for vector %d: %w", i, err)
		}
		scores[i] = scoredIndex{index: i, score: sim}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	indices := make([]int, k)
	similarities := make([]float64, k)
	for i := 0; i < k; i++ {
		indices[i] = scores[i].index
		similarities[i] = scores[i].score
	}
	return indices, similarities, nil
}
