package evaluation

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqua777/go-callrag/embedding"
)

// DefaultSimilarityThreshold is the cosine similarity an answer needs to pass.
const DefaultSimilarityThreshold = 0.8

// SemanticSimilarityEvaluator embeds the answer and the reference and passes
// the answer when their similarity reaches the threshold.
type SemanticSimilarityEvaluator struct {
	embedModel          embedding.EmbeddingModel
	similarityType      embedding.SimilarityType
	similarityThreshold float64
}

var _ Evaluator = (*SemanticSimilarityEvaluator)(nil)

// SemanticSimilarityEvaluatorOption configures a SemanticSimilarityEvaluator.
type SemanticSimilarityEvaluatorOption func(*SemanticSimilarityEvaluator)

// WithSimilarityType selects cosine (default), dot product or euclidean similarity.
func WithSimilarityType(t embedding.SimilarityType) SemanticSimilarityEvaluatorOption {
	return func(e *SemanticSimilarityEvaluator) {
		e.similarityType = t
	}
}

// WithSimilarityThreshold sets the similarity needed to pass.
func WithSimilarityThreshold(threshold float64) SemanticSimilarityEvaluatorOption {
	return func(e *SemanticSimilarityEvaluator) {
		e.similarityThreshold = threshold
	}
}

// NewSemanticSimilarityEvaluator creates a new SemanticSimilarityEvaluator.
func NewSemanticSimilarityEvaluator(model embedding.EmbeddingModel, opts ...SemanticSimilarityEvaluatorOption) *SemanticSimilarityEvaluator {
	e := &SemanticSimilarityEvaluator{
		embedModel:          model,
		similarityType:      embedding.SimilarityTypeCosine,
		similarityThreshold: DefaultSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *SemanticSimilarityEvaluator) Name() string {
	return "semantic_similarity"
}

func (e *SemanticSimilarityEvaluator) Evaluate(ctx context.Context, input *EvaluateInput) (*EvaluationResult, error) {
	if input.Response == "" {
		return NewEvaluationResult().WithQuery(input.Query).WithInvalid("response must be provided"), nil
	}
	if input.Reference == "" {
		return NewEvaluationResult().WithQuery(input.Query).WithInvalid("reference must be provided"), nil
	}
	if e.embedModel == nil {
		return nil, errors.New("embedding model must be provided for semantic similarity evaluation")
	}

	responseEmbedding, err := e.embedModel.GetTextEmbedding(ctx, input.Response)
	if err != nil {
		return nil, fmt.Errorf("failed to get response embedding: %w", err)
	}
	referenceEmbedding, err := e.embedModel.GetTextEmbedding(ctx, input.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to get reference embedding: %w", err)
	}

	similarity, err := embedding.Similarity(responseEmbedding, referenceEmbedding, e.similarityType)
	if err != nil {
		return nil, fmt.Errorf("failed to compare embeddings: %w", err)
	}

	return NewEvaluationResult().
		WithQuery(input.Query).
		WithResponse(input.Response).
		WithReference(input.Reference).
		WithPassing(similarity >= e.similarityThreshold).
		WithScore(similarity).
		WithFeedback(fmt.Sprintf("Similarity score: %.4f (threshold: %.4f)", similarity, e.similarityThreshold)), nil
}
