// Package evaluation scores generated answers against reference answers from
// a question answering dataset.
package evaluation

import (
	"context"
)

// EvaluationResult is the verdict of one evaluator on one answer.
type EvaluationResult struct {
	Query     string `json:"query,omitempty"`
	Response  string `json:"response,omitempty"`
	Reference string `json:"reference,omitempty"`
	// Passing is nil when the evaluator could not judge the answer.
	Passing  *bool    `json:"passing,omitempty"`
	Feedback string   `json:"feedback,omitempty"`
	Score    *float64 `json:"score,omitempty"`
	// InvalidResult marks inputs the evaluator could not work with, such as an empty answer.
	InvalidResult bool   `json:"invalid_result,omitempty"`
	InvalidReason string `json:"invalid_reason,omitempty"`
}

// NewEvaluationResult creates a new EvaluationResult.
func NewEvaluationResult() *EvaluationResult {
	return &EvaluationResult{}
}

// WithQuery sets the query.
func (r *EvaluationResult) WithQuery(query string) *EvaluationResult {
	r.Query = query
	return r
}

// WithResponse sets the response.
func (r *EvaluationResult) WithResponse(response string) *EvaluationResult {
	r.Response = response
	return r
}

// WithReference sets the reference answer.
func (r *EvaluationResult) WithReference(reference string) *EvaluationResult {
	r.Reference = reference
	return r
}

// WithPassing sets the passing status.
func (r *EvaluationResult) WithPassing(passing bool) *EvaluationResult {
	r.Passing = &passing
	return r
}

// WithFeedback sets the feedback.
func (r *EvaluationResult) WithFeedback(feedback string) *EvaluationResult {
	r.Feedback = feedback
	return r
}

// WithScore sets the score.
func (r *EvaluationResult) WithScore(score float64) *EvaluationResult {
	r.Score = &score
	return r
}

// WithInvalid marks the result as invalid.
func (r *EvaluationResult) WithInvalid(reason string) *EvaluationResult {
	r.InvalidResult = true
	r.InvalidReason = reason
	return r
}

// IsPassing returns true if the evaluation passed.
func (r *EvaluationResult) IsPassing() bool {
	return r.Passing != nil && *r.Passing
}

// GetScore returns the score or 0 if not set.
func (r *EvaluationResult) GetScore() float64 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

// EvaluateInput is what an evaluator judges.
type EvaluateInput struct {
	Query     string
	Response  string
	Contexts  []string
	Reference string
}

// Evaluator is the interface for all evaluators.
type Evaluator interface {
	// Evaluate runs the evaluation with the given input.
	Evaluate(ctx context.Context, input *EvaluateInput) (*EvaluationResult, error)

	// Name returns the name of the evaluator.
	Name() string
}
