// Package postprocessor refines retrieved chunks before they are placed in a
// prompt.
package postprocessor

import (
	"context"

	"github.com/aqua777/go-callrag/schema"
)

// NodePostprocessor transforms retrieval results for one query.
type NodePostprocessor interface {
	PostprocessNodes(ctx context.Context, nodes []schema.NodeWithScore, query *schema.QueryBundle) ([]schema.NodeWithScore, error)
	Name() string
}

// Chain runs postprocessors in order.
type Chain []NodePostprocessor

var _ NodePostprocessor = Chain(nil)

func (c Chain) Name() string {
	return "chain"
}

func (c Chain) PostprocessNodes(ctx context.Context, nodes []schema.NodeWithScore, query *schema.QueryBundle) ([]schema.NodeWithScore, error) {
	var err error
	for _, p := range c {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		nodes, err = p.PostprocessNodes(ctx, nodes, query)
		if err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// SimilarityCutoff drops chunks scoring below Cutoff.
type SimilarityCutoff struct {
	Cutoff float64
}

var _ NodePostprocessor = (*SimilarityCutoff)(nil)

// NewSimilarityCutoff creates a SimilarityCutoff.
func NewSimilarityCutoff(cutoff float64) *SimilarityCutoff {
	return &SimilarityCutoff{Cutoff: cutoff}
}

func (p *SimilarityCutoff) Name() string {
	return "similarity_cutoff"
}

func (p *SimilarityCutoff) PostprocessNodes(ctx context.Context, nodes []schema.NodeWithScore, query *schema.QueryBundle) ([]schema.NodeWithScore, error) {
	out := make([]schema.NodeWithScore, 0, len(nodes))
	for _, n := range nodes {
		if n.Score >= p.Cutoff {
			out = append(out, n)
		}
	}
	return out, nil
}
