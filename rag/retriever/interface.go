// Package retriever finds the chunks most relevant to a question.
package retriever

import (
	"context"

	"github.com/aqua777/go-callrag/schema"
)

// Retriever is the interface for all retrievers.
type Retriever interface {
	// Retrieve retrieves nodes given a query.
	Retrieve(ctx context.Context, query schema.QueryBundle) ([]schema.NodeWithScore, error)
}

// UserFilter restricts retrieval to records organized by upn.
func UserFilter(upn string) *schema.MetadataFilters {
	return schema.NewMetadataFilters(schema.NewMetadataFilter("organizerUPN", upn))
}

// mergeFilters joins two AND filter sets. When either set is an OR set the
// query filters are used alone.
func mergeFilters(base, query *schema.MetadataFilters) *schema.MetadataFilters {
	switch {
	case base == nil || len(base.Filters) == 0:
		return query
	case query == nil || len(query.Filters) == 0:
		return base
	case base.Condition == schema.FilterConditionOr || query.Condition == schema.FilterConditionOr:
		return query
	}
	filters := make([]schema.MetadataFilter, 0, len(base.Filters)+len(query.Filters))
	filters = append(filters, base.Filters...)
	filters = append(filters, query.Filters...)
	return schema.NewMetadataFilters(filters...)
}
