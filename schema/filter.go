package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterOperator represents the operator for a metadata filter.
type FilterOperator string

const (
	FilterOperatorEq        FilterOperator = "=="
	FilterOperatorNe        FilterOperator = "!="
	FilterOperatorGt        FilterOperator = ">"
	FilterOperatorGte       FilterOperator = ">="
	FilterOperatorLt        FilterOperator = "<"
	FilterOperatorLte       FilterOperator = "<="
	FilterOperatorIn        FilterOperator = "in"
	FilterOperatorNin       FilterOperator = "nin"
	FilterOperatorContains  FilterOperator = "contains"
	FilterOperatorTextMatch FilterOperator = "text_match"
)

// FilterCondition represents how multiple filters are combined.
type FilterCondition string

const (
	FilterConditionAnd FilterCondition = "and"
	FilterConditionOr  FilterCondition = "or"
)

// MetadataFilter represents a single metadata filter.
type MetadataFilter struct {
	Key      string         `json:"key"`
	Value    interface{}    `json:"value"`
	Operator FilterOperator `json:"operator"`
}

// NewMetadataFilter creates a new metadata filter with the EQ operator.
func NewMetadataFilter(key string, value interface{}) MetadataFilter {
	return MetadataFilter{Key: key, Value: value, Operator: FilterOperatorEq}
}

// NewMetadataFilterWithOp creates a new metadata filter with a specific operator.
func NewMetadataFilterWithOp(key string, value interface{}, op FilterOperator) MetadataFilter {
	return MetadataFilter{Key: key, Value: value, Operator: op}
}

// MetadataFilters is a set of filters joined by one condition.
type MetadataFilters struct {
	Filters   []MetadataFilter `json:"filters"`
	Condition FilterCondition  `json:"condition,omitempty"`
}

// NewMetadataFilters creates a new MetadataFilters with AND condition.
func NewMetadataFilters(filters ...MetadataFilter) *MetadataFilters {
	return &MetadataFilters{Filters: filters, Condition: FilterConditionAnd}
}

// NewMetadataFiltersWithCondition creates a new MetadataFilters with a specific condition.
func NewMetadataFiltersWithCondition(condition FilterCondition, filters ...MetadataFilter) *MetadataFilters {
	return &MetadataFilters{Filters: filters, Condition: condition}
}

// Match reports whether metadata satisfies the filter set.
// A nil or empty set matches everything.
func (mf *MetadataFilters) Match(metadata map[string]interface{}) bool {
	if mf == nil || len(mf.Filters) == 0 {
		return true
	}
	if mf.Condition == FilterConditionOr {
		for _, f := range mf.Filters {
			if f.Match(metadata) {
				return true
			}
		}
		return false
	}
	for _, f := range mf.Filters {
		if !f.Match(metadata) {
			return false
		}
	}
	return true
}

// Match reports whether metadata satisfies a single filter.
func (f MetadataFilter) Match(metadata map[string]interface{}) bool {
	actual, ok := metadata[f.Key]
	switch f.Operator {
	case FilterOperatorNe:
		return !ok || !valuesEqual(actual, f.Value)
	case FilterOperatorNin:
		return !ok || !inList(actual, f.Value)
	}
	if !ok {
		return false
	}

	switch f.Operator {
	case FilterOperatorEq, "":
		return valuesEqual(actual, f.Value)
	case FilterOperatorGt, FilterOperatorGte, FilterOperatorLt, FilterOperatorLte:
		a, okA := toFloat(actual)
		b, okB := toFloat(f.Value)
		if !okA || !okB {
			return false
		}
		switch f.Operator {
		case FilterOperatorGt:
			return a > b
		case FilterOperatorGte:
			return a >= b
		case FilterOperatorLt:
			return a < b
		default:
			return a <= b
		}
	case FilterOperatorIn:
		return inList(actual, f.Value)
	case FilterOperatorContains:
		if list, ok := actual.([]interface{}); ok {
			for _, item := range list {
				if valuesEqual(item, f.Value) {
					return true
				}
			}
			return false
		}
		if list, ok := actual.([]string); ok {
			for _, item := range list {
				if item == FormatValue(f.Value) {
					return true
				}
			}
			return false
		}
		return strings.Contains(FormatValue(actual), FormatValue(f.Value))
	case FilterOperatorTextMatch:
		return strings.Contains(strings.ToLower(FormatValue(actual)), strings.ToLower(FormatValue(f.Value)))
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func inList(actual, list interface{}) bool {
	switch l := list.(type) {
	case []interface{}:
		for _, item := range l {
			if valuesEqual(actual, item) {
				return true
			}
		}
	case []string:
		for _, item := range l {
			if valuesEqual(actual, item) {
				return true
			}
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
