// Package router decides which diagnostic agent should look at a call
// record by walking a threshold decision table.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/aqua777/go-callrag/cdr"
)

// Record is a flat view of one call record. Keys may be plain names or
// dotted paths; values may be numbers or strings.
type Record map[string]interface{}

// RecordFromSummary builds a record from a flattened call record.
func RecordFromSummary(s cdr.Summary) Record {
	rec := make(Record, len(s.Fields))
	for k, v := range s.Fields {
		rec[k] = v
	}
	return rec
}

// RecordFromCall flattens a nested call record and returns its routing view.
func RecordFromCall(c *cdr.CallRecord) Record {
	return RecordFromSummary(cdr.Flatten(c))
}

// RecordFromFlat returns the routing view of a flat record.
func RecordFromFlat(f cdr.FlatRecord) Record {
	return RecordFromSummary(cdr.SummarizeFlat(f))
}

// RecordFromJSON flattens an arbitrary JSON object into a record keyed by
// dotted paths. Null leaves are dropped.
func RecordFromJSON(data []byte) (Record, error) {
	kvs, err := cdr.FlattenJSON(data)
	if err != nil {
		return nil, err
	}
	rec := make(Record, len(kvs))
	for _, kv := range kvs {
		if kv.Value == "null" {
			continue
		}
		rec[kv.Key] = kv.Value
	}
	return rec, nil
}

// Decision is the outcome of routing one record.
type Decision struct {
	Category Category `json:"category"`
	Rule     string   `json:"rule,omitempty"`
	Field    string   `json:"field,omitempty"`
	Value    string   `json:"value,omitempty"`
	Reason   string   `json:"reason"`
}

// Routed reports whether any rule fired.
func (d Decision) Routed() bool {
	return d.Category != CategoryNone
}

// Router evaluates a decision table against records.
type Router struct {
	rules  []Rule
	logger *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithRules replaces the decision table. Rules are evaluated in order.
func WithRules(rules []Rule) Option {
	return func(r *Router) {
		r.rules = append([]Rule(nil), rules...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a router with the default rules.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		rules:  DefaultRules(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rules returns a copy of the decision table.
func (r *Router) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Route returns the first rule that fires for rec, or CategoryNone.
// Values that cannot be coerced to the rule's unit never fire a rule.
func (r *Router) Route(rec Record) Decision {
	idx := index(rec)
	for _, rule := range r.rules {
		if d, ok := evaluate(rule, idx); ok {
			r.logger.Debug("record routed", "category", d.Category, "rule", d.Rule, "field", d.Field, "value", d.Value)
			return d
		}
	}
	return Decision{Category: CategoryNone, Reason: "no threshold exceeded"}
}

// Tally counts decisions per category, including CategoryNone.
func Tally(decisions []Decision) map[Category]int {
	counts := map[Category]int{
		CategoryNetwork: 0,
		CategoryVDI:     0,
		CategoryLog:     0,
		CategoryNone:    0,
	}
	for _, d := range decisions {
		counts[d.Category]++
	}
	return counts
}

type entry struct {
	key   string
	value interface{}
}

// index groups record entries by normalized field name. Dotted keys are
// indexed under their last segment.
func index(rec Record) map[string][]entry {
	idx := make(map[string][]entry, len(rec))
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	// Map order is random; keep matches reproducible.
	sort.Strings(keys)
	for _, k := range keys {
		n := normalize(leaf(k))
		idx[n] = append(idx[n], entry{key: k, value: rec[k]})
	}
	return idx
}

func evaluate(rule Rule, idx map[string][]entry) (Decision, bool) {
	for _, field := range rule.Fields {
		for _, e := range idx[normalize(field)] {
			if rule.Operator == OpContains {
				text := strings.ToLower(stringify(e.value))
				for _, kw := range rule.Keywords {
					if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
						return Decision{
							Category: rule.Category,
							Rule:     rule.Name,
							Field:    e.key,
							Value:    stringify(e.value),
							Reason:   fmt.Sprintf("%s %q contains %q", e.key, stringify(e.value), kw),
						}, true
					}
				}
				continue
			}

			v, ok := Coerce(e.value, rule.Unit)
			if !ok || !compare(v, rule.Operator, rule.Threshold) {
				continue
			}
			unit := ""
			if rule.Unit == UnitMilliseconds {
				unit = " ms"
			}
			return Decision{
				Category: rule.Category,
				Rule:     rule.Name,
				Field:    e.key,
				Value:    stringify(e.value),
				Reason: fmt.Sprintf("%s %s%s %s %s%s", e.key,
					strconv.FormatFloat(v, 'f', -1, 64), unit, rule.Operator,
					strconv.FormatFloat(rule.Threshold, 'f', -1, 64), unit),
			}, true
		}
	}
	return Decision{}, false
}

func compare(v float64, op Operator, threshold float64) bool {
	switch op {
	case OpGreater:
		return v > threshold
	case OpGreaterEqual:
		return v >= threshold
	case OpLess:
		return v < threshold
	case OpLessEqual:
		return v <= threshold
	}
	return false
}

func normalize(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func leaf(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		key = key[i+1:]
	}
	if i := strings.Index(key, "["); i >= 0 {
		key = key[:i]
	}
	return key
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case *cdr.Duration:
		if s == nil {
			return ""
		}
		return s.String()
	case fmt.Stringer:
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
