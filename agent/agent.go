// Package agent holds the diagnostic agents a routed call record is handed
// to, and the dispatcher that pairs the router with them.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/router"
)

// Agent inspects a record the router assigned to its category.
type Agent interface {
	Name() string
	Category() router.Category
	Handle(ctx context.Context, rec router.Record, decision router.Decision) (*Report, error)
}

// Report is an agent's verdict on one record.
type Report struct {
	RecordID    string          `json:"recordId,omitempty"`
	Agent       string          `json:"agent"`
	Category    router.Category `json:"category"`
	Summary     string          `json:"summary"`
	Findings    []string        `json:"findings,omitempty"`
	Actions     []string        `json:"actions,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
}

// String renders the report for terminal output.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", r.Agent, r.Summary)
	for _, f := range r.Findings {
		fmt.Fprintf(&sb, "\n  - %s", f)
	}
	if len(r.Actions) > 0 {
		sb.WriteString("\n  Recommended:")
		for _, a := range r.Actions {
			fmt.Fprintf(&sb, "\n  * %s", a)
		}
	}
	if r.Explanation != "" {
		fmt.Fprintf(&sb, "\n  %s", r.Explanation)
	}
	return sb.String()
}

// Option configures one of the canned agents.
type Option func(*base)

// WithAgentLLM makes the agent append a model-written explanation to its report.
func WithAgentLLM(model llm.LLM) Option {
	return func(b *base) {
		b.llm = model
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// base carries what the canned agents share: identity, the fields worth
// quoting in findings and the fixed recommendations.
type base struct {
	name     string
	category router.Category
	headline string
	fields   []string
	actions  []string
	llm      llm.LLM
	logger   *slog.Logger
}

func newBase(name string, category router.Category, headline string, fields, actions []string, opts []Option) base {
	b := base{
		name:     name,
		category: category,
		headline: headline,
		fields:   fields,
		actions:  actions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Category() router.Category {
	return b.category
}

func (b *base) Handle(ctx context.Context, rec router.Record, decision router.Decision) (*Report, error) {
	report := &Report{
		RecordID: recordID(rec),
		Agent:    b.name,
		Category: b.category,
		Summary:  b.headline,
		Actions:  append([]string(nil), b.actions...),
	}
	if decision.Routed() && decision.Reason != "" {
		report.Findings = append(report.Findings, "Triggered by "+decision.Reason)
	}
	for _, f := range b.fields {
		if f == decision.Field {
			continue
		}
		if v, ok := lookup(rec, f); ok {
			report.Findings = append(report.Findings, fmt.Sprintf("%s: %s", f, v))
		}
	}

	if b.llm != nil {
		explanation, err := b.llm.Complete(ctx, explainPrompt(report))
		if err != nil {
			return nil, fmt.Errorf("%s: explanation failed: %w", b.name, err)
		}
		report.Explanation = strings.TrimSpace(explanation)
	}

	b.logger.Debug("agent handled record", "agent", b.name, "record", report.RecordID, "findings", len(report.Findings))
	return report, nil
}

func explainPrompt(r *Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a Microsoft Teams call quality %s specialist.\n", r.Category)
	sb.WriteString("Explain in two or three sentences what most likely caused the problem below and what to check first.\n\n")
	fmt.Fprintf(&sb, "Summary: %s\n", r.Summary)
	for _, f := range r.Findings {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	return sb.String()
}

func recordID(rec router.Record) string {
	for _, k := range []string{"conferenceId", "id", "recordId"} {
		if v, ok := lookup(rec, k); ok {
			return v
		}
	}
	return ""
}

func lookup(rec router.Record, key string) (string, bool) {
	v, ok := rec[key]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" || s == "N/A" {
		return "", false
	}
	return s, true
}
