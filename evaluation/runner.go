package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aqua777/go-callrag/chatengine"
	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/rag/reader"
)

// DefaultLimit is the number of samples evaluated when no limit is given.
const DefaultLimit = 3

// SampleResult is the outcome for one dataset sample.
type SampleResult struct {
	Sample      reader.QASample
	Answer      string
	Evaluations map[string]*EvaluationResult
	// Err holds the generation failure, if any. Such samples never pass.
	Err error
}

// Passing reports whether every evaluator passed the answer.
func (s SampleResult) Passing() bool {
	if s.Err != nil || len(s.Evaluations) == 0 {
		return false
	}
	for _, res := range s.Evaluations {
		if !res.IsPassing() {
			return false
		}
	}
	return true
}

// Report collects the results of a Runner pass in dataset order.
type Report struct {
	Results []SampleResult
}

// Passed counts passing samples.
func (r *Report) Passed() int {
	n := 0
	for _, s := range r.Results {
		if s.Passing() {
			n++
		}
	}
	return n
}

// Total is the number of evaluated samples.
func (r *Report) Total() int {
	return len(r.Results)
}

// PassRate is Passed over Total, or 0 for an empty report.
func (r *Report) PassRate() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Passed()) / float64(len(r.Results))
}

// AverageScore averages the scores the named evaluator produced.
func (r *Report) AverageScore(name string) float64 {
	var (
		total float64
		count int
	)
	for _, s := range r.Results {
		if res, ok := s.Evaluations[name]; ok && res.Score != nil {
			total += *res.Score
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// Runner answers each dataset question from its own context passage and
// scores the answer against the reference.
type Runner struct {
	llm            llm.LLM
	evaluators     []Evaluator
	limit          int
	workers        int
	systemPrompt   string
	promptTemplate string
	logger         *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLimit caps the number of samples. Zero or less evaluates every sample.
func WithLimit(limit int) RunnerOption {
	return func(r *Runner) {
		r.limit = limit
	}
}

// WithWorkers sets how many samples are processed concurrently.
func WithWorkers(workers int) RunnerOption {
	return func(r *Runner) {
		if workers > 0 {
			r.workers = workers
		}
	}
}

// WithSystemPrompt replaces the answering system prompt.
func WithSystemPrompt(prompt string) RunnerOption {
	return func(r *Runner) {
		r.systemPrompt = prompt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner. The answers are produced with the same prompt
// the chat engine uses.
func NewRunner(model llm.LLM, evaluators []Evaluator, opts ...RunnerOption) *Runner {
	r := &Runner{
		llm:            model,
		evaluators:     evaluators,
		limit:          DefaultLimit,
		workers:        1,
		systemPrompt:   chatengine.DefaultSystemPrompt,
		promptTemplate: chatengine.DefaultContextTemplate,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates the first samples up to the limit. Generation failures are
// recorded per sample; evaluator failures become invalid results.
func (r *Runner) Run(ctx context.Context, samples []reader.QASample) (*Report, error) {
	if r.llm == nil {
		return nil, chatengine.ErrNoLLM
	}
	if len(r.evaluators) == 0 {
		return nil, errors.New("at least one evaluator must be provided")
	}
	if r.limit > 0 && len(samples) > r.limit {
		samples = samples[:r.limit]
	}

	results := make([]SampleResult, len(samples))
	jobs := make(chan int, len(samples))
	for i := range samples {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				results[i] = r.runSample(ctx, samples[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &Report{Results: results}
	r.logger.Info("evaluation finished",
		"samples", report.Total(),
		"passed", report.Passed(),
		"pass_rate", report.PassRate())
	return report, nil
}

func (r *Runner) runSample(ctx context.Context, sample reader.QASample) SampleResult {
	out := SampleResult{Sample: sample, Evaluations: make(map[string]*EvaluationResult, len(r.evaluators))}

	messages := []llm.ChatMessage{
		llm.NewSystemMessage(r.systemPrompt),
		llm.NewUserMessage(fmt.Sprintf(r.promptTemplate, sample.Context, sample.Question)),
	}
	answer, err := r.llm.Chat(ctx, messages)
	if err != nil {
		out.Err = fmt.Errorf("sample %s: %w", sample.ID, err)
		r.logger.Warn("answer generation failed", "sample_id", sample.ID, "error", err)
		return out
	}
	out.Answer = strings.TrimSpace(answer)

	input := &EvaluateInput{
		Query:     sample.Question,
		Response:  out.Answer,
		Contexts:  []string{sample.Context},
		Reference: sample.Answer,
	}
	for _, ev := range r.evaluators {
		res, err := ev.Evaluate(ctx, input)
		if err != nil {
			res = NewEvaluationResult().WithQuery(sample.Question).WithInvalid(err.Error())
		}
		out.Evaluations[ev.Name()] = res
	}
	r.logger.Debug("sample evaluated", "sample_id", sample.ID, "passing", out.Passing())
	return out
}
