package evaluation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aqua777/go-callrag/llm"
)

// DefaultCorrectnessThreshold is the judge score an answer needs to pass.
const DefaultCorrectnessThreshold = 4.0

// DefaultCorrectnessSystemTemplate instructs the judge model.
const DefaultCorrectnessSystemTemplate = `You are grading answers from an assistant that explains Microsoft Teams call quality records.

You are given a question, a reference answer and a generated answer.
Judge whether the generated answer is relevant to the question and agrees with the reference.
Reply with the score alone on the first line and a one sentence reason on the second line.

Scoring:
- 1 if the generated answer is unrelated to the question.
- 2 to 3 if it is related but states wrong metrics or verdicts.
- 4 to 5 if it is related and agrees with the reference.`

// DefaultCorrectnessUserTemplate is filled with the question, reference and answer.
const DefaultCorrectnessUserTemplate = "## Question\n%s\n\n## Reference Answer\n%s\n\n## Generated Answer\n%s"

const noReference = "(NO REFERENCE ANSWER SUPPLIED)"

var (
	bareScorePattern  = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*$`)
	labelScorePattern = regexp.MustCompile(`(?i)score[:\s]+(\d+(?:\.\d+)?)`)
)

// ErrNoScore is returned by ParseJudgeScore when the reply carries no score.
var ErrNoScore = errors.New("could not find score in response")

// CorrectnessEvaluator asks an LLM to grade an answer against the reference
// on a 1 to 5 scale.
type CorrectnessEvaluator struct {
	llm            llm.LLM
	systemTemplate string
	scoreThreshold float64
}

var _ Evaluator = (*CorrectnessEvaluator)(nil)

// CorrectnessEvaluatorOption configures a CorrectnessEvaluator.
type CorrectnessEvaluatorOption func(*CorrectnessEvaluator)

// WithCorrectnessSystemTemplate replaces the judge instructions.
func WithCorrectnessSystemTemplate(template string) CorrectnessEvaluatorOption {
	return func(e *CorrectnessEvaluator) {
		e.systemTemplate = template
	}
}

// WithCorrectnessThreshold sets the score needed to pass.
func WithCorrectnessThreshold(threshold float64) CorrectnessEvaluatorOption {
	return func(e *CorrectnessEvaluator) {
		e.scoreThreshold = threshold
	}
}

// NewCorrectnessEvaluator creates a judge backed by the given model.
func NewCorrectnessEvaluator(judge llm.LLM, opts ...CorrectnessEvaluatorOption) *CorrectnessEvaluator {
	e := &CorrectnessEvaluator{
		llm:            judge,
		systemTemplate: DefaultCorrectnessSystemTemplate,
		scoreThreshold: DefaultCorrectnessThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *CorrectnessEvaluator) Name() string {
	return "correctness"
}

func (e *CorrectnessEvaluator) Evaluate(ctx context.Context, input *EvaluateInput) (*EvaluationResult, error) {
	if input.Query == "" {
		return NewEvaluationResult().WithInvalid("query must be provided"), nil
	}
	if input.Response == "" {
		return NewEvaluationResult().WithQuery(input.Query).WithInvalid("response must be provided"), nil
	}
	if e.llm == nil {
		return nil, errors.New("LLM must be provided for correctness evaluation")
	}

	reference := input.Reference
	if reference == "" {
		reference = noReference
	}
	messages := []llm.ChatMessage{
		llm.NewSystemMessage(e.systemTemplate),
		llm.NewUserMessage(fmt.Sprintf(DefaultCorrectnessUserTemplate, input.Query, reference, input.Response)),
	}
	reply, err := e.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("LLM evaluation failed: %w", err)
	}

	result := NewEvaluationResult().
		WithQuery(input.Query).
		WithResponse(input.Response).
		WithReference(input.Reference)

	score, reasoning, err := ParseJudgeScore(reply)
	if err != nil {
		return result.WithInvalid(fmt.Sprintf("failed to parse LLM response: %v", err)).WithFeedback(reply), nil
	}
	return result.
		WithPassing(score >= e.scoreThreshold).
		WithScore(score).
		WithFeedback(reasoning), nil
}

// ParseJudgeScore extracts the score and reasoning from a judge reply. The
// score is either alone on a line or follows a "Score:" label.
func ParseJudgeScore(reply string) (float64, string, error) {
	var (
		score     float64
		found     bool
		reasoning []string
	)
	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !found {
			if m := bareScorePattern.FindStringSubmatch(line); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					score, found = v, true
					continue
				}
			}
			if m := labelScorePattern.FindStringSubmatch(line); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					score, found = v, true
					if rest := strings.TrimSpace(strings.Replace(line, m[0], "", 1)); rest != "" {
						reasoning = append(reasoning, rest)
					}
					continue
				}
			}
		}
		reasoning = append(reasoning, line)
	}
	if !found {
		return 0, "", ErrNoScore
	}
	return score, strings.Join(reasoning, "\n"), nil
}

// NormalizeScore maps a 1 to 5 judge score onto 0 to 1.
func NormalizeScore(score float64) float64 {
	return (score - 1) / 4
}
