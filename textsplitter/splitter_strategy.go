package textsplitter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// chunkingRegex is DefaultChunkingRegex, compiled once.
var chunkingRegex = regexp.MustCompile(DefaultChunkingRegex)

// RegexSplitterStrategy treats every match of a pattern as a sentence.
type RegexSplitterStrategy struct {
	re *regexp.Regexp
}

// NewRegexSplitterStrategy compiles regexStr, which must be a valid pattern.
// Empty means DefaultChunkingRegex.
func NewRegexSplitterStrategy(regexStr string) *RegexSplitterStrategy {
	if regexStr == "" {
		return &RegexSplitterStrategy{re: chunkingRegex}
	}
	return &RegexSplitterStrategy{re: regexp.MustCompile(regexStr)}
}

func (s *RegexSplitterStrategy) Split(text string) []string {
	return splitMatches(s.re)(text)
}

// NeurosnapSplitterStrategy uses the neurosnap/sentences english punkt model.
// It knows common abbreviations, so "approx. 45 ms" stays in one sentence.
type NeurosnapSplitterStrategy struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewNeurosnapSplitterStrategy loads the bundled english training data.
func NewNeurosnapSplitterStrategy() (*NeurosnapSplitterStrategy, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load english sentence model: %w", err)
	}
	return &NeurosnapSplitterStrategy{tokenizer: tokenizer}, nil
}

// Split returns trimmed sentences; every sentence after the first carries a
// leading space so concatenated pieces read naturally.
func (s *NeurosnapSplitterStrategy) Split(text string) []string {
	sents := s.tokenizer.Tokenize(text)
	result := make([]string, 0, len(sents))
	for _, sent := range sents {
		t := strings.TrimSpace(sent.Text)
		if t == "" {
			continue
		}
		if len(result) > 0 {
			t = " " + t
		}
		result = append(result, t)
	}
	return result
}
