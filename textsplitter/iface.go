package textsplitter

import (
	"errors"
	"fmt"
)

const (
	// DefaultWordChunkSize and DefaultWordChunkOverlap size the word windows
	// used when indexing call summaries and question datasets.
	DefaultWordChunkSize    = 200
	DefaultWordChunkOverlap = 50
)

// ErrInvalidChunkParams is returned when a splitter is configured with a
// non-positive size or an overlap that would not advance the window.
var ErrInvalidChunkParams = errors.New("invalid chunk parameters")

// TextSplitter is the interface for splitting text.
type TextSplitter interface {
	SplitText(text string) []string
}

// Tokenizer is the interface for tokenizing text.
// It encodes text into a list of string tokens.
type Tokenizer interface {
	Encode(text string) []string
}

// TokenCounter is implemented by tokenizers that count without materializing tokens.
type TokenCounter interface {
	CountTokens(text string) int
}

// SentenceSplitterStrategy is the interface for primary sentence splitting.
type SentenceSplitterStrategy interface {
	Split(text string) []string
}

func validateChunkParams(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkParams, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidChunkParams, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk overlap (%d) must be less than chunk size (%d)", ErrInvalidChunkParams, overlap, size)
	}
	return nil
}
