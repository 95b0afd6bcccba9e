package textsplitter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Common encoding names
const (
	EncodingCL100kBase = "cl100k_base" // GPT-4, GPT-3.5-turbo, text-embedding-3-*
	EncodingO200kBase  = "o200k_base"  // GPT-4o models
)

var modelEncodingMap = map[string]string{
	"gpt-4o":                 EncodingO200kBase,
	"gpt-4o-mini":            EncodingO200kBase,
	"gpt-4":                  EncodingCL100kBase,
	"gpt-4-turbo":            EncodingCL100kBase,
	"gpt-35-turbo":           EncodingCL100kBase, // Azure naming
	"gpt-3.5-turbo":          EncodingCL100kBase,
	"text-embedding-ada-002": EncodingCL100kBase,
	"text-embedding-3-small": EncodingCL100kBase,
	"text-embedding-3-large": EncodingCL100kBase,
}

// GetEncodingForModel returns the encoding name for a given model.
// Unknown models, including Azure deployment names, map to cl100k_base.
func GetEncodingForModel(model string) string {
	if enc, ok := modelEncodingMap[model]; ok {
		return enc
	}
	return EncodingCL100kBase
}

// SimpleTokenizer tokenizes text by splitting on whitespace.
type SimpleTokenizer struct{}

func NewSimpleTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{}
}

func (t *SimpleTokenizer) Encode(text string) []string {
	return strings.Fields(text)
}

func (t *SimpleTokenizer) CountTokens(text string) int {
	return len(strings.Fields(text))
}

// TikTokenTokenizer tokenizes text using OpenAI's tiktoken BPE encodings.
type TikTokenTokenizer struct {
	encoding     *tiktoken.Tiktoken
	encodingName string
}

// NewTikTokenTokenizer creates a tokenizer for the named encoding.
// An empty name selects cl100k_base.
func NewTikTokenTokenizer(encodingName string) (*TikTokenTokenizer, error) {
	if encodingName == "" {
		encodingName = EncodingCL100kBase
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}
	return &TikTokenTokenizer{encoding: enc, encodingName: encodingName}, nil
}

// NewTikTokenTokenizerForModel resolves the encoding used by model.
func NewTikTokenTokenizerForModel(model string) (*TikTokenTokenizer, error) {
	return NewTikTokenTokenizer(GetEncodingForModel(model))
}

// Encode returns the token ids rendered as strings.
func (t *TikTokenTokenizer) Encode(text string) []string {
	ids := t.encoding.Encode(text, nil, nil)
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = strconv.Itoa(id)
	}
	return tokens
}

// EncodeToIDs returns the raw token IDs.
func (t *TikTokenTokenizer) EncodeToIDs(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// Decode converts token IDs back to text.
func (t *TikTokenTokenizer) Decode(ids []int) string {
	return t.encoding.Decode(ids)
}

func (t *TikTokenTokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *TikTokenTokenizer) EncodingName() string {
	return t.encodingName
}

var (
	_ TokenCounter = (*SimpleTokenizer)(nil)
	_ TokenCounter = (*TikTokenTokenizer)(nil)
)

var (
	defaultTokenizer     *TikTokenTokenizer
	defaultTokenizerOnce sync.Once
	defaultTokenizerErr  error
)

// DefaultTokenizer returns a shared cl100k_base tokenizer. Safe for concurrent use.
func DefaultTokenizer() (*TikTokenTokenizer, error) {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer, defaultTokenizerErr = NewTikTokenTokenizer(EncodingCL100kBase)
	})
	return defaultTokenizer, defaultTokenizerErr
}

// CountTokens counts cl100k_base tokens in text. When the encoding cannot be
// loaded it falls back to a whitespace word count.
func CountTokens(text string) int {
	tok, err := DefaultTokenizer()
	if err != nil {
		return len(strings.Fields(text))
	}
	return tok.CountTokens(text)
}

// Count returns the token count using CountTokens when t supports it.
func Count(t Tokenizer, text string) int {
	if c, ok := t.(TokenCounter); ok {
		return c.CountTokens(text)
	}
	return len(t.Encode(text))
}
