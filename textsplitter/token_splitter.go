package textsplitter

import "strings"

// TokenTextSplitter windows text over tiktoken ids so every chunk stays
// within an embedding model's token limit.
type TokenTextSplitter struct {
	// ChunkSize is the maximum number of tokens per chunk.
	ChunkSize int
	// ChunkOverlap is the number of tokens shared by consecutive chunks.
	ChunkOverlap int

	tokenizer *TikTokenTokenizer
}

var _ TextSplitter = (*TokenTextSplitter)(nil)

// NewTokenTextSplitter creates a splitter over the given tokenizer.
// A nil tokenizer selects the shared cl100k_base tokenizer.
func NewTokenTextSplitter(chunkSize, chunkOverlap int, tokenizer *TikTokenTokenizer) (*TokenTextSplitter, error) {
	if err := validateChunkParams(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	if tokenizer == nil {
		tok, err := DefaultTokenizer()
		if err != nil {
			return nil, err
		}
		tokenizer = tok
	}
	return &TokenTextSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		tokenizer:    tokenizer,
	}, nil
}

func (s *TokenTextSplitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ids := s.tokenizer.EncodeToIDs(text)
	if len(ids) <= s.ChunkSize {
		return []string{strings.TrimSpace(text)}
	}

	step := s.ChunkSize - s.ChunkOverlap
	var chunks []string
	for start := 0; start < len(ids); start += step {
		end := min(start+s.ChunkSize, len(ids))
		chunk := strings.TrimSpace(s.tokenizer.Decode(ids[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(ids) {
			break
		}
	}
	return chunks
}
