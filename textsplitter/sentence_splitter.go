package textsplitter

import (
	"fmt"
	"strings"
)

const (
	DefaultChunkSize     = 512
	DefaultChunkOverlap  = 64
	DefaultParagraphSep  = "\n\n\n"
	DefaultSeparator     = " "
	DefaultChunkingRegex = `[^,.;。？！]+[,.;。？！]?|[,.;。？！]`

	// minContentTokens is the smallest window left for text after metadata.
	minContentTokens = 50
)

type piece struct {
	text       string
	isSentence bool
	tokens     int
}

// SentenceSplitter packs whole sentences into chunks up to a token budget.
// Sentences longer than the budget are broken on clauses, then words, then runes.
type SentenceSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Tokenizer    Tokenizer
	Strategy     SentenceSplitterStrategy

	primary   []func(string) []string
	secondary []func(string) []string
}

var _ TextSplitter = (*SentenceSplitter)(nil)

// NewSentenceSplitter creates a SentenceSplitter.
// A nil tokenizer counts whitespace words; a nil strategy splits with DefaultChunkingRegex.
func NewSentenceSplitter(chunkSize, chunkOverlap int, tokenizer Tokenizer, strategy SentenceSplitterStrategy) (*SentenceSplitter, error) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if err := validateChunkParams(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	if tokenizer == nil {
		tokenizer = NewSimpleTokenizer()
	}
	if strategy == nil {
		strategy = NewRegexSplitterStrategy(DefaultChunkingRegex)
	}
	s := &SentenceSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Tokenizer:    tokenizer,
		Strategy:     strategy,
	}
	s.primary = []func(string) []string{
		splitKeepingSep(DefaultParagraphSep),
		strategy.Split,
	}
	s.secondary = []func(string) []string{
		splitMatches(chunkingRegex),
		splitKeepingSep(DefaultSeparator),
		splitRunes,
	}
	return s, nil
}

// SplitText splits the text into chunks.
func (s *SentenceSplitter) SplitText(text string) []string {
	return s.splitText(text, s.ChunkSize)
}

// SplitTextMetadataAware reserves room in each chunk for the metadata string
// that will be embedded alongside it.
func (s *SentenceSplitter) SplitTextMetadataAware(text, metadata string) ([]string, error) {
	budget := s.ChunkSize - Count(s.Tokenizer, metadata)
	if budget < minContentTokens {
		return nil, fmt.Errorf("metadata uses %d of %d tokens, leaving fewer than %d for content",
			s.ChunkSize-budget, s.ChunkSize, minContentTokens)
	}
	return s.splitText(text, budget), nil
}

func (s *SentenceSplitter) splitText(text string, budget int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return trimChunks(s.merge(s.split(text, budget), budget))
}

func (s *SentenceSplitter) split(text string, budget int) []piece {
	n := Count(s.Tokenizer, text)
	if n <= budget {
		return []piece{{text: text, isSentence: true, tokens: n}}
	}
	parts, isSentence := s.splitOnce(text)
	var out []piece
	for _, part := range parts {
		n := Count(s.Tokenizer, part)
		if n <= budget {
			out = append(out, piece{text: part, isSentence: isSentence, tokens: n})
			continue
		}
		out = append(out, s.split(part, budget)...)
	}
	return out
}

func (s *SentenceSplitter) splitOnce(text string) ([]string, bool) {
	for _, fn := range s.primary {
		if parts := fn(text); len(parts) > 1 {
			return parts, true
		}
	}
	var parts []string
	for _, fn := range s.secondary {
		if parts = fn(text); len(parts) > 1 {
			break
		}
	}
	return parts, false
}

func (s *SentenceSplitter) merge(pieces []piece, budget int) []string {
	var (
		chunks []string
		cur    []piece
		size   int
		fresh  = true
	)

	flush := func() {
		chunks = append(chunks, joinPieces(cur))
		prev := cur
		cur, size, fresh = nil, 0, true
		// carry the tail of the previous chunk forward as overlap
		for i := len(prev) - 1; i >= 0; i-- {
			if size+prev[i].tokens > s.ChunkOverlap {
				break
			}
			size += prev[i].tokens
			cur = append([]piece{prev[i]}, cur...)
		}
	}

	for i := 0; i < len(pieces); {
		p := pieces[i]
		fits := size+p.tokens <= budget
		switch {
		case !fits && !fresh:
			flush()
		case fits || fresh || p.isSentence:
			cur = append(cur, p)
			size += p.tokens
			fresh = false
			i++
		default:
			flush()
		}
	}
	if !fresh {
		chunks = append(chunks, joinPieces(cur))
	}
	return chunks
}

func joinPieces(ps []piece) string {
	var sb strings.Builder
	for _, p := range ps {
		sb.WriteString(p.text)
	}
	return sb.String()
}

func trimChunks(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
