package textsplitter

import "strings"

// WordWindowSplitter cuts whitespace-separated words into fixed windows.
// A window starts every ChunkSize-ChunkOverlap words, so the final windows
// may be shorter than ChunkSize and consist mostly of overlap.
type WordWindowSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

var _ TextSplitter = (*WordWindowSplitter)(nil)

// NewWordWindowSplitter validates the window parameters.
func NewWordWindowSplitter(chunkSize, chunkOverlap int) (*WordWindowSplitter, error) {
	if err := validateChunkParams(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return &WordWindowSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
}

// NewDefaultWordWindowSplitter uses 200-word windows with a 50-word overlap.
func NewDefaultWordWindowSplitter() *WordWindowSplitter {
	return &WordWindowSplitter{ChunkSize: DefaultWordChunkSize, ChunkOverlap: DefaultWordChunkOverlap}
}

func (s *WordWindowSplitter) SplitText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		step = s.ChunkSize
	}
	chunks := make([]string, 0, len(words)/step+1)
	for i := 0; i < len(words); i += step {
		end := min(i+s.ChunkSize, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
