package textsplitter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestWordWindowSplitter(t *testing.T) {
	s, err := NewWordWindowSplitter(4, 2)
	require.NoError(t, err)

	chunks := s.SplitText(words(10))
	assert.Equal(t, []string{
		"w0 w1 w2 w3",
		"w2 w3 w4 w5",
		"w4 w5 w6 w7",
		"w6 w7 w8 w9",
		"w8 w9",
	}, chunks)
}

func TestWordWindowSplitter_Defaults(t *testing.T) {
	s := NewDefaultWordWindowSplitter()
	chunks := s.SplitText(words(250))
	require.Len(t, chunks, 2)
	assert.Len(t, strings.Fields(chunks[0]), 200)
	assert.Len(t, strings.Fields(chunks[1]), 100)
	assert.True(t, strings.HasPrefix(chunks[1], "w150 "))
}

func TestWordWindowSplitter_Empty(t *testing.T) {
	s := NewDefaultWordWindowSplitter()
	assert.Empty(t, s.SplitText(""))
	assert.Empty(t, s.SplitText("  \n\t "))
}

func TestWordWindowSplitter_InvalidParams(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWordWindowSplitter(tt.size, tt.overlap)
			assert.ErrorIs(t, err, ErrInvalidChunkParams)
		})
	}
}

type SentenceSplitterTestSuite struct {
	suite.Suite
}

func TestSentenceSplitterTestSuite(t *testing.T) {
	suite.Run(t, new(SentenceSplitterTestSuite))
}

func (s *SentenceSplitterTestSuite) newSplitter(size, overlap int) *SentenceSplitter {
	splitter, err := NewSentenceSplitter(size, overlap, nil, nil)
	s.Require().NoError(err)
	return splitter
}

func (s *SentenceSplitterTestSuite) TestSplitText_Basic() {
	chunks := s.newSplitter(100, 0).SplitText("Hello world. This is a test.")
	s.Equal([]string{"Hello world. This is a test."}, chunks)
}

func (s *SentenceSplitterTestSuite) TestSplitText_SplitBySentence() {
	// "This is a test." is four words and falls back to word splits.
	chunks := s.newSplitter(3, 0).SplitText("Hello world. This is a test.")
	s.Equal([]string{"Hello world. This", "is a test."}, chunks)
}

func (s *SentenceSplitterTestSuite) TestSplitText_Overlap() {
	chunks := s.newSplitter(3, 1).SplitText("A B C D E")
	s.Equal([]string{"A B C", "C D E"}, chunks)
}

func (s *SentenceSplitterTestSuite) TestSplitText_Empty() {
	s.Empty(s.newSplitter(10, 0).SplitText("   "))
}

func (s *SentenceSplitterTestSuite) TestMetadataAware() {
	splitter := s.newSplitter(60, 0)
	_, err := splitter.SplitTextMetadataAware("short text", words(20))
	s.Error(err)

	chunks, err := splitter.SplitTextMetadataAware("Jitter was high. Loss was low.", "conferenceId: abc")
	s.Require().NoError(err)
	s.Equal([]string{"Jitter was high. Loss was low."}, chunks)
}

func (s *SentenceSplitterTestSuite) TestInvalidParams() {
	_, err := NewSentenceSplitter(10, 10, nil, nil)
	s.ErrorIs(err, ErrInvalidChunkParams)
}

func (s *SentenceSplitterTestSuite) TestNeurosnapStrategy() {
	strategy, err := NewNeurosnapSplitterStrategy()
	s.Require().NoError(err)

	sents := strategy.Split("Jitter was high. Packet loss was low.")
	s.Equal([]string{"Jitter was high.", " Packet loss was low."}, sents)

	splitter, err := NewSentenceSplitter(4, 0, nil, strategy)
	s.Require().NoError(err)
	s.Equal([]string{"Jitter was high.", "Packet loss was low."},
		splitter.SplitText("Jitter was high. Packet loss was low."))
}

func TestSimpleTokenizer(t *testing.T) {
	tok := NewSimpleTokenizer()
	assert.Equal(t, []string{"a", "b", "c"}, tok.Encode(" a b\nc "))
	assert.Equal(t, 3, Count(tok, "a b c"))
}

func TestGetEncodingForModel(t *testing.T) {
	assert.Equal(t, EncodingO200kBase, GetEncodingForModel("gpt-4o-mini"))
	assert.Equal(t, EncodingCL100kBase, GetEncodingForModel("text-embedding-3-small"))
	assert.Equal(t, EncodingCL100kBase, GetEncodingForModel("my-azure-deployment"))
}

func tiktokenOrSkip(t *testing.T) *TikTokenTokenizer {
	t.Helper()
	tok, err := DefaultTokenizer()
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	return tok
}

func TestTikTokenTokenizer(t *testing.T) {
	tok := tiktokenOrSkip(t)
	text := "Average jitter was 48 ms."
	ids := tok.EncodeToIDs(text)
	assert.NotEmpty(t, ids)
	assert.Equal(t, text, tok.Decode(ids))
	assert.Equal(t, len(ids), tok.CountTokens(text))
	assert.Equal(t, len(ids), CountTokens(text))
	assert.Equal(t, EncodingCL100kBase, tok.EncodingName())
}

func TestTokenTextSplitter(t *testing.T) {
	tok := tiktokenOrSkip(t)
	s, err := NewTokenTextSplitter(8, 2, tok)
	require.NoError(t, err)

	text := words(40)
	chunks := s.SplitText(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, tok.CountTokens(c), 8)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "w0"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "w39"))

	assert.Equal(t, []string{"short"}, s.SplitText("short"))
	assert.Empty(t, s.SplitText(""))
}

func TestTokenTextSplitter_InvalidParams(t *testing.T) {
	_, err := NewTokenTextSplitter(5, 5, nil)
	assert.ErrorIs(t, err, ErrInvalidChunkParams)
}

func TestSplitHelpers(t *testing.T) {
	parts := splitKeepingSep("\n\n")("jitter\n\nloss\n\n")
	assert.Equal(t, []string{"jitter", "\n\nloss", "\n\n"}, parts)
	assert.Equal(t, "jitter\n\nloss\n\n", strings.Join(parts, ""))
	assert.Nil(t, splitKeepingSep(" ")(""))
	assert.Equal(t, []string{"a b"}, splitKeepingSep("")("a b"))

	assert.Equal(t, []string{"High jitter.", " Low loss."}, NewRegexSplitterStrategy("").Split("High jitter. Low loss."))
	assert.Equal(t, []string{"a", "b"}, NewRegexSplitterStrategy(`[a-z]`).Split("a1b"))
	assert.Equal(t, []string{"m", "s"}, splitRunes("ms"))
}
