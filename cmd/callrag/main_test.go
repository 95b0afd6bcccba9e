package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/aqua777/go-callrag/config"
	"github.com/aqua777/go-callrag/embedding"
	"github.com/aqua777/go-callrag/llm"
)

type AppTestSuite struct {
	suite.Suite
	dir   string
	out   *bytes.Buffer
	model *llm.MockLLM
	app   *app
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func (s *AppTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.out = &bytes.Buffer{}
	s.model = llm.NewMockLLM("Jitter on the organizer's audio stream was above 30 ms.")

	cfg := config.Default()
	cfg.Provider = config.ProviderHash
	cfg.DataDir = filepath.Join(s.dir, "data")
	cfg.HashDimensions = 64

	s.app = newApp(cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), strings.NewReader(""), s.out)
	s.app.newLLM = func(context.Context, config.Config, *slog.Logger) (llm.LLM, error) {
		return s.model, nil
	}
}

func (s *AppTestSuite) generate(name string, n int, flat bool) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(s.app.generate(generateOptions{Count: n, Output: path, Flat: flat, Seed: 42}))
	s.out.Reset()
	return path
}

func (s *AppTestSuite) TestGenerate() {
	path := s.generate("calls.jsonl", 5, false)
	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Len(strings.Split(strings.TrimSpace(string(data)), "\n"), 5)

	s.Require().NoError(s.app.generate(generateOptions{Count: 2, Output: "-", Flat: true, Seed: 1}))
	s.Len(strings.Split(strings.TrimSpace(s.out.String()), "\n"), 2)

	s.Error(s.app.generate(generateOptions{Count: 0}))
}

func (s *AppTestSuite) TestGenerateWriteFailure() {
	if _, err := os.Stat("/dev/full"); err != nil {
		s.T().Skip("/dev/full not available")
	}
	err := s.app.generate(generateOptions{Count: 500, Output: "/dev/full", Seed: 1})
	s.Error(err)
	s.NotContains(s.out.String(), "Wrote")
}

func (s *AppTestSuite) TestRoute() {
	path := s.generate("calls.jsonl", 20, false)

	s.Require().NoError(s.app.route(context.Background(), routeOptions{Input: path, Concurrency: 2}))
	out := s.out.String()
	s.Contains(out, "RECORD")
	s.Contains(out, "CATEGORY")
	for _, c := range []string{"network", "vdi", "log", "none"} {
		s.Contains(out, c+" ")
	}
	s.Empty(s.model.Calls())
}

func (s *AppTestSuite) TestRouteExplain() {
	path := s.generate("flat.jsonl", 10, true)

	s.Require().NoError(s.app.route(context.Background(), routeOptions{Input: path, Explain: true}))
	// Only routed records are explained, and each explanation is printed once.
	s.Equal(len(s.model.Calls()), strings.Count(s.out.String(), s.model.Response))
}

func (s *AppTestSuite) TestRouteErrors() {
	s.Error(s.app.route(context.Background(), routeOptions{}))
	s.Error(s.app.route(context.Background(), routeOptions{Input: filepath.Join(s.dir, "missing.jsonl")}))
}

func (s *AppTestSuite) TestIndexAndQuery() {
	path := s.generate("flat.jsonl", 8, true)

	stats, err := s.app.index(context.Background(), indexOptions{Inputs: []string{path}})
	s.Require().NoError(err)
	s.Equal(8, stats.Documents)
	s.GreaterOrEqual(stats.Chunks, 8)
	s.Contains(s.out.String(), "Indexed 8 documents")
	s.FileExists(s.app.cfg.EmbeddingCachePath())

	s.out.Reset()
	s.Require().NoError(s.app.query(context.Background(), queryOptions{Question: "Which calls had high jitter?"}))
	s.Contains(s.out.String(), s.model.Response)
	s.Contains(s.out.String(), "Sources:")

	msgs := s.model.LastCall()
	s.Require().NotEmpty(msgs)
	s.Contains(msgs[len(msgs)-1].Content, "Which calls had high jitter?")

	// Reindexing the same records embeds nothing new.
	s.out.Reset()
	stats, err = s.app.index(context.Background(), indexOptions{Inputs: []string{path}})
	s.Require().NoError(err)
	s.Equal(stats.Chunks, stats.Cached)
}

func (s *AppTestSuite) TestIndexSwitchingEmbeddingModel() {
	path := s.generate("flat.jsonl", 3, true)
	models := map[string]*embedding.MockEmbeddingModel{
		"model-a": {Embedding: []float64{1, 0, 0}},
		"model-b": {Embedding: []float64{0, 1, 0}},
	}
	s.app.cfg.Provider = config.ProviderOpenAI
	s.app.cfg.OpenAIAPIKey = "test"
	s.app.newEmbedding = func(_ context.Context, cfg config.Config, _ *slog.Logger) (embedding.EmbeddingModel, error) {
		return models[cfg.OpenAIEmbeddingModel], nil
	}

	s.app.cfg.OpenAIEmbeddingModel = "model-a"
	first, err := s.app.index(context.Background(), indexOptions{Inputs: []string{path}})
	s.Require().NoError(err)
	s.Zero(first.Cached)

	s.app.cfg.OpenAIEmbeddingModel = "model-b"
	second, err := s.app.index(context.Background(), indexOptions{Inputs: []string{path}})
	s.Require().NoError(err)
	s.Zero(second.Cached)
	s.Len(models["model-b"].Texts(), second.Chunks)

	s.app.cfg.OpenAIEmbeddingModel = "model-a"
	third, err := s.app.index(context.Background(), indexOptions{Inputs: []string{path}})
	s.Require().NoError(err)
	s.Equal(third.Chunks, third.Cached)
}

func (s *AppTestSuite) TestQueryWithoutIndex() {
	s.Require().NoError(s.app.query(context.Background(), queryOptions{Question: "Anything?"}))
	s.Contains(s.out.String(), s.model.Response)
	s.NotContains(s.out.String(), "Sources:")

	s.Error(s.app.query(context.Background(), queryOptions{Question: "  "}))
}

func (s *AppTestSuite) TestIndexErrors() {
	_, err := s.app.index(context.Background(), indexOptions{})
	s.Error(err)

	other := filepath.Join(s.dir, "notes.bin")
	s.Require().NoError(os.WriteFile(other, []byte{1}, 0o644))
	_, err = s.app.index(context.Background(), indexOptions{Inputs: []string{other}})
	s.ErrorContains(err, "unsupported input")

	s.app.cfg.ChunkOverlap = s.app.cfg.ChunkSize
	_, err = s.app.index(context.Background(), indexOptions{Inputs: []string{other}})
	s.ErrorContains(err, "chunk overlap")
}

func (s *AppTestSuite) TestIndexCSVDirectory() {
	dir := filepath.Join(s.dir, "docs")
	s.Require().NoError(os.Mkdir(dir, 0o755))
	writeRows(s.T(), filepath.Join(dir, "mini_rag.csv"), [][]string{
		{"id", "questions"},
		{"1", `['Why was the call choppy?', 'Was it VPN?']`},
		{"2", `['Which client was used?']`},
	})

	stats, err := s.app.index(context.Background(), indexOptions{
		Inputs:      []string{dir},
		Columns:     []string{"questions"},
		ListLiteral: true,
	})
	s.Require().NoError(err)
	s.Equal(2, stats.Documents)
}

func (s *AppTestSuite) TestChat() {
	s.app.in = strings.NewReader("hello\n\nclear\nsecond question\nexit\n")

	s.Require().NoError(s.app.chat(context.Background(), chatOptions{Session: "s1"}))
	out := s.out.String()
	s.Contains(out, "Session s1")
	s.Contains(out, "History cleared.")
	s.Contains(out, "Goodbye!")
	s.Equal(2, strings.Count(out, s.model.Response))

	cs, err := config.OpenChatStore(s.app.cfg, nil)
	s.Require().NoError(err)
	defer cs.Close()
	msgs, err := cs.GetMessages(context.Background(), "s1")
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal(llm.MessageRoleUser, msgs[0].Role)
	s.Equal("second question", msgs[0].Content)
	s.Equal(llm.MessageRoleAssistant, msgs[1].Role)
}

func (s *AppTestSuite) TestChatStreamResumesSession() {
	s.app.in = strings.NewReader("first\n")
	s.Require().NoError(s.app.chat(context.Background(), chatOptions{Session: "s2", Stream: true}))
	s.Contains(s.out.String(), s.model.Response)

	s.app.in = strings.NewReader("follow up\nquit\n")
	s.Require().NoError(s.app.chat(context.Background(), chatOptions{Session: "s2"}))

	msgs := s.model.LastCall()
	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	s.Contains(contents, "first")
	s.Contains(contents, "follow up")
}

func (s *AppTestSuite) TestChatStreamInterrupted() {
	s.model.StreamErr = errors.New("connection reset")
	s.app.in = strings.NewReader("what broke?\nexit\n")

	s.Require().NoError(s.app.chat(context.Background(), chatOptions{Session: "s3", Stream: true}))
	s.Contains(s.out.String(), "Error: connection reset")

	cs, err := config.OpenChatStore(s.app.cfg, nil)
	s.Require().NoError(err)
	defer cs.Close()
	msgs, err := cs.GetMessages(context.Background(), "s3")
	s.Require().NoError(err)
	s.Empty(msgs)
}

func (s *AppTestSuite) TestEval() {
	path := filepath.Join(s.dir, "qa.csv")
	writeRows(s.T(), path, [][]string{
		{"context", "question", "answer"},
		{"Jitter above 30 ms is poor.", "What was wrong with the audio?", s.model.Response},
		{"RTT above 500 ms is poor.", "What RTT is poor?", "Above 500 ms."},
		{"Packet loss above 10% is poor.", "What loss is poor?", "Above 10%."},
		{"VDI calls use the optimized client.", "Which client?", "The optimized VDI client."},
	})

	report, err := s.app.eval(context.Background(), evalOptions{Inputs: []string{path}, Limit: 3, Workers: 2})
	s.Require().NoError(err)
	s.Equal(3, report.Total())
	s.True(report.Results[0].Passing())
	s.Len(s.model.Calls(), 3)

	out := s.out.String()
	s.Contains(out, "Question: What was wrong with the audio?")
	s.Contains(out, "semantic_similarity: PASS")
	s.Contains(out, "Passed ")
}

func (s *AppTestSuite) TestEvalJudge() {
	path := filepath.Join(s.dir, "qa.csv")
	writeRows(s.T(), path, [][]string{
		{"context", "question", "answer"},
		{"Jitter above 30 ms is poor.", "What was wrong?", s.model.Response},
	})
	s.model.Fn = func(messages []llm.ChatMessage) (string, error) {
		if strings.Contains(messages[len(messages)-1].Content, "## Reference Answer") {
			return "5.0\nMatches the reference.", nil
		}
		return s.model.Response, nil
	}

	report, err := s.app.eval(context.Background(), evalOptions{Inputs: []string{path}, Judge: true})
	s.Require().NoError(err)
	s.Require().Equal(1, report.Total())
	s.True(report.Results[0].Passing())
	s.Contains(s.out.String(), "correctness: PASS")
	s.Contains(s.out.String(), "Passed 1/1 (100%)")
}

func TestNewLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := newLogger(&buf, false, false)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "k=v")
	assert.Same(t, logger, slog.Default())

	buf.Reset()
	logger = newLogger(&buf, true, true)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), `"msg":"visible"`)
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
}

func writeRows(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, csv.NewWriter(f).WriteAll(rows))
}
