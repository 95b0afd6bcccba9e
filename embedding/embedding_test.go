package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingsServer answers every request with one vector per input whose
// first component is the input's length.
func embeddingsServer(t *testing.T, requests *int32, lastPath *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		if lastPath != nil {
			*lastPath = r.URL.Path
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := openai.EmbeddingResponse{Object: "list", Model: openai.EmbeddingModel(req.Model)}
		// Reverse order to exercise index mapping.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, openai.Embedding{
				Object:    "embedding",
				Index:     i,
				Embedding: []float32{float32(len(req.Input[i])), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIEmbedding(t *testing.T) {
	var requests int32
	var path string
	server := embeddingsServer(t, &requests, &path)
	defer server.Close()

	model := NewOpenAIEmbedding(server.URL, "k", "")
	assert.Equal(t, OpenAISmallEmbedding3Info(), model.Info())

	emb, err := model.GetQueryEmbedding(context.Background(), "jitter")
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 1}, emb)
	assert.Equal(t, "/embeddings", path)
}

func TestOpenAIEmbeddingBatch(t *testing.T) {
	var requests int32
	server := embeddingsServer(t, &requests, nil)
	defer server.Close()

	model := NewOpenAIEmbedding(server.URL, "k", "text-embedding-3-large", WithBatchSize(2))
	var progress [][2]int
	out, err := model.GetTextEmbeddingsBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, func(cur, total int) {
		progress = append(progress, [2]int{cur, total})
	})
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, v := range out {
		assert.Equal(t, float64(i+1), v[0])
	}
	assert.Equal(t, int32(3), requests)
	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, progress)
	assert.Equal(t, 3072, model.Info().Dimensions)

	empty, err := model.GetTextEmbeddingsBatch(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestAzureOpenAIEmbedding(t *testing.T) {
	var requests int32
	var path string
	server := embeddingsServer(t, &requests, &path)
	defer server.Close()

	model := NewAzureOpenAIEmbedding(server.URL, "k", "text-embedding-3-small", "", WithDimensions(256))
	assert.Equal(t, "text-embedding-3-small", model.Deployment())
	assert.Equal(t, 256, model.Info().Dimensions)

	emb, err := model.GetTextEmbedding(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, emb)
	assert.Equal(t, "/openai/deployments/text-embedding-3-small/embeddings", path)
}

func TestOpenAIEmbeddingError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := NewOpenAIEmbedding(server.URL, "k", "").GetTextEmbedding(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestGetTextEmbeddings(t *testing.T) {
	mock := &MockEmbeddingModel{Fn: func(text string) ([]float64, error) {
		return []float64{float64(len(text))}, nil
	}}
	var last int
	out, err := GetTextEmbeddings(context.Background(), mock, []string{"a", "bbb"}, func(cur, total int) { last = cur })
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {3}}, out)
	assert.Equal(t, 2, last)
	assert.Equal(t, []string{"a", "bbb"}, mock.Texts())

	_, err = GetTextEmbeddings(context.Background(), &MockEmbeddingModel{Err: errors.New("down")}, []string{"a"}, nil)
	assert.ErrorContains(t, err, "embed text 0")

	hashed, err := GetTextEmbeddings(context.Background(), NewHashEmbedding(8), []string{"a"}, nil)
	require.NoError(t, err)
	assert.Len(t, hashed[0], 8)
}

func TestHashEmbedding(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedding(0)
	assert.Equal(t, DefaultHashDimensions, h.Info().Dimensions)

	a, err := h.GetTextEmbedding(ctx, "High jitter on the wifi network for adele.vance")
	require.NoError(t, err)
	b, err := h.GetTextEmbedding(ctx, "high JITTER on the wifi network for adele.vance")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, Magnitude(a), 1e-9)

	related, _ := h.GetQueryEmbedding(ctx, "wifi jitter for adele")
	unrelated, _ := h.GetQueryEmbedding(ctx, "citrix virtual desktop microphone glitches")
	simRelated, err := CosineSimilarity(a, related)
	require.NoError(t, err)
	simUnrelated, err := CosineSimilarity(a, unrelated)
	require.NoError(t, err)
	assert.Greater(t, simRelated, simUnrelated)

	empty, err := h.GetTextEmbedding(ctx, "  ,.; ")
	require.NoError(t, err)
	assert.Zero(t, Magnitude(empty))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.GetTextEmbedding(cancelled, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = h.GetTextEmbeddingsBatch(cancelled, []string{"x"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type flakyModel struct {
	failures int32
	calls    int32
	err      error
}

func (f *flakyModel) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, f.err
	}
	return []float64{1, 0}, nil
}

func (f *flakyModel) GetQueryEmbedding(ctx context.Context, text string) ([]float64, error) {
	return f.GetTextEmbedding(ctx, text)
}

func TestResilientEmbeddingRetries(t *testing.T) {
	inner := &flakyModel{failures: 2, err: errors.New("connection reset")}
	r := NewResilientEmbedding(inner, WithBackoff(time.Millisecond, time.Second), WithRateLimit(1000, 1))

	emb, err := r.GetTextEmbedding(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, emb)
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
}

func TestResilientEmbeddingGivesUp(t *testing.T) {
	inner := &flakyModel{failures: 10, err: errors.New("unavailable")}
	r := NewResilientEmbedding(inner, WithBackoff(time.Millisecond, time.Second), WithMaxRetries(2))

	_, err := r.GetQueryEmbedding(context.Background(), "x")
	assert.EqualError(t, err, "unavailable")
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
}

func TestResilientEmbeddingPermanent(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}
	inner := &flakyModel{failures: 10, err: apiErr}
	r := NewResilientEmbedding(inner, WithBackoff(time.Millisecond, time.Second))

	_, err := r.GetTextEmbedding(context.Background(), "x")
	assert.ErrorIs(t, err, apiErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestResilientEmbeddingBatch(t *testing.T) {
	inner := &flakyModel{failures: 1, err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}}
	r := NewResilientEmbedding(inner, WithBackoff(time.Millisecond, time.Second))

	out, err := r.GetTextEmbeddingsBatch(context.Background(), []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, DefaultEmbeddingInfo("unknown"), r.Info())

	wrapped := NewResilientEmbedding(NewHashEmbedding(16))
	out, err = wrapped.GetTextEmbeddingsBatch(context.Background(), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, 16, wrapped.Info().Dimensions)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(errors.New("eof")))
	assert.True(t, IsRetryable(&openai.APIError{HTTPStatusCode: 503}))
	assert.True(t, IsRetryable(&openai.RequestError{HTTPStatusCode: 429}))
	assert.False(t, IsRetryable(&openai.RequestError{HTTPStatusCode: 404}))
}
