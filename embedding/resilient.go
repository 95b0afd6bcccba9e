package embedding

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ResilientEmbedding wraps a model with a request rate limit and
// exponential-backoff retries for transient failures.
type ResilientEmbedding struct {
	inner           EmbeddingModel
	limiter         *rate.Limiter
	maxRetries      uint64
	initialInterval time.Duration
	maxElapsed      time.Duration
	logger          *slog.Logger
}

var (
	_ EmbeddingModelWithBatch = (*ResilientEmbedding)(nil)
	_ EmbeddingModelWithInfo  = (*ResilientEmbedding)(nil)
)

// ResilientOption configures a ResilientEmbedding.
type ResilientOption func(*ResilientEmbedding)

// WithRateLimit allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ResilientOption {
	return func(r *ResilientEmbedding) {
		if rps <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries caps the number of retries after the first attempt.
func WithMaxRetries(n uint64) ResilientOption {
	return func(r *ResilientEmbedding) {
		r.maxRetries = n
	}
}

// WithBackoff sets the first retry delay and the total retry budget.
func WithBackoff(initial, maxElapsed time.Duration) ResilientOption {
	return func(r *ResilientEmbedding) {
		r.initialInterval = initial
		r.maxElapsed = maxElapsed
	}
}

// WithResilientLogger sets the logger.
func WithResilientLogger(logger *slog.Logger) ResilientOption {
	return func(r *ResilientEmbedding) {
		r.logger = logger
	}
}

// NewResilientEmbedding wraps inner. By default requests are not rate
// limited and fail after 3 retries or 30 seconds.
func NewResilientEmbedding(inner EmbeddingModel, opts ...ResilientOption) *ResilientEmbedding {
	r := &ResilientEmbedding{
		inner:           inner,
		limiter:         rate.NewLimiter(rate.Inf, 0),
		maxRetries:      3,
		initialInterval: 500 * time.Millisecond,
		maxElapsed:      30 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetTextEmbedding embeds text with retries.
func (r *ResilientEmbedding) GetTextEmbedding(ctx context.Context, text string) ([]float64, error) {
	var out []float64
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.GetTextEmbedding(ctx, text)
		return err
	})
	return out, err
}

// GetQueryEmbedding embeds a query with retries.
func (r *ResilientEmbedding) GetQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	var out []float64
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.GetQueryEmbedding(ctx, query)
		return err
	})
	return out, err
}

// GetTextEmbeddingsBatch retries the whole batch when the inner model
// supports batching and each text separately otherwise.
func (r *ResilientEmbedding) GetTextEmbeddingsBatch(ctx context.Context, texts []string, callback ProgressCallback) ([][]float64, error) {
	if batch, ok := r.inner.(EmbeddingModelWithBatch); ok {
		var out [][]float64
		err := r.do(ctx, func() error {
			var err error
			out, err = batch.GetTextEmbeddingsBatch(ctx, texts, callback)
			return err
		})
		return out, err
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		emb, err := r.GetTextEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
		if callback != nil {
			callback(i+1, len(texts))
		}
	}
	return out, nil
}

// Info returns the inner model's info when available.
func (r *ResilientEmbedding) Info() EmbeddingInfo {
	if withInfo, ok := r.inner.(EmbeddingModelWithInfo); ok {
		return withInfo.Info()
	}
	return DefaultEmbeddingInfo("unknown")
}

func (r *ResilientEmbedding) do(ctx context.Context, fn func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.initialInterval
	expo.MaxElapsedTime = r.maxElapsed

	var policy backoff.BackOff = expo
	policy = backoff.WithMaxRetries(policy, r.maxRetries)
	policy = backoff.WithContext(policy, ctx)

	op := func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := fn()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("embedding request failed, retrying", "error", err, "wait", wait)
	}
	return backoff.RetryNotify(op, policy, notify)
}

// IsRetryable reports whether an embedding error is worth retrying:
// rate limiting, timeouts and server errors are; cancellation and other
// client errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code >= 500:
		return true
	case code == 0:
		return true
	}
	return false
}
