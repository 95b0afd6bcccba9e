package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	requests []titanRequest
	models   []string
	err      error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	var req titanRequest
	if err := json.Unmarshal(params.Body, &req); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, req)
	f.models = append(f.models, aws.ToString(params.ModelId))
	body, _ := json.Marshal(titanResponse{Embedding: []float64{float64(len(req.InputText)), 1}})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestBedrockEmbedding(t *testing.T) {
	fake := &fakeInvoker{}
	b, err := NewBedrockEmbedding(context.Background(), WithBedrockClient(fake), WithBedrockDimensions(256))
	require.NoError(t, err)

	vecs, err := b.GetTextEmbeddingsBatch(context.Background(), []string{"abc", "jitter"}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3, 1}, {6, 1}}, vecs)

	require.Len(t, fake.requests, 2)
	assert.Equal(t, 256, fake.requests[0].Dimensions)
	assert.True(t, fake.requests[0].Normalize)
	assert.Equal(t, DefaultBedrockEmbeddingModel, fake.models[0])
	assert.Equal(t, 256, b.Info().Dimensions)
}

func TestBedrockEmbeddingError(t *testing.T) {
	boom := errors.New("access denied")
	b, err := NewBedrockEmbedding(context.Background(), WithBedrockClient(&fakeInvoker{err: boom}))
	require.NoError(t, err)

	_, err = b.GetQueryEmbedding(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}
