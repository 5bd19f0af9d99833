package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tpelligrinomid/midrag/internal/domain"
)

// MockProviderAPI mocks the go-openai client surface
type MockProviderAPI struct {
	mock.Mock
}

func (m *MockProviderAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	args := m.Called(ctx, conv)
	return args.Get(0).(openai.EmbeddingResponse), args.Error(1)
}

func (m *MockProviderAPI) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func (m *MockProviderAPI) CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.ChatCompletionStream), args.Error(1)
}

func newTestClient(api providerAPI) *Client {
	c := newClientWithAPI(api, Config{EmbeddingDimensions: 3})
	c.retry.baseDelay = time.Millisecond
	return c
}

func makeEmbedding(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestEmbed_EmptyText(t *testing.T) {
	client := newTestClient(new(MockProviderAPI))

	_, err := client.Embed(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbedBatch_Empty(t *testing.T) {
	client := newTestClient(new(MockProviderAPI))

	vectors, err := client.EmbedBatch(context.Background(), nil)

	assert.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedBatch_ReordersProviderResponse(t *testing.T) {
	api := new(MockProviderAPI)
	client := newTestClient(api)

	// Provider returns items out of order; index must win over position.
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{
		Data: []openai.Embedding{
			{Index: 2, Embedding: makeEmbedding(3, 0.3)},
			{Index: 0, Embedding: makeEmbedding(3, 0.1)},
			{Index: 1, Embedding: makeEmbedding(3, 0.2)},
		},
	}, nil)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, makeEmbedding(3, 0.1), vectors[0])
	assert.Equal(t, makeEmbedding(3, 0.2), vectors[1])
	assert.Equal(t, makeEmbedding(3, 0.3), vectors[2])
	api.AssertExpectations(t)
}

func TestEmbedBatch_TruncatesOversizedInput(t *testing.T) {
	api := new(MockProviderAPI)
	client := newTestClient(api)

	var sentInput []string
	api.On("CreateEmbeddings", mock.Anything, mock.MatchedBy(func(conv openai.EmbeddingRequestConverter) bool {
		req, ok := conv.(openai.EmbeddingRequest)
		if !ok {
			return false
		}
		sentInput, ok = req.Input.([]string)
		return ok
	})).Return(openai.EmbeddingResponse{
		Data: []openai.Embedding{{Index: 0, Embedding: makeEmbedding(3, 0.5)}},
	}, nil)

	huge := strings.Repeat("x", MaxInputChars+5000)
	_, err := client.EmbedBatch(context.Background(), []string{huge})

	require.NoError(t, err)
	require.Len(t, sentInput, 1)
	assert.Len(t, sentInput[0], MaxInputChars)
}

func TestEmbedBatch_SplitsLargeBatches(t *testing.T) {
	// The fake echoes one embedding per input, so the response size tracks
	// the batch size the client actually sent.
	fake := &fakeEmbeddingAPI{dim: 3}
	client := newTestClient(fake)

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = "text"
	}

	vectors, err := client.EmbedBatch(context.Background(), texts)

	require.NoError(t, err)
	assert.Len(t, vectors, 150)
	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, []int{100, 50}, fake.batchSizes)
}

// fakeEmbeddingAPI echoes one embedding per input, recording batch sizes.
type fakeEmbeddingAPI struct {
	dim        int
	calls      int
	batchSizes []int
	failures   int
	failWith   error
}

func (f *fakeEmbeddingAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return openai.EmbeddingResponse{}, f.failWith
	}
	req := conv.(openai.EmbeddingRequest)
	input := req.Input.([]string)
	f.batchSizes = append(f.batchSizes, len(input))
	resp := openai.EmbeddingResponse{}
	for i := range input {
		resp.Data = append(resp.Data, openai.Embedding{Index: i, Embedding: make([]float32, f.dim)})
	}
	return resp, nil
}

func (f *fakeEmbeddingAPI) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, errors.New("not implemented")
}

func (f *fakeEmbeddingAPI) CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, errors.New("not implemented")
}

func TestEmbedBatch_RetriesRateLimit(t *testing.T) {
	fake := &fakeEmbeddingAPI{
		dim:      3,
		failures: 2,
		failWith: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limited"},
	}
	client := newTestClient(fake)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a"})

	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 3, fake.calls)
}

func TestEmbedBatch_RateLimitExhaustsRetries(t *testing.T) {
	fake := &fakeEmbeddingAPI{
		dim:      3,
		failures: 10,
		failWith: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limited"},
	}
	client := newTestClient(fake)

	_, err := client.EmbedBatch(context.Background(), []string{"a"})

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 1+DefaultMaxRetries, fake.calls)
}

func TestEmbedBatch_AuthErrorNotRetried(t *testing.T) {
	fake := &fakeEmbeddingAPI{
		dim:      3,
		failures: 10,
		failWith: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"},
	}
	client := newTestClient(fake)

	_, err := client.EmbedBatch(context.Background(), []string{"a"})

	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	assert.Equal(t, 1, fake.calls)
}

func TestEmbedBatch_WrongDimensions(t *testing.T) {
	api := new(MockProviderAPI)
	client := newTestClient(api)

	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{
		Data: []openai.Embedding{{Index: 0, Embedding: makeEmbedding(5, 0.1)}},
	}, nil)

	_, err := client.EmbedBatch(context.Background(), []string{"a"})

	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestCompleteJSON_Success(t *testing.T) {
	api := new(MockProviderAPI)
	client := newTestClient(api)

	api.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.ResponseFormat != nil &&
			req.ResponseFormat.Type == openai.ChatCompletionResponseFormatTypeJSONObject &&
			len(req.Messages) == 2
	})).Return(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `{"intent":"semantic"}`}},
		},
	}, nil)

	out, err := client.CompleteJSON(context.Background(), "system", "question")

	require.NoError(t, err)
	assert.Equal(t, `{"intent":"semantic"}`, out)
	api.AssertExpectations(t)
}

func TestCompleteJSON_NoChoices(t *testing.T) {
	api := new(MockProviderAPI)
	client := newTestClient(api)

	api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, nil)

	_, err := client.CompleteJSON(context.Background(), "system", "question")

	assert.Error(t, err)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.False(t, IsRateLimited(&openai.APIError{HTTPStatusCode: http.StatusUnauthorized}))
	assert.False(t, IsRateLimited(errors.New("plain error")))
	assert.False(t, IsRateLimited(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	// Never split a multibyte rune.
	s := "aaé"
	cut := truncate(s, 3)
	assert.Equal(t, "aa", cut)
}

// fakeProviderStream feeds canned responses into tokenStream.
type fakeProviderStream struct {
	responses []openai.ChatCompletionStreamResponse
	errs      []error
	pos       int
	closed    bool
}

func (f *fakeProviderStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if f.pos >= len(f.responses) {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	resp := f.responses[f.pos]
	var err error
	if f.pos < len(f.errs) {
		err = f.errs[f.pos]
	}
	f.pos++
	return resp, err
}

func (f *fakeProviderStream) Close() error {
	f.closed = true
	return nil
}

func TestTokenStream_MapsDeltasAndUsage(t *testing.T) {
	inner := &fakeProviderStream{
		responses: []openai.ChatCompletionStreamResponse{
			{Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: "Hello"}}}},
			{Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: " world"}}}},
			{Usage: &openai.Usage{PromptTokens: 12, CompletionTokens: 5}},
		},
	}
	stream := &tokenStream{inner: inner}

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Hello", first.Delta)
	assert.Nil(t, first.Usage)

	second, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, " world", second.Delta)

	third, err := stream.Recv()
	require.NoError(t, err)
	assert.Empty(t, third.Delta)
	require.NotNil(t, third.Usage)
	assert.Equal(t, 12, third.Usage.InputTokens)
	assert.Equal(t, 5, third.Usage.OutputTokens)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)

	assert.NoError(t, stream.Close())
	assert.True(t, inner.closed)
}
