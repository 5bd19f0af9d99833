package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tpelligrinomid/midrag/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of returned embeddings
	DefaultEmbeddingDimensions = 1536
	// DefaultGenerationModel is the chat model used for classification and answers
	DefaultGenerationModel = openai.GPT4oMini

	// MaxBatchSize is the largest number of inputs sent per embeddings call
	MaxBatchSize = 100
	// MaxInputChars is the safety limit a single input is truncated to before
	// sending; anything longer risks exceeding the provider's token ceiling
	MaxInputChars = 18000
)

var (
	// ErrNoAPIKey is returned when the provider credential is not configured
	ErrNoAPIKey = errors.New("OpenAI API key not configured")
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
)

// providerAPI is the slice of the go-openai client surface this package uses.
// *openai.Client satisfies it; tests substitute a mock.
type providerAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Config configures the provider client.
type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	GenerationModel     string
	EmbeddingDimensions int
}

// Client wraps the OpenAI API for embeddings, single-shot JSON completions
// and streaming chat. All rate-limited calls share one retry policy.
type Client struct {
	api             providerAPI
	embeddingModel  openai.EmbeddingModel
	generationModel string
	dimensions      int
	retry           retryPolicy
}

// NewClient creates a provider client. Missing credentials are a
// configuration error surfaced immediately, never retried.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return newClientWithAPI(openai.NewClient(cfg.APIKey), cfg), nil
}

func newClientWithAPI(api providerAPI, cfg Config) *Client {
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	generationModel := cfg.GenerationModel
	if generationModel == "" {
		generationModel = DefaultGenerationModel
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:             api,
		embeddingModel:  embeddingModel,
		generationModel: generationModel,
		dimensions:      dimensions,
		retry:           newRateLimitRetryPolicy(),
	}
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, preserving order: the vector at
// index i corresponds to texts[i] even when the provider responds out of
// order. Inputs over MaxInputChars are truncated before sending.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, end-start)
		for i, text := range texts[start:end] {
			batch[i] = truncate(text, MaxInputChars)
		}

		var resp openai.EmbeddingResponse
		err := c.retry.do(ctx, func() error {
			var callErr error
			resp, callErr = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: batch,
				Model: c.embeddingModel,
			})
			return callErr
		})
		if err != nil {
			return nil, wrapProviderError("failed to create embeddings", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding response has %d items, expected %d", len(resp.Data), len(batch))
		}

		// The provider does not guarantee response order.
		sort.Slice(resp.Data, func(i, j int) bool {
			return resp.Data[i].Index < resp.Data[j].Index
		})
		for i, item := range resp.Data {
			if len(item.Embedding) != c.dimensions {
				return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(item.Embedding), c.dimensions)
			}
			out[start+i] = item.Embedding
		}
	}

	return out, nil
}

// Dimensions returns the embedding dimension this client validates against.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    string
	Content string
}

// CompleteJSON runs a single non-streaming chat call in JSON mode and returns
// the raw response text. Callers parse and validate the JSON themselves.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.generationModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", wrapProviderError("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat starts a streaming generation call with the given system prompt
// and conversation history. The caller must Close the returned stream on
// every exit path.
func (c *Client) StreamChat(ctx context.Context, system string, history []ChatMessage) (TokenStream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.generationModel,
		Messages: messages,
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	})
	if err != nil {
		return nil, wrapProviderError("failed to start chat stream", err)
	}
	return &tokenStream{inner: stream}, nil
}

// wrapProviderError classifies a provider failure for callers: exhausted rate
// limits surface as RATE_LIMITED, everything else as an upstream failure. The
// original error text is flattened into the message.
func wrapProviderError(op string, err error) error {
	sentinel := domain.ErrUpstreamFailure
	if IsRateLimited(err) {
		sentinel = domain.ErrRateLimited
	}
	return fmt.Errorf("%s: %w: %v", op, sentinel, err)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
