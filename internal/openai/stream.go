package openai

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/tpelligrinomid/midrag/internal/domain"
)

// StreamChunk is one parsed event of a generation stream. Events that carry
// neither text nor usage (keep-alives, role-only deltas) come back empty and
// should be ignored by the consumer.
type StreamChunk struct {
	Delta string
	// Usage is non-nil only on usage-bearing events; counters accumulate, the
	// provider does not resend totals per delta.
	Usage *domain.Usage
}

// TokenStream is the incremental output of one generation call. Recv returns
// io.EOF when the provider signals completion.
type TokenStream interface {
	Recv() (StreamChunk, error)
	Close() error
}

// providerStream matches *openai.ChatCompletionStream.
type providerStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

type tokenStream struct {
	inner providerStream
}

func (s *tokenStream) Recv() (StreamChunk, error) {
	resp, err := s.inner.Recv()
	if err != nil {
		return StreamChunk{}, err
	}

	chunk := StreamChunk{}
	if len(resp.Choices) > 0 {
		chunk.Delta = resp.Choices[0].Delta.Content
	}
	if resp.Usage != nil {
		chunk.Usage = &domain.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return chunk, nil
}

func (s *tokenStream) Close() error {
	return s.inner.Close()
}
