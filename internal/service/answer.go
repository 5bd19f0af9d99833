package service

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/openai"
	"github.com/tpelligrinomid/midrag/internal/telemetry"
)

// ErrEmptyQuery is returned when a question has no content after trimming.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Classifier decides how a question should be answered.
type Classifier interface {
	Classify(ctx context.Context, query string) domain.Classification
}

// StructuredFetcher runs structured data queries for classified labels.
type StructuredFetcher interface {
	FetchAll(ctx context.Context, labels []string, tenantID string, scope ScopeHint) []FetchResult
}

// Searcher retrieves semantically similar chunks for a query.
type Searcher interface {
	Search(ctx context.Context, input SearchInput) ([]*SearchResult, error)
}

// ChatStreamer starts a streaming generation call.
type ChatStreamer interface {
	StreamChat(ctx context.Context, system string, history []openai.ChatMessage) (openai.TokenStream, error)
}

// AskInput parameterizes one question.
type AskInput struct {
	Query    string
	TenantID string
	History  []openai.ChatMessage
	// SourceTypes narrows both structured fetching and retrieval; nil means all.
	SourceTypes []domain.SourceType
}

// AnswerService answers questions end to end: classify the intent, gather
// structured data and/or retrieved chunks, assemble a prompt and stream the
// generated answer as a sequence of events.
type AnswerService struct {
	classifier Classifier
	fetchers   StructuredFetcher
	searcher   Searcher
	streamer   ChatStreamer
}

func NewAnswerService(classifier Classifier, fetchers StructuredFetcher, searcher Searcher, streamer ChatStreamer) *AnswerService {
	return &AnswerService{
		classifier: classifier,
		fetchers:   fetchers,
		searcher:   searcher,
		streamer:   streamer,
	}
}

// Ask starts answering the question and returns the event channel. The channel
// always delivers at most one context event, zero or more deltas, and exactly
// one terminal event (done or error), then closes. Cancelling ctx stops the
// stream; the terminal event may be dropped if the consumer has gone away.
func (s *AnswerService) Ask(ctx context.Context, input AskInput) (<-chan domain.StreamEvent, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	input.Query = query

	events := make(chan domain.StreamEvent)
	go s.run(ctx, input, events)
	return events, nil
}

func (s *AnswerService) run(ctx context.Context, input AskInput, events chan<- domain.StreamEvent) {
	defer close(events)

	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Ask", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		Operation: "ask",
	})
	defer span.End()

	classification := s.classifier.Classify(ctx, input.Query)

	var structured []FetchResult
	if classification.Intent != domain.IntentSemantic {
		structured = s.fetchers.FetchAll(ctx, classification.StructuredLabels, input.TenantID, ScopeHint{
			SourceTypes: input.SourceTypes,
		})
	}

	// Pure structured questions fall back to retrieval when every fetch came
	// back empty, so the model still has something to answer from.
	needSearch := classification.Intent != domain.IntentStructured || len(structured) == 0

	var rag []*SearchResult
	if needSearch {
		hits, err := s.searcher.Search(ctx, SearchInput{
			Query:       input.Query,
			TenantID:    input.TenantID,
			SourceTypes: input.SourceTypes,
		})
		if err != nil {
			// A store or provider outage is not "no relevant content": the
			// caller gets a terminal error, not the fallback template.
			log.Printf("semantic search failed: %v", err)
			send(ctx, events, domain.NewErrorEvent("retrieval failed"))
			return
		}
		rag = hits
	}

	assembled := AssembleContext(structured, rag)
	if !send(ctx, events, domain.NewContextEvent(assembled.Sources)) {
		return
	}

	history := make([]openai.ChatMessage, 0, len(input.History)+1)
	history = append(history, input.History...)
	history = append(history, openai.ChatMessage{Role: "user", Content: input.Query})

	stream, err := s.streamer.StreamChat(ctx, assembled.Prompt, history)
	if err != nil {
		send(ctx, events, domain.NewErrorEvent("failed to start answer generation"))
		return
	}
	defer stream.Close()

	var usage domain.Usage
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			send(ctx, events, domain.NewDoneEvent(usage))
			return
		}
		if err != nil {
			log.Printf("answer stream failed: %v", err)
			send(ctx, events, domain.NewErrorEvent("answer generation was interrupted"))
			return
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Delta != "" {
			if !send(ctx, events, domain.NewDeltaEvent(chunk.Delta)) {
				return
			}
		}
	}
}

func send(ctx context.Context, events chan<- domain.StreamEvent, event domain.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
