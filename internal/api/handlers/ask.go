package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tpelligrinomid/midrag/internal/api"
	"github.com/tpelligrinomid/midrag/internal/api/middleware"
	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/openai"
	"github.com/tpelligrinomid/midrag/internal/service"
)

type AnswerService interface {
	Ask(ctx context.Context, input service.AskInput) (<-chan domain.StreamEvent, error)
}

type AskHandler struct {
	svc AnswerService
}

func NewAskHandler(svc AnswerService) *AskHandler {
	return &AskHandler{svc: svc}
}

type AskMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AskRequest struct {
	Query       string       `json:"query"`
	History     []AskMessage `json:"history"`
	SourceTypes []string     `json:"source_types"`
}

// Ask handles POST /ask as a server-sent event stream: one SSE event per
// engine event, flushed as it arrives.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	sourceTypes := make([]domain.SourceType, 0, len(req.SourceTypes))
	for _, st := range req.SourceTypes {
		sourceType := domain.SourceType(st)
		if !domain.IsValidSourceType(sourceType) {
			api.Error(w, http.StatusBadRequest, "invalid source type")
			return
		}
		sourceTypes = append(sourceTypes, sourceType)
	}

	history := make([]openai.ChatMessage, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, openai.ChatMessage{Role: m.Role, Content: m.Content})
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.svc.Ask(r.Context(), service.AskInput{
		Query:       req.Query,
		TenantID:    middleware.GetTenantID(r.Context()),
		History:     history,
		SourceTypes: sourceTypes,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			// The event types are all marshalable; this indicates a bug.
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
		flusher.Flush()
	}
}
