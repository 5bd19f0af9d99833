//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpelligrinomid/midrag/internal/api/handlers"
	"github.com/tpelligrinomid/midrag/internal/api/middleware"
	"github.com/tpelligrinomid/midrag/internal/domain"
)

func TestIngestAndSearch(t *testing.T) {
	env := SetupTestEnv(t)

	var ingestResp handlers.IngestResponse
	status := env.DoJSON(t, http.MethodPost, "/ingest", "acme", handlers.IngestRequest{
		SourceType: string(domain.SourceTypeNote),
		SourceID:   "note-1",
		Title:      "Launch Plan",
		Content:    "The product launch happens in March. Marketing owns the announcement.",
	}, &ingestResp)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, ingestResp.ChunksCreated)

	var searchResp handlers.SearchResponse
	status = env.DoJSON(t, http.MethodPost, "/search", "acme", handlers.SearchRequest{
		Query:          "when is the product launch",
		MatchThreshold: 0.1,
	}, &searchResp)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, searchResp.Results, 1)
	assert.Equal(t, "note-1", searchResp.Results[0].SourceID)
	assert.Equal(t, "Launch Plan", searchResp.Results[0].Title)
	assert.Contains(t, searchResp.Results[0].Content, "launch happens in March")

	// Another tenant sees nothing
	status = env.DoJSON(t, http.MethodPost, "/search", "other", handlers.SearchRequest{
		Query:          "when is the product launch",
		MatchThreshold: 0.1,
	}, &searchResp)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, searchResp.Results)
}

func TestReingestReplacesChunks(t *testing.T) {
	env := SetupTestEnv(t)

	ingest := func(content string) {
		var resp handlers.IngestResponse
		status := env.DoJSON(t, http.MethodPost, "/ingest", "acme", handlers.IngestRequest{
			SourceType: string(domain.SourceTypeNote),
			SourceID:   "note-1",
			Title:      "Launch Plan",
			Content:    content,
		}, &resp)
		require.Equal(t, http.StatusOK, status)
	}

	ingest("The launch is in March.")
	ingest("The launch moved to April.")

	var searchResp handlers.SearchResponse
	status := env.DoJSON(t, http.MethodPost, "/search", "acme", handlers.SearchRequest{
		Query:          "launch",
		MatchThreshold: 0.01,
	}, &searchResp)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, searchResp.Results, 1)
	assert.Contains(t, searchResp.Results[0].Content, "April")
}

func TestAsyncIngestLifecycle(t *testing.T) {
	env := SetupTestEnv(t)

	var jobResp handlers.IngestJobResponse
	status := env.DoJSON(t, http.MethodPost, "/ingest?async=1", "acme", handlers.IngestRequest{
		SourceType: string(domain.SourceTypeMeeting),
		SourceID:   "meeting-1",
		Title:      "Weekly Sync",
		Content:    "We discussed the renewal timeline and agreed on next steps.",
	}, &jobResp)
	require.Equal(t, http.StatusAccepted, status)
	require.NotEmpty(t, jobResp.JobID)
	assert.Equal(t, string(domain.IngestJobStatusPending), jobResp.Status)

	done := env.WaitForJob(t, jobResp.JobID, "acme", 10*time.Second)
	assert.Equal(t, string(domain.IngestJobStatusCompleted), done.Status)
	assert.Empty(t, done.Error)
	assert.NotEmpty(t, done.ProcessedAt)

	var searchResp handlers.SearchResponse
	status = env.DoJSON(t, http.MethodPost, "/search", "acme", handlers.SearchRequest{
		Query:          "renewal timeline",
		MatchThreshold: 0.1,
	}, &searchResp)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, searchResp.Results, 1)
	assert.Equal(t, "meeting-1", searchResp.Results[0].SourceID)

	// Jobs are invisible to other tenants
	var notFound handlers.IngestJobResponse
	status = env.DoJSON(t, http.MethodGet, jobURL(jobResp.JobID), "other", nil, &notFound)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAskStreamsAnswer(t *testing.T) {
	env := SetupTestEnv(t)

	var ingestResp handlers.IngestResponse
	status := env.DoJSON(t, http.MethodPost, "/ingest", "acme", handlers.IngestRequest{
		SourceType: string(domain.SourceTypeNote),
		SourceID:   "note-1",
		Title:      "Launch Plan",
		Content:    "The product launch happens in March.",
	}, &ingestResp)
	require.Equal(t, http.StatusOK, status)

	payload, err := json.Marshal(handlers.AskRequest{Query: "when is the launch"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/ask", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, "acme")

	resp, err := env.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := ReadSSE(t, resp.Body)
	require.NotEmpty(t, events)

	assert.Equal(t, "context", events[0][0])
	var contextEvent domain.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(events[0][1]), &contextEvent))
	require.Len(t, contextEvent.Sources, 1)
	assert.Equal(t, "note-1", contextEvent.Sources[0].SourceID)

	var answer strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		require.Equal(t, "delta", ev[0])
		var delta domain.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(ev[1]), &delta))
		answer.WriteString(delta.Text)
	}
	assert.Equal(t, "The launch is in March.", answer.String())

	last := events[len(events)-1]
	assert.Equal(t, "done", last[0])
	var doneEvent domain.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(last[1]), &doneEvent))
	require.NotNil(t, doneEvent.Usage)
	assert.Equal(t, 50, doneEvent.Usage.InputTokens)
	assert.Equal(t, 10, doneEvent.Usage.OutputTokens)
}

func TestIngestValidation(t *testing.T) {
	env := SetupTestEnv(t)

	// Missing source_id
	status := env.DoJSON(t, http.MethodPost, "/ingest", "acme", handlers.IngestRequest{
		SourceType: string(domain.SourceTypeNote),
		Content:    "body",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Unknown source type
	status = env.DoJSON(t, http.MethodPost, "/ingest", "acme", handlers.IngestRequest{
		SourceType: "webinar",
		SourceID:   "w-1",
		Content:    "body",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
