//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/tpelligrinomid/midrag/internal/api/handlers"
	"github.com/tpelligrinomid/midrag/internal/api/middleware"
	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/jobs"
	"github.com/tpelligrinomid/midrag/internal/openai"
	"github.com/tpelligrinomid/midrag/internal/repository"
	"github.com/tpelligrinomid/midrag/internal/server"
	"github.com/tpelligrinomid/midrag/internal/service"
	"github.com/tpelligrinomid/midrag/internal/testutil"
)

const embeddingDimensions = 1536

// localEmbedder produces deterministic bag-of-words embeddings so the full
// ingest -> store -> search path runs against real Postgres without calling
// the provider. Texts sharing words get high cosine similarity.
type localEmbedder struct{}

func (localEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedText(text), nil
}

func (localEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedText(t)
	}
	return out, nil
}

func embedText(text string) []float32 {
	v := make([]float32, embeddingDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,;:!?\"'()")))
		v[h.Sum32()%embeddingDimensions]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// semanticClassifier short-circuits intent classification so answer streams
// exercise retrieval without a provider call.
type semanticClassifier struct{}

func (semanticClassifier) Classify(ctx context.Context, query string) domain.Classification {
	return domain.Classification{Intent: domain.IntentSemantic}
}

// cannedStreamer returns a fixed token stream for every generation call.
type cannedStreamer struct {
	deltas []string
}

func (s cannedStreamer) StreamChat(ctx context.Context, system string, history []openai.ChatMessage) (openai.TokenStream, error) {
	return &cannedStream{deltas: s.deltas}, nil
}

type cannedStream struct {
	deltas []string
	pos    int
}

func (s *cannedStream) Recv() (openai.StreamChunk, error) {
	if s.pos < len(s.deltas) {
		chunk := openai.StreamChunk{Delta: s.deltas[s.pos]}
		s.pos++
		return chunk, nil
	}
	if s.pos == len(s.deltas) {
		s.pos++
		return openai.StreamChunk{Usage: &domain.Usage{InputTokens: 50, OutputTokens: 10}}, nil
	}
	return openai.StreamChunk{}, io.EOF
}

func (s *cannedStream) Close() error { return nil }

// TestEnv wires the whole engine against a containerized database and an
// in-process HTTP server.
type TestEnv struct {
	Pool      *pgxpool.Pool
	Server    *httptest.Server
	Worker    *jobs.Worker
	JobRepo   *repository.IngestJobRepository
	ChunkRepo *repository.ChunkRepository
	Client    *http.Client
}

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	ctx := context.Background()

	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)

	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewIngestJobRepository(pool)
	structuredRepo := repository.NewStructuredRepository(pool)

	embedder := localEmbedder{}
	ingestionSvc := service.NewIngestionService(embedder, chunkRepo, service.ChunkOptions{
		MaxTokens:        500,
		OverlapSentences: 2,
		HardTokenCap:     6000,
	})
	searchSvc := service.NewSearchService(embedder, chunkRepo)
	fetchers := service.NewFetcherRegistry(structuredRepo)
	answerSvc := service.NewAnswerService(
		semanticClassifier{},
		fetchers,
		searchSvc,
		cannedStreamer{deltas: []string{"The launch ", "is in March."}},
	)

	router := server.NewRouter(server.RouterConfig{
		IngestHandler: handlers.NewIngestHandler(ingestionSvc, jobRepo),
		SearchHandler: handlers.NewSearchHandler(searchSvc),
		AskHandler:    handlers.NewAskHandler(answerSvc),
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	ingestWorker := jobs.NewIngestWorker(jobRepo, ingestionSvc)
	worker := jobs.NewWorker(ingestWorker, 100*time.Millisecond)
	go worker.Start(ctx)
	t.Cleanup(worker.Stop)

	return &TestEnv{
		Pool:      pool,
		Server:    ts,
		Worker:    worker,
		JobRepo:   jobRepo,
		ChunkRepo: chunkRepo,
		Client:    ts.Client(),
	}
}

// DoJSON sends a JSON request with the optional tenant header and decodes the
// data envelope of the response into out.
func (env *TestEnv) DoJSON(t *testing.T, method, path, tenantID string, body, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(middleware.TenantHeader, tenantID)
	}

	resp, err := env.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if json.Unmarshal(raw, &envelope) == nil && envelope.Data != nil {
			require.NoError(t, json.Unmarshal(envelope.Data, out))
		}
	}
	return resp.StatusCode
}

// WaitForJob polls the job status endpoint until the job leaves the queue or
// the timeout elapses.
func (env *TestEnv) WaitForJob(t *testing.T, jobID, tenantID string, timeout time.Duration) handlers.IngestJobResponse {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var job handlers.IngestJobResponse
		status := env.DoJSON(t, http.MethodGet, "/ingest/jobs/"+jobID, tenantID, nil, &job)
		require.Equal(t, http.StatusOK, status)
		if job.Status == string(domain.IngestJobStatusCompleted) || job.Status == string(domain.IngestJobStatusFailed) {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish within %s", jobID, timeout)
	return handlers.IngestJobResponse{}
}

// ReadSSE parses the full body of an SSE response into (event, data) pairs.
func ReadSSE(t *testing.T, body io.Reader) [][2]string {
	t.Helper()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	var events [][2]string
	for _, frame := range strings.Split(string(raw), "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		var kind, data string
		for _, line := range strings.Split(frame, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				kind = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, [2]string{kind, data})
	}
	return events
}

func jobURL(jobID string) string {
	return fmt.Sprintf("/ingest/jobs/%s", jobID)
}
