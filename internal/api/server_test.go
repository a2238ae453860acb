package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tesfandiari1/llms.txt/internal/config"
	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/dispatcher"
	"github.com/tesfandiari1/llms.txt/internal/id/uuid"
	queueMemory "github.com/tesfandiari1/llms.txt/internal/queue/memory"
	"github.com/tesfandiari1/llms.txt/internal/storage/memory"
)

type testAPI struct {
	server *Server
	repo   *memory.Repository
	store  *memory.BlobStore
	queue  *queueMemory.Queue
}

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8000, CORSOrigins: []string{"http://localhost:3000"}},
		Crawler: config.CrawlerConfig{MaxPages: 500},
	}
}

func newTestAPI(t *testing.T, cfg config.Config) *testAPI {
	t.Helper()
	clock := &fakeClock{now: time.Unix(100, 0).UTC()}
	repo := memory.NewRepository(uuid.New(), clock)
	store := memory.NewBlobStore()
	q := queueMemory.NewQueue(10)
	dispatch := dispatcher.New(q, nil, clock)
	server := NewServer(repo, dispatch, store, &fakeIDGen{ids: []string{"job-1"}}, clock, cfg, zap.NewNop())
	return &testAPI{server: server, repo: repo, store: store, queue: q}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) seedJob(t *testing.T, job digest.Job) []digest.Page {
	t.Helper()
	ctx := context.Background()
	if job.URL == "" {
		job.URL = "https://docs.acme.dev"
	}
	require.NoError(t, a.repo.CreateJob(ctx, job))
	pages, err := a.repo.CreatePages(ctx, job.ID, []digest.PageDraft{
		{URL: "https://docs.acme.dev/", Path: "/", Category: "Guides", ImportanceScore: 90, Included: true},
		{URL: "https://docs.acme.dev/api", Path: "/api", Category: "API", ImportanceScore: 50, Included: true},
	})
	require.NoError(t, err)
	return pages
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateJobEnqueuesProcessJob(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())
	rec := api.do(t, http.MethodPost, "/api/jobs", `{"url":"https://docs.acme.dev","mode":"scan","auto_generate":false,"max_pages":40}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "job-1", body["id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "scan", body["mode"])
	assert.Equal(t, false, body["auto_generate"])
	assert.Nil(t, body["progress_message"])

	item, err := api.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, digest.QueueItem{
		JobID:      "job-1",
		Entrypoint: digest.EntrypointProcessJob,
		Attempt:    1,
		Submitted:  100,
	}, item)

	job, err := api.repo.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 40, job.MaxPages)
}

func TestCreateJobDefaults(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())
	rec := api.do(t, http.MethodPost, "/api/jobs", `{"url":"https://docs.acme.dev"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	job, err := api.repo.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, digest.ModeAuto, job.Mode)
	assert.True(t, job.AutoGenerate)
	assert.Equal(t, 500, job.MaxPages)
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{invalid`, "invalid JSON"},
		{"missing url", `{}`, "url required"},
		{"unsupported scheme", `{"url":"ftp://docs.acme.dev"}`, "url must be an absolute http(s) URL"},
		{"relative url", `{"url":"/docs"}`, "url must be an absolute http(s) URL"},
		{"unknown mode", `{"url":"https://docs.acme.dev","mode":"deep"}`, "mode must be one of auto, scan"},
		{"page cap too small", `{"url":"https://docs.acme.dev","max_pages":0}`, "max_pages must be between 1 and 500"},
		{"page cap too large", `{"url":"https://docs.acme.dev","max_pages":501}`, "max_pages must be between 1 and 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := newTestAPI(t, testConfig())
			rec := api.do(t, http.MethodPost, "/api/jobs", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode(t, rec)["error"])
			assert.Zero(t, api.queue.Len())
		})
	}
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())
	api.seedJob(t, digest.Job{ID: "job-1", Status: digest.JobStatusExtracting, Mode: digest.ModeAuto, ProgressPercent: 15, ProgressMessage: "Extracting content..."})

	rec := api.do(t, http.MethodGet, "/api/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "extracting", body["status"])
	assert.Equal(t, float64(15), body["progress_percent"])
	assert.Equal(t, "Extracting content...", body["progress_message"])
	assert.Nil(t, body["error_message"])

	rec = api.do(t, http.MethodGet, "/api/jobs/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "job not found", decode(t, rec)["error"])
}

func TestListPages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := newTestAPI(t, testConfig())
	pages := api.seedJob(t, digest.Job{ID: "job-1", Status: digest.JobStatusCompleted})
	require.NoError(t, api.repo.UpdatePage(ctx, pages[0].ID, digest.PageUpdate{
		Title:    digest.Ptr("Home"),
		Markdown: digest.Ptr("# Home"),
	}))
	_, err := api.repo.SetPagesIncluded(ctx, "job-1", []string{pages[1].ID}, false)
	require.NoError(t, err)

	rec := api.do(t, http.MethodGet, "/api/jobs/job-1/pages", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got pageList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.IncludedCount)
	require.Len(t, got.Pages, 2)
	assert.Equal(t, "Home", *got.Pages[0].Title)
	assert.True(t, got.Pages[0].HasMarkdown)
	assert.False(t, got.Pages[0].HasSummary)
	assert.Nil(t, got.Pages[1].Title)
	assert.False(t, got.Pages[1].Included)

	rec = api.do(t, http.MethodGet, "/api/jobs/missing/pages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePages(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())
	pages := api.seedJob(t, digest.Job{ID: "job-1", Status: digest.JobStatusCompleted})

	body := fmt.Sprintf(`{"page_ids":[%q,"not-a-page"],"included":false}`, pages[0].ID)
	rec := api.do(t, http.MethodPatch, "/api/jobs/job-1/pages", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["updated"])

	included, err := api.repo.PagesForExtraction(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, included, 1)
	assert.Equal(t, pages[1].ID, included[0].ID)

	rec = api.do(t, http.MethodPatch, "/api/jobs/job-1/pages", `{"page_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPatch, "/api/jobs/missing/pages", `{"page_ids":[],"included":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerGeneration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := newTestAPI(t, testConfig())
	api.seedJob(t, digest.Job{ID: "job-1", Status: digest.JobStatusCompleted, Mode: digest.ModeScan})

	rec := api.do(t, http.MethodPost, "/api/jobs/job-1/generate", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, map[string]any{"status": "queued", "message": "Generation started for 2 pages"}, decode(t, rec))

	job, err := api.repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, digest.JobStatusSummarizing, job.Status)
	assert.Equal(t, 50, job.ProgressPercent)
	assert.Equal(t, "Starting generation...", job.ProgressMessage)

	item, err := api.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, digest.EntrypointContinueGeneration, item.Entrypoint)
	assert.Equal(t, "job-1", item.JobID)
}

func TestTriggerGenerationPreconditions(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())
	api.seedJob(t, digest.Job{ID: "auto", Status: digest.JobStatusCompleted, AutoGenerate: true})
	api.seedJob(t, digest.Job{ID: "running", Status: digest.JobStatusExtracting})

	rec := api.do(t, http.MethodPost, "/api/jobs/auto/generate", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/jobs/running/generate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/jobs/missing/generate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Zero(t, api.queue.Len())
}

func TestDownload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := newTestAPI(t, testConfig())
	api.seedJob(t, digest.Job{ID: "job-1", Status: digest.JobStatusPending})
	require.NoError(t, api.repo.UpdateJob(ctx, "job-1", digest.JobUpdate{
		Status: digest.Ptr(digest.JobStatusCompleted),
		ResultFiles: map[string]string{
			digest.ArtifactLinkIndex:       "job-1/llms.txt",
			digest.ArtifactEmbeddedContent: "job-1/llms-ctx.txt",
		},
	}))
	_, err := api.store.Save(ctx, "job-1/llms.txt", "# Acme\n")
	require.NoError(t, err)

	for _, path := range []string{"/api/jobs/job-1/download", "/api/jobs/job-1/download/llms_txt"} {
		rec := api.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "# Acme\n", rec.Body.String())
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="llms.txt"`, rec.Header().Get("Content-Disposition"))
	}

	rec := api.do(t, http.MethodGet, "/api/jobs/job-1/download/llms_ctx", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "file not found", decode(t, rec)["error"])

	rec = api.do(t, http.MethodGet, "/api/jobs/job-1/download/llms_full", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "file type 'llms_full' not found", decode(t, rec)["error"])

	rec = api.do(t, http.MethodGet, "/api/files/job-1/llms.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Acme\n", rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/files/job-1/missing.txt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type downRepo struct {
	*memory.Repository
}

func (downRepo) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealth(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())
	rec := api.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "healthy", "database": "connected"}, decode(t, rec))

	clock := &fakeClock{now: time.Unix(100, 0)}
	down := NewServer(downRepo{memory.NewRepository(uuid.New(), clock)}, nil, memory.NewBlobStore(),
		&fakeIDGen{}, clock, testConfig(), zap.NewNop())
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())
	api.do(t, http.MethodGet, "/health", "")
	rec := api.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	api := newTestAPI(t, cfg)

	rec := api.do(t, http.MethodGet, "/api/jobs/job-1", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, testConfig())
	rec := api.do(t, http.MethodGet, "/health", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
	require.NotNil(t, buf)
}

type failingWriter struct {
	header http.Header
	status int
}

func (f *failingWriter) Header() http.Header { return f.header }

func (f *failingWriter) WriteHeader(code int) { f.status = code }

func (f *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("client went away")
}

func TestWriteTextLogsThroughServerLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	clock := &fakeClock{now: time.Unix(100, 0)}
	server := NewServer(memory.NewRepository(uuid.New(), clock), nil, memory.NewBlobStore(),
		&fakeIDGen{}, clock, testConfig(), zap.New(core))

	w := &failingWriter{header: http.Header{}}
	server.writeText(w, "llms.txt", "# Acme\n")

	require.Equal(t, http.StatusOK, w.status)
	entries := logs.FilterMessage("write file failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "api", entries[0].LoggerName)
	assert.Equal(t, "llms.txt", entries[0].ContextMap()["filename"])
}

// --- helpers/fakes ---

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "id-default", nil
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
