package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediabatch/internal/controller"
	"mediabatch/internal/engine"
	"mediabatch/internal/history"
	"mediabatch/internal/platform"
	"mediabatch/internal/queue"
	"mediabatch/internal/ratelimit"
)

type noopFetcher struct{}

func (noopFetcher) Resolve(context.Context, string) (*engine.ResolveInfo, error) {
	return &engine.ResolveInfo{}, nil
}

func (noopFetcher) Transfer(context.Context, engine.TransferRequest) (*engine.TransferResult, error) {
	return &engine.TransferResult{}, nil
}

type memoryRecorder struct {
	records []history.Record
}

func (r *memoryRecorder) Record(_ context.Context, rec history.Record) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *memoryRecorder) List(context.Context, int) ([]history.Record, error) {
	return r.records, nil
}

func (r *memoryRecorder) Clear(context.Context) error {
	r.records = nil
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *queue.Queue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	q := queue.New()
	limiter, err := ratelimit.New(0)
	require.NoError(t, err)

	ctrl := controller.New(controller.Config{}, q, noopFetcher{}, nil, nil)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Shutdown)

	handler := NewHandler(q, ctrl, &memoryRecorder{}, limiter, platform.NewPlaylistExpander())
	router := gin.New()
	handler.RegisterRoutes(router)
	return router, q
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateJob(t *testing.T) {
	router, q := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/jobs", gin.H{
		"url":     "https://example.com/a.mp4",
		"quality": "1080p",
		"format":  "mp4",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Jobs []jobView `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.NotEmpty(t, resp.Jobs[0].ID)
	assert.Equal(t, "queued", resp.Jobs[0].State)
	assert.Equal(t, "1080p", resp.Jobs[0].Quality)
	assert.Equal(t, 1, q.Len())
}

func TestCreateJob_InvalidURL(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/jobs", gin.H{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/jobs", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndGetJobs(t *testing.T) {
	router, q := newTestRouter(t)

	job, err := q.Enqueue("https://example.com/a.mp4", "", "")
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Jobs []jobView `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Jobs, 1)

	w = doJSON(router, http.MethodGet, "/api/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveJob(t *testing.T) {
	router, q := newTestRouter(t)

	job, err := q.Enqueue("https://example.com/a.mp4", "", "")
	require.NoError(t, err)

	w := doJSON(router, http.MethodDelete, "/api/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, q.Len())

	w = doJSON(router, http.MethodDelete, "/api/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchCommands_ConflictWhenIdle(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/api/batch/pause", "/api/batch/resume", "/api/batch/cancel-current"} {
		w := doJSON(router, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusConflict, w.Code, path)
	}

	w := doJSON(router, http.MethodPost, "/api/batch/cancel-all", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRateLimitEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPut, "/api/ratelimit", rateLimitRequest{BytesPerSecond: 1 << 20})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/ratelimit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp rateLimitRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1<<20), resp.BytesPerSecond)

	w = doJSON(router, http.MethodPut, "/api/ratelimit", rateLimitRequest{BytesPerSecond: -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
