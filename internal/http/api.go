package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mediabatch/internal/controller"
	"mediabatch/internal/domain"
	"mediabatch/internal/history"
	"mediabatch/internal/platform"
	"mediabatch/internal/queue"
	"mediabatch/internal/ratelimit"
)

// Handler wires HTTP routes to the queue and execution controller.
type Handler struct {
	queue      *queue.Queue
	controller *controller.Controller
	recorder   history.Recorder
	limiter    *ratelimit.Limiter
	playlists  *platform.PlaylistExpander
}

func NewHandler(q *queue.Queue, c *controller.Controller, recorder history.Recorder, limiter *ratelimit.Limiter, playlists *platform.PlaylistExpander) *Handler {
	return &Handler{
		queue:      q,
		controller: c,
		recorder:   recorder,
		limiter:    limiter,
		playlists:  playlists,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/jobs", h.createJob)
		api.GET("/jobs", h.listJobs)
		api.GET("/jobs/:id", h.getJob)
		api.DELETE("/jobs/:id", h.removeJob)

		api.POST("/batch/start", h.startBatch)
		api.POST("/batch/pause", h.pauseCurrent)
		api.POST("/batch/resume", h.resumeCurrent)
		api.POST("/batch/cancel-current", h.cancelCurrent)
		api.POST("/batch/cancel-all", h.cancelAll)

		api.GET("/history", h.listHistory)
		api.DELETE("/history", h.clearHistory)

		api.GET("/ratelimit", h.getRateLimit)
		api.PUT("/ratelimit", h.setRateLimit)

		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type createJobRequest struct {
	URL      string `json:"url" binding:"required"`
	Quality  string `json:"quality"`
	Format   string `json:"format"`
	Playlist bool   `json:"playlist"`
}

type jobView struct {
	ID            string `json:"id"`
	SourceURL     string `json:"source_url"`
	Quality       string `json:"quality,omitempty"`
	Format        string `json:"format,omitempty"`
	Title         string `json:"title,omitempty"`
	State         string `json:"state"`
	BytesReceived int64  `json:"bytes_received"`
	BytesTotal    int64  `json:"bytes_total"`
	Rate          int64  `json:"rate"`
	Resumable     bool   `json:"resumable"`
	OutputPath    string `json:"output_path,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	ErrorDetail   string `json:"error_detail,omitempty"`
	CreatedAt     string `json:"created_at"`
	FinishedAt    string `json:"finished_at,omitempty"`
}

func viewOf(job domain.Job) jobView {
	view := jobView{
		ID:            job.ID,
		SourceURL:     job.SourceURL,
		Quality:       job.Quality,
		Format:        job.Format,
		Title:         job.Title,
		State:         job.State.String(),
		BytesReceived: job.Progress.BytesReceived,
		BytesTotal:    job.Progress.BytesTotal,
		Rate:          job.Progress.Rate,
		Resumable:     job.ResumeToken != "",
		OutputPath:    job.OutputPath,
		CreatedAt:     job.CreatedAt.Format(time.RFC3339),
	}
	if job.Err != nil {
		view.ErrorKind = string(job.Err.Kind)
		view.ErrorDetail = job.Err.Detail
	}
	if !job.FinishedAt.IsZero() {
		view.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return view
}

func (h *Handler) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	urls := []string{req.URL}
	if req.Playlist && h.playlists != nil && h.playlists.IsPlaylistURL(req.URL) {
		expanded, err := h.playlists.Expand(c.Request.Context(), req.URL)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		urls = expanded
	}

	views := make([]jobView, 0, len(urls))
	for _, u := range urls {
		job, err := h.queue.Enqueue(u, req.Quality, req.Format)
		if err != nil {
			h.renderError(c, err)
			return
		}
		views = append(views, viewOf(job))
	}
	c.JSON(http.StatusCreated, gin.H{"jobs": views})
}

func (h *Handler) listJobs(c *gin.Context) {
	views := make([]jobView, 0, h.queue.Len())
	for job := range h.queue.Snapshot() {
		views = append(views, viewOf(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": views})
}

func (h *Handler) getJob(c *gin.Context) {
	job, ok := h.queue.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrJobNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(job))
}

func (h *Handler) removeJob(c *gin.Context) {
	if err := h.queue.Remove(c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) startBatch(c *gin.Context) {
	h.controller.StartBatch()
	c.JSON(http.StatusAccepted, gin.H{"running": true})
}

func (h *Handler) pauseCurrent(c *gin.Context) {
	if err := h.controller.PauseCurrent(); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) resumeCurrent(c *gin.Context) {
	if err := h.controller.ResumeCurrent(); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) cancelCurrent(c *gin.Context) {
	if err := h.controller.CancelCurrent(); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) cancelAll(c *gin.Context) {
	h.controller.CancelAll()
	c.Status(http.StatusAccepted)
}

func (h *Handler) listHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := h.recorder.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (h *Handler) clearHistory(c *gin.Context) {
	if err := h.recorder.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type rateLimitRequest struct {
	BytesPerSecond int64 `json:"bytes_per_second"`
}

func (h *Handler) getRateLimit(c *gin.Context) {
	c.JSON(http.StatusOK, rateLimitRequest{BytesPerSecond: h.limiter.Rate()})
}

func (h *Handler) setRateLimit(c *gin.Context) {
	var req rateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.limiter.SetRate(req.BytesPerSecond); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rateLimitRequest{BytesPerSecond: h.limiter.Rate()})
}

func (h *Handler) renderError(c *gin.Context, err error) {
	var invalidState *domain.InvalidStateError
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
