// Package server exposes the download core over HTTP: one endpoint to admit
// a task, one to stream its progress over server-sent events, and two to
// cancel or delete it, all backed by internal/registry and internal/engine.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rivermist/hlsdl/internal/config"
	"github.com/rivermist/hlsdl/internal/engine"
	"github.com/rivermist/hlsdl/internal/logging"
	"github.com/rivermist/hlsdl/internal/progress"
	"github.com/rivermist/hlsdl/internal/registry"
)

// Response is the envelope every JSON endpoint replies with, matching the
// teacher's {code, data, message} shape.
type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	URL         string            `json:"url" binding:"required"`
	Name        string            `json:"name"`
	Concurrency int               `json:"concurrency"`
	MaxRetries  int               `json:"max_retries"`
	Headers     map[string]string `json:"headers"`
	HeaderSet   string            `json:"header_set"`
}

// taskState holds the latest progress snapshot and terminal outcome for one
// admitted task. The SSE handler polls it; the download goroutine is its
// only writer.
type taskState struct {
	mu       sync.RWMutex
	snapshot progress.Snapshot
	done     bool
	result   engine.Result
	err      error
}

func (s *taskState) update(snap progress.Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

func (s *taskState) finish(result engine.Result, err error) {
	s.mu.Lock()
	s.done = true
	s.result = result
	s.err = err
	s.mu.Unlock()
}

func (s *taskState) read() (snap progress.Snapshot, done bool, result engine.Result, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.done, s.result, s.err
}

// Server wires the registry and engine behind a gin router.
type Server struct {
	registry  *registry.Registry
	cfg       *config.Config
	outputDir string

	mu    sync.Mutex
	tasks map[string]*taskState

	engine *gin.Engine
	http   *http.Server
}

// New builds a Server writing finished downloads under outputDir (or the
// config's OutputDir when outputDir is empty). It does not listen until
// ListenAndServe is called.
func New(cfg *config.Config, outputDir string) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		registry:  registry.New(),
		cfg:       cfg,
		outputDir: outputDir,
		tasks:     make(map[string]*taskState),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware())

	r.POST("/tasks", s.handleCreateTask)
	r.GET("/tasks/:id/events", s.handleTaskEvents)
	r.POST("/tasks/:id/pause", s.handlePauseTask)
	r.POST("/tasks/:id/resume", s.handleResumeTask)
	r.POST("/tasks/:id/cancel", s.handleCancelTask)
	r.DELETE("/tasks/:id", s.handleDeleteTask)
	r.GET("/health", s.handleHealth)

	s.engine = r
	return s
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Print(logging.Tag("server", "%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start)))
	}
}

// ListenAndServe starts the HTTP server on addr and blocks until it exits.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"status": "ok"}, Message: "healthy"})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: "url is required"})
		return
	}

	id := uuid.New().String()

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.Concurrency
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	headers := req.Headers
	if req.HeaderSet != "" {
		headers = s.cfg.HeaderBundle(req.HeaderSet)
	}

	outputDir := s.outputDir
	if outputDir == "" {
		outputDir = s.cfg.OutputDir
	}
	tempDir := filepath.Join(outputDir, "temp_"+id)

	task := s.registry.Add(id, tempDir)

	state := &taskState{}
	s.mu.Lock()
	s.tasks[id] = state
	s.mu.Unlock()

	params := engine.Params{
		ID:          id,
		URL:         req.URL,
		Name:        req.Name,
		OutputDir:   outputDir,
		TempDir:     tempDir,
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
		Headers:     headers,
	}

	go s.runTask(params, task, state)

	c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"id": id}, Message: "task admitted"})
}

// runTask drains the engine's channels into state until the run reaches a
// terminal outcome, so SSE subscribers (possibly none, possibly several,
// possibly reconnecting mid-run) always read the latest snapshot rather
// than racing the engine's internal channels directly.
func (s *Server) runTask(params engine.Params, task *registry.Task, state *taskState) {
	ctx := context.Background()
	snapshots, results, errs := engine.Download(ctx, params, task)

	for snap := range snapshots {
		state.update(snap)
	}

	select {
	case result := <-results:
		state.finish(result, nil)
	case err := <-errs:
		state.finish(engine.Result{}, err)
	}
}

func (s *Server) handleTaskEvents(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	state, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: "task not found"})
		return
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			snap, done, result, err := state.read()
			event := gin.H{
				"id":       snap.ID,
				"progress": snap.Progress,
				"speed":    snap.Speed,
				"status":   snap.Status,
				"details": gin.H{
					"chunks":       snap.Chunks,
					"total_chunks": snap.TotalChunks,
					"downloaded":   snap.DownloadedBytes,
					"total_bytes":  snap.TotalBytes,
				},
			}
			if done {
				if err != nil {
					event["error"] = err.Error()
				} else {
					event["output_path"] = result.OutputPath
				}
			}
			c.SSEvent("progress", event)
			return !done
		}
	})
}

func (s *Server) handlePauseTask(c *gin.Context) {
	id := c.Param("id")
	if !s.registry.Exists(id) {
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: fmt.Sprintf("task %q not found", id)})
		return
	}
	s.registry.Pause(id)
	c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"id": id}, Message: "task paused"})
}

func (s *Server) handleResumeTask(c *gin.Context) {
	id := c.Param("id")
	if !s.registry.Exists(id) {
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: fmt.Sprintf("task %q not found", id)})
		return
	}
	s.registry.Resume(id)
	c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"id": id}, Message: "task resumed"})
}

func (s *Server) handleCancelTask(c *gin.Context) {
	id := c.Param("id")
	if !s.registry.Exists(id) {
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: fmt.Sprintf("task %q not found", id)})
		return
	}
	s.registry.Cancel(id)
	c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"id": id}, Message: "task cancelled"})
}

// handleDeleteTask is idempotent per registry.Delete: deleting an id that
// was never admitted, or was already deleted, still reports success.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, Response{Code: 500, Message: err.Error()})
		return
	}
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	c.JSON(http.StatusOK, Response{Code: 200, Data: gin.H{"id": id}, Message: fmt.Sprintf("task %s deleted", id)})
}
