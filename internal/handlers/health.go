// Package handlers contains HTTP handler functions for the API.
//
// Go Pattern: Handlers in Gin receive a *gin.Context which provides:
// - Request data (params, query, body, headers)
// - Response methods (JSON, String, Status)
// - Middleware data (c.Get/c.Set)
//
// We group related handlers into a struct (Handler) that holds shared dependencies.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/database"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/jobstore"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/worker"
)

// Queue accepts background jobs.
type Queue interface {
	Submit(job worker.Job) error
	WorkerCount() int
	QueueSize() int
}

// Pinger is implemented by lock backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Notifier receives job events.
type Notifier interface {
	NotifyJob(event string, job *models.Job)
}

// Deps are the dependencies of all handlers.
type Deps struct {
	Repo     database.Repository
	Store    *jobstore.Store
	Queue    Queue
	Renderer worker.Renderer // used inline when the queue is full
	Editor   *editor.Service
	Locks    Pinger   // optional
	Notifier Notifier // optional
	Log      *logger.Logger

	MaxUploadBytes int64
	Version        string
}

// Handler holds shared dependencies for all HTTP handlers.
// Go Pattern: Dependency injection via struct fields. Instead of global
// variables or service locators, we pass dependencies explicitly.
// This makes testing easy — just create a Handler with fake dependencies.
type Handler struct {
	Deps
}

// NewHandler creates a new handler with all dependencies.
func NewHandler(deps Deps) *Handler {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 50 << 20
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handler{Deps: deps}
}

// HealthCheck returns the API health status.
// GET /api/v1/health
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	dbStatus := "healthy"
	if err := h.Repo.HealthCheck(ctx); err != nil {
		dbStatus = "unhealthy: " + err.Error()
		status = "degraded"
	}

	lockStatus := "in-process"
	if h.Locks != nil {
		lockStatus = "healthy"
		if err := h.Locks.Ping(ctx); err != nil {
			lockStatus = "unhealthy: " + err.Error()
			status = "degraded"
		}
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:   status,
		Version:  h.Version,
		Database: dbStatus,
		Locks:    lockStatus,
		Workers:  h.Queue.WorkerCount(),
		Queued:   h.Queue.QueueSize(),
	})
}

// errorJSON writes the standard error body.
func errorJSON(c *gin.Context, code int, kind, message string) {
	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   kind,
		Message: message,
		Code:    code,
	})
}
