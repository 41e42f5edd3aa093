// Package router sets up all HTTP routes for the API.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/handlers"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/middleware"
)

// Setup creates and configures the Gin router with all routes.
func Setup(h *handlers.Handler, rateLimiter *middleware.RateLimiter, allowedOrigins []string) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(allowedOrigins))

	// --- Public, unmetered routes ---
	r.GET("/api/v1/health", h.HealthCheck)
	r.GET("/api/docs", h.ServeSwaggerUI)
	r.GET("/api/docs/openapi.yaml", h.ServeOpenAPISpec)
	r.GET("/media/jobs/:job_id/previews/:file", h.ServePreview)

	// --- Rate limited API routes ---
	api := r.Group("/api/v1")
	api.Use(rateLimiter.RateLimit())
	{
		// Editor (upload → preview → apply → download)
		api.POST("/edit/upload", h.UploadPDF)
		api.GET("/edit/:job_id", h.GetJob)
		api.DELETE("/edit/:job_id", h.DeleteJob)
		api.POST("/edit/:job_id/apply", h.ApplyEdits)
		api.GET("/edit/:job_id/download", h.DownloadEdited)
		api.GET("/edit/:job_id/text", h.ExportText)
		api.GET("/jobs", h.ListJobs)

		// One-shot tools
		api.POST("/unlock", h.UnlockPDF)
		api.POST("/images-to-pdf", h.ImagesToPDF)
	}

	return r
}
