// edit.go handles the PDF editor endpoints.
//
// POST   /api/v1/edit/upload           — Upload a PDF, queue preview rendering
// GET    /api/v1/edit/:job_id          — Job record with page metadata
// POST   /api/v1/edit/:job_id/apply    — Apply a batch of edit operations
// GET    /api/v1/edit/:job_id/download — Download the edited PDF
// GET    /api/v1/edit/:job_id/text     — Export extracted text (export.go)
// DELETE /api/v1/edit/:job_id          — Delete a job and its files
// GET    /api/v1/jobs                  — List recent jobs
package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/database"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/jobstore"
	pdfservice "github.com/Shimizu-Technology/pdf-tools-api/internal/services/pdf"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/render"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/webhook"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/worker"
)

// previewFile matches the names the renderer writes.
var previewFile = regexp.MustCompile(`^page_[0-9]{4,}\.png$`)

// UploadPDF stores an uploaded PDF as a new edit job.
// POST /api/v1/edit/upload
//
// Accepts multipart file upload with field name "pdf". Page metadata is
// available immediately; previews are rendered in the background.
func (h *Handler) UploadPDF(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	data, name, ok := h.readUpload(c, "pdf", "No PDF uploaded")
	if !ok {
		return
	}
	if !pdfservice.ValidatePDF(data) {
		errorJSON(c, http.StatusBadRequest, "invalid_pdf", "The uploaded file does not appear to be a valid PDF")
		return
	}

	paths, err := h.Store.Create()
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to create job dir")
		errorJSON(c, http.StatusInternalServerError, "storage_error", "Failed to store upload")
		return
	}
	log := h.Log.WithContext(c.Request.Context()).WithJob(paths.JobID)

	if err := os.WriteFile(paths.OriginalPDF, data, 0o644); err != nil {
		log.Error().Err(err).Msg("failed to write original pdf")
		h.discard(paths.JobID)
		errorJSON(c, http.StatusInternalServerError, "storage_error", "Failed to store upload")
		return
	}

	// Parse once up front so broken documents are rejected at upload time.
	pages, err := render.Pages(paths.OriginalPDF, paths.JobID)
	if err != nil {
		log.Warn().Err(err).Msg("uploaded pdf could not be parsed")
		h.discard(paths.JobID)
		errorJSON(c, http.StatusBadRequest, "invalid_pdf", "The uploaded PDF could not be read: "+err.Error())
		return
	}

	job := &models.Job{
		ID:           paths.JobID,
		Kind:         models.KindEdit,
		Status:       models.StatusPending,
		OriginalName: name,
	}
	if err := job.SetPages(pages); err != nil {
		log.Error().Err(err).Msg("failed to encode page metadata")
	}
	if err := h.Repo.CreateJob(c.Request.Context(), job); err != nil {
		log.Error().Err(err).Msg("failed to save job record")
		h.discard(paths.JobID)
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to save job")
		return
	}

	h.queueRender(c, job)
	log.Info().Str("original_name", name).Int("pages", job.PageCount).Msg("pdf uploaded")
	c.JSON(http.StatusCreated, h.jobResponse(job))
}

// queueRender hands preview rendering to the worker pool, rendering inline
// when the queue is full.
func (h *Handler) queueRender(c *gin.Context, job *models.Job) {
	err := h.Queue.Submit(worker.Job{ID: job.ID, Type: worker.JobRenderPreviews})
	if err == nil {
		return
	}

	log := h.Log.WithJob(job.ID)
	log.Warn().Err(err).Msg("render queue unavailable, rendering inline")
	paths, perr := h.Store.Paths(job.ID)
	if perr != nil {
		return
	}
	pages, rerr := h.Renderer.Render(paths.OriginalPDF, paths.PreviewsDir, job.ID)
	if rerr != nil {
		job.Status = models.StatusFailed
		job.ErrorMessage = rerr.Error()
	} else {
		_ = job.SetPages(pages)
		job.Status = models.StatusReady
	}
	if uerr := h.Repo.UpdateJob(c.Request.Context(), job); uerr != nil {
		log.Error().Err(uerr).Msg("failed to update job after inline render")
	}
}

// GetJob returns a job with its page metadata.
// GET /api/v1/edit/:job_id
func (h *Handler) GetJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.jobResponse(job))
}

// ListJobs returns recent jobs, newest first.
// GET /api/v1/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	var params models.JobListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "Invalid query parameters: "+err.Error())
		return
	}

	jobs, total, err := h.Repo.ListJobs(c.Request.Context(), params)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to list jobs")
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}

	// Echo the effective paging values
	page, perPage := max(params.Page, 1), params.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	c.JSON(http.StatusOK, models.PaginatedResponse[models.Job]{
		Data:       jobs,
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	})
}

// ApplyEdits runs a batch of edit operations against the job's original PDF.
// POST /api/v1/edit/:job_id/apply
//
// The body is {"ops": [...]}. The response always uses the
// {"ok": bool, ...} envelope the browser editor expects.
func (h *Handler) ApplyEdits(c *gin.Context) {
	jobID := c.Param("job_id")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes))
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ApplyResponse{
				OK: false, Error: "Request body too large", ErrorKind: "invalid_request",
			})
			return
		}
		c.JSON(http.StatusBadRequest, models.ApplyResponse{
			OK: false, Error: "Failed to read request body", ErrorKind: "invalid_request",
		})
		return
	}

	res, err := h.Editor.ApplyJob(c.Request.Context(), jobID, body)
	if err != nil {
		kind := editor.ErrorKind(err)
		c.JSON(applyStatus(kind), models.ApplyResponse{
			OK:        false,
			Error:     applyMessage(kind, err),
			ErrorKind: kind,
		})
		return
	}

	if err := h.Repo.MarkEdited(c.Request.Context(), jobID); err != nil && !errors.Is(err, database.ErrNotFound) {
		h.Log.WithJob(jobID).Warn().Err(err).Msg("failed to record edit")
	}
	h.notify(c, webhook.EventJobEdited, jobID)

	c.JSON(http.StatusOK, models.ApplyResponse{
		OK:          true,
		DownloadURL: downloadURL(jobID),
		Applied:     res.Applied,
		Skipped:     res.Skipped,
		SkipReasons: res.SkipReasons,
	})
}

// applyStatus maps an error kind to its HTTP status.
func applyStatus(kind string) int {
	switch kind {
	case "job_not_found":
		return http.StatusNotFound
	case "invalid_request":
		return http.StatusBadRequest
	case "payload_decode_error":
		return http.StatusUnprocessableEntity
	case "job_busy":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func applyMessage(kind string, err error) string {
	switch kind {
	case "job_not_found":
		return "Job not found"
	case "invalid_request":
		return "Invalid JSON: " + err.Error()
	case "job_busy":
		return "Another edit is being applied to this job; try again"
	default:
		return err.Error()
	}
}

// notify sends a job event when a notifier is configured.
func (h *Handler) notify(c *gin.Context, event, jobID string) {
	if h.Notifier == nil {
		return
	}
	job, err := h.Repo.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.Log.WithJob(jobID).Warn().Err(err).Str("event", event).Msg("job event dropped")
		return
	}
	h.Notifier.NotifyJob(event, job)
}

// DownloadEdited serves the last saved edited PDF.
// GET /api/v1/edit/:job_id/download
func (h *Handler) DownloadEdited(c *gin.Context) {
	jobID := c.Param("job_id")
	if !h.Store.HasEdited(jobID) {
		errorJSON(c, http.StatusNotFound, "not_found", "No edited PDF yet. Click Save in editor.")
		return
	}
	paths, _ := h.Store.Paths(jobID)
	c.FileAttachment(paths.EditedPDF, "edited.pdf")
}

// DeleteJob removes a job's files and record.
// DELETE /api/v1/edit/:job_id
func (h *Handler) DeleteJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if !jobstore.ValidID(jobID) {
		errorJSON(c, http.StatusNotFound, "job_not_found", "Job not found")
		return
	}

	err := h.Repo.DeleteJob(c.Request.Context(), jobID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		h.Log.WithJob(jobID).Error().Err(err).Msg("failed to delete job record")
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to delete job")
		return
	}
	found := err == nil || h.Store.Exists(jobID)
	if rerr := h.Store.Remove(jobID); rerr != nil {
		h.Log.WithJob(jobID).Error().Err(rerr).Msg("failed to delete job files")
		errorJSON(c, http.StatusInternalServerError, "storage_error", "Failed to delete job files")
		return
	}
	if !found {
		errorJSON(c, http.StatusNotFound, "job_not_found", "Job not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// ServePreview serves a rendered page preview.
// GET /media/jobs/:job_id/previews/:file
func (h *Handler) ServePreview(c *gin.Context) {
	jobID, file := c.Param("job_id"), c.Param("file")
	paths, err := h.Store.Paths(jobID)
	if err != nil || !previewFile.MatchString(file) {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(filepath.Join(paths.PreviewsDir, file))
}

// loadJob resolves :job_id to its record, writing a 404 when it is unknown.
func (h *Handler) loadJob(c *gin.Context) (*models.Job, bool) {
	jobID := c.Param("job_id")
	if !jobstore.ValidID(jobID) {
		errorJSON(c, http.StatusNotFound, "job_not_found", "Job not found")
		return nil, false
	}
	job, err := h.Repo.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorJSON(c, http.StatusNotFound, "job_not_found", "Job not found")
			return nil, false
		}
		h.Log.WithJob(jobID).Error().Err(err).Msg("failed to load job")
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to load job")
		return nil, false
	}
	return job, true
}

// jobResponse adds preview URLs and the download link to a job.
func (h *Handler) jobResponse(job *models.Job) models.JobResponse {
	pages, err := job.PageList()
	if err != nil {
		h.Log.WithJob(job.ID).Warn().Err(err).Msg("corrupt page metadata")
		pages = []models.PageMeta{}
	}
	for i := range pages {
		pages[i].PreviewURL = "/media/" + pages[i].PreviewRel
	}
	resp := models.JobResponse{Job: *job, Pages: pages}
	if h.Store.HasEdited(job.ID) {
		resp.DownloadURL = downloadURL(job.ID)
	}
	return resp
}

// readUpload reads one multipart file field fully into memory.
func (h *Handler) readUpload(c *gin.Context, field, missing string) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		if isTooLarge(err) {
			errorJSON(c, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("Upload exceeds the %d MB limit", h.MaxUploadBytes>>20))
			return nil, "", false
		}
		errorJSON(c, http.StatusBadRequest, "invalid_request", missing)
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "read_error", "Failed to read uploaded file")
		return nil, "", false
	}
	return data, header.Filename, true
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

// discard removes the files of a job that failed during upload.
func (h *Handler) discard(jobID string) {
	if err := h.Store.Remove(jobID); err != nil {
		h.Log.WithJob(jobID).Warn().Err(err).Msg("failed to clean up job dir")
	}
}

func downloadURL(jobID string) string {
	return "/api/v1/edit/" + jobID + "/download"
}
