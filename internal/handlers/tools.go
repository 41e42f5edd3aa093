// tools.go handles the one-shot PDF tools.
//
// POST /api/v1/unlock        — Remove a password, returns unlocked.pdf
// POST /api/v1/images-to-pdf — Combine images into an A4 PDF, returns compressed_images.pdf
//
// Both store their input and output as a job so the result can be
// downloaded again later.
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/imagepdf"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/unlock"
)

// UnlockPDF removes password protection when the given password is correct.
// POST /api/v1/unlock
//
// Multipart fields: "pdf" (file) and "password".
func (h *Handler) UnlockPDF(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	data, name, ok := h.readUpload(c, "pdf", "No PDF uploaded")
	if !ok {
		return
	}
	password := c.PostForm("password")

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

	job := &models.Job{ID: paths.JobID, Kind: models.KindUnlock, Status: models.StatusProcessing, OriginalName: name}
	if err := h.Repo.CreateJob(c.Request.Context(), job); err != nil {
		log.Warn().Err(err).Msg("failed to save job record")
	}

	res, err := unlock.Unlock(paths.OriginalPDF, paths.EditedPDF, password)
	if err != nil {
		job.Status = models.StatusFailed
		job.ErrorMessage = err.Error()
		h.saveJob(c, job)

		switch {
		case errors.Is(err, unlock.ErrWrongPassword):
			log.Info().Msg("unlock rejected: wrong password")
			errorJSON(c, http.StatusBadRequest, "wrong_password", "Wrong password (cannot unlock).")
		case errors.Is(err, unlock.ErrInvalidPDF):
			errorJSON(c, http.StatusBadRequest, "invalid_pdf", "The uploaded file could not be read as a PDF")
		default:
			log.Error().Err(err).Msg("unlock failed")
			errorJSON(c, http.StatusInternalServerError, "unlock_failed", "Failed to unlock PDF")
		}
		return
	}

	job.Status = models.StatusEdited
	job.PageCount = res.PageCount
	h.saveJob(c, job)

	log.Info().Bool("was_encrypted", res.WasEncrypted).Int("pages", res.PageCount).Msg("pdf unlocked")
	c.FileAttachment(paths.EditedPDF, "unlocked.pdf")
}

// ImagesToPDF converts uploaded images into one compressed A4 PDF.
// POST /api/v1/images-to-pdf
//
// Multipart field "images", repeated once per image; page order follows
// upload order.
func (h *Handler) ImagesToPDF(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			errorJSON(c, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("Upload exceeds the %d MB limit", h.MaxUploadBytes>>20))
			return
		}
		errorJSON(c, http.StatusBadRequest, "invalid_request", "No images uploaded")
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "No images uploaded")
		return
	}

	images := make([]imagepdf.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "read_error", "Failed to read uploaded file")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "read_error", "Failed to read uploaded file")
			return
		}
		images = append(images, imagepdf.Image{Name: fh.Filename, Data: data})
	}

	var out bytes.Buffer
	if err := imagepdf.Convert(&out, images); err != nil {
		if errors.Is(err, imagepdf.ErrInvalidImage) {
			errorJSON(c, http.StatusBadRequest, "invalid_image", err.Error())
			return
		}
		h.Log.Error().Err(err).Msg("images to pdf failed")
		errorJSON(c, http.StatusInternalServerError, "conversion_failed", "Failed to build PDF")
		return
	}

	paths, err := h.Store.Create()
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to create job dir")
		errorJSON(c, http.StatusInternalServerError, "storage_error", "Failed to store result")
		return
	}
	// The result is both the job's source and its output.
	for _, p := range []string{paths.OriginalPDF, paths.EditedPDF} {
		if err := os.WriteFile(p, out.Bytes(), 0o644); err != nil {
			h.Log.WithJob(paths.JobID).Error().Err(err).Msg("failed to write pdf")
			h.discard(paths.JobID)
			errorJSON(c, http.StatusInternalServerError, "storage_error", "Failed to store result")
			return
		}
	}

	job := &models.Job{
		ID:           paths.JobID,
		Kind:         models.KindImagesToPDF,
		Status:       models.StatusEdited,
		OriginalName: files[0].Filename,
		PageCount:    len(images),
	}
	if err := h.Repo.CreateJob(c.Request.Context(), job); err != nil {
		h.Log.WithJob(job.ID).Warn().Err(err).Msg("failed to save job record")
	}

	h.Log.WithContext(c.Request.Context()).WithJob(job.ID).Info().
		Int("images", len(images)).Int("bytes", out.Len()).Msg("images converted")
	c.FileAttachment(paths.EditedPDF, "compressed_images.pdf")
}

// saveJob persists job changes; failures are logged, not surfaced.
func (h *Handler) saveJob(c *gin.Context, job *models.Job) {
	if err := h.Repo.UpdateJob(c.Request.Context(), job); err != nil {
		h.Log.WithJob(job.ID).Warn().Err(err).Msg("failed to update job record")
	}
}
