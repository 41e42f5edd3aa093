// export.go handles text export of a job's document.
//
// Supported formats:
//   - txt  — Plain text, pages separated by form feeds
//   - md   — Markdown with a metadata header and one section per page
//   - json — Page texts with job metadata
//
// Go Pattern: Each export format is its own function. This makes it easy
// to add new formats later — just add a case to the switch and a new
// formatter function. This is the "Strategy pattern" without the ceremony.
package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
	pdfservice "github.com/Shimizu-Technology/pdf-tools-api/internal/services/pdf"
)

// ExportText exports the extracted text of a job's document.
// GET /api/v1/edit/:job_id/text?format=txt|md|json&source=original|edited
//
// source defaults to the edited document when one has been saved, so
// redacted text never leaks through the export once edits exist.
func (h *Handler) ExportText(c *gin.Context) {
	format := c.DefaultQuery("format", "txt")

	// Validate format before touching the document
	validFormats := map[string]bool{"txt": true, "md": true, "json": true}
	if !validFormats[format] {
		errorJSON(c, http.StatusBadRequest, "invalid_format", "Supported formats: txt, md, json")
		return
	}

	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	paths, err := h.Store.Paths(job.ID)
	if err != nil {
		errorJSON(c, http.StatusNotFound, "job_not_found", "Job not found")
		return
	}

	source := c.Query("source")
	if source == "" {
		source = "original"
		if h.Store.HasEdited(job.ID) {
			source = "edited"
		}
	}
	var pdfPath string
	switch source {
	case "original":
		pdfPath = paths.OriginalPDF
	case "edited":
		if !h.Store.HasEdited(job.ID) {
			errorJSON(c, http.StatusNotFound, "not_found", "No edited PDF yet. Click Save in editor.")
			return
		}
		pdfPath = paths.EditedPDF
	default:
		errorJSON(c, http.StatusBadRequest, "invalid_source", "Supported sources: original, edited")
		return
	}

	text, err := pdfservice.InspectFile(pdfPath)
	if err != nil {
		h.Log.WithJob(job.ID).Warn().Err(err).Str("source", source).Msg("text extraction failed")
		errorJSON(c, http.StatusUnprocessableEntity, "extraction_failed", "Could not extract text from this PDF")
		return
	}

	filename := sanitizeFilename(strings.TrimSuffix(job.OriginalName, filepath.Ext(job.OriginalName)))
	if filename == "" {
		filename = job.ID
	}

	switch format {
	case "txt":
		exportTXT(c, text, filename)
	case "md":
		exportMarkdown(c, job, text, filename)
	case "json":
		exportJSON(c, job, source, text, filename)
	}
}

// exportTXT returns the text with a form feed between pages.
func exportTXT(c *gin.Context, text *pdfservice.Inspection, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.txt"`, filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(strings.Join(text.Pages, "\n\f\n")))
}

// exportMarkdown returns the text as Markdown with a metadata header.
func exportMarkdown(c *gin.Context, job *models.Job, text *pdfservice.Inspection, filename string) {
	var sb strings.Builder

	title := job.OriginalName
	if title == "" {
		title = job.ID
	}
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Pages | %d |\n", text.PageCount))
	sb.WriteString(fmt.Sprintf("| Words | %d |\n", text.WordCount))
	sb.WriteString(fmt.Sprintf("| Reading time | %s |\n", readingTime(text.WordCount)))
	sb.WriteString(fmt.Sprintf("| Edits saved | %d |\n", job.EditCount))
	sb.WriteString(fmt.Sprintf("| Uploaded | %s |\n", job.CreatedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString("\n---\n")

	for i, page := range text.Pages {
		sb.WriteString(fmt.Sprintf("\n## Page %d\n\n", i+1))
		if page == "" {
			sb.WriteString("_(no text)_\n")
			continue
		}
		sb.WriteString(page)
		sb.WriteString("\n")
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.md"`, filename))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(sb.String()))
}

// exportJSON returns the page texts with job metadata.
func exportJSON(c *gin.Context, job *models.Job, source string, text *pdfservice.Inspection, filename string) {
	// Build a clean export structure (we control what's included)
	exportData := map[string]interface{}{
		"id":            job.ID,
		"original_name": job.OriginalName,
		"source":        source,
		"page_count":    text.PageCount,
		"word_count":    text.WordCount,
		"reading_time":  readingTime(text.WordCount),
		"pages":         text.Pages,
		"edit_count":    job.EditCount,
		"created_at":    job.CreatedAt,
		"updated_at":    job.UpdatedAt,
	}

	jsonBytes, err := json.MarshalIndent(exportData, "", "  ")
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "export_error", "Failed to generate JSON export")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, filename))
	c.Data(http.StatusOK, "application/json; charset=utf-8", jsonBytes)
}

// --- Helper Functions ---

// readingTime estimates reading time at 200 words per minute.
func readingTime(words int) string {
	return fmt.Sprintf("%d min", int(math.Ceil(float64(words)/200.0)))
}

// sanitizeFilename removes characters that aren't safe for filenames.
// Go Pattern: Keep it simple — replace unsafe characters with hyphens
// and trim the result. We don't need a full filesystem-safe sanitizer
// since this is just for the Content-Disposition header.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-",
		"?", "-", "\"", "-", "<", "-", ">", "-",
		"|", "-", "\n", " ", "\r", "",
	)
	name = replacer.Replace(name)

	// Collapse multiple hyphens/spaces
	for strings.Contains(name, "  ") {
		name = strings.ReplaceAll(name, "  ", " ")
	}
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}

	name = strings.TrimSpace(name)

	if len(name) > 100 {
		name = name[:100]
	}
	return name
}
