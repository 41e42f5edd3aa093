// Package models defines the data structures used throughout the application.
//
// Go Pattern: Models are plain structs with JSON tags for serialization.
// The `db` tags work with sqlx for database column mapping; the database
// package handles persistence.
package models

import (
	"encoding/json"
	"time"
)

// JobStatus represents the processing state of an upload job.
// Go Pattern: We use string constants instead of enums (Go doesn't have enums).
type JobStatus string

const (
	StatusPending    JobStatus = "pending"    // stored, previews not rendered yet
	StatusProcessing JobStatus = "processing" // a worker is rendering previews
	StatusReady      JobStatus = "ready"      // previews and page metadata available
	StatusEdited     JobStatus = "edited"     // an edited PDF has been saved
	StatusFailed     JobStatus = "failed"
)

// JobKind identifies which tool created a job.
type JobKind string

const (
	KindEdit        JobKind = "edit"
	KindUnlock      JobKind = "unlock"
	KindImagesToPDF JobKind = "images_to_pdf"
)

// Job is one uploaded document and everything derived from it.
// Files live on disk under MEDIA_ROOT/jobs/<id>; this row is the index.
type Job struct {
	ID           string          `json:"id" db:"id"`
	Kind         JobKind         `json:"kind" db:"kind"`
	Status       JobStatus       `json:"status" db:"status"`
	OriginalName string          `json:"original_name" db:"original_name"`
	PageCount    int             `json:"page_count" db:"page_count"`
	WordCount    int             `json:"word_count" db:"word_count"`
	Pages        json.RawMessage `json:"pages" db:"pages"` // JSONB array of PageMeta
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	EditCount    int             `json:"edit_count" db:"edit_count"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// PageMeta describes one page as the preview client sees it. Width and
// height are in points with the page rotation applied.
type PageMeta struct {
	PageIndex  int     `json:"page_index"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
	PreviewRel string  `json:"preview_rel"`
	PreviewURL string  `json:"preview_url,omitempty"`
}

// PageList decodes the Pages column. A job without rendered pages yields
// an empty list.
func (j *Job) PageList() ([]PageMeta, error) {
	pages := []PageMeta{}
	if len(j.Pages) == 0 || string(j.Pages) == "null" {
		return pages, nil
	}
	if err := json.Unmarshal(j.Pages, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// SetPages encodes pages into the Pages column.
func (j *Job) SetPages(pages []PageMeta) error {
	if pages == nil {
		pages = []PageMeta{}
	}
	data, err := json.Marshal(pages)
	if err != nil {
		return err
	}
	j.Pages = data
	j.PageCount = len(pages)
	return nil
}

// --- Request/Response DTOs (Data Transfer Objects) ---
// Go Pattern: Separate structs for API input/output vs database models.
// This keeps your API contract clean and independent of your database schema.

// JobResponse is returned by upload and GET /api/v1/edit/:job_id.
type JobResponse struct {
	Job
	Pages       []PageMeta `json:"pages"`
	DownloadURL string     `json:"download_url,omitempty"`
}

// ApplyResponse is the envelope of POST /api/v1/edit/:job_id/apply.
// The ok/error shape is what the browser editor expects.
type ApplyResponse struct {
	OK          bool     `json:"ok"`
	DownloadURL string   `json:"download_url,omitempty"`
	Applied     int      `json:"applied"`
	Skipped     int      `json:"skipped"`
	SkipReasons []string `json:"skip_reasons,omitempty"`
	Error       string   `json:"error,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
}

// JobListParams holds query parameters for listing jobs.
type JobListParams struct {
	Page    int       `form:"page"`     // Page number (1-indexed)
	PerPage int       `form:"per_page"` // Items per page
	Kind    JobKind   `form:"kind"`     // Filter by tool
	Status  JobStatus `form:"status"`   // Filter by status
	SortDir string    `form:"sort_dir"` // "asc" or "desc"
}

// PaginatedResponse wraps a list response with pagination metadata.
// Go Pattern: Generics (added in Go 1.18) let us create type-safe
// containers. `any` is an alias for `interface{}` — it means "any type".
type PaginatedResponse[T any] struct {
	Data       []T `json:"data"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// ErrorResponse is a standard error format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Locks    string `json:"locks"`
	Workers  int    `json:"workers"`
	Queued   int    `json:"queued"`
}

// WebhookPayload is the JSON body posted to the webhook URL.
type WebhookPayload struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	PageCount int       `json:"page_count"`
	EditCount int       `json:"edit_count"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
