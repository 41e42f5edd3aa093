// Package jobstore lays out job files on disk and serializes work on a job.
//
// Layout:
//
//	<media root>/jobs/<job id>/original.pdf
//	<media root>/jobs/<job id>/edited.pdf
//	<media root>/jobs/<job id>/previews/page_0001.png
package jobstore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidID is returned for ids that are not 32 lowercase hex digits.
	ErrInvalidID = errors.New("invalid job id")

	// ErrNotFound is returned when the job directory does not exist.
	ErrNotFound = errors.New("job not found")
)

const (
	originalName = "original.pdf"
	editedName   = "edited.pdf"
	previewsName = "previews"
)

var jobIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Paths are the filesystem locations of one job.
type Paths struct {
	JobID       string
	JobDir      string
	OriginalPDF string
	EditedPDF   string
	PreviewsDir string
}

// Store creates and resolves jobs under a media root.
type Store struct {
	root string
}

// New creates a Store rooted at mediaRoot.
func New(mediaRoot string) *Store {
	return &Store{root: mediaRoot}
}

// Root returns the media root.
func (s *Store) Root() string {
	return s.root
}

// NewJobID returns a random job id: a UUID without dashes.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidID reports whether id has the job id format.
func ValidID(id string) bool {
	return jobIDPattern.MatchString(id)
}

// Create makes the directories of a new job.
func (s *Store) Create() (Paths, error) {
	p := s.paths(NewJobID())
	if err := os.MkdirAll(p.PreviewsDir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create job dir: %w", err)
	}
	return p, nil
}

// Paths resolves the locations of an existing or future job. Only the id
// format is checked, which keeps ids from escaping the media root.
func (s *Store) Paths(jobID string) (Paths, error) {
	if !ValidID(jobID) {
		return Paths{}, fmt.Errorf("%w: %q", ErrInvalidID, jobID)
	}
	return s.paths(jobID), nil
}

// Lookup resolves a job that must already exist.
func (s *Store) Lookup(jobID string) (Paths, error) {
	p, err := s.Paths(jobID)
	if err != nil {
		return Paths{}, err
	}
	if _, err := os.Stat(p.OriginalPDF); err != nil {
		return Paths{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return p, nil
}

// Exists reports whether the job's original document is present.
func (s *Store) Exists(jobID string) bool {
	_, err := s.Lookup(jobID)
	return err == nil
}

// HasEdited reports whether an edited document has been saved for the job.
func (s *Store) HasEdited(jobID string) bool {
	p, err := s.Paths(jobID)
	if err != nil {
		return false
	}
	info, err := os.Stat(p.EditedPDF)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes all files of a job.
func (s *Store) Remove(jobID string) error {
	p, err := s.Paths(jobID)
	if err != nil {
		return err
	}
	return os.RemoveAll(p.JobDir)
}

func (s *Store) paths(jobID string) Paths {
	dir := filepath.Join(s.root, "jobs", jobID)
	return Paths{
		JobID:       jobID,
		JobDir:      dir,
		OriginalPDF: filepath.Join(dir, originalName),
		EditedPDF:   filepath.Join(dir, editedName),
		PreviewsDir: filepath.Join(dir, previewsName),
	}
}

// PreviewName is the file name of the preview of a zero-based page.
func PreviewName(pageIndex int) string {
	return fmt.Sprintf("page_%04d.png", pageIndex+1)
}

// PreviewRel is the media-relative URL path of a preview file.
func PreviewRel(jobID, file string) string {
	return path.Join("jobs", jobID, previewsName, file)
}
