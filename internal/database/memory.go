package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
)

// Memory is an in-process Repository used when no DATABASE_URL is
// configured (local development, the CLI) and in tests. Records are lost
// on restart.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
	now  func() time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]models.Job),
		now:  time.Now,
	}
}

// HealthCheck always succeeds.
func (m *Memory) HealthCheck(context.Context) error {
	return nil
}

// CreateJob stores a copy of j.
func (m *Memory) CreateJob(_ context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(j.Pages) == 0 {
		j.Pages = []byte("[]")
	}
	now := m.now()
	j.CreatedAt, j.UpdatedAt = now, now
	m.jobs[j.ID] = clone(*j)
	return nil
}

// GetJob returns a copy of the stored job.
func (m *Memory) GetJob(_ context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	j = clone(j)
	return &j, nil
}

// UpdateJob overwrites the mutable fields of a stored job.
func (m *Memory) UpdateJob(_ context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.jobs[j.ID]
	if !ok {
		return ErrNotFound
	}
	if len(j.Pages) == 0 {
		j.Pages = []byte("[]")
	}
	cur.Status = j.Status
	cur.PageCount = j.PageCount
	cur.WordCount = j.WordCount
	cur.Pages = j.Pages
	cur.ErrorMessage = j.ErrorMessage
	cur.UpdatedAt = m.now()
	j.UpdatedAt = cur.UpdatedAt
	m.jobs[j.ID] = clone(cur)
	return nil
}

// MarkEdited records a saved edit.
func (m *Memory) MarkEdited(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = models.StatusEdited
	j.EditCount++
	j.ErrorMessage = ""
	j.UpdatedAt = m.now()
	m.jobs[id] = j
	return nil
}

// ListJobs filters, sorts by creation time and paginates.
func (m *Memory) ListJobs(_ context.Context, params models.JobListParams) ([]models.Job, int, error) {
	params = normalizeListParams(params)

	m.mu.RLock()
	var matched []models.Job
	for _, j := range m.jobs {
		if params.Kind != "" && j.Kind != params.Kind {
			continue
		}
		if params.Status != "" && j.Status != params.Status {
			continue
		}
		matched = append(matched, clone(j))
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(a, b int) bool {
		ta, tb := matched[a].CreatedAt, matched[b].CreatedAt
		if ta.Equal(tb) {
			return matched[a].ID < matched[b].ID
		}
		if params.SortDir == "asc" {
			return ta.Before(tb)
		}
		return ta.After(tb)
	})

	total := len(matched)
	start := min((params.Page-1)*params.PerPage, total)
	end := min(start+params.PerPage, total)
	return matched[start:end], total, nil
}

// DeleteJob removes a job record.
func (m *Memory) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func clone(j models.Job) models.Job {
	j.Pages = append([]byte(nil), j.Pages...)
	return j
}
