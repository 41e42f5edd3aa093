package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/database"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/jobstore"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/testutil/testpdf"
)

// fakeRenderer returns one PageMeta per configured page without rendering.
type fakeRenderer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeRenderer) Render(pdfPath, dir, jobID string) ([]models.PageMeta, error) {
	f.mu.Lock()
	f.calls = append(f.calls, jobID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []models.PageMeta{
		{PageIndex: 0, PageWidth: 612, PageHeight: 792, PreviewRel: jobstore.PreviewRel(jobID, jobstore.PreviewName(0))},
	}, nil
}

// recordingNotifier keeps every event it is sent.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyJob(event string, job *models.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event+":"+string(job.Status))
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	repo     *database.Memory
	store    *jobstore.Store
	pool     *Pool
	notifier *recordingNotifier
	done     chan error
}

func newFixture(t *testing.T, renderer Renderer) *fixture {
	t.Helper()
	f := &fixture{
		repo:     database.NewMemory(),
		store:    jobstore.New(t.TempDir()),
		notifier: &recordingNotifier{},
		done:     make(chan error, 8),
	}
	f.pool = NewPool(2, 4, f.repo, f.store, renderer, logger.Nop())
	f.pool.SetNotifier(f.notifier)
	f.pool.OnDone = func(_ Job, err error) { f.done <- err }
	f.pool.Start()
	t.Cleanup(f.pool.Stop)
	return f
}

// upload stores a one page document and its job row.
func (f *fixture) upload(t *testing.T) string {
	t.Helper()
	paths, err := f.store.Create()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.OriginalPDF,
		testpdf.Build(testpdf.Letter(testpdf.Text(72, 700, 12, "three little words"))), 0o644))
	require.NoError(t, f.repo.CreateJob(context.Background(), &models.Job{
		ID: paths.JobID, Kind: models.KindEdit, Status: models.StatusPending,
	}))
	return paths.JobID
}

func (f *fixture) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job")
		return nil
	}
}

func TestRenderPreviews(t *testing.T) {
	renderer := &fakeRenderer{}
	f := newFixture(t, renderer)
	id := f.upload(t)

	require.NoError(t, f.pool.Submit(Job{ID: id, Type: JobRenderPreviews}))
	require.NoError(t, f.wait(t))

	j, err := f.repo.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, j.Status)
	assert.Equal(t, 1, j.PageCount)
	assert.Equal(t, 3, j.WordCount)

	pages, err := j.PageList()
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "jobs/"+id+"/previews/page_0001.png", pages[0].PreviewRel)
	assert.Equal(t, []string{id}, renderer.calls)
	assert.Equal(t, []string{"job.ready:ready"}, f.notifier.Events())
}

func TestRenderPreviewsFailure(t *testing.T) {
	f := newFixture(t, &fakeRenderer{err: errors.New("mupdf exploded")})
	id := f.upload(t)

	require.NoError(t, f.pool.Submit(Job{ID: id, Type: JobRenderPreviews}))
	err := f.wait(t)
	require.Error(t, err)

	j, gerr := f.repo.GetJob(context.Background(), id)
	require.NoError(t, gerr)
	assert.Equal(t, models.StatusFailed, j.Status)
	assert.Contains(t, j.ErrorMessage, "mupdf exploded")
	assert.Equal(t, []string{"job.failed:failed"}, f.notifier.Events())
}

func TestUnknownJobs(t *testing.T) {
	f := newFixture(t, &fakeRenderer{})

	tests := []struct {
		name string
		job  Job
	}{
		{name: "unknown type", job: Job{ID: jobstore.NewJobID(), Type: "shred"}},
		{name: "missing job row", job: Job{ID: jobstore.NewJobID(), Type: JobRenderPreviews}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.pool.Submit(tt.job))
			assert.Error(t, f.wait(t))
		})
	}
}

func TestSubmit(t *testing.T) {
	t.Run("queue full", func(t *testing.T) {
		// Never started, so nothing drains the queue.
		p := NewPool(1, 1, database.NewMemory(), jobstore.New(t.TempDir()), &fakeRenderer{}, logger.Nop())
		require.NoError(t, p.Submit(Job{ID: "a", Type: JobRenderPreviews}))
		assert.ErrorIs(t, p.Submit(Job{ID: "b", Type: JobRenderPreviews}), ErrQueueFull)
		assert.Equal(t, 1, p.QueueSize())
	})

	t.Run("after stop", func(t *testing.T) {
		p := NewPool(1, 1, database.NewMemory(), jobstore.New(t.TempDir()), &fakeRenderer{}, logger.Nop())
		p.Start()
		p.Stop()
		p.Stop()
		assert.ErrorIs(t, p.Submit(Job{ID: "a", Type: JobRenderPreviews}), ErrStopped)
	})

	t.Run("worker count floor", func(t *testing.T) {
		p := NewPool(0, 0, database.NewMemory(), jobstore.New(t.TempDir()), &fakeRenderer{}, logger.Nop())
		assert.Equal(t, 1, p.WorkerCount())
	})
}
