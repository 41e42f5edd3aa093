// Package worker provides a background job processing system using goroutines.
//
// Go Pattern: Goroutines and channels are Go's concurrency primitives.
// A goroutine is like a lightweight thread (thousands are fine), and
// channels are typed pipes for communication between goroutines.
//
// This worker pool pattern is very common in Go:
// 1. Create a buffered channel as a job queue
// 2. Spawn N worker goroutines that read from the channel
// 3. Send jobs to the channel from your HTTP handlers
// 4. Workers process jobs concurrently
//
// Uploads return as soon as the PDF is stored; preview rendering and text
// inspection happen here.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/database"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/jobstore"
	pdfservice "github.com/Shimizu-Technology/pdf-tools-api/internal/services/pdf"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/webhook"
)

// ErrQueueFull is returned by Submit when the buffer is full.
var ErrQueueFull = errors.New("job queue is full; try again later")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker pool is stopped")

// JobType identifies what kind of work a job represents.
type JobType string

const (
	// JobRenderPreviews renders page PNGs and page metadata for a job.
	JobRenderPreviews JobType = "render_previews"
)

// Job represents a unit of work to be processed by a worker.
type Job struct {
	ID        string // the job ID shared by the database row and the job directory
	Type      JobType
	CreatedAt time.Time
}

// Renderer renders every page of pdfPath into dir.
type Renderer interface {
	Render(pdfPath, dir, jobID string) ([]models.PageMeta, error)
}

// Notifier receives job events.
type Notifier interface {
	NotifyJob(event string, job *models.Job)
}

// Pool manages a pool of worker goroutines.
type Pool struct {
	// Buffered channel acting as the job queue.
	jobs    chan Job
	workers int

	repo     database.Repository
	store    *jobstore.Store
	renderer Renderer
	notifier Notifier // optional
	log      *logger.Logger

	// OnDone, when set, is called after every job with its error (nil on
	// success). Used by tests and metrics hooks.
	OnDone func(Job, error)

	// Go Pattern: sync.WaitGroup tracks running goroutines.
	// We call wg.Add(1) when starting a worker, wg.Done() when it finishes,
	// and wg.Wait() blocks until all workers are done (used for graceful shutdown).
	wg sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a new worker pool.
func NewPool(workers, queueSize int, repo database.Repository, store *jobstore.Store, renderer Renderer, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:     make(chan Job, queueSize),
		workers:  workers,
		repo:     repo,
		store:    store,
		renderer: renderer,
		log:      log.WithComponent("worker"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetNotifier sends job.ready and job.failed events to n. Call before Start.
func (p *Pool) SetNotifier(n Notifier) {
	p.notifier = n
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.log.Info().Int("workers", p.workers).Msg("starting background workers")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop drains the queue and waits for all workers to finish. Jobs still
// queued when Stop is called are processed before it returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.log.Info().Msg("all workers stopped")
}

// Submit adds a job to the queue without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	// Go Pattern: `select` with `default` makes channel operations non-blocking.
	// Without default, sending to a full channel would block the HTTP handler.
	select {
	case p.jobs <- job:
		p.log.Debug().Str("job_id", job.ID).Str("type", string(job.Type)).Msg("job queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueSize returns the current number of jobs in the queue.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int {
	return p.workers
}

// worker is the main loop for each worker goroutine.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	// Go Pattern: `range` over a channel reads values until the channel is closed.
	for job := range p.jobs {
		log := p.log.WithJob(job.ID)
		start := time.Now()

		var err error
		switch job.Type {
		case JobRenderPreviews:
			err = p.renderPreviews(job)
		default:
			err = fmt.Errorf("unknown job type: %s", job.Type)
		}

		if err != nil {
			log.Error().Err(err).Int("worker", id).Str("type", string(job.Type)).Msg("job failed")
		} else {
			log.Info().Int("worker", id).Str("type", string(job.Type)).
				Dur("duration", time.Since(start)).Msg("job completed")
		}
		if p.OnDone != nil {
			p.OnDone(job, err)
		}
	}
}

// renderPreviews renders the original PDF of a job, inspects its text and
// records the page metadata.
func (p *Pool) renderPreviews(job Job) error {
	ctx := p.ctx

	j, err := p.repo.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	j.Status = models.StatusProcessing
	if err := p.repo.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	fail := func(err error) error {
		j.Status = models.StatusFailed
		j.ErrorMessage = err.Error()
		if uerr := p.repo.UpdateJob(ctx, j); uerr != nil {
			p.log.WithJob(job.ID).Warn().Err(uerr).Msg("failed to record job failure")
		}
		p.notify(webhook.EventJobFailed, j)
		return err
	}

	paths, err := p.store.Lookup(job.ID)
	if err != nil {
		return fail(err)
	}

	pages, err := p.renderer.Render(paths.OriginalPDF, paths.PreviewsDir, job.ID)
	if err != nil {
		return fail(fmt.Errorf("rendering failed: %w", err))
	}
	if err := j.SetPages(pages); err != nil {
		return fail(err)
	}

	// Word counts are informational; a document whose text cannot be
	// extracted is still editable.
	if info, err := pdfservice.InspectFile(paths.OriginalPDF); err == nil {
		j.WordCount = info.WordCount
	} else {
		p.log.WithJob(job.ID).Warn().Err(err).Msg("text inspection failed")
	}

	j.Status = models.StatusReady
	j.ErrorMessage = ""
	if err := p.repo.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	p.notify(webhook.EventJobReady, j)
	return nil
}

func (p *Pool) notify(event string, job *models.Job) {
	if p.notifier != nil {
		p.notifier.NotifyJob(event, job)
	}
}
