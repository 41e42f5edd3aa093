package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor/contentstream"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/jobstore"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/raster"
)

// State is the lifecycle of one batch-apply call.
type State string

const (
	StateOpen       State = "OPEN"
	StateProcessing State = "PROCESSING"
	StateFinalizing State = "FINALIZING"
	StateSaved      State = "SAVED"
	StateClosed     State = "CLOSED"
)

// Result summarizes a successfully applied batch.
type Result struct {
	Applied     int
	Skipped     int
	SkipReasons []string
	Removed     contentstream.Stats
	Duration    time.Duration
}

// outcome is what happened to a single operation. Fatal outcomes are
// returned as errors instead.
type outcome struct {
	applied bool
	reason  string
}

var applied = outcome{applied: true}

func skipped(format string, args ...any) outcome {
	return outcome{reason: fmt.Sprintf(format, args...)}
}

// Engine applies batches of edit operations to PDF files.
type Engine struct {
	log *logger.Logger

	// Observe, when set, is called on every state transition.
	Observe func(State)
}

// NewEngine creates an Engine.
func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{log: log.WithComponent("editor")}
}

func (e *Engine) enter(s State) {
	if e.Observe != nil {
		e.Observe(s)
	}
}

// ApplyFile opens src, applies ops in order, commits staged redactions and
// saves the result to dst. The first fatal operation aborts the batch and
// dst is not written. The document is released on every path.
func (e *Engine) ApplyFile(src, dst string, ops []Operation) (*Result, error) {
	start := time.Now()

	doc, err := Open(src)
	if err != nil {
		e.enter(StateClosed)
		return nil, err
	}
	e.enter(StateOpen)
	defer func() {
		doc.Close()
		e.enter(StateClosed)
	}()

	e.enter(StateProcessing)
	res, err := e.Apply(doc, ops)
	if err != nil {
		return nil, err
	}

	e.enter(StateFinalizing)
	removed, err := doc.Finalize()
	if err != nil {
		return nil, err
	}
	res.Removed = removed

	if err := doc.Save(dst); err != nil {
		return nil, err
	}
	e.enter(StateSaved)

	res.Duration = time.Since(start)
	return res, nil
}

// Apply runs every operation against an open document without finalizing
// it. Skipped operations are counted; the first fatal error is returned.
func (e *Engine) Apply(doc *Document, ops []Operation) (*Result, error) {
	res := &Result{}
	for i, op := range ops {
		out, err := e.applyOne(doc, op)
		if err != nil {
			return nil, fmt.Errorf("ops[%d] (%s): %w", i, op.Kind, err)
		}
		if out.applied {
			res.Applied++
			continue
		}
		res.Skipped++
		reason := fmt.Sprintf("ops[%d]: %s", i, out.reason)
		res.SkipReasons = append(res.SkipReasons, reason)
		e.log.Debug().Str("reason", reason).Msg("operation skipped")
	}
	return res, nil
}

func (e *Engine) applyOne(doc *Document, op Operation) (outcome, error) {
	if op.Page < 0 || op.Page >= doc.PageCount() {
		return skipped("page %d out of range", op.Page), nil
	}
	geom, err := doc.Geometry(op.Page)
	if err != nil {
		return outcome{}, err
	}
	pw, ph := geom.Width(), geom.Height()

	switch op.Kind {
	case KindAddText:
		x := Clamp(op.X, 0, pw)
		y := Clamp(op.Y, 0, ph)
		drawn, err := doc.AddText(op.Page, x, y, TruncateText(op.Text), ClampFontSize(op.FontSize), ParseHexColor(op.Color))
		if err != nil {
			return outcome{}, err
		}
		if !drawn {
			return skipped("empty text"), nil
		}
		return applied, nil

	case KindAddImage:
		x, y, w, h := ClampRect(op.X, op.Y, op.Width, op.Height, pw, ph)
		if !op.HasImage || !IsImageDataURL(op.ImageData) {
			return skipped("missing or non-image payload"), nil
		}
		data, err := DecodeDataURL(op.ImageData)
		if err != nil {
			return outcome{}, err
		}
		img, _, err := raster.Decode(data)
		if err != nil {
			return outcome{}, fmt.Errorf("%w: %v", ErrPayloadDecode, err)
		}
		if err := doc.AddImage(op.Page, x, y, w, h, img); err != nil {
			return outcome{}, err
		}
		return applied, nil

	case KindRedact:
		x, y, w, h := ClampRect(op.X, op.Y, op.Width, op.Height, pw, ph)
		if err := doc.StageRedaction(op.Page, x, y, w, h); err != nil {
			return outcome{}, err
		}
		return applied, nil
	}

	return skipped("unknown operation type %q", op.Kind), nil
}

// JobPaths resolves a job id to its files.
type JobPaths interface {
	Paths(jobID string) (jobstore.Paths, error)
}

// Locker serializes batches on the same job.
type Locker interface {
	Lock(ctx context.Context, jobID string) (unlock func(), err error)
}

// Service applies request bodies to stored jobs.
type Service struct {
	engine *Engine
	jobs   JobPaths
	locks  Locker
	log    *logger.Logger
}

// NewService wires the engine to the job store.
func NewService(engine *Engine, jobs JobPaths, locks Locker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{engine: engine, jobs: jobs, locks: locks, log: log}
}

// ApplyJob parses body as {"ops": [...]} and applies it to the job's
// original document, writing the job's edited document on success.
func (s *Service) ApplyJob(ctx context.Context, jobID string, body []byte) (*Result, error) {
	paths, err := s.jobs.Paths(jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJobNotFound, err)
	}
	if _, err := os.Stat(paths.OriginalPDF); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	batch, err := ParseBatch(body)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrJobBusy, jobID)
		}
		return nil, fmt.Errorf("lock job %s: %w", jobID, err)
	}
	defer unlock()

	log := s.log.WithContext(ctx).WithJob(jobID)
	res, err := s.engine.ApplyFile(paths.OriginalPDF, paths.EditedPDF, batch.Ops)
	if err != nil {
		log.Warn().Err(err).Str("error_kind", ErrorKind(err)).Msg("batch failed")
		return nil, err
	}

	log.Info().
		Int("ops", len(batch.Ops)).
		Int("applied", res.Applied).
		Int("skipped", res.Skipped).
		Int("glyphs_removed", res.Removed.GlyphsRemoved).
		Int("paths_removed", res.Removed.PathsRemoved).
		Dur("duration", res.Duration).
		Msg("batch applied")
	return res, nil
}
