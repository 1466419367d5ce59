package primaryserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jacokyle01/chess-analysis/src/models"
	"github.com/jacokyle01/chess-analysis/src/rules"
)

var (
	// ErrQueueFull is returned when the job queue has no room left.
	ErrQueueFull = errors.New("job queue full")
	// ErrInvalidJob is returned for a job no engine could run.
	ErrInvalidJob = errors.New("invalid job")
	// ErrAnalysisFailed wraps the error a worker reported for a job.
	ErrAnalysisFailed = errors.New("analysis failed")
)

// AddJob validates job, fills in defaults and adds it to the queue.
func (s *Server) AddJob(job models.Job) (models.Job, error) {
	if _, err := rules.Position(job.FEN); err != nil {
		return job, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if job.Depth < 0 || job.MultiPV < 0 {
		return job, fmt.Errorf("%w: depth %d multipv %d", ErrInvalidJob, job.Depth, job.MultiPV)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Depth == 0 {
		job.Depth = s.opts.DefaultDepth
	}

	s.mu.Lock()
	s.jobMap[job.ID] = job
	s.mu.Unlock()

	select {
	case s.jobs <- job:
		queueDepth.Inc()
		s.logger.Debug("added job to queue", "job_id", job.ID, "depth", job.Depth, "multipv", job.Lines())
		return job, nil
	default:
		s.mu.Lock()
		delete(s.jobMap, job.ID)
		s.mu.Unlock()
		s.logger.Warn("job queue full, rejecting job", "job_id", job.ID)
		return job, ErrQueueFull
	}
}

// GetJob returns the next job for a worker, waiting up to wait for one.
func (s *Server) GetJob(ctx context.Context, wait time.Duration) (models.Job, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case job := <-s.jobs:
		queueDepth.Dec()
		return job, true
	case <-timer.C:
		return models.Job{}, false
	case <-ctx.Done():
		return models.Job{}, false
	}
}

// Analyze queues job and blocks until a worker submits its result.
func (s *Server) Analyze(ctx context.Context, job models.Job) (*models.Result, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	done := make(chan models.Result, 1)
	s.mu.Lock()
	s.waiters[job.ID] = done
	s.mu.Unlock()

	job, err := s.AddJob(job)
	if err != nil {
		s.mu.Lock()
		delete(s.waiters, job.ID)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case result := <-done:
		s.mu.Lock()
		delete(s.waiters, job.ID)
		s.mu.Unlock()
		if result.Error != "" {
			return &result, fmt.Errorf("%w: job %s: %s", ErrAnalysisFailed, job.ID, result.Error)
		}
		return &result, nil
	case <-ctx.Done():
		s.mu.Lock()
		if _, ok := s.jobMap[job.ID]; ok {
			// a late result is discarded by SubmitResult
			s.waiters[job.ID] = nil
		} else {
			delete(s.waiters, job.ID)
		}
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// FindBestMove runs a single-line search through the worker pool.
func (s *Server) FindBestMove(ctx context.Context, fen string, depth int) (*models.Result, error) {
	return s.Analyze(ctx, models.Job{FEN: fen, Depth: depth, MultiPV: 1})
}
