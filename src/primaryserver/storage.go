package primaryserver

import (
	"context"
	"time"

	"github.com/jacokyle01/chess-analysis/src/models"
)

type storedResult struct {
	result models.Result
	at     time.Time
}

type batchEntry struct {
	batch    models.Batch
	finished time.Time // zero while the review runs
}

// SubmitResult stores a completed analysis result. Results for jobs queued
// through Analyze go straight to the waiting caller and are not stored.
func (s *Server) SubmitResult(result models.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove from pending jobs
	delete(s.jobMap, result.JobID)
	if w, ok := s.waiters[result.JobID]; ok {
		if w == nil {
			// the caller gave up
			delete(s.waiters, result.JobID)
		} else {
			select {
			case w <- result:
			default:
			}
		}
	} else {
		s.resultStore[result.JobID] = storedResult{result: result, at: time.Now()}
	}

	if result.Error != "" {
		resultsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("job failed", "job_id", result.JobID, "error", result.Error)
		return
	}
	resultsTotal.WithLabelValues("ok").Inc()
	eval := ""
	if line, ok := result.Best(); ok {
		eval = line.Score.String()
	}
	s.logger.Info("received result", "job_id", result.JobID, "best_move", result.BestMove, "eval", eval)
}

// GetResult retrieves a result by job ID
func (s *Server) GetResult(jobID string) (models.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, exists := s.resultStore[jobID]
	return stored.result, exists
}

// Pending reports whether jobID is queued or being analyzed.
func (s *Server) Pending(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobMap[jobID]
	return ok
}

// PendingJobs returns a snapshot of unfinished jobs.
func (s *Server) PendingJobs() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]models.Job, 0, len(s.jobMap))
	for _, job := range s.jobMap {
		jobs = append(jobs, job)
	}
	return jobs
}

func (s *Server) newBatch(id string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[id] = &batchEntry{batch: models.Batch{ID: id, Progress: models.ReviewProgress{Total: total}}}
}

func (s *Server) updateBatch(id string, fn func(b *models.Batch)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.batches[id]; ok {
		fn(&e.batch)
	}
}

func (s *Server) finishBatch(id string, summary *models.ReviewSummary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.batches[id]
	if !ok {
		return
	}
	if err != nil {
		e.batch.Error = err.Error()
	} else {
		e.batch.Summary = summary
	}
	e.finished = time.Now()
}

// GetBatch returns a copy of the review batch.
func (s *Server) GetBatch(id string) (models.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.batches[id]
	if !ok {
		return models.Batch{}, false
	}
	return e.batch, true
}

// Evict drops stored results and finished reviews older than cutoff, and
// games not touched since cutoff. It returns how many entries went.
func (s *Server) Evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.resultStore {
		if r.at.Before(cutoff) {
			delete(s.resultStore, id)
			n++
		}
	}
	for id, e := range s.batches {
		if !e.finished.IsZero() && e.finished.Before(cutoff) {
			delete(s.batches, id)
			n++
		}
	}
	for id, g := range s.games {
		if g.lastUsed().Before(cutoff) {
			delete(s.games, id)
			n++
		}
	}
	return n
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Retention / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Evict(now.Add(-s.opts.Retention)); n > 0 {
				s.logger.Debug("evicted expired entries", "count", n)
			}
		}
	}
}
