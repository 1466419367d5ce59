package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacokyle01/chess-analysis/src/engine"
	"github.com/jacokyle01/chess-analysis/src/models"
	"github.com/jacokyle01/chess-analysis/src/primaryserver"
	"github.com/jacokyle01/chess-analysis/src/rules"
)

type fakeRunner struct {
	mu   sync.Mutex
	jobs []models.Job
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, job models.Job) (*models.Result, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.Result{
		FEN:      job.FEN,
		BestMove: "e2e4",
		Depth:    job.Depth,
		Lines:    []models.EvalLine{{MultiPV: 1, Depth: job.Depth, Score: models.Centipawns(25), PV: []string{"e2e4", "e7e5"}}},
	}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func startServer(t *testing.T) (*primaryserver.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := primaryserver.NewServer(primaryserver.Options{JobWait: 20 * time.Millisecond})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts.URL
}

func startWorker(t *testing.T, url string, r Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := NewClient(url, r, Options{PollInterval: 10 * time.Millisecond, RetryInterval: 10 * time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- w.WorkLoop(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func TestWorkLoopProcessesJobs(t *testing.T) {
	s, url := startServer(t)
	runner := &fakeRunner{}
	startWorker(t, url, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		res, err := s.Analyze(ctx, models.Job{FEN: rules.StartFEN, Depth: 8})
		require.NoError(t, err)
		assert.Equal(t, "e2e4", res.BestMove)
		assert.NotEmpty(t, res.JobID)
		assert.Equal(t, models.Centipawns(25), res.Lines[0].Score)
	}
	assert.Equal(t, 3, runner.count())
	assert.Empty(t, s.PendingJobs())
}

func TestWorkLoopReportsEngineErrors(t *testing.T) {
	s, url := startServer(t)
	startWorker(t, url, &fakeRunner{err: errors.New("engine exited")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Analyze(ctx, models.Job{FEN: rules.StartFEN, Depth: 8})
	require.ErrorIs(t, err, primaryserver.ErrAnalysisFailed)
	assert.Contains(t, res.Error, "engine exited")

	assert.Equal(t, rules.StartFEN, res.FEN)
	assert.Empty(t, s.PendingJobs())
}

func TestWorkLoopStopsWhenEngineDies(t *testing.T) {
	s, url := startServer(t)
	runner := &fakeRunner{err: fmt.Errorf("%w: engine output closed", engine.ErrEngineCommunication)}
	for i := 0; i < 5; i++ {
		_, err := s.AddJob(models.Job{FEN: rules.StartFEN, Depth: 8})
		require.NoError(t, err)
	}

	c := NewClient(url, runner, Options{PollInterval: 10 * time.Millisecond, RetryInterval: 10 * time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- c.WorkLoop(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, engine.ErrEngineCommunication)
	case <-time.After(5 * time.Second):
		t.Fatal("work loop kept running after the engine died")
	}
	assert.Equal(t, 1, runner.count())
	assert.Len(t, s.PendingJobs(), 4)

	runner.mu.Lock()
	failed := runner.jobs[0].ID
	runner.mu.Unlock()
	stored, ok := s.GetResult(failed)
	require.True(t, ok)
	assert.Contains(t, stored.Error, "engine output closed")
}

func TestProcessJobEmptyQueue(t *testing.T) {
	_, url := startServer(t)
	runner := &fakeRunner{}
	c := NewClient(url, runner, Options{PollInterval: time.Minute})

	wait, err := c.processJob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, wait)
	assert.Zero(t, runner.count())
}

func TestProcessJobServerDown(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	c := NewClient(url, &fakeRunner{}, Options{RetryInterval: time.Hour})
	wait, err := c.processJob(context.Background())
	assert.Error(t, err)
	assert.Equal(t, time.Hour, wait)
}

func TestWorkLoopStopsOnCancel(t *testing.T) {
	_, url := startServer(t)
	c := NewClient(url, &fakeRunner{}, Options{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.WorkLoop(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("work loop did not stop")
	}
}
