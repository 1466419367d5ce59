// Package worker pulls analysis jobs from the primary server, runs them on a
// local engine and posts the results back.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jacokyle01/chess-analysis/src/engine"
	"github.com/jacokyle01/chess-analysis/src/models"
)

// Runner executes one job; *engine.Client satisfies it.
type Runner interface {
	Run(ctx context.Context, job models.Job) (*models.Result, error)
}

// Options configures a Client.
type Options struct {
	// PollInterval is the pause after an empty queue.
	PollInterval time.Duration
	// RetryInterval is the pause after the server could not be reached.
	RetryInterval time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client represents a worker client
type Client struct {
	serverURL string
	engine    Runner
	http      *http.Client
	opts      Options
	logger    *slog.Logger
}

// NewClient creates a new worker client
func NewClient(serverURL string, engine Runner, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		engine:    engine,
		http:      opts.HTTPClient,
		opts:      opts,
		logger:    opts.Logger.With("server", serverURL),
	}
}

// engineGone reports whether err means the engine cannot run further jobs.
func engineGone(err error) bool {
	return errors.Is(err, engine.ErrEngineCommunication) || errors.Is(err, engine.ErrEngineShutdown)
}

// WorkLoop runs the main worker loop until ctx is cancelled. It returns an
// error once the engine has failed for good, after reporting the job it was on.
func (c *Client) WorkLoop(ctx context.Context) error {
	c.logger.Info("starting worker")

	for {
		wait, err := c.processJob(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if engineGone(err) {
			c.logger.Error("engine unavailable, stopping worker", "error", err)
			return err
		}
		if err != nil {
			c.logger.Warn("worker error", "error", err)
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// processJob handles at most one job and returns how long to pause before
// asking again.
func (c *Client) processJob(ctx context.Context) (time.Duration, error) {
	job, ok, err := c.fetchJob(ctx)
	if err != nil {
		return c.opts.RetryInterval, err
	}
	if !ok {
		c.logger.Debug("no jobs available, waiting")
		return c.opts.PollInterval, nil
	}

	c.logger.Info("processing job", "job_id", job.ID, "fen", job.FEN, "depth", job.Depth)
	var runErr error
	result, err := c.engine.Run(ctx, job)
	if err != nil {
		c.logger.Warn("error analyzing position", "job_id", job.ID, "error", err)
		result = &models.Result{FEN: job.FEN, Error: err.Error()}
		if engineGone(err) {
			runErr = err
		}
	}
	result.JobID = job.ID

	// the job is lost to the server if we stop here, so report with a fresh context
	submitCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := c.submitResult(submitCtx, result); err != nil {
		return c.opts.RetryInterval, errors.Join(runErr, err)
	}
	return 0, runErr
}

func (c *Client) fetchJob(ctx context.Context) (models.Job, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/job", nil)
	if err != nil {
		return models.Job{}, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return models.Job{}, false, fmt.Errorf("get job: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return models.Job{}, false, nil
	case http.StatusOK:
	default:
		return models.Job{}, false, fmt.Errorf("get job: unexpected status %s", resp.Status)
	}

	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return models.Job{}, false, fmt.Errorf("decode job: %w", err)
	}
	if job.ID == "" {
		return models.Job{}, false, errors.New("decode job: missing id")
	}
	return job, true, nil
}

func (c *Client) submitResult(ctx context.Context, result *models.Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/result", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit result %s: %w", result.JobID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submit result %s: unexpected status %s", result.JobID, resp.Status)
	}
	return nil
}
