// Package engine drives a UCI chess engine. The engine runs one search at a
// time, so every request goes through a FIFO owned by a single event loop
// goroutine; a request's commands are only sent once the previous search has
// printed its bestmove line, which is what lets output be attributed to the
// request that produced it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jacokyle01/chess-analysis/src/models"
)

var (
	// ErrSearchAborted is returned when a search is cancelled before any evaluation arrived.
	ErrSearchAborted = errors.New("search aborted")
	// ErrEngineCommunication is returned once the transport has failed.
	ErrEngineCommunication = errors.New("engine communication failure")
	// ErrEngineShutdown is returned for requests still pending at shutdown.
	ErrEngineShutdown = errors.New("engine shut down")
	// ErrSearchTimeout is returned when a search exceeds Options.SearchTimeout.
	ErrSearchTimeout = errors.New("search timed out")
	// ErrInvalidRequest is returned for a job the engine cannot run.
	ErrInvalidRequest = errors.New("invalid analysis request")
)

// Options configures a Client.
type Options struct {
	Logger *slog.Logger
	// Settings are sent as "setoption" commands during the handshake.
	Settings map[string]string
	// HandshakeTimeout bounds the uci/isready exchange. Zero means 10s.
	HandshakeTimeout time.Duration
	// SearchTimeout bounds Run, FindBestMove and TopMoves. Zero means no limit.
	SearchTimeout time.Duration
}

// Client is a UCI protocol client for one engine.
type Client struct {
	t      Transport
	opts   Options
	logger *slog.Logger
	name   string

	submit  chan *request
	cancel  chan struct{}
	abandon chan abandonment
	quit    chan chan error
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// request is one queued search. Its accumulator is private to it, so output
// can only ever be merged into the request that is currently dispatched.
type request struct {
	job   models.Job
	lines map[int]models.EvalLine
	// setLines sends the line count before the search and resets it to 1 after.
	setLines  bool
	stopping  bool
	abandoned bool
	started   time.Time
	pending   *Pending
}

type abandonment struct {
	req *request
	err error
}

// Pending is the handle for a submitted request.
type Pending struct {
	req  *request
	done chan struct{}
	once sync.Once
	res  *models.Result
	err  error
}

func newPending(job models.Job, setLines bool) *Pending {
	p := &Pending{done: make(chan struct{})}
	p.req = &request{job: job, lines: make(map[int]models.EvalLine), setLines: setLines, pending: p}
	return p
}

func (p *Pending) resolve(res *models.Result, err error) {
	p.once.Do(func() {
		p.res, p.err = res, err
		close(p.done)
	})
}

// Done is closed once the request has completed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the request completes or ctx is done.
func (p *Pending) Wait(ctx context.Context) (*models.Result, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		select {
		case <-p.done:
			return p.res, p.err
		default:
		}
		return nil, ctx.Err()
	}
}

// NewClient performs the UCI handshake over t and starts the client's event loop.
// The transport is closed if the handshake fails.
func NewClient(ctx context.Context, t Transport, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}

	c := &Client{
		t:       t,
		opts:    opts,
		logger:  opts.Logger,
		submit:  make(chan *request),
		cancel:  make(chan struct{}),
		abandon: make(chan abandonment),
		quit:    make(chan chan error),
		done:    make(chan struct{}),
	}

	hctx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	defer cancel()
	if err := c.handshake(hctx); err != nil {
		t.Close()
		return nil, err
	}

	go c.run()
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	if err := c.send("uci"); err != nil {
		return err
	}
	err := c.waitFor(ctx, "uciok", func(line string) {
		if name, ok := strings.CutPrefix(line, "id name "); ok {
			c.name = name
		}
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(c.opts.Settings))
	for name := range c.opts.Settings {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := c.send(fmt.Sprintf("setoption name %s value %s", name, c.opts.Settings[name])); err != nil {
			return err
		}
	}

	if err := c.send("isready"); err != nil {
		return err
	}
	if err := c.waitFor(ctx, "readyok", nil); err != nil {
		return err
	}
	c.logger.Info("engine ready", "name", c.name)
	return nil
}

func (c *Client) waitFor(ctx context.Context, token string, each func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %s: %v", ErrEngineCommunication, token, ctx.Err())
		case line, ok := <-c.t.Lines():
			if !ok {
				return fmt.Errorf("%w: engine closed output waiting for %s", ErrEngineCommunication, token)
			}
			c.logger.Debug("engine >", "line", line)
			if strings.TrimSpace(line) == token {
				return nil
			}
			if each != nil {
				each(line)
			}
		}
	}
}

func (c *Client) send(line string) error {
	c.logger.Debug("engine <", "line", line)
	if err := c.t.Send(line); err != nil {
		return fmt.Errorf("%w: send %q: %v", ErrEngineCommunication, line, err)
	}
	return nil
}

// Name is the engine's self-reported name.
func (c *Client) Name() string {
	return c.name
}

// Err returns the error that stopped the client, nil while it is running.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Submit queues job and returns immediately.
func (c *Client) Submit(job models.Job) *Pending {
	return c.enqueue(job, job.Lines() > 1)
}

func (c *Client) enqueue(job models.Job, setLines bool) *Pending {
	p := newPending(job, setLines)
	if err := validate(job); err != nil {
		p.resolve(nil, err)
		return p
	}

	select {
	case c.submit <- p.req:
	case <-c.done:
		p.resolve(nil, c.Err())
	}
	return p
}

func validate(job models.Job) error {
	switch {
	case strings.TrimSpace(job.FEN) == "":
		return fmt.Errorf("%w: empty position", ErrInvalidRequest)
	case strings.ContainsAny(job.FEN, "\r\n"):
		return fmt.Errorf("%w: position spans lines", ErrInvalidRequest)
	case job.Depth < 1:
		return fmt.Errorf("%w: depth %d", ErrInvalidRequest, job.Depth)
	case job.MultiPV < 0:
		return fmt.Errorf("%w: multipv %d", ErrInvalidRequest, job.MultiPV)
	}
	return nil
}

// Run submits job and waits for it. If ctx ends first the request is
// withdrawn: stopped when it is searching, dropped when it is still queued.
func (c *Client) Run(ctx context.Context, job models.Job) (*models.Result, error) {
	return c.await(ctx, job, job.Lines() > 1)
}

func (c *Client) await(ctx context.Context, job models.Job, setLines bool) (*models.Result, error) {
	if c.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SearchTimeout)
		defer cancel()
	}

	p := c.enqueue(job, setLines)
	_, err := p.Wait(ctx)
	select {
	case <-p.Done():
		// the request's own outcome wins over a context that ended at the same time
		return p.res, p.err
	default:
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s", ErrSearchTimeout, job.FEN)
	}
	select {
	case c.abandon <- abandonment{req: p.req, err: err}:
	case <-c.done:
	}
	return nil, err
}

// FindBestMove searches fen to depth and returns a result with the rank 1 line.
func (c *Client) FindBestMove(ctx context.Context, fen string, depth int) (*models.Result, error) {
	return c.Run(ctx, models.Job{FEN: fen, Depth: depth})
}

// TopMoves searches fen to depth reporting count lines. MultiPV is always set
// to count first, even for a single line, and restored to 1 before the result
// is delivered.
func (c *Client) TopMoves(ctx context.Context, fen string, count, depth int) (*models.Result, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidRequest, count)
	}
	return c.await(ctx, models.Job{FEN: fen, Depth: depth, MultiPV: count}, true)
}

// Cancel stops the search in progress. Queued requests are not affected.
func (c *Client) Cancel() {
	select {
	case c.cancel <- struct{}{}:
	case <-c.done:
	}
}

// Shutdown quits the engine and fails every outstanding request with ErrEngineShutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case c.quit <- reply:
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the only goroutine that touches search state.
func (c *Client) run() {
	defer close(c.done)

	var (
		queue  []*request
		active *request
	)
	lines := c.t.Lines()

	for {
		if active == nil && len(queue) > 0 {
			active, queue = queue[0], queue[1:]
			if err := c.dispatch(active); err != nil {
				c.fail(append([]*request{active}, queue...), err)
				return
			}
		}
		queueDepth.Set(float64(len(queue)))

		select {
		case r := <-c.submit:
			queue = append(queue, r)

		case <-c.cancel:
			if active == nil || active.stopping {
				continue
			}
			active.stopping = true
			if err := c.send("stop"); err != nil {
				c.fail(append([]*request{active}, queue...), err)
				return
			}

		case a := <-c.abandon:
			if a.req == active {
				active.abandoned = true
				if !active.stopping {
					active.stopping = true
					if err := c.send("stop"); err != nil {
						c.fail(append([]*request{active}, queue...), err)
						return
					}
				}
				continue
			}
			queue = slices.DeleteFunc(queue, func(r *request) bool { return r == a.req })
			a.req.pending.resolve(nil, a.err)

		case line, ok := <-lines:
			if !ok {
				c.fail(c.outstanding(active, queue), fmt.Errorf("%w: engine output closed", ErrEngineCommunication))
				return
			}
			c.logger.Debug("engine >", "line", line)
			if active == nil {
				continue
			}
			msg := Parse(line)
			switch msg.Kind {
			case KindInfo:
				// deeper output for a rank replaces shallower output
				active.lines[msg.Line.MultiPV] = msg.Line
			case KindBestMove:
				if err := c.finish(active, msg); err != nil {
					c.fail(queue, err)
					return
				}
				active = nil
			default:
				if msg.Err != nil {
					parseAnomalies.Inc()
					c.logger.Debug("dropped engine line", "line", line, "error", msg.Err)
				}
			}

		case reply := <-c.quit:
			c.setErr(ErrEngineShutdown)
			for _, r := range c.outstanding(active, queue) {
				r.pending.resolve(nil, ErrEngineShutdown)
			}
			queueDepth.Set(0)
			sendErr := c.t.Send("quit")
			closeErr := c.t.Close()
			c.logger.Info("engine shut down")
			reply <- errors.Join(sendErr, closeErr)
			return
		}
	}
}

func (c *Client) outstanding(active *request, queue []*request) []*request {
	if active == nil {
		return queue
	}
	return append([]*request{active}, queue...)
}

func (c *Client) dispatch(r *request) error {
	r.started = time.Now()
	c.logger.Debug("dispatching search", "job_id", r.job.ID, "fen", r.job.FEN, "depth", r.job.Depth, "multipv", r.job.Lines())

	if r.setLines {
		if err := c.send(fmt.Sprintf("setoption name MultiPV value %d", r.job.Lines())); err != nil {
			return err
		}
	}
	if err := c.send("position fen " + strings.TrimSpace(r.job.FEN)); err != nil {
		return err
	}
	return c.send(fmt.Sprintf("go depth %d", r.job.Depth))
}

// finish resolves the active request from its bestmove line. The returned
// error is a transport failure; the request itself is always resolved.
func (c *Client) finish(r *request, msg Message) error {
	var resetErr error
	if r.setLines {
		resetErr = c.send("setoption name MultiPV value 1")
	}
	searchDuration.Observe(time.Since(r.started).Seconds())

	res := &models.Result{
		JobID:    r.job.ID,
		FEN:      r.job.FEN,
		BestMove: msg.BestMove,
		Ponder:   msg.Ponder,
	}
	for rank, line := range r.lines {
		if rank > r.job.Lines() {
			continue
		}
		res.Lines = append(res.Lines, line)
		res.Depth = max(res.Depth, line.Depth)
	}
	models.SortLines(res.Lines)

	switch {
	case resetErr != nil:
		searchesTotal.WithLabelValues(outcomeFailed).Inc()
		r.pending.resolve(nil, resetErr)
		return resetErr
	case r.abandoned:
		searchesTotal.WithLabelValues(outcomeAbandoned).Inc()
		r.pending.resolve(nil, ErrSearchTimeout)
	case r.stopping && len(res.Lines) == 0:
		searchesTotal.WithLabelValues(outcomeAborted).Inc()
		r.pending.resolve(nil, ErrSearchAborted)
	case r.stopping:
		searchesTotal.WithLabelValues(outcomeCancelled).Inc()
		r.pending.resolve(res, nil)
	default:
		searchesTotal.WithLabelValues(outcomeOK).Inc()
		r.pending.resolve(res, nil)
	}
	c.logger.Debug("search finished", "job_id", r.job.ID, "best_move", res.BestMove, "lines", len(res.Lines))
	return nil
}

func (c *Client) fail(reqs []*request, err error) {
	c.setErr(err)
	c.logger.Error("engine failed", "error", err)
	for _, r := range reqs {
		searchesTotal.WithLabelValues(outcomeFailed).Inc()
		r.pending.resolve(nil, err)
	}
	queueDepth.Set(0)
	c.t.Close()
}
