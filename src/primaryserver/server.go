package primaryserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jacokyle01/chess-analysis/src/models"
	"github.com/jacokyle01/chess-analysis/src/review"
	"github.com/jacokyle01/chess-analysis/src/rules"
)

// Options configures a Server.
type Options struct {
	QueueSize    int
	DefaultDepth int
	ReviewDepth  int
	Review       review.Config
	// JobWait is how long GET /job blocks before answering 204.
	JobWait time.Duration
	// Retention is how long finished results, reviews and idle games are kept.
	Retention time.Duration
	Logger    *slog.Logger
}

// Server manages the job queue and distributes work
type Server struct {
	jobs        chan models.Job
	mu          sync.RWMutex
	jobMap      map[string]models.Job
	resultStore map[string]storedResult
	waiters     map[string]chan models.Result
	batches     map[string]*batchEntry
	games       map[string]*game

	opts     Options
	rules    rules.Service
	reviewer *review.Reviewer
	logger   *slog.Logger
	router   *gin.Engine
}

// NewServer creates a new analysis server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 100
	}
	if opts.DefaultDepth < 1 {
		opts.DefaultDepth = 15
	}
	if opts.ReviewDepth < 1 {
		opts.ReviewDepth = 12
	}
	if opts.JobWait <= 0 {
		opts.JobWait = 5 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.Review == (review.Config{}) {
		opts.Review = review.DefaultConfig()
	}

	s := &Server{
		jobs:        make(chan models.Job, opts.QueueSize),
		jobMap:      make(map[string]models.Job),
		resultStore: make(map[string]storedResult),
		waiters:     make(map[string]chan models.Result),
		batches:     make(map[string]*batchEntry),
		games:       make(map[string]*game),
		opts:        opts,
		logger:      opts.Logger,
	}
	// reviews run on whatever workers drain the queue
	s.reviewer = review.New(s, s.rules, opts.Review, opts.Logger)
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/job", s.handleGetJob)
	r.POST("/result", s.handleSubmitResult)
	r.POST("/analyze", s.handleAnalyze)
	r.GET("/result", s.handleGetResult)
	r.GET("/queue", s.handleViewQueue)

	r.POST("/review", s.handleReview)
	r.GET("/batch", s.handleGetBatch)
	r.GET("/review/stream", s.handleReviewStream)

	games := r.Group("/games")
	games.POST("", s.handleNewGame)
	games.GET("/:id", s.handleGetGame)
	games.POST("/:id/moves", s.handleAddMove)
	games.POST("/:id/navigate", s.handleNavigate)
	games.GET("/:id/path/:node", s.handlePath)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartServer serves HTTP on addr until ctx is cancelled.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	go s.sweep(ctx)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
