package primaryserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jacokyle01/chess-analysis/src/models"
	"github.com/jacokyle01/chess-analysis/src/rules"
)

// ReviewRequest asks for a full game review. PGN, when set, takes
// precedence over FEN and Moves.
type ReviewRequest struct {
	PGN   string   `json:"pgn"`
	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`
	Depth int      `json:"depth"`
}

// resolve returns the start position, moves and depth the review runs with.
func (s *Server) resolve(req ReviewRequest) (string, []string, int, error) {
	depth := req.Depth
	if depth == 0 {
		depth = s.opts.ReviewDepth
	}
	if depth < 0 {
		return "", nil, 0, fmt.Errorf("depth must be positive, got %d", depth)
	}

	if strings.TrimSpace(req.PGN) != "" {
		fen, moves, err := rules.ParsePGN(strings.NewReader(req.PGN))
		return fen, moves, depth, err
	}

	fen := req.FEN
	if fen == "" {
		fen = rules.StartFEN
	}
	if _, err := rules.Position(fen); err != nil {
		return "", nil, 0, err
	}
	return fen, req.Moves, depth, nil
}

// StartReview runs a review in the background and returns its batch ID.
func (s *Server) StartReview(ctx context.Context, req ReviewRequest) (string, error) {
	fen, moves, depth, err := s.resolve(req)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	s.newBatch(id, len(moves))
	go func() {
		summary, err := s.reviewer.Review(ctx, fen, moves, depth, func(p models.ReviewProgress) {
			s.updateBatch(id, func(b *models.Batch) { b.Progress = p })
		})
		s.finishBatch(id, summary, err)
		s.recordReview(id, err)
	}()
	return id, nil
}

func (s *Server) recordReview(id string, err error) {
	if err != nil {
		reviewsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("review failed", "batch_id", id, "error", err)
		return
	}
	reviewsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("review complete", "batch_id", id)
}

func (s *Server) handleReview(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	// the review outlives the request
	id, err := s.StartReview(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"batch_id": id})
}

func (s *Server) handleGetBatch(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		errorJSON(c, http.StatusBadRequest, errors.New("missing id parameter"))
		return
	}
	batch, ok := s.GetBatch(id)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, batch)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one frame on /review/stream.
type StreamMessage struct {
	Action   string                 `json:"action"`
	Progress *models.ReviewProgress `json:"progress,omitempty"`
	Summary  *models.ReviewSummary  `json:"summary,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// handleReviewStream reads one ReviewRequest and streams progress frames
// until the summary. Closing the socket cancels the review.
func (s *Server) handleReviewStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	var req ReviewRequest
	if err := ws.ReadJSON(&req); err != nil {
		s.logger.Info("websocket client disconnected", "error", err)
		return
	}
	fen, moves, depth, err := s.resolve(req)
	if err != nil {
		_ = ws.WriteJSON(StreamMessage{Action: "error", Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		// any read error means the client went away
		for {
			if _, _, err := ws.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	summary, err := s.reviewer.Review(ctx, fen, moves, depth, func(p models.ReviewProgress) {
		if p.Done {
			return
		}
		if err := ws.WriteJSON(StreamMessage{Action: "progress", Progress: &p}); err != nil {
			cancel()
		}
	})
	s.recordReview("stream", err)
	if err != nil {
		_ = ws.WriteJSON(StreamMessage{Action: "error", Error: err.Error()})
		return
	}
	_ = ws.WriteJSON(StreamMessage{Action: "summary", Summary: summary})
}
