package primaryserver

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jacokyle01/chess-analysis/src/movetree"
	"github.com/jacokyle01/chess-analysis/src/rules"
)

// game is one move tree being explored over HTTP. mu is held while a
// handler reads or changes the tree and while its nodes are encoded.
type game struct {
	mu      sync.Mutex
	tree    *movetree.Tree
	touched atomic.Int64 // unix nanoseconds of the last request
}

func (g *game) touch() {
	g.touched.Store(time.Now().UnixNano())
}

func (g *game) lastUsed() time.Time {
	return time.Unix(0, g.touched.Load())
}

type newGameRequest struct {
	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`
}

type addMoveRequest struct {
	Move string `json:"move" binding:"required"`
	// ParentID defaults to the current node.
	ParentID string `json:"parent_id"`
	MainLine bool   `json:"main_line"`
}

type navigateRequest struct {
	NodeID string `json:"node_id" binding:"required"`
}

// NewGame creates a move tree at fen and plays moves as its main line.
func (s *Server) NewGame(fen string, moves []string) (string, *movetree.Tree, error) {
	if fen == "" {
		fen = rules.StartFEN
	}
	tree, err := movetree.New(fen, s.rules)
	if err != nil {
		return "", nil, err
	}
	if len(moves) > 0 {
		line, err := tree.LoadMainLine(moves)
		if err != nil {
			return "", nil, err
		}
		tree.NavigateTo(line[len(line)-1].ID)
	}

	id := uuid.NewString()
	s.mu.Lock()
	g := &game{tree: tree}
	g.touch()
	s.games[id] = g
	s.mu.Unlock()
	return id, tree, nil
}

func (s *Server) game(c *gin.Context) (*game, bool) {
	s.mu.RLock()
	g, ok := s.games[c.Param("id")]
	s.mu.RUnlock()
	if !ok {
		errorJSON(c, http.StatusNotFound, errors.New("unknown game"))
		return nil, false
	}
	g.touch()
	return g, true
}

func treeStatus(err error) int {
	switch {
	case errors.Is(err, movetree.ErrUnknownParent):
		return http.StatusNotFound
	case errors.Is(err, movetree.ErrIllegalMove), errors.Is(err, rules.ErrInvalidFEN):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func gameView(id string, tree *movetree.Tree) gin.H {
	line := tree.MainLine()
	return gin.H{
		"id":        id,
		"root":      tree.Root(),
		"current":   tree.Current(),
		"main_line": line,
		"pgn":       movetree.FormatPath(line),
		"nodes":     tree.Len(),
	}
}

func (s *Server) handleNewGame(c *gin.Context) {
	var req newGameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
	}

	id, tree, err := s.NewGame(req.FEN, req.Moves)
	if err != nil {
		errorJSON(c, treeStatus(err), err)
		return
	}
	c.JSON(http.StatusCreated, gameView(id, tree))
}

func (s *Server) handleGetGame(c *gin.Context) {
	g, ok := s.game(c)
	if !ok {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c.JSON(http.StatusOK, gameView(c.Param("id"), g.tree))
}

func (s *Server) handleAddMove(c *gin.Context) {
	g, ok := s.game(c)
	if !ok {
		return
	}
	var req addMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	parent := req.ParentID
	if parent == "" {
		parent = g.tree.Current().ID
	}
	node, err := g.tree.AddMove(req.Move, parent, req.MainLine)
	if err != nil {
		errorJSON(c, treeStatus(err), err)
		return
	}
	g.tree.NavigateTo(node.ID)
	c.JSON(http.StatusOK, node)
}

func (s *Server) handleNavigate(c *gin.Context) {
	g, ok := s.game(c)
	if !ok {
		return
	}
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.tree.NavigateTo(req.NodeID) {
		errorJSON(c, http.StatusNotFound, errors.New("unknown node"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current":  g.tree.Current(),
		"children": g.tree.ChildrenOf(req.NodeID),
	})
}

func (s *Server) handlePath(c *gin.Context) {
	g, ok := s.game(c)
	if !ok {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	path := g.tree.PathTo(c.Param("node"))
	if path == nil {
		errorJSON(c, http.StatusNotFound, errors.New("unknown node"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nodes": path,
		"text":  movetree.FormatPath(path),
	})
}
