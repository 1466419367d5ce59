// Package movetree stores the branching move history of a game: the main line
// plus every variation explored from it. Positions are never computed here; each
// insertion goes through a Validator so every node's FEN is exactly what its
// parent position plus its move produces.
package movetree

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jacokyle01/chess-analysis/src/rules"
)

var (
	// ErrIllegalMove is returned by AddMove when the validator rejects the move.
	ErrIllegalMove = rules.ErrIllegalMove
	// ErrUnknownParent is returned by AddMove for a parent ID not in the tree.
	ErrUnknownParent = errors.New("unknown parent node")
)

// Validator applies a move to a position.
type Validator interface {
	Apply(fen, move string) (rules.Applied, error)
}

// Node is one position in the tree.
type Node struct {
	ID         string         `json:"id"`
	FEN        string         `json:"fen"`
	Move       *rules.Applied `json:"move,omitempty"` // nil for the root
	SAN        string         `json:"san,omitempty"`
	ParentID   string         `json:"parent_id,omitempty"`
	Children   []string       `json:"children"`
	MainLine   bool           `json:"main_line"`
	MoveNumber int            `json:"move_number"`
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool {
	return n.Move == nil
}

// WhiteMoved reports whether the move leading to n was played by White.
func (n *Node) WhiteMoved() bool {
	return !rules.WhiteToMove(n.FEN)
}

// Tree owns all nodes reachable from the root.
type Tree struct {
	mu        sync.RWMutex
	validator Validator
	ids       IDGenerator
	root      *Node
	nodes     map[string]*Node
	current   string
}

// Option configures a Tree.
type Option func(*Tree)

// WithIDGenerator replaces the default per-tree sequence.
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Tree) {
		t.ids = g
	}
}

// New creates a tree rooted at startFEN.
func New(startFEN string, v Validator, opts ...Option) (*Tree, error) {
	if v == nil {
		return nil, errors.New("movetree: nil validator")
	}
	pos, err := rules.Position(startFEN)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		validator: v,
		ids:       NewSequence("node"),
		nodes:     make(map[string]*Node),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.root = &Node{
		ID:         t.ids.Next(),
		FEN:        pos.String(),
		Children:   []string{},
		MainLine:   true,
		MoveNumber: rules.FullMoveNumber(pos.String()),
	}
	t.nodes[t.root.ID] = t.root
	t.current = t.root.ID
	return t, nil
}

// AddMove plays move from the parent node. A move already present among the
// parent's children returns that child unchanged.
func (t *Tree) AddMove(move, parentID string, mainLine bool) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addMove(move, parentID, mainLine)
}

func (t *Tree) addMove(move, parentID string, mainLine bool) (*Node, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParent, parentID)
	}

	applied, err := t.validator.Apply(parent.FEN, move)
	if err != nil {
		return nil, err
	}

	for _, id := range parent.Children {
		child := t.nodes[id]
		if child.Move != nil && child.Move.Same(applied) {
			return child, nil
		}
	}

	node := &Node{
		ID:         t.ids.Next(),
		FEN:        applied.FEN,
		Move:       &applied,
		SAN:        applied.SAN,
		ParentID:   parent.ID,
		Children:   []string{},
		MainLine:   mainLine,
		MoveNumber: rules.FullMoveNumber(parent.FEN),
	}
	parent.Children = append(parent.Children, node.ID)
	t.nodes[node.ID] = node
	return node, nil
}

// LoadMainLine plays moves in order from the root, marking every node as main line.
func (t *Tree) LoadMainLine(moves []string) ([]*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := make([]*Node, 0, len(moves))
	parent := t.root.ID
	for i, move := range moves {
		node, err := t.addMove(move, parent, true)
		if err != nil {
			return line, fmt.Errorf("ply %d: %w", i+1, err)
		}
		line = append(line, node)
		parent = node.ID
	}
	return line, nil
}

// NavigateTo makes id the current node. It reports false for unknown IDs.
func (t *Tree) NavigateTo(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; !ok {
		return false
	}
	t.current = id
	return true
}

// Current returns the current node.
func (t *Tree) Current() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[t.current]
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Node looks up a node by ID.
func (t *Tree) Node(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// ChildrenOf returns the children of id in insertion order.
func (t *Tree) ChildrenOf(id string) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	children := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, t.nodes[c])
	}
	return children
}

// ParentOf returns the parent of id, nil for the root or an unknown ID.
func (t *Tree) ParentOf(id string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok || n.ParentID == "" {
		return nil
	}
	return t.nodes[n.ParentID]
}

// PathTo returns the nodes from the root to id inclusive.
func (t *Tree) PathTo(id string) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var path []*Node
	for n != nil {
		path = append(path, n)
		n = t.nodes[n.ParentID]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// IsAncestor reports whether ancestor lies strictly above id.
func (t *Tree) IsAncestor(ancestor, id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	for n.ParentID != "" {
		if n.ParentID == ancestor {
			return true
		}
		n = t.nodes[n.ParentID]
	}
	return false
}

// MainLine follows main-line children from the root.
func (t *Tree) MainLine() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var line []*Node
	n := t.root
	for {
		var next *Node
		for _, c := range n.Children {
			if child := t.nodes[c]; child.MainLine {
				next = child
				break
			}
		}
		if next == nil {
			return line
		}
		line = append(line, next)
		n = next
	}
}

// FormatPath renders nodes as numbered SAN, e.g. "1. e4 e5 2. Nf3". Nodes
// without a move are skipped. A line opening with a Black move starts "N...".
func FormatPath(nodes []*Node) string {
	var sb strings.Builder
	first := true
	for _, n := range nodes {
		if n == nil || n.Move == nil {
			continue
		}
		if !first {
			sb.WriteByte(' ')
		}
		switch {
		case n.WhiteMoved():
			fmt.Fprintf(&sb, "%d. ", n.MoveNumber)
		case first:
			fmt.Fprintf(&sb, "%d... ", n.MoveNumber)
		}
		sb.WriteString(n.SAN)
		first = false
	}
	return sb.String()
}
