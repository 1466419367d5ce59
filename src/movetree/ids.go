package movetree

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out node identifiers. IDs must be unique for the life of a tree.
type IDGenerator interface {
	Next() string
}

// Sequence numbers nodes "<prefix>-0", "<prefix>-1", ... and is owned by one tree.
type Sequence struct {
	prefix string
	n      atomic.Int64
}

// NewSequence returns a sequence starting at zero.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Next() string {
	return s.prefix + "-" + strconv.FormatInt(s.n.Add(1)-1, 10)
}

// UUIDs generates random version 4 identifiers.
type UUIDs struct{}

func (UUIDs) Next() string {
	return uuid.NewString()
}
