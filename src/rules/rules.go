// Package rules adapts github.com/notnil/chess into the move-validation
// service used by the move tree and the review pipeline. It never decides
// anything about chess itself; legality, SAN and FEN all come from the library.
package rules

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	// ErrIllegalMove is returned when a move cannot be played from a position.
	ErrIllegalMove = errors.New("illegal move")
	// ErrInvalidFEN is returned for a position string the library rejects.
	ErrInvalidFEN = errors.New("invalid FEN")
)

// Applied describes a move that was accepted by the rules library.
type Applied struct {
	FEN       string `json:"fen"` // position after the move
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// Same reports whether two applied moves share origin, destination and promotion.
func (a Applied) Same(b Applied) bool {
	return a.From == b.From && a.To == b.To && a.Promotion == b.Promotion
}

// Service is the notnil/chess backed move validator.
type Service struct{}

// Apply plays move (SAN like "Nf3" or coordinate notation like "g1f3") on fen.
func (Service) Apply(fen, move string) (Applied, error) {
	pos, err := Position(fen)
	if err != nil {
		return Applied{}, err
	}
	m, err := decode(pos, move)
	if err != nil {
		return Applied{}, err
	}

	next := pos.Update(m)
	applied := Applied{
		FEN:  next.String(),
		SAN:  chess.AlgebraicNotation{}.Encode(pos, m),
		UCI:  m.String(),
		From: m.S1().String(),
		To:   m.S2().String(),
	}
	if m.Promo() != chess.NoPieceType {
		applied.Promotion = m.Promo().String()
	}
	return applied, nil
}

// Legal returns every legal move from fen in coordinate notation.
func (Service) Legal(fen string) ([]string, error) {
	pos, err := Position(fen)
	if err != nil {
		return nil, err
	}
	valid := pos.ValidMoves()
	moves := make([]string, 0, len(valid))
	for _, m := range valid {
		moves = append(moves, m.String())
	}
	return moves, nil
}

// Status is the game state of a position.
type Status int

const (
	Ongoing Status = iota
	Checkmate
	Stalemate
)

// Status reports whether the side to move in fen is checkmated or stalemated.
func (Service) Status(fen string) (Status, error) {
	pos, err := Position(fen)
	if err != nil {
		return Ongoing, err
	}
	switch pos.Status() {
	case chess.Checkmate:
		return Checkmate, nil
	case chess.Stalemate:
		return Stalemate, nil
	}
	return Ongoing, nil
}

func decode(pos *chess.Position, move string) (*chess.Move, error) {
	s := strings.TrimSpace(move)
	if s == "" {
		return nil, fmt.Errorf("%w: empty move", ErrIllegalMove)
	}
	if m, err := (chess.AlgebraicNotation{}).Decode(pos, s); err == nil {
		return m, nil
	}
	// UCI decoding does not check legality, so match against the legal set.
	if m, err := (chess.UCINotation{}).Decode(pos, strings.ToLower(s)); err == nil {
		for _, v := range pos.ValidMoves() {
			if v.S1() == m.S1() && v.S2() == m.S2() && v.Promo() == m.Promo() {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrIllegalMove, s)
}

// Position parses fen with the rules library.
func Position(fen string) (*chess.Position, error) {
	opt, err := chess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return chess.NewGame(opt).Position(), nil
}

// WhiteToMove reports the side-to-move field of fen.
func WhiteToMove(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) < 2 || fields[1] != "b"
}

// FullMoveNumber returns the full-move counter of fen, 1 when it is absent.
func FullMoveNumber(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 1
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ParsePGN reads one game and returns its start position and main line in SAN.
func ParsePGN(r io.Reader) (string, []string, error) {
	opt, err := chess.PGN(r)
	if err != nil {
		return "", nil, fmt.Errorf("parse pgn: %w", err)
	}
	game := chess.NewGame(opt)

	positions := game.Positions()
	moves := game.Moves()
	san := make([]string, 0, len(moves))
	for i, m := range moves {
		san = append(san, chess.AlgebraicNotation{}.Encode(positions[i], m))
	}
	return positions[0].String(), san, nil
}
