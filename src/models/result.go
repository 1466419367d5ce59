package models

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// ScoreKind tags a Score as centipawns or mate.
type ScoreKind string

const (
	ScoreCentipawns ScoreKind = "cp"
	ScoreMate       ScoreKind = "mate"
)

// Score is an engine evaluation from the side to move's point of view.
// For mate scores Value is the distance to mate; negative means the side to move is mated.
type Score struct {
	Kind  ScoreKind `json:"kind"`
	Value int       `json:"value"`
}

func Centipawns(v int) Score { return Score{Kind: ScoreCentipawns, Value: v} }

func Mate(v int) Score { return Score{Kind: ScoreMate, Value: v} }

func (s Score) IsMate() bool {
	return s.Kind == ScoreMate
}

// Negate flips the score to the other side's point of view.
func (s Score) Negate() Score {
	return Score{Kind: s.Kind, Value: -s.Value}
}

// String renders "+1.25", "-0.50", "#3" or "#-5".
func (s Score) String() string {
	if s.IsMate() {
		return fmt.Sprintf("#%d", s.Value)
	}
	sign := "+"
	v := s.Value
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// WinChance maps the score to a 0-100 winning chance for the side to move.
func (s Score) WinChance() float64 {
	if s.IsMate() {
		if s.Value > 0 {
			return 100
		}
		return 0
	}
	return 50 + 50*(2/(1+math.Exp(-0.00368208*float64(s.Value)))-1)
}

// EvalLine is one principal variation reported by the engine.
type EvalLine struct {
	Score     Score    `json:"score"`
	Depth     int      `json:"depth"`
	SelDepth  int      `json:"seldepth,omitempty"`
	MultiPV   int      `json:"multipv"` // rank, 1 = best
	PV        []string `json:"pv"`
	Nodes     int64    `json:"nodes,omitempty"`
	NPS       int64    `json:"nps,omitempty"`
	Time      int64    `json:"time_ms,omitempty"`
	WinChance float64  `json:"win_chance"`
}

// Result represents the analysis result
type Result struct {
	JobID    string     `json:"job_id"`
	FEN      string     `json:"fen"`
	BestMove string     `json:"best_move"`
	Ponder   string     `json:"ponder,omitempty"`
	Depth    int        `json:"depth"`
	Lines    []EvalLine `json:"lines"`
	Error    string     `json:"error,omitempty"`
}

// Best returns the first line in display order.
func (r *Result) Best() (EvalLine, bool) {
	if r == nil || len(r.Lines) == 0 {
		return EvalLine{}, false
	}
	return r.Lines[0], true
}

// SortLines orders lines mate first, quickest mate first, then centipawns
// from best to worst. Ranks are left as the engine reported them.
func SortLines(lines []EvalLine) {
	slices.SortStableFunc(lines, func(a, b EvalLine) int {
		am, bm := a.Score.IsMate(), b.Score.IsMate()
		switch {
		case am && !bm:
			return -1
		case !am && bm:
			return 1
		case am && bm:
			if c := cmp.Compare(abs(a.Score.Value), abs(b.Score.Value)); c != 0 {
				return c
			}
			// same distance: mating before being mated
			return cmp.Compare(b.Score.Value, a.Score.Value)
		default:
			return cmp.Compare(b.Score.Value, a.Score.Value)
		}
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
