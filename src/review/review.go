// Package review walks a played game through the engine one move at a time
// and classifies every move by how much evaluation it gave away.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jacokyle01/chess-analysis/src/models"
	"github.com/jacokyle01/chess-analysis/src/rules"
)

// Analyzer runs a single best-move search.
type Analyzer interface {
	FindBestMove(ctx context.Context, fen string, depth int) (*models.Result, error)
}

// Validator plays moves and recognises finished games.
type Validator interface {
	Apply(fen, move string) (rules.Applied, error)
	Status(fen string) (rules.Status, error)
}

// Thresholds are the largest centipawn losses still given each label.
// Anything above Mistake is a blunder.
type Thresholds struct {
	Excellent  int `yaml:"excellent" json:"excellent"`
	Good       int `yaml:"good" json:"good"`
	Inaccuracy int `yaml:"inaccuracy" json:"inaccuracy"`
	Mistake    int `yaml:"mistake" json:"mistake"`
}

// Config is the classification policy.
type Config struct {
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
	// EvalCap clamps evaluations before losses are computed.
	EvalCap int `yaml:"eval_cap" json:"eval_cap"`
	// MateValue is the centipawn value of a forced mate.
	MateValue int `yaml:"mate_value" json:"mate_value"`
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			Excellent:  20,
			Good:       50,
			Inaccuracy: 100,
			Mistake:    250,
		},
		EvalCap:   1000,
		MateValue: 10000,
	}
}

// Validate checks that thresholds are ordered and positive.
func (c Config) Validate() error {
	t := c.Thresholds
	if t.Excellent < 0 || t.Excellent > t.Good || t.Good > t.Inaccuracy || t.Inaccuracy > t.Mistake {
		return fmt.Errorf("review thresholds must be ascending: %+v", t)
	}
	if c.EvalCap <= 0 || c.MateValue <= 0 {
		return errors.New("review eval_cap and mate_value must be positive")
	}
	return nil
}

// Classify labels a centipawn loss.
func (c Config) Classify(loss int) models.Classification {
	t := c.Thresholds
	switch {
	case loss <= t.Excellent:
		return models.Excellent
	case loss <= t.Good:
		return models.Good
	case loss <= t.Inaccuracy:
		return models.Inaccuracy
	case loss <= t.Mistake:
		return models.Mistake
	}
	return models.Blunder
}

// Centipawns converts a side-to-move score into capped centipawns.
func (c Config) Centipawns(s models.Score) int {
	v := s.Value
	if s.IsMate() {
		switch {
		case s.Value > 0:
			v = c.MateValue - s.Value
		case s.Value < 0:
			v = -c.MateValue - s.Value
		default:
			v = -c.MateValue
		}
	}
	return max(-c.EvalCap, min(c.EvalCap, v))
}

// Reviewer runs game reviews.
type Reviewer struct {
	analyzer  Analyzer
	validator Validator
	cfg       Config
	logger    *slog.Logger
}

// New creates a Reviewer.
func New(a Analyzer, v Validator, cfg Config, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{analyzer: a, validator: v, cfg: cfg, logger: logger}
}

// evaluation of one position from its side to move.
type evaluation struct {
	score models.Score
	known bool
	best  string
}

func (r *Reviewer) evaluate(ctx context.Context, fen string, depth int) (evaluation, error) {
	res, err := r.analyzer.FindBestMove(ctx, fen, depth)
	if err != nil {
		return evaluation{}, err
	}
	ev := evaluation{best: res.BestMove}
	if line, ok := res.Best(); ok {
		ev.score, ev.known = line.Score, true
		return ev, nil
	}

	// engines print no pv once the game is over
	status, err := r.validator.Status(fen)
	if err != nil {
		return evaluation{}, err
	}
	switch status {
	case rules.Checkmate:
		ev.score, ev.known = models.Mate(0), true
	case rules.Stalemate:
		ev.score, ev.known = models.Centipawns(0), true
	}
	return ev, nil
}

// Review analyses moves played from startFEN. onProgress, when set, is called
// after every move and once more with Done set before the summary is returned.
// Searches run strictly one after another.
func (r *Reviewer) Review(ctx context.Context, startFEN string, moves []string, depth int, onProgress func(models.ReviewProgress)) (*models.ReviewSummary, error) {
	if depth < 1 {
		return nil, fmt.Errorf("review depth %d", depth)
	}
	emit := func(p models.ReviewProgress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	prev, err := r.evaluate(ctx, startFEN, depth)
	if err != nil {
		return nil, fmt.Errorf("evaluate start position: %w", err)
	}

	summary := &models.ReviewSummary{
		StartFEN: startFEN,
		Depth:    depth,
		Moves:    make([]models.ReviewedMove, 0, len(moves)),
	}
	fen := startFEN
	for i, move := range moves {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		applied, err := r.validator.Apply(fen, move)
		if err != nil {
			return nil, fmt.Errorf("ply %d %q: %w", i+1, move, err)
		}
		next, err := r.evaluate(ctx, applied.FEN, depth)
		if err != nil {
			return nil, fmt.Errorf("ply %d %q: %w", i+1, move, err)
		}

		white := rules.WhiteToMove(fen)
		reviewed := models.ReviewedMove{
			Ply:        i + 1,
			MoveNumber: rules.FullMoveNumber(fen),
			White:      white,
			SAN:        applied.SAN,
			UCI:        applied.UCI,
			FENBefore:  fen,
			FENAfter:   applied.FEN,
			BestMove:   prev.best,
		}

		// next is scored for the opponent, so the mover sees its negation
		before := r.cfg.Centipawns(prev.score)
		after := before
		if next.known {
			after = -r.cfg.Centipawns(next.score)
			reviewed.Eval = next.score.Negate()
		} else {
			reviewed.Eval = prev.score
		}
		if !white {
			reviewed.Eval = reviewed.Eval.Negate()
		}
		reviewed.Loss = max(0, before-after)

		if prev.best != "" && prev.best == applied.UCI {
			reviewed.Classification = models.Best
		} else {
			reviewed.Classification = r.cfg.Classify(reviewed.Loss)
		}

		summary.Moves = append(summary.Moves, reviewed)
		r.logger.Debug("reviewed move", "ply", reviewed.Ply, "san", reviewed.SAN, "loss", reviewed.Loss, "class", reviewed.Classification)
		emit(models.ReviewProgress{Processed: i + 1, Total: len(moves), Move: &summary.Moves[i]})

		if !next.known {
			next.score = prev.score.Negate()
		}
		prev = next
		fen = applied.FEN
	}

	summary.White = r.side(summary.Moves, true)
	summary.Black = r.side(summary.Moves, false)
	emit(models.ReviewProgress{Processed: len(moves), Total: len(moves), Done: true})
	r.logger.Info("review finished", "moves", len(moves), "white_rating", summary.White.PerformanceRating, "black_rating", summary.Black.PerformanceRating)
	return summary, nil
}

func (r *Reviewer) side(moves []models.ReviewedMove, white bool) models.SideSummary {
	s := models.SideSummary{Counts: make(map[models.Classification]int, len(models.Classifications))}
	for _, c := range models.Classifications {
		s.Counts[c] = 0
	}

	var loss, accuracy float64
	for _, m := range moves {
		if m.White != white {
			continue
		}
		s.Moves++
		s.Counts[m.Classification]++
		loss += float64(m.Loss)
		accuracy += moveAccuracy(m.Loss)
	}
	if s.Moves == 0 {
		return s
	}
	s.AverageLoss = loss / float64(s.Moves)
	s.Accuracy = accuracy / float64(s.Moves)
	s.PerformanceRating = performanceRating(s.AverageLoss)
	return s
}

// moveAccuracy maps a loss onto 0-100 through the drop in winning chances,
// measured from an equal position.
func moveAccuracy(loss int) float64 {
	drop := 50 - models.Centipawns(-loss).WinChance()
	acc := 103.1668*math.Exp(-0.04354*drop) - 3.1669
	return max(0, min(100, acc))
}

const (
	ratingCeiling = 3100
	ratingFloor   = 100
)

// performanceRating estimates a rating from average centipawn loss.
func performanceRating(acpl float64) int {
	r := int(math.Round(ratingCeiling * math.Exp(-0.01*acpl)))
	return max(ratingFloor, min(ratingCeiling, r))
}
