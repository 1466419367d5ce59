package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacokyle01/chess-analysis/src/models"
	"github.com/jacokyle01/chess-analysis/src/rules"
)

// scriptedAnalyzer answers from a table keyed by FEN and checks that searches
// never overlap.
type scriptedAnalyzer struct {
	mu       sync.Mutex
	results  map[string]*models.Result
	calls    []string
	inFlight int
	overlap  bool
	err      error
}

func (s *scriptedAnalyzer) FindBestMove(ctx context.Context, fen string, depth int) (*models.Result, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > 1 {
		s.overlap = true
	}
	s.calls = append(s.calls, fen)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.err != nil {
		return nil, s.err
	}
	if res, ok := s.results[fen]; ok {
		return res, nil
	}
	return &models.Result{FEN: fen, BestMove: "", Lines: []models.EvalLine{{MultiPV: 1, Depth: depth, Score: models.Centipawns(0), PV: []string{"a2a3"}}}}, nil
}

func cp(best string, v int) *models.Result {
	return &models.Result{BestMove: best, Lines: []models.EvalLine{{MultiPV: 1, Score: models.Centipawns(v), PV: []string{best}}}}
}

func mate(best string, v int) *models.Result {
	return &models.Result{BestMove: best, Lines: []models.EvalLine{{MultiPV: 1, Score: models.Mate(v), PV: []string{best}}}}
}

// fenAfter plays moves from the start position.
func fenAfter(t *testing.T, moves ...string) string {
	t.Helper()
	fen := rules.StartFEN
	for _, m := range moves {
		applied, err := rules.Service{}.Apply(fen, m)
		require.NoError(t, err)
		fen = applied.FEN
	}
	return fen
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, models.Excellent, cfg.Classify(0))
	assert.Equal(t, models.Excellent, cfg.Classify(20))
	assert.Equal(t, models.Good, cfg.Classify(21))
	assert.Equal(t, models.Inaccuracy, cfg.Classify(100))
	assert.Equal(t, models.Mistake, cfg.Classify(250))
	assert.Equal(t, models.Blunder, cfg.Classify(251))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Thresholds.Good = 500
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.EvalCap = 0
	assert.Error(t, cfg.Validate())
}

func TestCentipawns(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 150, cfg.Centipawns(models.Centipawns(150)))
	assert.Equal(t, 1000, cfg.Centipawns(models.Centipawns(4000)))
	assert.Equal(t, 1000, cfg.Centipawns(models.Mate(3)))
	assert.Equal(t, -1000, cfg.Centipawns(models.Mate(-2)))
	assert.Equal(t, -1000, cfg.Centipawns(models.Mate(0)))
}

func TestReviewClassifiesMoves(t *testing.T) {
	a := &scriptedAnalyzer{results: map[string]*models.Result{
		rules.StartFEN:                        cp("e2e4", 30),
		fenAfter(t, "e4"):                     cp("e7e5", -30),
		fenAfter(t, "e4", "a5"):               cp("d2d4", 150),
		fenAfter(t, "e4", "a5", "Qh5"):        cp("g8f6", 100),
		fenAfter(t, "e4", "a5", "Qh5", "Ra6"): cp("h5f7", 900),
	}}
	r := New(a, rules.Service{}, DefaultConfig(), nil)

	var progress []models.ReviewProgress
	summary, err := r.Review(context.Background(), rules.StartFEN, []string{"e4", "a5", "Qh5", "Ra6"}, 12, func(p models.ReviewProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	require.Len(t, summary.Moves, 4)

	e4 := summary.Moves[0]
	assert.Equal(t, models.Best, e4.Classification)
	assert.Equal(t, 0, e4.Loss)
	assert.True(t, e4.White)
	assert.Equal(t, 1, e4.MoveNumber)
	assert.Equal(t, models.Centipawns(30), e4.Eval)

	a5 := summary.Moves[1]
	assert.False(t, a5.White)
	assert.Equal(t, "e7e5", a5.BestMove)
	assert.Equal(t, 120, a5.Loss)
	assert.Equal(t, models.Mistake, a5.Classification)
	assert.Equal(t, models.Centipawns(150), a5.Eval)

	qh5 := summary.Moves[2]
	assert.Equal(t, 250, qh5.Loss)
	assert.Equal(t, models.Mistake, qh5.Classification)
	assert.Equal(t, 2, qh5.MoveNumber)

	ra6 := summary.Moves[3]
	assert.Equal(t, 1000, ra6.Loss)
	assert.Equal(t, models.Blunder, ra6.Classification)
	assert.Equal(t, models.Centipawns(900), ra6.Eval)

	assert.Equal(t, 2, summary.White.Moves)
	assert.Equal(t, 1, summary.White.Counts[models.Best])
	assert.Equal(t, 1, summary.White.Counts[models.Mistake])
	assert.Equal(t, 0, summary.White.Counts[models.Blunder])
	assert.InDelta(t, 125, summary.White.AverageLoss, 0.001)
	assert.Equal(t, 1, summary.Black.Counts[models.Mistake])
	assert.Equal(t, 1, summary.Black.Counts[models.Blunder])
	assert.Greater(t, summary.White.PerformanceRating, summary.Black.PerformanceRating)
	assert.Greater(t, summary.White.Accuracy, summary.Black.Accuracy)

	assert.False(t, a.overlap)
	assert.Equal(t, rules.StartFEN, a.calls[0])
	assert.Len(t, a.calls, 5)
}

func TestReviewProgressEvents(t *testing.T) {
	moves := []string{"d4", "d5", "c4", "e6", "Nc3", "Nf6"}
	a := &scriptedAnalyzer{}
	r := New(a, rules.Service{}, DefaultConfig(), nil)

	var progress []models.ReviewProgress
	_, err := r.Review(context.Background(), rules.StartFEN, moves, 8, func(p models.ReviewProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	require.Len(t, progress, len(moves)+1)
	for i := 0; i < len(moves); i++ {
		assert.Equal(t, i+1, progress[i].Processed)
		assert.Equal(t, len(moves), progress[i].Total)
		assert.False(t, progress[i].Done)
		require.NotNil(t, progress[i].Move)
		assert.Equal(t, moves[i], progress[i].Move.SAN)
	}
	last := progress[len(moves)]
	assert.True(t, last.Done)
	assert.Equal(t, len(moves), last.Processed)
}

func TestReviewCheckmate(t *testing.T) {
	moves := []string{"f3", "e5", "g4", "Qh4#"}
	mated := fenAfter(t, moves...)
	a := &scriptedAnalyzer{results: map[string]*models.Result{
		rules.StartFEN:                cp("e2e4", 20),
		fenAfter(t, "f3"):             cp("e7e5", 60),
		fenAfter(t, "f3", "e5"):       cp("b1c3", -50),
		fenAfter(t, "f3", "e5", "g4"): mate("d8h4", 1),
		mated:                         {BestMove: ""},
	}}
	r := New(a, rules.Service{}, DefaultConfig(), nil)

	summary, err := r.Review(context.Background(), rules.StartFEN, moves, 10, nil)
	require.NoError(t, err)

	g4 := summary.Moves[2]
	assert.Equal(t, models.Blunder, g4.Classification)
	qh4 := summary.Moves[3]
	assert.Equal(t, 0, qh4.Loss)
	assert.Equal(t, models.Best, qh4.Classification)
	assert.Equal(t, models.Mate(0), qh4.Eval)
}

func TestReviewIllegalMove(t *testing.T) {
	r := New(&scriptedAnalyzer{}, rules.Service{}, DefaultConfig(), nil)
	_, err := r.Review(context.Background(), rules.StartFEN, []string{"e4", "e4"}, 5, nil)
	assert.ErrorIs(t, err, rules.ErrIllegalMove)
}

func TestReviewAnalyzerError(t *testing.T) {
	boom := errors.New("engine gone")
	r := New(&scriptedAnalyzer{err: boom}, rules.Service{}, DefaultConfig(), nil)
	_, err := r.Review(context.Background(), rules.StartFEN, []string{"e4"}, 5, nil)
	assert.ErrorIs(t, err, boom)
}

func TestReviewCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(&scriptedAnalyzer{}, rules.Service{}, DefaultConfig(), nil)
	_, err := r.Review(ctx, rules.StartFEN, []string{"e4"}, 5, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReviewEmptyGame(t *testing.T) {
	r := New(&scriptedAnalyzer{}, rules.Service{}, DefaultConfig(), nil)

	var progress []models.ReviewProgress
	summary, err := r.Review(context.Background(), rules.StartFEN, nil, 5, func(p models.ReviewProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Empty(t, summary.Moves)
	require.Len(t, progress, 1)
	assert.True(t, progress[0].Done)
	assert.Zero(t, summary.White.PerformanceRating)
}

func TestPerformanceRating(t *testing.T) {
	assert.Equal(t, 3100, performanceRating(0))
	assert.Greater(t, performanceRating(20), performanceRating(60))
	assert.Equal(t, 100, performanceRating(10000))
	assert.InDelta(t, 100, moveAccuracy(0), 0.01)
	assert.Less(t, moveAccuracy(300), moveAccuracy(30))
}
