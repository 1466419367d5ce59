package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacokyle01/chess-analysis/src/models"
)

func TestParseInfo(t *testing.T) {
	msg := Parse("info depth 20 seldepth 28 multipv 2 score cp -31 nodes 1234567 nps 987654 hashfull 120 tbhits 0 time 1250 pv e7e5 g1f3 b8c6")
	require.Equal(t, KindInfo, msg.Kind)
	require.NoError(t, msg.Err)

	line := msg.Line
	assert.Equal(t, 20, line.Depth)
	assert.Equal(t, 28, line.SelDepth)
	assert.Equal(t, 2, line.MultiPV)
	assert.Equal(t, models.Centipawns(-31), line.Score)
	assert.Equal(t, int64(1234567), line.Nodes)
	assert.Equal(t, int64(987654), line.NPS)
	assert.Equal(t, int64(1250), line.Time)
	assert.Equal(t, []string{"e7e5", "g1f3", "b8c6"}, line.PV)
	assert.Less(t, line.WinChance, 50.0)
}

func TestParseInfoMateAndBound(t *testing.T) {
	msg := Parse("info depth 12 score mate -3 lowerbound nodes 10 pv h7h8")
	require.Equal(t, KindInfo, msg.Kind)
	assert.Equal(t, models.Mate(-3), msg.Line.Score)
	assert.Equal(t, 1, msg.Line.MultiPV, "rank defaults to 1")
	assert.Equal(t, int64(10), msg.Line.Nodes)
	assert.Equal(t, 0.0, msg.Line.WinChance)
}

func TestParseIgnoresNonEvaluation(t *testing.T) {
	for _, line := range []string{
		"",
		"info string NNUE evaluation using nn-1111.nnue",
		"info depth 3 currmove e2e4 currmovenumber 1",
		"info depth 10 score cp 20 nodes 100",
		"info depth 10 pv e2e4",
		"id name Stockfish 16",
		"readyok",
	} {
		msg := Parse(line)
		assert.Equal(t, KindOther, msg.Kind, line)
		assert.NoError(t, msg.Err, line)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{
		"info depth x score cp 10 pv e2e4",
		"info depth 10 score cp ten pv e2e4",
		"info depth 10 score wdl 10 pv e2e4",
		"info depth 10 score",
		"info depth 10 multipv 0 score cp 1 pv e2e4",
		"info nodes",
	} {
		msg := Parse(line)
		assert.Equal(t, KindOther, msg.Kind, line)
		assert.Error(t, msg.Err, line)
	}
}

func TestParseBestMove(t *testing.T) {
	msg := Parse("bestmove e2e4 ponder e7e5")
	assert.Equal(t, KindBestMove, msg.Kind)
	assert.Equal(t, "e2e4", msg.BestMove)
	assert.Equal(t, "e7e5", msg.Ponder)

	msg = Parse("bestmove g1f3")
	assert.Equal(t, "g1f3", msg.BestMove)
	assert.Empty(t, msg.Ponder)

	msg = Parse("bestmove (none)")
	assert.Equal(t, KindBestMove, msg.Kind)
	assert.Empty(t, msg.BestMove)
}

func TestMalformedLineDoesNotAbortSearch(t *testing.T) {
	f := newFakeEngine()
	f.scores = map[int]string{1: "cp oops"}
	c := newTestClient(t, f, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	res, err := c.FindBestMove(ctx, startFEN, 3)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", res.BestMove)
	assert.Empty(t, res.Lines)
}
