package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// fakeEngine is a scripted UCI engine. Output is buffered so replies written
// from inside Send never block the client's loop.
type fakeEngine struct {
	mu        sync.Mutex
	sent      []string
	lines     chan string
	closed    bool
	fen       string
	multiPV   int
	searching bool
	overlap   bool

	// hold keeps searches running until "stop" arrives.
	hold bool
	// silent suppresses info lines.
	silent bool
	// moves maps a FEN to the best move reported for it.
	moves map[string]string
	// scores maps a rank to the score printed for it.
	scores map[int]string

	goes chan string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		lines:   make(chan string, 1024),
		multiPV: 1,
		moves:   map[string]string{},
		scores:  map[int]string{1: "cp 35", 2: "cp 10", 3: "cp -20"},
		goes:    make(chan string, 64),
	}
}

func (f *fakeEngine) emit(lines ...string) {
	for _, l := range lines {
		f.lines <- l
	}
}

func (f *fakeEngine) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.New("fake engine closed")
	}
	f.sent = append(f.sent, line)

	fields := strings.Fields(line)
	switch {
	case line == "uci":
		f.emit("id name Fakefish 1.0", "id author Test", "option name MultiPV type spin default 1 min 1 max 500", "uciok")
	case line == "isready":
		f.emit("readyok")
	case strings.HasPrefix(line, "setoption name MultiPV value "):
		f.multiPV, _ = strconv.Atoi(fields[len(fields)-1])
	case strings.HasPrefix(line, "position fen "):
		f.fen = strings.TrimPrefix(line, "position fen ")
	case strings.HasPrefix(line, "go depth "):
		if f.searching {
			f.overlap = true
		}
		f.searching = true
		depth, _ := strconv.Atoi(fields[2])
		if !f.silent {
			f.emit("info string NNUE evaluation enabled")
			for d := 1; d <= depth; d++ {
				for rank := 1; rank <= f.multiPV; rank++ {
					f.emit(f.infoLine(d, rank))
				}
			}
		}
		f.goes <- f.fen
		if !f.hold {
			f.finishSearch()
		}
	case line == "stop":
		if f.searching {
			f.finishSearch()
		}
	case line == "quit":
		f.closeLocked()
	}
	return nil
}

func (f *fakeEngine) infoLine(depth, rank int) string {
	score, ok := f.scores[rank]
	if !ok {
		score = "cp " + strconv.Itoa(-100*rank)
	}
	return fmt.Sprintf("info depth %d seldepth %d multipv %d score %s nodes %d nps 100000 time %d pv %s e7e5 g1f3",
		depth, depth+2, rank, score, depth*1000, depth*10, f.bestFor(rank))
}

func (f *fakeEngine) bestFor(rank int) string {
	if rank == 1 {
		if m, ok := f.moves[f.fen]; ok {
			return m
		}
		return "e2e4"
	}
	return []string{"d2d4", "c2c4", "g1f3", "b1c3"}[(rank-2)%4]
}

func (f *fakeEngine) finishSearch() {
	f.searching = false
	f.emit("bestmove " + f.bestFor(1) + " ponder e7e5")
}

func (f *fakeEngine) Lines() <-chan string {
	return f.lines
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	return nil
}

func (f *fakeEngine) closeLocked() {
	if !f.closed {
		f.closed = true
		close(f.lines)
	}
}

// crash simulates the engine process dying.
func (f *fakeEngine) crash() {
	f.Close()
}

func (f *fakeEngine) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeEngine) lastSetOption() string {
	cmds := f.commands()
	for i := len(cmds) - 1; i >= 0; i-- {
		if strings.HasPrefix(cmds[i], "setoption") {
			return cmds[i]
		}
	}
	return ""
}
