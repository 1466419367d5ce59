package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jacokyle01/chess-analysis/src/models"
)

// Kind classifies an engine output line.
type Kind int

const (
	// KindOther covers everything that is neither an evaluation nor a terminal line.
	KindOther Kind = iota
	KindInfo
	KindBestMove
)

// Message is a parsed engine output line.
// Err is set when the line looked like evaluation output but could not be parsed.
type Message struct {
	Kind     Kind
	Line     models.EvalLine
	BestMove string
	Ponder   string
	Err      error
}

// Parse classifies line by its leading token.
func Parse(line string) Message {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}
	}
	switch fields[0] {
	case "info":
		return parseInfo(fields[1:])
	case "bestmove":
		return parseBestMove(fields[1:])
	}
	return Message{}
}

func parseBestMove(fields []string) Message {
	msg := Message{Kind: KindBestMove}
	if len(fields) > 0 && fields[0] != "(none)" {
		msg.BestMove = fields[0]
	}
	if len(fields) > 2 && fields[1] == "ponder" {
		msg.Ponder = fields[2]
	}
	return msg
}

func parseInfo(fields []string) Message {
	line := models.EvalLine{MultiPV: 1}
	hasScore := false

	intAt := func(i int, name string) (int64, error) {
		if i >= len(fields) {
			return 0, fmt.Errorf("info %s: missing value", name)
		}
		v, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("info %s: %w", name, err)
		}
		return v, nil
	}

	for i := 0; i < len(fields); i++ {
		var err error
		var v int64
		switch fields[i] {
		case "depth":
			v, err = intAt(i+1, "depth")
			line.Depth = int(v)
			i++
		case "seldepth":
			v, err = intAt(i+1, "seldepth")
			line.SelDepth = int(v)
			i++
		case "multipv":
			v, err = intAt(i+1, "multipv")
			line.MultiPV = int(v)
			i++
		case "nodes":
			line.Nodes, err = intAt(i+1, "nodes")
			i++
		case "nps":
			line.NPS, err = intAt(i+1, "nps")
			i++
		case "time":
			line.Time, err = intAt(i+1, "time")
			i++
		case "score":
			if i+1 >= len(fields) {
				return anomaly(fmt.Errorf("info score: missing kind"))
			}
			kind := models.ScoreKind(fields[i+1])
			if kind != models.ScoreCentipawns && kind != models.ScoreMate {
				return anomaly(fmt.Errorf("info score: unknown kind %q", fields[i+1]))
			}
			v, err = intAt(i+2, "score")
			line.Score = models.Score{Kind: kind, Value: int(v)}
			hasScore = true
			i += 2
		case "pv":
			line.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		case "string":
			// free text until end of line
			i = len(fields)
		}
		if err != nil {
			return anomaly(err)
		}
	}

	if !hasScore || len(line.PV) == 0 {
		return Message{}
	}
	if line.MultiPV < 1 {
		return anomaly(fmt.Errorf("info multipv: %d out of range", line.MultiPV))
	}
	line.WinChance = line.Score.WinChance()
	return Message{Kind: KindInfo, Line: line}
}

func anomaly(err error) Message {
	return Message{Kind: KindOther, Err: err}
}
