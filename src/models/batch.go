package models

// Classification labels a reviewed move.
type Classification string

const (
	Best       Classification = "best"
	Excellent  Classification = "excellent"
	Good       Classification = "good"
	Inaccuracy Classification = "inaccuracy"
	Mistake    Classification = "mistake"
	Blunder    Classification = "blunder"
)

// Classifications lists every label from best to worst.
var Classifications = []Classification{Best, Excellent, Good, Inaccuracy, Mistake, Blunder}

// ReviewedMove is one played move after analysis.
type ReviewedMove struct {
	Ply            int            `json:"ply"`
	MoveNumber     int            `json:"move_number"`
	White          bool           `json:"white"`
	SAN            string         `json:"san"`
	UCI            string         `json:"uci"`
	FENBefore      string         `json:"fen_before"`
	FENAfter       string         `json:"fen_after"`
	Eval           Score          `json:"eval"` // position after the move, White's point of view
	BestMove       string         `json:"best_move"`
	Loss           int            `json:"loss"` // centipawns lost by the mover
	Classification Classification `json:"classification"`
}

// ReviewProgress is emitted after every reviewed move and once more when done.
type ReviewProgress struct {
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
	Done      bool          `json:"done"`
	Move      *ReviewedMove `json:"move,omitempty"`
}

// SideSummary aggregates one player's moves.
type SideSummary struct {
	Counts            map[Classification]int `json:"counts"`
	Moves             int                    `json:"moves"`
	AverageLoss       float64                `json:"average_loss"`
	Accuracy          float64                `json:"accuracy"`
	PerformanceRating int                    `json:"performance_rating"`
}

// ReviewSummary is the final result of a game review.
type ReviewSummary struct {
	StartFEN string         `json:"start_fen"`
	Depth    int            `json:"depth"`
	Moves    []ReviewedMove `json:"moves"`
	White    SideSummary    `json:"white"`
	Black    SideSummary    `json:"black"`
}

// Batch tracks one review run on the primary server.
type Batch struct {
	ID       string         `json:"id"`
	Progress ReviewProgress `json:"progress"`
	Summary  *ReviewSummary `json:"summary,omitempty"`
	Error    string         `json:"error,omitempty"`
}
