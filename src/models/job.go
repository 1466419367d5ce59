package models

// Job represents a chess position analysis request.
// MultiPV above 1 asks for the engine's top lines instead of a single best move.
type Job struct {
	ID       string `json:"id"`
	FEN      string `json:"fen"`
	Depth    int    `json:"depth"`
	MultiPV  int    `json:"multipv,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// Lines returns the number of evaluation lines the job asks for.
func (j Job) Lines() int {
	if j.MultiPV < 1 {
		return 1
	}
	return j.MultiPV
}
