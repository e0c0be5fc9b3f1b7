package game

import (
	"errors"

	"chess-coordinator/internal/shared"
)

var ErrInvalidPosition = errors.New("invalid position")

// Position is the authoritative board state of one room. The coordinator
// treats it as opaque and only hands it back to the Oracle.
type Position struct {
	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`

	base string
}

type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type Verdict struct {
	Accepted bool
	Position Position
	Terminal bool
	Outcome  *shared.Outcome
}

// Oracle adjudicates chess rules for the coordinator. Implementations must be
// safe for concurrent use across rooms.
type Oracle interface {
	StartPosition() Position
	SideToMove(pos Position) (shared.Color, error)
	LegalMove(pos Position, mv Move) (Verdict, error)
}
