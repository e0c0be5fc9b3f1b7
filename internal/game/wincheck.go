package game

import (
	"chess-coordinator/internal/shared"

	"github.com/corentings/chess/v2"
)

// outcomeOf reports the terminal outcome of g, if any.
func outcomeOf(g *chess.Game) (shared.Outcome, bool) {
	reason := reasonFor(g.Method())
	switch g.Outcome() {
	case chess.WhiteWon:
		return shared.Outcome{Result: shared.WhiteWins, Reason: reason}, true
	case chess.BlackWon:
		return shared.Outcome{Result: shared.BlackWins, Reason: reason}, true
	case chess.Draw:
		return shared.Outcome{Result: shared.Draw, Reason: reason}, true
	}
	return shared.Outcome{}, false
}

func reasonFor(m chess.Method) string {
	switch m {
	case chess.Checkmate:
		return "checkmate"
	case chess.Stalemate:
		return "stalemate"
	case chess.InsufficientMaterial:
		return "insufficient_material"
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return "repetition"
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return "move_rule"
	}
	return "unknown"
}
