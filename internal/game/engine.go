package game

import (
	"fmt"
	"strings"

	"chess-coordinator/internal/shared"

	"github.com/corentings/chess/v2"
)

// ChessOracle is the Oracle backed by github.com/corentings/chess. Every call
// rebuilds the game from the starting FEN and the UCI history, so no engine
// state outlives a call.
type ChessOracle struct{}

func NewChessOracle() *ChessOracle {
	return &ChessOracle{}
}

func (o *ChessOracle) StartPosition() Position {
	g := chess.NewGame()
	return Position{FEN: g.FEN(), base: ""}
}

func (o *ChessOracle) SideToMove(pos Position) (shared.Color, error) {
	g, err := reconstruct(pos)
	if err != nil {
		return "", err
	}
	return colorFrom(g.Position().Turn()), nil
}

func (o *ChessOracle) LegalMove(pos Position, mv Move) (Verdict, error) {
	g, err := reconstruct(pos)
	if err != nil {
		return Verdict{}, err
	}
	if g.Outcome() != chess.NoOutcome {
		return Verdict{Position: pos}, nil
	}

	uci, ok := toUCI(mv)
	if !ok {
		return Verdict{Position: pos}, nil
	}
	if err := g.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
		// a pawn reaching the last rank without a piece promotes to a queen
		if mv.Promotion != "" {
			return Verdict{Position: pos}, nil
		}
		uci += "q"
		if err := g.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
			return Verdict{Position: pos}, nil
		}
	}

	next := Position{
		FEN:   g.FEN(),
		Moves: append(append(make([]string, 0, len(pos.Moves)+1), pos.Moves...), uci),
		base:  pos.base,
	}
	v := Verdict{Accepted: true, Position: next}
	if out, done := outcomeOf(g); done {
		v.Terminal = true
		v.Outcome = &out
	}
	return v, nil
}

func reconstruct(pos Position) (*chess.Game, error) {
	var g *chess.Game
	if pos.base == "" {
		g = chess.NewGame()
	} else {
		opt, err := chess.FEN(pos.base)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
		}
		g = chess.NewGame(opt)
	}
	for _, mv := range pos.Moves {
		if err := g.PushNotationMove(mv, chess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: replay %s: %v", ErrInvalidPosition, mv, err)
		}
	}
	return g, nil
}

// PositionFromFEN starts a position from an arbitrary FEN instead of the
// standard opening. Rooms always use StartPosition; this exists so endgame
// positions can be set up in tests.
func PositionFromFEN(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if _, err := chess.FEN(fen); err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return Position{FEN: fen, base: fen}, nil
}

func toUCI(mv Move) (string, bool) {
	from := strings.ToLower(strings.TrimSpace(mv.From))
	to := strings.ToLower(strings.TrimSpace(mv.To))
	if !isSquare(from) || !isSquare(to) {
		return "", false
	}
	promo := strings.ToLower(strings.TrimSpace(mv.Promotion))
	switch promo {
	case "", "q", "r", "b", "n":
	default:
		return "", false
	}
	return from + to + promo, true
}

func isSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func colorFrom(c chess.Color) shared.Color {
	if c == chess.White {
		return shared.White
	}
	return shared.Black
}
