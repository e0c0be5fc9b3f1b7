package game_test

import (
	"strings"
	"testing"

	"chess-coordinator/internal/game"
	"chess-coordinator/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func play(t *testing.T, o game.Oracle, pos game.Position, moves ...string) (game.Position, game.Verdict) {
	t.Helper()
	var v game.Verdict
	for _, m := range moves {
		var err error
		v, err = o.LegalMove(pos, game.Move{From: m[:2], To: m[2:4]})
		require.NoError(t, err)
		require.True(t, v.Accepted, "move %s should be legal", m)
		pos = v.Position
	}
	return pos, v
}

func TestChessOracle_StartPosition(t *testing.T) {
	o := game.NewChessOracle()
	pos := o.StartPosition()

	assert.Equal(t, startFEN, pos.FEN)
	assert.Empty(t, pos.Moves)

	side, err := o.SideToMove(pos)
	require.NoError(t, err)
	assert.Equal(t, shared.White, side)
}

func TestChessOracle_LegalMoveAdvancesTurn(t *testing.T) {
	o := game.NewChessOracle()
	start := o.StartPosition()

	v, err := o.LegalMove(start, game.Move{From: "e2", To: "e4"})
	require.NoError(t, err)
	require.True(t, v.Accepted)
	assert.False(t, v.Terminal)
	assert.Nil(t, v.Outcome)
	assert.Equal(t, []string{"e2e4"}, v.Position.Moves)
	assert.NotEqual(t, start.FEN, v.Position.FEN)

	side, err := o.SideToMove(v.Position)
	require.NoError(t, err)
	assert.Equal(t, shared.Black, side)

	// the input position is never mutated
	assert.Empty(t, start.Moves)
	assert.Equal(t, startFEN, start.FEN)
}

func TestChessOracle_RejectsIllegalMoves(t *testing.T) {
	o := game.NewChessOracle()
	start := o.StartPosition()

	cases := []struct {
		name string
		mv   game.Move
	}{
		{"pawn too far", game.Move{From: "e2", To: "e5"}},
		{"wrong side", game.Move{From: "e7", To: "e5"}},
		{"empty square", game.Move{From: "e4", To: "e5"}},
		{"off board", game.Move{From: "z9", To: "e4"}},
		{"garbage", game.Move{From: "", To: ""}},
		{"bad promotion piece", game.Move{From: "e2", To: "e4", Promotion: "k"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := o.LegalMove(start, tc.mv)
			require.NoError(t, err)
			assert.False(t, v.Accepted)
			assert.Equal(t, start.FEN, v.Position.FEN)
		})
	}
}

func TestChessOracle_FoolsMate(t *testing.T) {
	o := game.NewChessOracle()
	pos, v := play(t, o, o.StartPosition(), "f2f3", "e7e5", "g2g4", "d8h4")

	require.True(t, v.Terminal)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, shared.BlackWins, v.Outcome.Result)
	assert.Equal(t, "checkmate", v.Outcome.Reason)

	winner, ok := v.Outcome.Winner()
	assert.True(t, ok)
	assert.Equal(t, shared.Black, winner)

	// nothing is legal once the game is over
	after, err := o.LegalMove(pos, game.Move{From: "a2", To: "a3"})
	require.NoError(t, err)
	assert.False(t, after.Accepted)
}

func TestChessOracle_PromotionDefaultsToQueen(t *testing.T) {
	o := game.NewChessOracle()
	pos, err := game.PositionFromFEN("8/P7/8/8/8/8/8/k6K w - - 0 1")
	require.NoError(t, err)

	v, err := o.LegalMove(pos, game.Move{From: "a7", To: "a8"})
	require.NoError(t, err)
	require.True(t, v.Accepted)
	assert.Equal(t, []string{"a7a8q"}, v.Position.Moves)
	assert.True(t, strings.HasPrefix(v.Position.FEN, "Q7/"), v.Position.FEN)

	side, err := o.SideToMove(v.Position)
	require.NoError(t, err)
	assert.Equal(t, shared.Black, side)
}

func TestChessOracle_UnderPromotion(t *testing.T) {
	o := game.NewChessOracle()
	pos, err := game.PositionFromFEN("8/P7/8/8/8/8/8/k6K w - - 0 1")
	require.NoError(t, err)

	v, err := o.LegalMove(pos, game.Move{From: "a7", To: "a8", Promotion: "N"})
	require.NoError(t, err)
	require.True(t, v.Accepted)
	assert.Equal(t, []string{"a7a8n"}, v.Position.Moves)
	assert.True(t, strings.HasPrefix(v.Position.FEN, "N7/"), v.Position.FEN)
}

func TestPositionFromFEN_Invalid(t *testing.T) {
	_, err := game.PositionFromFEN("not a fen")
	assert.ErrorIs(t, err, game.ErrInvalidPosition)
}

func TestChessOracle_StalemateIsDraw(t *testing.T) {
	o := game.NewChessOracle()
	pos, err := game.PositionFromFEN("k7/8/1Q6/8/8/8/8/7K w - - 0 1")
	require.NoError(t, err)

	v, err := o.LegalMove(pos, game.Move{From: "b6", To: "c7"})
	require.NoError(t, err)
	require.True(t, v.Accepted)
	require.True(t, v.Terminal)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, shared.Outcome{Result: shared.Draw, Reason: "stalemate"}, *v.Outcome)

	_, won := v.Outcome.Winner()
	assert.False(t, won)
}
