package shared

import (
	"strings"
	"time"
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side of the board.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusConcluded  Status = "concluded"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	return s == StatusConcluded || s == StatusAbandoned
}

type Result string

const (
	WhiteWins Result = "whiteWins"
	BlackWins Result = "blackWins"
	Draw      Result = "draw"
)

type Outcome struct {
	Result Result `json:"result"`
	Reason string `json:"reason"`
}

// Winner returns the winning color, or false for a draw.
func (o Outcome) Winner() (Color, bool) {
	switch o.Result {
	case WhiteWins:
		return White, true
	case BlackWins:
		return Black, true
	}
	return "", false
}

// WinFor builds a decisive outcome for the given color.
func WinFor(c Color, reason string) Outcome {
	if c == White {
		return Outcome{Result: WhiteWins, Reason: reason}
	}
	return Outcome{Result: BlackWins, Reason: reason}
}

type Seat struct {
	Identity string `json:"identity"`
	Color    Color  `json:"color"`
}

// NormalizeCode canonicalizes a client-supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Event actions emitted to clients.
const (
	ActionInit              = "init"
	ActionPlayersCount      = "playersCount"
	ActionMatchStarted      = "matchStarted"
	ActionMoveApplied       = "moveApplied"
	ActionMatchConcluded    = "matchConcluded"
	ActionMoveRejected      = "moveRejected"
	ActionSettlementWarning = "settlementWarning"
	ActionError             = "error"
)

// Event is the outbound envelope. Seq is the room's commit order and is zero
// for private events that do not change room state.
type Event struct {
	Action string      `json:"action"`
	Room   string      `json:"room"`
	Seq    uint64      `json:"seq,omitempty"`
	Data   interface{} `json:"data"`
}

type InitPayload struct {
	FEN    string `json:"fen"`
	Color  Color  `json:"color"`
	Status Status `json:"status"`
}

type PlayersCountPayload struct {
	Count int `json:"count"`
}

type MatchStartedPayload struct {
	FEN   string `json:"fen"`
	White string `json:"white"`
	Black string `json:"black"`
}

type MoveAppliedPayload struct {
	FEN  string `json:"fen"`
	From string `json:"from"`
	To   string `json:"to"`
	Turn Color  `json:"turn"`
	Ply  int    `json:"ply"`
}

type MatchConcludedPayload struct {
	Outcome Outcome `json:"outcome"`
	Winner  string  `json:"winner,omitempty"`
}

type MoveRejectedPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type SettlementWarningPayload struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
