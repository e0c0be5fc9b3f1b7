package settlement

import (
	"context"
	"errors"
	"time"

	"chess-coordinator/internal/shared"
)

var (
	// ErrSettlementFailure is reported once the retry budget is spent.
	ErrSettlementFailure = errors.New("settlement failure")
	// ErrRejected means the settlement service refused the request.
	ErrRejected = errors.New("settlement rejected")
	// ErrClosed means the dispatcher was already shut down.
	ErrClosed = errors.New("settlement dispatcher closed")
)

// Request is handed to the settlement service when a room concludes. Winner
// is the identity holding the winning seat and is empty for a draw.
type Request struct {
	ID       string         `json:"id"`
	RoomCode string         `json:"roomId"`
	Outcome  shared.Outcome `json:"outcome"`
	Winner   string         `json:"winner,omitempty"`
}

type Receipt struct {
	Accepted  bool   `json:"accepted"`
	Reference string `json:"reference,omitempty"`
}

// Service is the external payout capability.
type Service interface {
	NotifyOutcome(ctx context.Context, req Request) (Receipt, error)
}

// Failure is a settlement that could not be completed and needs out-of-band
// reconciliation.
type Failure struct {
	Request  Request   `json:"request"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failedAt"`
}

type Ledger interface {
	RecordFailure(ctx context.Context, f Failure) error
	Failures(ctx context.Context) ([]Failure, error)
}
