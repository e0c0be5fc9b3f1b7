package room

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chess-coordinator/internal/game"
	"chess-coordinator/internal/settlement"
	"chess-coordinator/internal/shared"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrRoomFull        = errors.New("room full")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrIllegalMove     = errors.New("illegal move")
	ErrUnknownRoom     = errors.New("unknown room")
	ErrUnknownIdentity = errors.New("unknown identity")
	ErrNotInProgress   = errors.New("match not in progress")
	ErrRoomClosed      = errors.New("room closed")
	ErrCapacity        = errors.New("room capacity reached")

	errRetired = errors.New("room retired")
)

type LeaveCause int

const (
	// CauseDisconnect opens the reconnection window for an in-progress match.
	CauseDisconnect LeaveCause = iota
	// CauseResign forfeits an in-progress match immediately.
	CauseResign
)

func (c LeaveCause) String() string {
	if c == CauseResign {
		return "resign"
	}
	return "disconnect"
}

type JoinResult struct {
	Color   shared.Color
	Resumed bool
	Started bool
}

type SettlementRecord struct {
	Request     settlement.Request  `json:"request"`
	Receipt     *settlement.Receipt `json:"receipt,omitempty"`
	Error       string              `json:"error,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

type Summary struct {
	Code           string            `json:"code"`
	Status         shared.Status     `json:"status"`
	Seats          []shared.Seat     `json:"seats"`
	Disconnected   []string          `json:"disconnected"`
	FEN            string            `json:"fen"`
	Moves          []string          `json:"moves"`
	Ply            int               `json:"ply"`
	Outcome        *shared.Outcome   `json:"outcome,omitempty"`
	SettlementSent bool              `json:"settlementSent"`
	Settlement     *SettlementRecord `json:"settlement,omitempty"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
}

type window struct {
	timer *time.Timer
	token uint64
}

// Room is the authoritative state of one match. Every exported method takes
// the room mutex, so operations on one room are totally ordered.
type Room struct {
	mu sync.Mutex

	code     string
	oracle   game.Oracle
	out      Broadcaster
	settler  Settler
	reattach time.Duration
	log      *logrus.Entry
	now      func() time.Time

	seats          []shared.Seat
	position       game.Position
	status         shared.Status
	outcome        *shared.Outcome
	ply            int
	seq            uint64
	settlementSent bool
	settling       bool
	settlement     *SettlementRecord
	pending        map[string]*window
	tokens         uint64
	lastActivityAt time.Time
	retired        bool

	// dispatched outside the mutex once the current operation commits
	toSettle *settlement.Request
}

func newRoom(code string, oracle game.Oracle, out Broadcaster, settler Settler, reattach time.Duration, log *logrus.Entry, now func() time.Time) *Room {
	return &Room{
		code:           code,
		oracle:         oracle,
		out:            out,
		settler:        settler,
		reattach:       reattach,
		log:            log.WithField("room", code),
		now:            now,
		position:       oracle.StartPosition(),
		status:         shared.StatusWaiting,
		pending:        make(map[string]*window),
		lastActivityAt: now(),
	}
}

func (r *Room) Code() string { return r.code }

// run executes fn under the room mutex and then issues any settlement the
// operation committed, after the mutex is released.
func (r *Room) run(fn func() error) error {
	r.mu.Lock()
	err := fn()
	req := r.toSettle
	r.toSettle = nil
	r.mu.Unlock()

	if req != nil && r.settler != nil {
		r.settler.Dispatch(*req, r.recordSettlement)
	}
	return err
}

// Join seats identity, or resumes its existing seat.
func (r *Room) Join(identity string) (JoinResult, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return JoinResult{}, ErrUnknownIdentity
	}

	var res JoinResult
	err := r.run(func() error {
		if r.retired {
			return errRetired
		}
		if seat, ok := r.seatOf(identity); ok {
			res = r.resumeLocked(seat)
			return nil
		}
		if r.status.Terminal() {
			return ErrRoomClosed
		}
		if len(r.seats) >= 2 {
			return ErrRoomFull
		}

		color := shared.White
		if len(r.seats) == 1 {
			color = r.seats[0].Color.Opposite()
		}
		r.seats = append(r.seats, shared.Seat{Identity: identity, Color: color})
		r.touch()
		res = JoinResult{Color: color}

		logCtx := r.log.WithFields(logrus.Fields{"identity": identity, "color": color})
		if len(r.seats) < 2 {
			r.sendLocked(identity, shared.ActionInit, shared.InitPayload{
				FEN:    r.position.FEN,
				Color:  color,
				Status: r.status,
			})
			r.broadcastLocked(shared.ActionPlayersCount, shared.PlayersCountPayload{Count: r.connectedLocked()})
			logCtx.Info("player seated, waiting for opponent")
			return nil
		}

		r.status = shared.StatusInProgress
		res.Started = true
		r.broadcastLocked(shared.ActionPlayersCount, shared.PlayersCountPayload{Count: r.connectedLocked()})
		r.broadcastLocked(shared.ActionMatchStarted, shared.MatchStartedPayload{
			FEN:   r.position.FEN,
			White: r.holder(shared.White),
			Black: r.holder(shared.Black),
		})
		logCtx.Info("match started")
		return nil
	})
	return res, err
}

func (r *Room) resumeLocked(seat shared.Seat) JoinResult {
	if w, ok := r.pending[seat.Identity]; ok {
		w.timer.Stop()
		delete(r.pending, seat.Identity)
	}
	r.touch()
	r.sendLocked(seat.Identity, shared.ActionInit, shared.InitPayload{
		FEN:    r.position.FEN,
		Color:  seat.Color,
		Status: r.status,
	})
	if r.status.Terminal() && r.outcome != nil {
		r.sendLocked(seat.Identity, shared.ActionMatchConcluded, r.concludedPayloadLocked())
	}
	r.broadcastLocked(shared.ActionPlayersCount, shared.PlayersCountPayload{Count: r.connectedLocked()})
	r.log.WithField("identity", seat.Identity).Info("player resumed seat")
	return JoinResult{Color: seat.Color, Resumed: true}
}

// Move admits a move from identity. Every rejection leaves the room untouched
// and emits nothing.
func (r *Room) Move(identity string, mv game.Move) error {
	return r.run(func() error {
		if r.status != shared.StatusInProgress {
			return ErrNotInProgress
		}
		seat, ok := r.seatOf(identity)
		if !ok {
			return ErrUnknownIdentity
		}
		side, err := r.oracle.SideToMove(r.position)
		if err != nil {
			return fmt.Errorf("side to move: %w", err)
		}
		if seat.Color != side {
			return ErrNotYourTurn
		}
		v, err := r.oracle.LegalMove(r.position, mv)
		if err != nil {
			return fmt.Errorf("legal move: %w", err)
		}
		if !v.Accepted {
			return ErrIllegalMove
		}

		r.position = v.Position
		r.ply++
		r.touch()
		if v.Terminal && v.Outcome != nil {
			r.concludeLocked(shared.StatusConcluded, *v.Outcome)
		}
		r.broadcastLocked(shared.ActionMoveApplied, shared.MoveAppliedPayload{
			FEN:  r.position.FEN,
			From: mv.From,
			To:   mv.To,
			Turn: seat.Color.Opposite(),
			Ply:  r.ply,
		})
		if r.status == shared.StatusConcluded {
			r.broadcastLocked(shared.ActionMatchConcluded, r.concludedPayloadLocked())
		}
		return nil
	})
}

// Leave releases identity's seat. A disconnect during a match keeps the seat
// for the reconnection window instead.
func (r *Room) Leave(identity string, cause LeaveCause) error {
	return r.run(func() error {
		seat, ok := r.seatOf(identity)
		if !ok {
			return ErrUnknownIdentity
		}
		r.touch()
		logCtx := r.log.WithFields(logrus.Fields{"identity": identity, "cause": cause.String()})

		if r.status == shared.StatusInProgress {
			if cause == CauseResign {
				r.stopWindow(identity)
				r.removeSeat(identity)
				r.broadcastLocked(shared.ActionPlayersCount, shared.PlayersCountPayload{Count: r.connectedLocked()})
				r.abandonLocked(seat.Color)
				logCtx.Info("player resigned")
				return nil
			}
			if _, waiting := r.pending[identity]; waiting {
				return nil
			}
			r.openWindow(identity)
			r.broadcastLocked(shared.ActionPlayersCount, shared.PlayersCountPayload{Count: r.connectedLocked()})
			logCtx.WithField("window", r.reattach).Info("player disconnected, holding seat")
			return nil
		}

		r.stopWindow(identity)
		r.removeSeat(identity)
		r.broadcastLocked(shared.ActionPlayersCount, shared.PlayersCountPayload{Count: r.connectedLocked()})
		logCtx.Info("player left")
		return nil
	})
}

func (r *Room) openWindow(identity string) {
	r.tokens++
	token := r.tokens
	w := &window{token: token}
	w.timer = time.AfterFunc(r.reattach, func() { r.expire(identity, token) })
	r.pending[identity] = w
}

func (r *Room) stopWindow(identity string) {
	if w, ok := r.pending[identity]; ok {
		w.timer.Stop()
		delete(r.pending, identity)
	}
}

// expire fires when a reconnection window elapses. A stale token means the
// player already came back or the window was replaced.
func (r *Room) expire(identity string, token uint64) {
	_ = r.run(func() error {
		w, ok := r.pending[identity]
		if !ok || w.token != token {
			return nil
		}
		delete(r.pending, identity)
		seat, ok := r.seatOf(identity)
		if !ok {
			return nil
		}
		r.removeSeat(identity)
		r.touch()
		r.broadcastLocked(shared.ActionPlayersCount, shared.PlayersCountPayload{Count: r.connectedLocked()})
		if r.status == shared.StatusInProgress {
			r.log.WithField("identity", identity).Info("reconnection window elapsed, match abandoned")
			r.abandonLocked(seat.Color)
		}
		return nil
	})
}

func (r *Room) abandonLocked(leaver shared.Color) {
	r.concludeLocked(shared.StatusAbandoned, shared.WinFor(leaver.Opposite(), "abandonment"))
	r.broadcastLocked(shared.ActionMatchConcluded, r.concludedPayloadLocked())
}

// concludeLocked records the final outcome and queues the one settlement this
// room will ever issue.
func (r *Room) concludeLocked(status shared.Status, outcome shared.Outcome) {
	if r.status.Terminal() {
		return
	}
	r.status = status
	r.outcome = &outcome
	if r.settlementSent {
		return
	}
	r.settlementSent = true
	r.settling = true
	req := settlement.Request{
		ID:       uuid.NewString(),
		RoomCode: r.code,
		Outcome:  outcome,
		Winner:   r.winnerLocked(),
	}
	r.settlement = &SettlementRecord{Request: req}
	r.toSettle = &req
	r.log.WithFields(logrus.Fields{
		"status": status,
		"result": outcome.Result,
		"reason": outcome.Reason,
	}).Info("match concluded")
}

func (r *Room) recordSettlement(rcpt settlement.Receipt, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settling = false
	at := r.now()
	if r.settlement == nil {
		return
	}
	r.settlement.CompletedAt = &at
	if err != nil {
		r.settlement.Error = err.Error()
		r.broadcastLocked(shared.ActionSettlementWarning, shared.SettlementWarningPayload{
			Message: "settlement could not be completed and was queued for reconciliation",
			At:      at,
		})
		r.log.WithError(err).Warn("settlement failed")
		return
	}
	r.settlement.Receipt = &rcpt
}

func (r *Room) concludedPayloadLocked() shared.MatchConcludedPayload {
	p := shared.MatchConcludedPayload{}
	if r.outcome != nil {
		p.Outcome = *r.outcome
	}
	if r.settlement != nil {
		p.Winner = r.settlement.Request.Winner
	}
	return p
}

// winnerLocked derives the winner from the outcome and the seat colors only.
func (r *Room) winnerLocked() string {
	if r.outcome == nil {
		return ""
	}
	c, ok := r.outcome.Winner()
	if !ok {
		return ""
	}
	return r.holder(c)
}

func (r *Room) broadcastLocked(action string, data interface{}) {
	r.seq++
	if r.out == nil {
		return
	}
	members := make([]string, 0, len(r.seats))
	for _, seat := range r.seats {
		members = append(members, seat.Identity)
	}
	r.out.Broadcast(r.code, members, shared.Event{Action: action, Room: r.code, Seq: r.seq, Data: data})
}

func (r *Room) sendLocked(identity, action string, data interface{}) {
	if r.out == nil {
		return
	}
	r.out.Send(r.code, identity, shared.Event{Action: action, Room: r.code, Data: data})
}

func (r *Room) seatOf(identity string) (shared.Seat, bool) {
	for _, s := range r.seats {
		if s.Identity == identity {
			return s, true
		}
	}
	return shared.Seat{}, false
}

func (r *Room) holder(c shared.Color) string {
	for _, s := range r.seats {
		if s.Color == c {
			return s.Identity
		}
	}
	return ""
}

func (r *Room) removeSeat(identity string) {
	for i, s := range r.seats {
		if s.Identity == identity {
			r.seats = append(r.seats[:i:i], r.seats[i+1:]...)
			return
		}
	}
}

func (r *Room) connectedLocked() int {
	return len(r.seats) - len(r.pending)
}

func (r *Room) touch() {
	r.lastActivityAt = r.now()
}

func (r *Room) idleLocked() bool {
	return len(r.seats) == 0 && len(r.pending) == 0 && !r.settling
}

// retireIfIdle marks the room as removed when it is empty and has been
// inactive for at least grace. A retired room rejects every further join.
func (r *Room) retireIfIdle(now time.Time, grace time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return true
	}
	if !r.idleLocked() || now.Sub(r.lastActivityAt) < grace {
		return false
	}
	r.retired = true
	return true
}

func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.pending {
		w.timer.Stop()
		delete(r.pending, id)
	}
}

// Snapshot returns a copy of the room's state for inspection.
func (r *Room) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		Code:           r.code,
		Status:         r.status,
		Seats:          append([]shared.Seat{}, r.seats...),
		Disconnected:   make([]string, 0, len(r.pending)),
		FEN:            r.position.FEN,
		Moves:          append([]string{}, r.position.Moves...),
		Ply:            r.ply,
		SettlementSent: r.settlementSent,
		LastActivityAt: r.lastActivityAt,
	}
	for _, seat := range r.seats {
		if _, ok := r.pending[seat.Identity]; ok {
			s.Disconnected = append(s.Disconnected, seat.Identity)
		}
	}
	if r.outcome != nil {
		o := *r.outcome
		s.Outcome = &o
	}
	if r.settlement != nil {
		rec := *r.settlement
		s.Settlement = &rec
	}
	return s
}
