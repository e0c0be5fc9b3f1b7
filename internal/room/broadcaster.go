package room

import (
	"chess-coordinator/internal/settlement"
	"chess-coordinator/internal/shared"
)

// Broadcaster delivers room events to the transport. Broadcast targets every
// seated identity in members. Calls are made while the room is locked, so
// implementations must not block and must not call back into the room.
type Broadcaster interface {
	Broadcast(roomCode string, members []string, ev shared.Event)
	Send(roomCode, identity string, ev shared.Event)
}

// Settler hands a concluded room to the settlement service. Dispatch must
// return without waiting for the external call.
type Settler interface {
	Dispatch(req settlement.Request, done func(settlement.Receipt, error))
}
