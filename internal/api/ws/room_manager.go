package ws

import (
	"chess-coordinator/internal/game"
	"chess-coordinator/internal/room"
)

// RoomManager is the part of the room registry the hub drives.
type RoomManager interface {
	Join(code, identity string) (*room.Room, room.JoinResult, error)
	Move(code, identity string, mv game.Move) error
	Leave(code, identity string, cause room.LeaveCause) error
}
