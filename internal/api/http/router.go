package http

import (
	"chess-coordinator/internal/config"
	"chess-coordinator/internal/room"
	"chess-coordinator/internal/settlement"

	"github.com/gin-gonic/gin"
)

// RoomLister is the read side of the room registry.
type RoomLister interface {
	Get(code string) (*room.Room, bool)
	Summaries() []room.Summary
	Len() int
}

// SocketHandler upgrades a request to a live session.
type SocketHandler interface {
	HandleWS(c *gin.Context)
	SessionCount() int
}

func NewRouter(rooms RoomLister, ledger settlement.Ledger, hub SocketHandler, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// WebSocket for live play
	r.GET("/ws", hub.HandleWS)

	r.GET("/healthz", HealthHandler(rooms, hub))

	// --- ROOM ENDPOINTS ---
	r.GET("/rooms", ListRoomsHandler(rooms))
	r.GET("/rooms/:code", GetRoomHandler(rooms))

	// --- SETTLEMENT ENDPOINTS ---
	r.GET("/settlements/failures", SettlementFailuresHandler(ledger))

	// --- CONFIG ENDPOINTS ---
	r.GET("/config", NewConfigHandler(cfg).GetConfigHandler)

	return r
}
