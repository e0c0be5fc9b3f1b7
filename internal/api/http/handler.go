package http

import (
	"net/http"

	"chess-coordinator/internal/room"
	"chess-coordinator/internal/settlement"
	"chess-coordinator/internal/shared"

	"github.com/gin-gonic/gin"
)

// @Summary Liveness probe
// @Description Reports live room and session counts
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func HealthHandler(rooms RoomLister, hub SocketHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:   "ok",
			Rooms:    rooms.Len(),
			Sessions: hub.SessionCount(),
		})
	}
}

// @Summary List rooms
// @Description Returns a summary of every live room, ordered by code
// @Tags Room
// @Produce json
// @Success 200 {object} RoomListResponse
// @Router /rooms [get]
func ListRoomsHandler(rooms RoomLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		list := rooms.Summaries()
		c.JSON(http.StatusOK, RoomListResponse{Rooms: list, Count: len(list)})
	}
}

// @Summary Get room
// @Description Returns the state of a single room
// @Tags Room
// @Produce json
// @Param code path string true "Room Code"
// @Success 200 {object} room.Summary
// @Failure 404 {object} map[string]interface{}
// @Router /rooms/{code} [get]
func GetRoomHandler(rooms RoomLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := shared.NormalizeCode(c.Param("code"))
		rx, ok := rooms.Get(code)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": room.ErrUnknownRoom.Error()})
			return
		}
		c.JSON(http.StatusOK, rx.Snapshot())
	}
}

// @Summary List failed settlements
// @Description Settlements that exhausted their retry budget and await reconciliation
// @Tags Settlement
// @Produce json
// @Success 200 {object} FailureListResponse
// @Failure 500 {object} map[string]interface{}
// @Router /settlements/failures [get]
func SettlementFailuresHandler(ledger settlement.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		failures, err := ledger.Failures(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if failures == nil {
			failures = []settlement.Failure{}
		}
		c.JSON(http.StatusOK, FailureListResponse{Failures: failures, Count: len(failures)})
	}
}
