package http

import (
	"chess-coordinator/internal/room"
	"chess-coordinator/internal/settlement"
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Rooms    int    `json:"rooms"`
	Sessions int    `json:"sessions"`
}

// RoomListResponse is returned by /rooms.
type RoomListResponse struct {
	Rooms []room.Summary `json:"rooms"`
	Count int            `json:"count"`
}

// FailureListResponse is returned by /settlements/failures.
type FailureListResponse struct {
	Failures []settlement.Failure `json:"failures"`
	Count    int                  `json:"count"`
}

// ConfigResponse exposes the effective runtime settings without secrets.
type ConfigResponse struct {
	ReconnectWindow string `json:"reconnectWindow"`
	GracePeriod     string `json:"gracePeriod"`
	MaxRooms        int    `json:"maxRooms"`
	SettlementMode  string `json:"settlementMode"`
	LedgerBackend   string `json:"ledgerBackend"`
	MaxAttempts     uint   `json:"settlementMaxAttempts"`
	AttemptTimeout  string `json:"settlementTimeout"`
}
