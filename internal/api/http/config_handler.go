package http

import (
	"net/http"

	"chess-coordinator/internal/config"

	"github.com/gin-gonic/gin"
)

type ConfigHandler struct {
	cfg config.Config
}

func NewConfigHandler(cfg config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetConfigHandler returns the effective coordinator settings
// @Summary Get runtime configuration
// @Description Returns room and settlement settings in effect. Endpoints and credentials are omitted.
// @Tags Config
// @Produce json
// @Success 200 {object} ConfigResponse
// @Router /config [get]
func (h *ConfigHandler) GetConfigHandler(c *gin.Context) {
	mode := "log"
	if h.cfg.Settlement.URL != "" {
		mode = "http"
	}
	backend := "memory"
	if h.cfg.RedisURL != "" {
		backend = "redis"
	}

	c.JSON(http.StatusOK, ConfigResponse{
		ReconnectWindow: h.cfg.Rooms.ReconnectWindow.String(),
		GracePeriod:     h.cfg.Rooms.GracePeriod.String(),
		MaxRooms:        h.cfg.Rooms.MaxRooms,
		SettlementMode:  mode,
		LedgerBackend:   backend,
		MaxAttempts:     h.cfg.Settlement.MaxAttempts,
		AttemptTimeout:  h.cfg.Settlement.Timeout.String(),
	})
}
