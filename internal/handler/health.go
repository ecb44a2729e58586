package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PhilippeSteinbach/WatchParty/internal/hub"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db  *gorm.DB
	hub *hub.Hub
}

// NewHealthHandler creates the handler.
func NewHealthHandler(db *gorm.DB, h *hub.Hub) *HealthHandler {
	return &HealthHandler{db: db, hub: h}
}

// Health reports liveness and the current connection count.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.hub.ConnectionCount(),
	})
}

// Ready reports readiness: the database must answer a ping.
func (h *HealthHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
