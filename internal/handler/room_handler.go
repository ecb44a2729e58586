// Package handler holds the HTTP and WebSocket entry points.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/middleware"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
	"github.com/PhilippeSteinbach/WatchParty/internal/service"
)

// RoomHandler exposes the room lifecycle REST endpoints.
type RoomHandler struct {
	rooms *service.RoomService
	log   *zap.Logger
}

// NewRoomHandler creates the handler.
func NewRoomHandler(rooms *service.RoomService, log *zap.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, log: log}
}

// Create handles POST /api/rooms.
func (h *RoomHandler) Create(c *gin.Context) {
	var req model.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), req.Name, req.ControlMode, middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// Get handles GET /api/rooms/:code.
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.rooms.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// Delete handles DELETE /api/rooms/:code. Owner only.
func (h *RoomHandler) Delete(c *gin.Context) {
	err := h.rooms.DeleteByCode(c.Request.Context(), c.Param("code"), middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, errs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, errs.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("room request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
