package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/PhilippeSteinbach/WatchParty/internal/handler"
	"github.com/PhilippeSteinbach/WatchParty/internal/middleware"
	"github.com/PhilippeSteinbach/WatchParty/pkg/constants"
)

// Options carries the router's middleware settings.
type Options struct {
	JWTSecret         string
	AllowedOrigin     string
	RateLimitMax      int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// New builds the HTTP router.
func New(
	roomHandler *handler.RoomHandler,
	ws *handler.WSHandler,
	health *handler.HealthHandler,
	rdb *redis.Client,
	opts Options,
	log *zap.Logger,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(opts.AllowedOrigin))

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	// REST rooms
	rooms := r.Group("/api/rooms")
	if !opts.RateLimitDisabled {
		rooms.Use(middleware.RateLimit(rdb, opts.RateLimitMax, opts.RateLimitWindow, log))
	}
	rooms.Use(middleware.OptionalAuth(opts.JWTSecret))
	{
		rooms.POST("", roomHandler.Create)
		rooms.GET("/:code", roomHandler.Get)
	}
	// Deletion is owner-only, so anonymous callers are rejected up front.
	r.DELETE("/api/rooms/:code", middleware.RequireAuth(opts.JWTSecret), roomHandler.Delete)

	// WebSocket: token comes via the Authorization header or ?token= for
	// browser clients.
	r.GET("/ws", middleware.OptionalAuth(opts.JWTSecret), ws.Handle)

	return r
}
