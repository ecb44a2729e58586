// Package application wires the whole server: database, redis, hub, room
// engine, background worker and the HTTP router.
package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PhilippeSteinbach/WatchParty/internal/config"
	"github.com/PhilippeSteinbach/WatchParty/internal/database"
	"github.com/PhilippeSteinbach/WatchParty/internal/handler"
	"github.com/PhilippeSteinbach/WatchParty/internal/hub"
	"github.com/PhilippeSteinbach/WatchParty/internal/metadata"
	gormrepo "github.com/PhilippeSteinbach/WatchParty/internal/repository/gorm"
	"github.com/PhilippeSteinbach/WatchParty/internal/router"
	"github.com/PhilippeSteinbach/WatchParty/internal/service"
	"github.com/PhilippeSteinbach/WatchParty/internal/tasks"
	"github.com/PhilippeSteinbach/WatchParty/internal/worker"
)

// API is the HTTP + WebSocket server application.
type API struct {
	cfg         *config.Config
	srv         *http.Server
	db          *gorm.DB
	rdb         *redis.Client
	log         *zap.Logger
	asynqClient *asynq.Client
	worker      *worker.Server
	limiterStop chan struct{}
}

// NewAPI creates the server: validates config, runs migrations, opens the
// database and redis, and builds the full dependency graph.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisOpt)

	rooms := gormrepo.NewRoomRepository(db)
	participants := gormrepo.NewParticipantRepository(db)
	chatMessages := gormrepo.NewChatMessageRepository(db)
	playlistItems := gormrepo.NewPlaylistItemRepository(db)
	users := gormrepo.NewUserRepository(db)

	// Participants are per-connection state; rows surviving a previous server
	// run are stale.
	if cleared, err := participants.DeleteAll(context.Background()); err != nil {
		logger.Warn("failed to clear stale participants", zap.Error(err))
	} else if cleared > 0 {
		logger.Info("cleared stale participants", zap.Int64("count", cleared))
	}

	broadcastHub := hub.NewHub(logger)

	limiter := service.NewChatRateLimiter(cfg.ChatRateLimitMax, cfg.ChatRateLimitWindow)
	limiterStop := make(chan struct{})
	limiter.StartSweeper(time.Minute, limiterStop)

	chatSvc := service.NewChatService(chatMessages, limiter)
	playlistSvc := service.NewPlaylistService(playlistItems, tasks.NewEnqueuer(asynqClient), logger)
	synchronizer := service.NewSynchronizer()
	engine := service.NewRoomEngine(rooms, participants, users, chatSvc, playlistSvc, synchronizer, broadcastHub, logger)
	relay := service.NewWebRTCRelay(broadcastHub)
	roomSvc := service.NewRoomService(rooms, participants, cfg.RoomTTL)

	fetcher := metadata.NewYouTubeFetcher(cfg.YouTubeAPIKey, logger)
	taskHandler := worker.NewHandler(rooms, playlistItems, fetcher, engine, logger)
	workerSrv := worker.NewServer(redisOpt, taskHandler, logger)

	roomHandler := handler.NewRoomHandler(roomSvc, logger)
	wsHandler := handler.NewWSHandler(broadcastHub, engine, relay,
		cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSMaxMessageSize, logger)
	healthHandler := handler.NewHealthHandler(db, broadcastHub)

	r := router.New(roomHandler, wsHandler, healthHandler, rdb, router.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigin:   cfg.CORSAllowedOrigin,
		RateLimitMax:    cfg.HTTPRateLimitMax,
		RateLimitWindow: cfg.HTTPRateLimitWindow,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:         cfg,
		srv:         srv,
		db:          db,
		rdb:         rdb,
		log:         logger,
		asynqClient: asynqClient,
		worker:      workerSrv,
		limiterStop: limiterStop,
	}, nil
}

// Run starts the worker and the HTTP server and blocks until ctx is
// cancelled, then shuts everything down gracefully.
func (a *API) Run(ctx context.Context) error {
	if err := a.worker.Start(); err != nil {
		return err
	}

	a.log.Info("server listening",
		zap.String("addr", a.srv.Addr),
		zap.String("env", a.cfg.AppEnv))

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	a.worker.Shutdown()
	close(a.limiterStop)
	_ = a.asynqClient.Close()
	_ = a.rdb.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	_ = a.log.Sync()
	return nil
}
