// Package worker runs the asynq background processor: the periodic
// expired-room sweep and playlist metadata enrichment.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/PhilippeSteinbach/WatchParty/internal/tasks"
)

// Server wraps the asynq server and scheduler.
type Server struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	log       *zap.Logger
}

// cleanupSpec runs the expired-room sweep every ten minutes.
const cleanupSpec = "@every 10m"

// NewServer builds the asynq server, scheduler and routing mux.
func NewServer(redisOpt asynq.RedisClientOpt, handler *Handler, log *zap.Logger) *Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})

	scheduler := asynq.NewScheduler(redisOpt, nil)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeRoomCleanup, handler.HandleRoomCleanup)
	mux.HandleFunc(tasks.TypePlaylistEnrich, handler.HandlePlaylistEnrich)

	return &Server{srv: srv, scheduler: scheduler, mux: mux, log: log}
}

// Start registers the periodic cleanup and launches the processor and
// scheduler in the background.
func (s *Server) Start() error {
	if _, err := s.scheduler.Register(cleanupSpec, tasks.NewRoomCleanupTask()); err != nil {
		return fmt.Errorf("register cleanup schedule: %w", err)
	}
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	s.log.Info("background worker started", zap.String("cleanup_schedule", cleanupSpec))
	return nil
}

// Shutdown stops the scheduler and drains in-flight tasks.
func (s *Server) Shutdown() {
	s.scheduler.Shutdown()
	s.srv.Shutdown()
}
