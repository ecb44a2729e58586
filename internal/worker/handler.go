package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/metadata"
	"github.com/PhilippeSteinbach/WatchParty/internal/repository"
	"github.com/PhilippeSteinbach/WatchParty/internal/service"
	"github.com/PhilippeSteinbach/WatchParty/internal/tasks"
)

// Handler processes background tasks: expired-room cleanup and playlist
// metadata enrichment.
type Handler struct {
	rooms   repository.RoomRepository
	items   repository.PlaylistItemRepository
	fetcher metadata.Fetcher
	engine  *service.RoomEngine
	log     *zap.Logger
	now     func() time.Time
}

// NewHandler wires the task handler.
func NewHandler(
	rooms repository.RoomRepository,
	items repository.PlaylistItemRepository,
	fetcher metadata.Fetcher,
	engine *service.RoomEngine,
	log *zap.Logger,
) *Handler {
	return &Handler{
		rooms:   rooms,
		items:   items,
		fetcher: fetcher,
		engine:  engine,
		log:     log,
		now:     time.Now,
	}
}

// HandleRoomCleanup deletes anonymous rooms past their expiry.
func (h *Handler) HandleRoomCleanup(ctx context.Context, _ *asynq.Task) error {
	deleted, err := h.rooms.DeleteExpiredBefore(ctx, h.now())
	if err != nil {
		return fmt.Errorf("delete expired rooms: %w", err)
	}
	if deleted > 0 {
		h.log.Info("expired rooms cleaned up", zap.Int64("deleted", deleted))
	}
	return nil
}

// HandlePlaylistEnrich looks up video metadata and, when the item still
// exists, stores it and re-broadcasts the room's playlist. An item removed
// in the meantime is not an error.
func (h *Handler) HandlePlaylistEnrich(ctx context.Context, t *asynq.Task) error {
	var payload tasks.PlaylistEnrichPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal enrich payload: %v: %w", err, asynq.SkipRetry)
	}

	meta, err := h.fetcher.Fetch(ctx, payload.VideoURL)
	if err != nil {
		return fmt.Errorf("fetch metadata for %s: %w", payload.VideoURL, err)
	}
	if meta == nil {
		return nil
	}

	item, err := h.items.FindByID(ctx, payload.ItemID)
	if err != nil {
		if errors.Is(err, errs.ErrPlaylistItemNotFound) {
			return nil
		}
		return err
	}

	item.Title = meta.Title
	item.ThumbnailURL = meta.ThumbnailURL
	item.DurationSeconds = meta.DurationSeconds
	if err := h.items.Save(ctx, item); err != nil {
		return fmt.Errorf("save enriched item: %w", err)
	}

	if err := h.engine.BroadcastPlaylistUpdate(ctx, item.RoomID); err != nil {
		h.log.Warn("failed to broadcast enriched playlist",
			zap.String("room_id", item.RoomID), zap.Error(err))
	}
	return nil
}
