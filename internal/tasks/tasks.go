package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TypeRoomCleanup deletes expired anonymous rooms. Scheduled periodically.
	TypeRoomCleanup = "room:cleanup"
	// TypePlaylistEnrich fetches video metadata for one playlist item.
	TypePlaylistEnrich = "playlist:enrich"
)

// PlaylistEnrichPayload identifies the item to enrich.
type PlaylistEnrichPayload struct {
	ItemID   string `json:"item_id"`
	VideoURL string `json:"video_url"`
}

// NewRoomCleanupTask builds the periodic cleanup task.
func NewRoomCleanupTask() *asynq.Task {
	return asynq.NewTask(TypeRoomCleanup, nil, asynq.Queue("low"))
}

// NewPlaylistEnrichTask builds an enrichment task for one playlist item.
func NewPlaylistEnrichTask(itemID, videoURL string) (*asynq.Task, error) {
	payload, err := json.Marshal(PlaylistEnrichPayload{ItemID: itemID, VideoURL: videoURL})
	if err != nil {
		return nil, fmt.Errorf("marshal enrich payload: %w", err)
	}
	return asynq.NewTask(TypePlaylistEnrich, payload, asynq.MaxRetry(3)), nil
}

// Enqueuer submits tasks through an asynq client. It satisfies the playlist
// service's enrichment queue.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer wraps the asynq client.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueEnrichment schedules metadata lookup for a freshly added item.
func (e *Enqueuer) EnqueueEnrichment(ctx context.Context, itemID, videoURL string) error {
	task, err := NewPlaylistEnrichTask(itemID, videoURL)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypePlaylistEnrich, err)
	}
	return nil
}
