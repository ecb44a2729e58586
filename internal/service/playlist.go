package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
	"github.com/PhilippeSteinbach/WatchParty/internal/repository"
)

// EnrichmentQueue hands a freshly added playlist item to the background
// worker for metadata lookup, keeping the broadcast path off the network.
type EnrichmentQueue interface {
	EnqueueEnrichment(ctx context.Context, itemID, videoURL string) error
}

// PlaylistService keeps each room's playlist an ordered 1..N sequence and
// picks the next video in sequential or shuffle mode.
type PlaylistService struct {
	items    repository.PlaylistItemRepository
	enricher EnrichmentQueue // optional
	log      *zap.Logger
	intn     func(n int) int
}

// NewPlaylistService creates the playlist service. enricher may be nil when
// metadata enrichment is disabled.
func NewPlaylistService(items repository.PlaylistItemRepository, enricher EnrichmentQueue, log *zap.Logger) *PlaylistService {
	return &PlaylistService{items: items, enricher: enricher, log: log, intn: rand.Intn}
}

// AddItem appends the video at position count+1 and schedules best-effort
// metadata enrichment. A failed enqueue only logs; the add has succeeded.
func (s *PlaylistService) AddItem(ctx context.Context, roomID, videoURL, addedBy string) (*model.PlaylistItemResponse, error) {
	if videoURL == "" {
		return nil, fmt.Errorf("%w: videoUrl is required", errs.ErrValidation)
	}

	count, err := s.items.CountByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("count playlist: %w", err)
	}

	item := &model.PlaylistItem{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		VideoURL: videoURL,
		AddedBy:  addedBy,
		Position: int(count) + 1,
	}
	if err := s.items.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("save playlist item: %w", err)
	}

	if s.enricher != nil {
		if err := s.enricher.EnqueueEnrichment(ctx, item.ID, videoURL); err != nil {
			s.log.Warn("failed to enqueue playlist enrichment",
				zap.String("item_id", item.ID), zap.Error(err))
		}
	}

	resp := toPlaylistItemResponse(item)
	return &resp, nil
}

// RemoveItem deletes the item. Remaining positions are left gap-tolerant;
// Reorder restores contiguity.
func (s *PlaylistService) RemoveItem(ctx context.Context, itemID string) error {
	if _, err := s.items.FindByID(ctx, itemID); err != nil {
		return err
	}
	return s.items.Delete(ctx, itemID)
}

// Reorder moves the item to newPosition (clamped into [1, count]) and
// resequences the whole room to contiguous 1..N positions.
func (s *PlaylistService) Reorder(ctx context.Context, itemID string, newPosition int) error {
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return err
	}

	all, err := s.items.FindByRoomID(ctx, item.RoomID)
	if err != nil {
		return fmt.Errorf("load playlist: %w", err)
	}

	rest := make([]model.PlaylistItem, 0, len(all))
	for _, it := range all {
		if it.ID != itemID {
			rest = append(rest, it)
		}
	}

	insert := newPosition - 1
	if insert < 0 {
		insert = 0
	}
	if insert > len(rest) {
		insert = len(rest)
	}

	reordered := make([]model.PlaylistItem, 0, len(all))
	reordered = append(reordered, rest[:insert]...)
	reordered = append(reordered, *item)
	reordered = append(reordered, rest[insert:]...)

	for i := range reordered {
		reordered[i].Position = i + 1
	}
	return s.items.SaveAll(ctx, reordered)
}

// Playlist returns the ordered snapshot broadcast on the playlist topic.
func (s *PlaylistService) Playlist(ctx context.Context, roomID string) (*model.PlaylistResponse, error) {
	all, err := s.items.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load playlist: %w", err)
	}
	out := make([]model.PlaylistItemResponse, 0, len(all))
	for i := range all {
		out = append(out, toPlaylistItemResponse(&all[i]))
	}
	return &model.PlaylistResponse{Items: out}, nil
}

// CurrentPosition returns the position of the room's current video, or 0 when
// the video is not in the playlist.
func (s *PlaylistService) CurrentPosition(ctx context.Context, roomID, videoURL string) (int, error) {
	if videoURL == "" {
		return 0, nil
	}
	item, err := s.items.FindLastByRoomIDAndVideoURL(ctx, roomID, videoURL)
	if err != nil {
		if errors.Is(err, errs.ErrPlaylistItemNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return item.Position, nil
}

// NextItem returns the item with the smallest position strictly greater than
// currentPosition, or nil when the playlist is exhausted.
func (s *PlaylistService) NextItem(ctx context.Context, roomID string, currentPosition int) (*model.PlaylistItemResponse, error) {
	all, err := s.items.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load playlist: %w", err)
	}
	for i := range all {
		if all[i].Position > currentPosition {
			resp := toPlaylistItemResponse(&all[i])
			return &resp, nil
		}
	}
	return nil, nil
}

// RandomItem picks uniformly among items whose url differs from
// excludeVideoURL, or nil when no candidate exists.
func (s *PlaylistService) RandomItem(ctx context.Context, roomID, excludeVideoURL string) (*model.PlaylistItemResponse, error) {
	all, err := s.items.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load playlist: %w", err)
	}
	candidates := make([]model.PlaylistItem, 0, len(all))
	for _, it := range all {
		if it.VideoURL != excludeVideoURL {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	picked := candidates[s.intn(len(candidates))]
	resp := toPlaylistItemResponse(&picked)
	return &resp, nil
}

// Contains reports whether the room's playlist already has the video.
func (s *PlaylistService) Contains(ctx context.Context, roomID, videoURL string) (bool, error) {
	_, err := s.items.FindLastByRoomIDAndVideoURL(ctx, roomID, videoURL)
	if err != nil {
		if errors.Is(err, errs.ErrPlaylistItemNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func toPlaylistItemResponse(item *model.PlaylistItem) model.PlaylistItemResponse {
	return model.PlaylistItemResponse{
		ID:              item.ID,
		VideoURL:        item.VideoURL,
		Title:           item.Title,
		ThumbnailURL:    item.ThumbnailURL,
		DurationSeconds: item.DurationSeconds,
		AddedBy:         item.AddedBy,
		Position:        item.Position,
		AddedAt:         item.AddedAt,
	}
}
