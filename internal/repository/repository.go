// Package repository defines the persistence interfaces the room engine works
// against. All cross-entity reads are explicit calls; there is no lazy
// loading. Implementations live in repository/gorm.
package repository

import (
	"context"
	"time"

	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

// RoomRepository persists rooms and resolves them by public code.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	Save(ctx context.Context, room *model.Room) error
	FindByID(ctx context.Context, id string) (*model.Room, error)
	FindByCode(ctx context.Context, code string) (*model.Room, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpiredBefore removes anonymous rooms whose expiry has passed and
	// returns the number of rooms deleted.
	DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error)
}

// ParticipantRepository persists participants keyed by connection id.
type ParticipantRepository interface {
	Save(ctx context.Context, p *model.Participant) error
	FindByConnectionID(ctx context.Context, connectionID string) (*model.Participant, error)
	// FindByRoomID returns the room's participants ordered by joined_at ascending.
	FindByRoomID(ctx context.Context, roomID string) ([]model.Participant, error)
	CountByRoomID(ctx context.Context, roomID string) (int64, error)
	Delete(ctx context.Context, id string) error
	// DeleteAll clears every participant row (stale-session cleanup on startup).
	DeleteAll(ctx context.Context) (int64, error)
}

// ChatMessageRepository persists chat messages and their reactions.
type ChatMessageRepository interface {
	Save(ctx context.Context, msg *model.ChatMessage) error
	FindByID(ctx context.Context, id string) (*model.ChatMessage, error)
	// FindRecentByRoomID returns up to limit most recent messages in
	// chronological order.
	FindRecentByRoomID(ctx context.Context, roomID string, limit int) ([]model.ChatMessage, error)
}

// PlaylistItemRepository persists ordered playlist entries.
type PlaylistItemRepository interface {
	Save(ctx context.Context, item *model.PlaylistItem) error
	SaveAll(ctx context.Context, items []model.PlaylistItem) error
	FindByID(ctx context.Context, id string) (*model.PlaylistItem, error)
	// FindByRoomID returns the room's items ordered by position ascending.
	FindByRoomID(ctx context.Context, roomID string) ([]model.PlaylistItem, error)
	// FindLastByRoomIDAndVideoURL returns the highest-position item with the
	// given url, or errs.ErrPlaylistItemNotFound.
	FindLastByRoomIDAndVideoURL(ctx context.Context, roomID, videoURL string) (*model.PlaylistItem, error)
	CountByRoomID(ctx context.Context, roomID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository is the identity resolver for authenticated joiners.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}
