package service

import (
	"context"
	"fmt"

	"github.com/PhilippeSteinbach/WatchParty/internal/model"
	"github.com/PhilippeSteinbach/WatchParty/internal/repository"
)

// ParticipantRegistry resolves live connections to participants and performs
// host election. Re-election happens only when the current host leaves.
type ParticipantRegistry struct {
	participants repository.ParticipantRepository
}

// NewParticipantRegistry creates a registry over the participant store.
func NewParticipantRegistry(participants repository.ParticipantRepository) *ParticipantRegistry {
	return &ParticipantRegistry{participants: participants}
}

// FindByConnection resolves the participant behind a connection id.
// Returns errs.ErrParticipantNotFound for connections that never joined.
func (r *ParticipantRegistry) FindByConnection(ctx context.Context, connectionID string) (*model.Participant, error) {
	return r.participants.FindByConnectionID(ctx, connectionID)
}

// ListByRoom returns the room's participants ordered by join time.
func (r *ParticipantRegistry) ListByRoom(ctx context.Context, roomID string) ([]model.Participant, error) {
	return r.participants.FindByRoomID(ctx, roomID)
}

// ElectHost promotes the earliest-joined remaining participant of the room
// and returns it, or nil when the room is empty.
func (r *ParticipantRegistry) ElectHost(ctx context.Context, roomID string) (*model.Participant, error) {
	remaining, err := r.participants.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if len(remaining) == 0 {
		return nil, nil
	}
	newHost := remaining[0] // ordered by joined_at, first-joined wins
	newHost.IsHost = true
	if err := r.participants.Save(ctx, &newHost); err != nil {
		return nil, fmt.Errorf("promote host: %w", err)
	}
	return &newHost, nil
}
