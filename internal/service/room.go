package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
	"github.com/PhilippeSteinbach/WatchParty/internal/repository"
)

const (
	roomCodeLength   = 8
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	codeGenAttempts  = 5
)

// RoomService manages room lifecycle for the REST surface: creation with a
// generated public code, lookup, owner-checked deletion.
type RoomService struct {
	rooms        repository.RoomRepository
	participants repository.ParticipantRepository
	ttl          time.Duration
	now          func() time.Time
}

// NewRoomService creates the room service. ttl is the lifetime of anonymous
// rooms.
func NewRoomService(rooms repository.RoomRepository, participants repository.ParticipantRepository, ttl time.Duration) *RoomService {
	return &RoomService{rooms: rooms, participants: participants, ttl: ttl, now: time.Now}
}

// Create makes a new room. Rooms created by an authenticated owner are
// permanent; anonymous rooms expire after the configured TTL.
func (s *RoomService) Create(ctx context.Context, name, controlMode string, ownerID *string) (*model.RoomResponse, error) {
	mode := model.ControlMode(controlMode)
	switch mode {
	case model.ControlModeHostOnly, model.ControlModeCollaborative:
	case "":
		mode = model.ControlModeCollaborative
	default:
		return nil, fmt.Errorf("%w: unknown control mode %q", errs.ErrValidation, controlMode)
	}

	room := &model.Room{
		ID:           uuid.NewString(),
		Name:         name,
		ControlMode:  mode,
		PlaybackMode: model.PlaybackModeSequential,
		OwnerID:      ownerID,
		IsPermanent:  ownerID != nil,
	}
	if !room.IsPermanent {
		expires := s.now().Add(s.ttl)
		room.ExpiresAt = &expires
	}

	// Retry on the off chance a generated code collides with an existing one.
	var err error
	for attempt := 0; attempt < codeGenAttempts; attempt++ {
		room.Code, err = generateRoomCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		if err = s.rooms.Create(ctx, room); err == nil {
			resp := s.toResponse(room, 0)
			return &resp, nil
		}
	}
	return nil, fmt.Errorf("create room: %w", err)
}

// FindByCode returns the room's REST view with its live participant count.
func (s *RoomService) FindByCode(ctx context.Context, code string) (*model.RoomResponse, error) {
	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	count, err := s.participants.CountByRoomID(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	resp := s.toResponse(room, int(count))
	return &resp, nil
}

// DeleteByCode removes an owned room. Only the owner may delete it.
func (s *RoomService) DeleteByCode(ctx context.Context, code string, requesterID *string) error {
	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if room.OwnerID == nil || requesterID == nil || *room.OwnerID != *requesterID {
		return errs.ErrForbidden
	}
	return s.rooms.Delete(ctx, room.ID)
}

func (s *RoomService) toResponse(room *model.Room, participantCount int) model.RoomResponse {
	return model.RoomResponse{
		ID:               room.ID,
		Code:             room.Code,
		Name:             room.Name,
		ControlMode:      string(room.ControlMode),
		ParticipantCount: participantCount,
		CreatedAt:        room.CreatedAt,
	}
}

func generateRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
