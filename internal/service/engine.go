package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/hub"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
	"github.com/PhilippeSteinbach/WatchParty/internal/repository"
	"github.com/PhilippeSteinbach/WatchParty/internal/sanitize"
)

// RoomEngine orchestrates every inbound room message: it resolves the
// participant, applies the transition, persists and broadcasts. Mutating
// operations on the same room are serialized through a per-room mutex so no
// two read-modify-write cycles interleave.
type RoomEngine struct {
	rooms        repository.RoomRepository
	participants repository.ParticipantRepository
	registry     *ParticipantRegistry
	users        repository.UserRepository
	chat         *ChatService
	playlist     *PlaylistService
	synchronizer *Synchronizer
	broadcaster  Broadcaster
	log          *zap.Logger
	now          func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRoomEngine wires the engine.
func NewRoomEngine(
	rooms repository.RoomRepository,
	participants repository.ParticipantRepository,
	users repository.UserRepository,
	chat *ChatService,
	playlist *PlaylistService,
	synchronizer *Synchronizer,
	broadcaster Broadcaster,
	log *zap.Logger,
) *RoomEngine {
	return &RoomEngine{
		rooms:        rooms,
		participants: participants,
		registry:     NewParticipantRegistry(participants),
		users:        users,
		chat:         chat,
		playlist:     playlist,
		synchronizer: synchronizer,
		broadcaster:  broadcaster,
		log:          log,
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
	}
}

// roomLock returns the mutex serializing mutations of one room. Locks are
// created lazily and live for the process lifetime; the map is bounded by the
// number of rooms this instance has touched.
func (e *RoomEngine) roomLock(roomID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[roomID] = l
	}
	return l
}

// Join adds the connection to the room behind roomCode. The first participant
// of an empty room becomes host. Authenticated joiners use their stored
// display name; guests use the sanitized client-supplied nickname.
func (e *RoomEngine) Join(ctx context.Context, connectionID string, userID *string, msg model.JoinRoomMessage) error {
	room, err := e.rooms.FindByCode(ctx, msg.RoomCode)
	if err != nil {
		return err
	}

	nickname, err := e.resolveNickname(ctx, userID, msg.Nickname)
	if err != nil {
		return err
	}

	lock := e.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.registry.ListByRoom(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	isFirst := len(existing) == 0

	participant := &model.Participant{
		ID:           uuid.NewString(),
		RoomID:       room.ID,
		ConnectionID: connectionID,
		Nickname:     nickname,
		IsHost:       isFirst,
		UserID:       userID,
		JoinedAt:     e.now(),
	}
	if err := e.participants.Save(ctx, participant); err != nil {
		return fmt.Errorf("save participant: %w", err)
	}

	if isFirst {
		room.HostConnectionID = &connectionID
		if err := e.rooms.Save(ctx, room); err != nil {
			return fmt.Errorf("save room: %w", err)
		}
	}

	e.broadcaster.Subscribe(connectionID,
		hub.RoomTopic(room.Code),
		hub.ChatTopic(room.Code),
		hub.PlaylistTopic(room.Code),
		hub.CameraTopic(room.Code),
	)

	e.broadcastRoomState(ctx, room)

	// The client needs its own connection id for WebRTC signaling.
	e.broadcaster.SendToConnection(connectionID, hub.QueueSessionInfo,
		model.SessionInfoMessage{ConnectionID: connectionID})

	if playlist, err := e.playlist.Playlist(ctx, room.ID); err == nil {
		e.broadcaster.SendToConnection(connectionID, hub.QueuePlaylistHistory, playlist)
	} else {
		e.log.Warn("failed to load playlist for joiner", zap.String("room_code", room.Code), zap.Error(err))
	}

	if history, err := e.chat.History(ctx, room.ID); err == nil {
		e.broadcaster.SendToConnection(connectionID, hub.QueueChatHistory, history)
	} else {
		e.log.Warn("failed to load chat history for joiner", zap.String("room_code", room.Code), zap.Error(err))
	}

	e.log.Info("participant joined",
		zap.String("room_code", room.Code),
		zap.String("connection_id", connectionID),
		zap.Bool("is_host", isFirst))
	return nil
}

// Leave removes the connection's participant. It is idempotent: duplicate
// disconnect signals are no-ops. When the host leaves and others remain, the
// earliest-joined remaining participant is promoted. When the room empties,
// the host reference is cleared and the room is left for the TTL sweep.
func (e *RoomEngine) Leave(ctx context.Context, connectionID string) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		if errors.Is(err, errs.ErrParticipantNotFound) {
			return nil
		}
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: a concurrent duplicate disconnect may have
	// removed the participant already.
	participant, err = e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		if errors.Is(err, errs.ErrParticipantNotFound) {
			return nil
		}
		return err
	}

	wasHost := participant.IsHost
	if err := e.participants.Delete(ctx, participant.ID); err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	e.broadcaster.UnsubscribeAll(connectionID)

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		if errors.Is(err, errs.ErrRoomNotFound) {
			return nil
		}
		return err
	}

	remaining, err := e.registry.ListByRoom(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	if len(remaining) == 0 {
		room.HostConnectionID = nil
		if err := e.rooms.Save(ctx, room); err != nil {
			return fmt.Errorf("save room: %w", err)
		}
		e.log.Info("room emptied", zap.String("room_code", room.Code))
		return nil
	}

	if wasHost {
		newHost, err := e.registry.ElectHost(ctx, room.ID)
		if err != nil {
			return err
		}
		room.HostConnectionID = &newHost.ConnectionID
		if err := e.rooms.Save(ctx, room); err != nil {
			return fmt.Errorf("save room: %w", err)
		}
		e.log.Info("host re-elected",
			zap.String("room_code", room.Code),
			zap.String("connection_id", newHost.ConnectionID))
	}

	// Clear any stale camera tile the departing peer left behind.
	e.broadcaster.Broadcast(hub.CameraTopic(room.Code),
		model.CameraStateMessage{ConnectionID: connectionID, Enabled: false})

	e.broadcastRoomState(ctx, room)
	return nil
}

// PlayerAction applies a playback transition and re-broadcasts the action
// verbatim to the room. Under HOST_ONLY control a non-host attempt is
// rejected with an informational room broadcast, not an error.
func (e *RoomEngine) PlayerAction(ctx context.Context, connectionID string, msg model.PlayerStateMessage) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}

	if room.ControlMode == model.ControlModeHostOnly && !participant.IsHost {
		e.broadcaster.Broadcast(hub.RoomTopic(room.Code),
			model.ErrorMessage{Error: "Only the host can control playback in HOST_ONLY mode"})
		return nil
	}

	switch msg.Action {
	case model.ActionPlay:
		room.IsPlaying = true
		room.CurrentTimeSeconds = msg.CurrentTimeSeconds
	case model.ActionPause:
		room.IsPlaying = false
		room.CurrentTimeSeconds = msg.CurrentTimeSeconds
	case model.ActionSeek:
		room.CurrentTimeSeconds = msg.CurrentTimeSeconds
	case model.ActionChangeVideo:
		room.CurrentVideoURL = msg.VideoURL
		room.CurrentTimeSeconds = 0
		room.IsPlaying = false
	case model.ActionSync:
		room.CurrentTimeSeconds = msg.CurrentTimeSeconds
		room.IsPlaying = msg.IsPlaying
	default:
		return fmt.Errorf("%w: unknown player action %q", errs.ErrValidation, msg.Action)
	}

	now := e.now()
	room.StateUpdatedAt = &now
	if err := e.rooms.Save(ctx, room); err != nil {
		return fmt.Errorf("save room: %w", err)
	}

	// The raw action is cheaper to fan out than a full snapshot.
	e.broadcaster.Broadcast(hub.RoomTopic(room.Code), msg)
	return nil
}

// SyncState broadcasts a full room snapshot, typically after a reconnect.
func (e *RoomEngine) SyncState(ctx context.Context, connectionID string) error {
	room, err := e.roomOf(ctx, connectionID)
	if err != nil {
		return err
	}
	e.broadcastRoomState(ctx, room)
	return nil
}

// ReportPosition checks the reporter's drift and answers with a targeted
// correction when it exceeds tolerance. Corrections are never broadcast:
// each client's drift is independent.
func (e *RoomEngine) ReportPosition(ctx context.Context, connectionID string, msg model.PositionReportMessage) error {
	room, err := e.roomOf(ctx, connectionID)
	if err != nil {
		return err
	}
	if correction := e.synchronizer.Correction(room, msg.CurrentTimeSeconds); correction != nil {
		e.broadcaster.SendToConnection(connectionID, hub.QueueSyncCorrection, *correction)
	}
	return nil
}

// Chat stores a message and broadcasts it on the room's chat topic.
func (e *RoomEngine) Chat(ctx context.Context, connectionID string, msg model.ChatMessageRequest) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}
	resp, err := e.chat.SendMessage(ctx, room.ID, participant.Nickname, msg.Content)
	if err != nil {
		return err
	}
	e.broadcaster.Broadcast(hub.ChatTopic(room.Code), resp)
	return nil
}

// ChatReaction adds a reaction and re-broadcasts the updated message.
func (e *RoomEngine) ChatReaction(ctx context.Context, connectionID string, msg model.ChatReactionRequest) error {
	room, err := e.roomOf(ctx, connectionID)
	if err != nil {
		return err
	}
	resp, err := e.chat.AddReaction(ctx, msg.MessageID, msg.Emoji)
	if err != nil {
		return err
	}
	e.broadcaster.Broadcast(hub.ChatTopic(room.Code), resp)
	return nil
}

// ChatHistory delivers the room's recent messages to the requesting
// connection only.
func (e *RoomEngine) ChatHistory(ctx context.Context, connectionID string) error {
	room, err := e.roomOf(ctx, connectionID)
	if err != nil {
		return err
	}
	history, err := e.chat.History(ctx, room.ID)
	if err != nil {
		return err
	}
	e.broadcaster.SendToConnection(connectionID, hub.QueueChatHistory, history)
	return nil
}

// PlaylistAdd appends a video and broadcasts the new playlist.
func (e *RoomEngine) PlaylistAdd(ctx context.Context, connectionID string, msg model.AddPlaylistItemRequest) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}
	if _, err := e.playlist.AddItem(ctx, room.ID, msg.VideoURL, participant.Nickname); err != nil {
		return err
	}
	return e.broadcastPlaylist(ctx, room)
}

// PlaylistAddBulk appends several videos and broadcasts the playlist once.
func (e *RoomEngine) PlaylistAddBulk(ctx context.Context, connectionID string, msg model.BulkAddPlaylistRequest) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}
	for _, videoURL := range msg.VideoURLs {
		if _, err := e.playlist.AddItem(ctx, room.ID, videoURL, participant.Nickname); err != nil {
			return err
		}
	}
	return e.broadcastPlaylist(ctx, room)
}

// PlayNow ensures the video is in the playlist and switches the room to it,
// playing from the start.
func (e *RoomEngine) PlayNow(ctx context.Context, connectionID string, msg model.AddPlaylistItemRequest) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}

	inPlaylist, err := e.playlist.Contains(ctx, room.ID, msg.VideoURL)
	if err != nil {
		return err
	}
	if !inPlaylist {
		if _, err := e.playlist.AddItem(ctx, room.ID, msg.VideoURL, participant.Nickname); err != nil {
			return err
		}
	}

	e.switchVideo(room, msg.VideoURL)
	if err := e.rooms.Save(ctx, room); err != nil {
		return fmt.Errorf("save room: %w", err)
	}

	e.broadcastRoomState(ctx, room)
	return e.broadcastPlaylist(ctx, room)
}

// PlaylistRemove deletes an item and broadcasts the playlist. Positions stay
// gap-tolerant until the next reorder.
func (e *RoomEngine) PlaylistRemove(ctx context.Context, connectionID string, msg model.RemovePlaylistItemRequest) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}
	if err := e.playlist.RemoveItem(ctx, msg.ItemID); err != nil {
		return err
	}
	return e.broadcastPlaylist(ctx, room)
}

// PlaylistFetch broadcasts the current playlist to the room topic.
func (e *RoomEngine) PlaylistFetch(ctx context.Context, connectionID string) error {
	room, err := e.roomOf(ctx, connectionID)
	if err != nil {
		return err
	}
	return e.broadcastPlaylist(ctx, room)
}

// PlaylistNext advances to the next item per the room's playback mode:
// sequential picks the next position, shuffle picks a random different video.
// Exhausted playlists are a no-op.
func (e *RoomEngine) PlaylistNext(ctx context.Context, connectionID string) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}

	currentURL := ""
	if room.CurrentVideoURL != nil {
		currentURL = *room.CurrentVideoURL
	}

	var next *model.PlaylistItemResponse
	if room.PlaybackMode == model.PlaybackModeShuffle {
		next, err = e.playlist.RandomItem(ctx, room.ID, currentURL)
	} else {
		var position int
		position, err = e.playlist.CurrentPosition(ctx, room.ID, currentURL)
		if err == nil {
			next, err = e.playlist.NextItem(ctx, room.ID, position)
		}
	}
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	e.switchVideo(room, next.VideoURL)
	if err := e.rooms.Save(ctx, room); err != nil {
		return fmt.Errorf("save room: %w", err)
	}

	e.broadcastRoomState(ctx, room)
	return e.broadcastPlaylist(ctx, room)
}

// PlaylistMode switches between sequential and shuffle playback.
func (e *RoomEngine) PlaylistMode(ctx context.Context, connectionID string, msg model.PlaybackModeRequest) error {
	mode := model.PlaybackMode(msg.Mode)
	if mode != model.PlaybackModeSequential && mode != model.PlaybackModeShuffle {
		return fmt.Errorf("%w: unknown playback mode %q", errs.ErrValidation, msg.Mode)
	}

	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}
	room.PlaybackMode = mode
	if err := e.rooms.Save(ctx, room); err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	e.broadcastRoomState(ctx, room)
	return nil
}

// PlaylistReorder moves an item and restores contiguous 1..N positions.
func (e *RoomEngine) PlaylistReorder(ctx context.Context, connectionID string, msg model.ReorderPlaylistRequest) error {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	lock := e.roomLock(participant.RoomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.rooms.FindByID(ctx, participant.RoomID)
	if err != nil {
		return err
	}
	if err := e.playlist.Reorder(ctx, msg.ItemID, msg.NewPosition); err != nil {
		return err
	}
	return e.broadcastPlaylist(ctx, room)
}

// CameraState broadcasts a participant's camera toggle to the room.
func (e *RoomEngine) CameraState(ctx context.Context, connectionID string, msg model.CameraStateRequest) error {
	room, err := e.roomOf(ctx, connectionID)
	if err != nil {
		return err
	}
	e.broadcaster.Broadcast(hub.CameraTopic(room.Code),
		model.CameraStateMessage{ConnectionID: connectionID, Enabled: msg.Enabled})
	return nil
}

// BroadcastPlaylistUpdate re-publishes the room's playlist; used by the
// enrichment worker once metadata arrives.
func (e *RoomEngine) BroadcastPlaylistUpdate(ctx context.Context, roomID string) error {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	return e.broadcastPlaylist(ctx, room)
}

func (e *RoomEngine) roomOf(ctx context.Context, connectionID string) (*model.Room, error) {
	participant, err := e.registry.FindByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return e.rooms.FindByID(ctx, participant.RoomID)
}

func (e *RoomEngine) resolveNickname(ctx context.Context, userID *string, supplied string) (string, error) {
	if userID != nil {
		user, err := e.users.FindByID(ctx, *userID)
		if err == nil {
			return user.DisplayName, nil
		}
		if !errors.Is(err, errs.ErrUserNotFound) {
			return "", fmt.Errorf("resolve display name: %w", err)
		}
		// Unknown user id: fall back to the supplied nickname.
	}
	nickname := sanitize.Text(supplied)
	if nickname == "" {
		return "", fmt.Errorf("%w: nickname is required", errs.ErrValidation)
	}
	return nickname, nil
}

func (e *RoomEngine) switchVideo(room *model.Room, videoURL string) {
	url := videoURL
	room.CurrentVideoURL = &url
	room.CurrentTimeSeconds = 0
	room.IsPlaying = true
	now := e.now()
	room.StateUpdatedAt = &now
}

func (e *RoomEngine) broadcastRoomState(ctx context.Context, room *model.Room) {
	participants, err := e.registry.ListByRoom(ctx, room.ID)
	if err != nil {
		e.log.Warn("failed to load participants for room state", zap.String("room_code", room.Code), zap.Error(err))
		participants = nil
	}

	roster := make([]model.ParticipantMessage, 0, len(participants))
	for _, p := range participants {
		roster = append(roster, model.ParticipantMessage{
			ID:           p.ID,
			Nickname:     p.Nickname,
			IsHost:       p.IsHost,
			ConnectionID: p.ConnectionID,
		})
	}

	e.broadcaster.Broadcast(hub.RoomTopic(room.Code), model.RoomStateMessage{
		RoomCode:           room.Code,
		CurrentVideoURL:    room.CurrentVideoURL,
		CurrentTimeSeconds: e.synchronizer.ExpectedPosition(room),
		IsPlaying:          room.IsPlaying,
		PlaybackMode:       string(room.PlaybackMode),
		Participants:       roster,
	})
}

func (e *RoomEngine) broadcastPlaylist(ctx context.Context, room *model.Room) error {
	playlist, err := e.playlist.Playlist(ctx, room.ID)
	if err != nil {
		return err
	}
	e.broadcaster.Broadcast(hub.PlaylistTopic(room.Code), playlist)
	return nil
}
