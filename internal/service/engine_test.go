package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/hub"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

type engineEnv struct {
	engine       *RoomEngine
	rooms        *fakeRoomRepo
	participants *fakeParticipantRepo
	users        *fakeUserRepo
	chatRepo     *fakeChatRepo
	playlistRepo *fakePlaylistRepo
	b            *fakeBroadcaster
	room         *model.Room
	clock        time.Time
}

func newEngineEnv(t *testing.T) *engineEnv {
	t.Helper()
	env := &engineEnv{
		rooms:        newFakeRoomRepo(),
		participants: newFakeParticipantRepo(),
		users:        newFakeUserRepo(),
		chatRepo:     newFakeChatRepo(),
		playlistRepo: newFakePlaylistRepo(),
		b:            newFakeBroadcaster(),
		clock:        time.Now(),
	}

	chatSvc := NewChatService(env.chatRepo, NewChatRateLimiter(5, 10*time.Second))
	playlistSvc := NewPlaylistService(env.playlistRepo, nil, zap.NewNop())

	env.engine = NewRoomEngine(env.rooms, env.participants, env.users,
		chatSvc, playlistSvc, NewSynchronizer(), env.b, zap.NewNop())
	env.engine.now = func() time.Time {
		env.clock = env.clock.Add(time.Second)
		return env.clock
	}

	env.room = &model.Room{
		ID:           uuid.NewString(),
		Code:         "AbCd1234",
		Name:         "test room",
		ControlMode:  model.ControlModeCollaborative,
		PlaybackMode: model.PlaybackModeSequential,
	}
	require.NoError(t, env.rooms.Save(context.Background(), env.room))
	return env
}

func (env *engineEnv) join(t *testing.T, connectionID, nickname string) {
	t.Helper()
	err := env.engine.Join(context.Background(), connectionID, nil,
		model.JoinRoomMessage{RoomCode: env.room.Code, Nickname: nickname})
	require.NoError(t, err)
}

func (env *engineEnv) storedRoom(t *testing.T) *model.Room {
	t.Helper()
	room, err := env.rooms.FindByID(context.Background(), env.room.ID)
	require.NoError(t, err)
	return room
}

func TestJoinFirstParticipantBecomesHost(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	p, err := env.participants.FindByConnectionID(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.True(t, p.IsHost)
	assert.Equal(t, "alice", p.Nickname)

	room := env.storedRoom(t)
	require.NotNil(t, room.HostConnectionID)
	assert.Equal(t, "conn-1", *room.HostConnectionID)

	assert.ElementsMatch(t, []string{
		hub.RoomTopic("AbCd1234"),
		hub.ChatTopic("AbCd1234"),
		hub.PlaylistTopic("AbCd1234"),
		hub.CameraTopic("AbCd1234"),
	}, env.b.subscriptions["conn-1"])

	info, ok := env.b.lastTo(hub.QueueSessionInfo)
	require.True(t, ok)
	assert.Equal(t, "conn-1", info.ConnectionID)
	assert.Equal(t, model.SessionInfoMessage{ConnectionID: "conn-1"}, info.Payload)

	_, ok = env.b.lastTo(hub.QueuePlaylistHistory)
	assert.True(t, ok, "joiner receives the playlist snapshot")
	_, ok = env.b.lastTo(hub.QueueChatHistory)
	assert.True(t, ok, "joiner receives chat history")

	state, ok := env.b.lastTo(hub.RoomTopic("AbCd1234"))
	require.True(t, ok)
	snapshot, isState := state.Payload.(model.RoomStateMessage)
	require.True(t, isState)
	require.Len(t, snapshot.Participants, 1)
	assert.True(t, snapshot.Participants[0].IsHost)
}

func TestJoinSecondParticipantIsNotHost(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")
	env.join(t, "conn-2", "bob")

	p, err := env.participants.FindByConnectionID(context.Background(), "conn-2")
	require.NoError(t, err)
	assert.False(t, p.IsHost)

	room := env.storedRoom(t)
	require.NotNil(t, room.HostConnectionID)
	assert.Equal(t, "conn-1", *room.HostConnectionID, "host unchanged")
}

func TestJoinUnknownRoom(t *testing.T) {
	env := newEngineEnv(t)
	err := env.engine.Join(context.Background(), "conn-1", nil,
		model.JoinRoomMessage{RoomCode: "ZZZZZZZZ", Nickname: "alice"})
	assert.ErrorIs(t, err, errs.ErrRoomNotFound)
}

func TestJoinAuthenticatedUsesDisplayName(t *testing.T) {
	env := newEngineEnv(t)
	userID := uuid.NewString()
	env.users.users[userID] = &model.User{ID: userID, DisplayName: "Philippe"}

	err := env.engine.Join(context.Background(), "conn-1", &userID,
		model.JoinRoomMessage{RoomCode: env.room.Code, Nickname: "ignored"})
	require.NoError(t, err)

	p, err := env.participants.FindByConnectionID(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "Philippe", p.Nickname)
	require.NotNil(t, p.UserID)
	assert.Equal(t, userID, *p.UserID)
}

func TestJoinRejectsEmptyNickname(t *testing.T) {
	env := newEngineEnv(t)
	err := env.engine.Join(context.Background(), "conn-1", nil,
		model.JoinRoomMessage{RoomCode: env.room.Code, Nickname: "  <b></b> "})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestLeaveUnknownConnectionIsNoOp(t *testing.T) {
	env := newEngineEnv(t)
	assert.NoError(t, env.engine.Leave(context.Background(), "never-joined"))
}

func TestLeaveHostPromotesEarliestJoined(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")
	env.join(t, "conn-2", "bob")
	env.join(t, "conn-3", "carol")

	require.NoError(t, env.engine.Leave(context.Background(), "conn-1"))

	p, err := env.participants.FindByConnectionID(context.Background(), "conn-2")
	require.NoError(t, err)
	assert.True(t, p.IsHost, "earliest-joined remaining participant promoted")

	p3, err := env.participants.FindByConnectionID(context.Background(), "conn-3")
	require.NoError(t, err)
	assert.False(t, p3.IsHost)

	room := env.storedRoom(t)
	require.NotNil(t, room.HostConnectionID)
	assert.Equal(t, "conn-2", *room.HostConnectionID)

	assert.Contains(t, env.b.unsubscribed, "conn-1")

	camera, ok := env.b.lastTo(hub.CameraTopic("AbCd1234"))
	require.True(t, ok, "departure broadcasts camera off")
	assert.Equal(t, model.CameraStateMessage{ConnectionID: "conn-1", Enabled: false}, camera.Payload)
}

func TestLeaveNonHostKeepsHost(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")
	env.join(t, "conn-2", "bob")

	require.NoError(t, env.engine.Leave(context.Background(), "conn-2"))

	p, err := env.participants.FindByConnectionID(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.True(t, p.IsHost)
}

func TestLeaveLastParticipantClearsHostKeepsRoom(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	require.NoError(t, env.engine.Leave(context.Background(), "conn-1"))

	room := env.storedRoom(t)
	assert.Nil(t, room.HostConnectionID)

	// Leaving twice is harmless.
	assert.NoError(t, env.engine.Leave(context.Background(), "conn-1"))
}

func TestPlayerActionPlayBroadcastsVerbatim(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	msg := model.PlayerStateMessage{Action: model.ActionPlay, CurrentTimeSeconds: 42.5, IsPlaying: true}
	require.NoError(t, env.engine.PlayerAction(context.Background(), "conn-1", msg))

	room := env.storedRoom(t)
	assert.True(t, room.IsPlaying)
	assert.InDelta(t, 42.5, room.CurrentTimeSeconds, 0.001)
	assert.NotNil(t, room.StateUpdatedAt)

	last, ok := env.b.lastTo(hub.RoomTopic("AbCd1234"))
	require.True(t, ok)
	assert.Equal(t, msg, last.Payload)
}

func TestPlayerActionChangeVideoResets(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	url := "https://youtu.be/next"
	msg := model.PlayerStateMessage{Action: model.ActionChangeVideo, VideoURL: &url, CurrentTimeSeconds: 99}
	require.NoError(t, env.engine.PlayerAction(context.Background(), "conn-1", msg))

	room := env.storedRoom(t)
	require.NotNil(t, room.CurrentVideoURL)
	assert.Equal(t, url, *room.CurrentVideoURL)
	assert.Zero(t, room.CurrentTimeSeconds)
	assert.False(t, room.IsPlaying)
}

func TestPlayerActionUnknown(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	err := env.engine.PlayerAction(context.Background(), "conn-1",
		model.PlayerStateMessage{Action: "REWIND"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestPlayerActionHostOnlyRejectsNonHost(t *testing.T) {
	env := newEngineEnv(t)
	env.room.ControlMode = model.ControlModeHostOnly
	require.NoError(t, env.rooms.Save(context.Background(), env.room))
	env.join(t, "conn-1", "alice")
	env.join(t, "conn-2", "bob")

	err := env.engine.PlayerAction(context.Background(), "conn-2",
		model.PlayerStateMessage{Action: model.ActionPlay, IsPlaying: true})
	require.NoError(t, err, "rejection is informational, not an error")

	room := env.storedRoom(t)
	assert.False(t, room.IsPlaying, "state unchanged")

	last, ok := env.b.lastTo(hub.RoomTopic("AbCd1234"))
	require.True(t, ok)
	_, isErr := last.Payload.(model.ErrorMessage)
	assert.True(t, isErr, "room is told about the rejected attempt")

	// The host itself is still allowed.
	require.NoError(t, env.engine.PlayerAction(context.Background(), "conn-1",
		model.PlayerStateMessage{Action: model.ActionPlay, IsPlaying: true}))
	assert.True(t, env.storedRoom(t).IsPlaying)
}

func TestReportPositionDeliversTargetedCorrection(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	url := "https://youtu.be/abc"
	env.room = env.storedRoom(t)
	env.room.CurrentVideoURL = &url
	env.room.IsPlaying = true
	env.room.CurrentTimeSeconds = 100
	updated := time.Now().Add(-10 * time.Second)
	env.room.StateUpdatedAt = &updated
	require.NoError(t, env.rooms.Save(context.Background(), env.room))

	require.NoError(t, env.engine.ReportPosition(context.Background(), "conn-1",
		model.PositionReportMessage{CurrentTimeSeconds: 90}))

	correction, ok := env.b.lastTo(hub.QueueSyncCorrection)
	require.True(t, ok)
	assert.Equal(t, "conn-1", correction.ConnectionID, "correction goes to the reporter only")
	payload, isCorrection := correction.Payload.(model.SyncCorrectionMessage)
	require.True(t, isCorrection)
	assert.Equal(t, model.CorrectionSeek, payload.CorrectionType)
}

func TestReportPositionWithinToleranceSendsNothing(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	before := len(env.b.sent(hub.QueueSyncCorrection))
	require.NoError(t, env.engine.ReportPosition(context.Background(), "conn-1",
		model.PositionReportMessage{CurrentTimeSeconds: 0}))
	assert.Equal(t, before, len(env.b.sent(hub.QueueSyncCorrection)))
}

func TestChatBroadcastsOnChatTopic(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	require.NoError(t, env.engine.Chat(context.Background(), "conn-1",
		model.ChatMessageRequest{Content: "hello room"}))

	last, ok := env.b.lastTo(hub.ChatTopic("AbCd1234"))
	require.True(t, ok)
	msg, isChat := last.Payload.(*model.ChatMessageResponse)
	require.True(t, isChat)
	assert.Equal(t, "hello room", msg.Content)
	assert.Equal(t, "alice", msg.Nickname)
}

func TestChatRateLimitSurfacesError(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	for i := 0; i < 5; i++ {
		require.NoError(t, env.engine.Chat(context.Background(), "conn-1",
			model.ChatMessageRequest{Content: "spam"}))
	}
	err := env.engine.Chat(context.Background(), "conn-1", model.ChatMessageRequest{Content: "spam"})
	assert.ErrorIs(t, err, errs.ErrRateLimited)
}

func TestChatReactionBroadcastsUpdatedMessage(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	require.NoError(t, env.engine.Chat(context.Background(), "conn-1",
		model.ChatMessageRequest{Content: "react to me"}))
	sent, ok := env.b.lastTo(hub.ChatTopic("AbCd1234"))
	require.True(t, ok)
	original := sent.Payload.(*model.ChatMessageResponse)

	require.NoError(t, env.engine.ChatReaction(context.Background(), "conn-1",
		model.ChatReactionRequest{MessageID: original.ID, Emoji: "🎉"}))

	last, ok := env.b.lastTo(hub.ChatTopic("AbCd1234"))
	require.True(t, ok)
	updated := last.Payload.(*model.ChatMessageResponse)
	assert.Equal(t, 1, updated.Reactions["🎉"])
}

func TestPlayNowAddsMissingVideoAndPlays(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	url := "https://youtu.be/playme"
	require.NoError(t, env.engine.PlayNow(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: url}))

	room := env.storedRoom(t)
	require.NotNil(t, room.CurrentVideoURL)
	assert.Equal(t, url, *room.CurrentVideoURL)
	assert.True(t, room.IsPlaying)
	assert.Zero(t, room.CurrentTimeSeconds)

	items, err := env.playlistRepo.FindByRoomID(context.Background(), env.room.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, url, items[0].VideoURL)

	_, ok := env.b.lastTo(hub.PlaylistTopic("AbCd1234"))
	assert.True(t, ok, "playlist re-broadcast after playNow")
}

func TestPlayNowDoesNotDuplicateExistingVideo(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	url := "https://youtu.be/playme"
	require.NoError(t, env.engine.PlaylistAdd(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: url}))
	require.NoError(t, env.engine.PlayNow(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: url}))

	items, err := env.playlistRepo.FindByRoomID(context.Background(), env.room.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestPlaylistNextSequentialAdvances(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	first := "https://youtu.be/first"
	second := "https://youtu.be/second"
	require.NoError(t, env.engine.PlaylistAdd(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: first}))
	require.NoError(t, env.engine.PlaylistAdd(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: second}))
	require.NoError(t, env.engine.PlayNow(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: first}))

	require.NoError(t, env.engine.PlaylistNext(context.Background(), "conn-1"))

	room := env.storedRoom(t)
	require.NotNil(t, room.CurrentVideoURL)
	assert.Equal(t, second, *room.CurrentVideoURL)
	assert.True(t, room.IsPlaying)

	// Exhausted: nothing after the last item, state unchanged.
	require.NoError(t, env.engine.PlaylistNext(context.Background(), "conn-1"))
	assert.Equal(t, second, *env.storedRoom(t).CurrentVideoURL)
}

func TestPlaylistNextShufflePicksDifferentVideo(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	require.NoError(t, env.engine.PlaylistMode(context.Background(), "conn-1",
		model.PlaybackModeRequest{Mode: "SHUFFLE"}))

	first := "https://youtu.be/first"
	second := "https://youtu.be/second"
	require.NoError(t, env.engine.PlaylistAdd(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: first}))
	require.NoError(t, env.engine.PlaylistAdd(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: second}))
	require.NoError(t, env.engine.PlayNow(context.Background(), "conn-1",
		model.AddPlaylistItemRequest{VideoURL: first}))

	require.NoError(t, env.engine.PlaylistNext(context.Background(), "conn-1"))

	room := env.storedRoom(t)
	require.NotNil(t, room.CurrentVideoURL)
	assert.Equal(t, second, *room.CurrentVideoURL, "shuffle never repeats the current video")
}

func TestPlaylistModeValidation(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	err := env.engine.PlaylistMode(context.Background(), "conn-1",
		model.PlaybackModeRequest{Mode: "RANDOMISH"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	require.NoError(t, env.engine.PlaylistMode(context.Background(), "conn-1",
		model.PlaybackModeRequest{Mode: "SHUFFLE"}))
	assert.Equal(t, model.PlaybackModeShuffle, env.storedRoom(t).PlaybackMode)
}

func TestPlaylistAddBulkBroadcastsOnce(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	before := len(env.b.sent(hub.PlaylistTopic("AbCd1234")))
	require.NoError(t, env.engine.PlaylistAddBulk(context.Background(), "conn-1",
		model.BulkAddPlaylistRequest{VideoURLs: []string{
			"https://youtu.be/one", "https://youtu.be/two", "https://youtu.be/three",
		}}))

	assert.Equal(t, before+1, len(env.b.sent(hub.PlaylistTopic("AbCd1234"))))

	items, err := env.playlistRepo.FindByRoomID(context.Background(), env.room.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i+1, item.Position)
	}
}

func TestCameraStateBroadcast(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	require.NoError(t, env.engine.CameraState(context.Background(), "conn-1",
		model.CameraStateRequest{Enabled: true}))

	last, ok := env.b.lastTo(hub.CameraTopic("AbCd1234"))
	require.True(t, ok)
	assert.Equal(t, model.CameraStateMessage{ConnectionID: "conn-1", Enabled: true}, last.Payload)
}

func TestSyncStateBroadcastsExpectedPosition(t *testing.T) {
	env := newEngineEnv(t)
	env.join(t, "conn-1", "alice")

	url := "https://youtu.be/abc"
	room := env.storedRoom(t)
	room.CurrentVideoURL = &url
	room.IsPlaying = true
	room.CurrentTimeSeconds = 100
	updated := time.Now().Add(-10 * time.Second)
	room.StateUpdatedAt = &updated
	require.NoError(t, env.rooms.Save(context.Background(), room))

	require.NoError(t, env.engine.SyncState(context.Background(), "conn-1"))

	last, ok := env.b.lastTo(hub.RoomTopic("AbCd1234"))
	require.True(t, ok)
	snapshot := last.Payload.(model.RoomStateMessage)
	assert.InDelta(t, 110, snapshot.CurrentTimeSeconds, 1.5,
		"snapshot carries the extrapolated position")
	assert.Equal(t, "SEQUENTIAL", snapshot.PlaybackMode)
}

func TestOperationsRequireMembership(t *testing.T) {
	env := newEngineEnv(t)

	err := env.engine.Chat(context.Background(), "stranger", model.ChatMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, errs.ErrParticipantNotFound)

	err = env.engine.PlaylistAdd(context.Background(), "stranger",
		model.AddPlaylistItemRequest{VideoURL: "https://youtu.be/x"})
	assert.ErrorIs(t, err, errs.ErrParticipantNotFound)

	err = env.engine.PlayerAction(context.Background(), "stranger",
		model.PlayerStateMessage{Action: model.ActionPlay})
	assert.ErrorIs(t, err, errs.ErrParticipantNotFound)
}
