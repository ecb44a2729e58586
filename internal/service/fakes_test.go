package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

// In-memory repository fakes shared by the service tests.

type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*model.Room
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[string]*model.Room)}
}

func (f *fakeRoomRepo) Create(_ context.Context, room *model.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Code == room.Code {
			return errs.ErrValidation
		}
	}
	cp := *room
	f.rooms[room.ID] = &cp
	return nil
}

func (f *fakeRoomRepo) Save(_ context.Context, room *model.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *room
	f.rooms[room.ID] = &cp
	return nil
}

func (f *fakeRoomRepo) FindByID(_ context.Context, id string) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, errs.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRoomRepo) FindByCode(_ context.Context, code string) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Code == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errs.ErrRoomNotFound
}

func (f *fakeRoomRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
	return nil
}

func (f *fakeRoomRepo) DeleteExpiredBefore(_ context.Context, t time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.rooms {
		if r.ExpiresAt != nil && r.ExpiresAt.Before(t) {
			delete(f.rooms, id)
			n++
		}
	}
	return n, nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	participants map[string]*model.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{participants: make(map[string]*model.Participant)}
}

func (f *fakeParticipantRepo) Save(_ context.Context, p *model.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.participants[p.ID] = &cp
	return nil
}

func (f *fakeParticipantRepo) FindByConnectionID(_ context.Context, connectionID string) (*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.ConnectionID == connectionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errs.ErrParticipantNotFound
}

func (f *fakeParticipantRepo) FindByRoomID(_ context.Context, roomID string) ([]model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Participant
	for _, p := range f.participants {
		if p.RoomID == roomID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (f *fakeParticipantRepo) CountByRoomID(ctx context.Context, roomID string) (int64, error) {
	all, _ := f.FindByRoomID(ctx, roomID)
	return int64(len(all)), nil
}

func (f *fakeParticipantRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.participants, id)
	return nil
}

func (f *fakeParticipantRepo) DeleteAll(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.participants))
	f.participants = make(map[string]*model.Participant)
	return n, nil
}

type fakeChatRepo struct {
	mu       sync.Mutex
	messages []model.ChatMessage
}

func newFakeChatRepo() *fakeChatRepo { return &fakeChatRepo{} }

func (f *fakeChatRepo) Save(_ context.Context, msg *model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == msg.ID {
			f.messages[i] = *msg
			return nil
		}
	}
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeChatRepo) FindByID(_ context.Context, id string) (*model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == id {
			cp := f.messages[i]
			return &cp, nil
		}
	}
	return nil, errs.ErrMessageNotFound
}

func (f *fakeChatRepo) FindRecentByRoomID(_ context.Context, roomID string, limit int) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range f.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakePlaylistRepo struct {
	mu    sync.Mutex
	items map[string]*model.PlaylistItem
}

func newFakePlaylistRepo() *fakePlaylistRepo {
	return &fakePlaylistRepo{items: make(map[string]*model.PlaylistItem)}
}

func (f *fakePlaylistRepo) Save(_ context.Context, item *model.PlaylistItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakePlaylistRepo) SaveAll(ctx context.Context, items []model.PlaylistItem) error {
	for i := range items {
		if err := f.Save(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePlaylistRepo) FindByID(_ context.Context, id string) (*model.PlaylistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, errs.ErrPlaylistItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (f *fakePlaylistRepo) FindByRoomID(_ context.Context, roomID string) ([]model.PlaylistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PlaylistItem
	for _, it := range f.items {
		if it.RoomID == roomID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakePlaylistRepo) FindLastByRoomIDAndVideoURL(ctx context.Context, roomID, videoURL string) (*model.PlaylistItem, error) {
	all, _ := f.FindByRoomID(ctx, roomID)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].VideoURL == videoURL {
			cp := all[i]
			return &cp, nil
		}
	}
	return nil, errs.ErrPlaylistItemNotFound
}

func (f *fakePlaylistRepo) CountByRoomID(ctx context.Context, roomID string) (int64, error) {
	all, _ := f.FindByRoomID(ctx, roomID)
	return int64(len(all)), nil
}

func (f *fakePlaylistRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

type fakeUserRepo struct {
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo { return &fakeUserRepo{users: make(map[string]*model.User)} }

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func seedParticipant(t testing.TB, repo *fakeParticipantRepo, roomID, connectionID, nickname string, isHost bool, joinedAt time.Time) *model.Participant {
	t.Helper()
	p := &model.Participant{
		ID:           uuid.NewString(),
		RoomID:       roomID,
		ConnectionID: connectionID,
		Nickname:     nickname,
		IsHost:       isHost,
		JoinedAt:     joinedAt,
	}
	if err := repo.Save(context.Background(), p); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	return p
}

// recordedSend is one message captured by the fake broadcaster.
type recordedSend struct {
	ConnectionID string // empty for topic broadcasts
	Destination  string
	Payload      any
}

// fakeBroadcaster records everything sent through it.
type fakeBroadcaster struct {
	mu            sync.Mutex
	sends         []recordedSend
	subscriptions map[string][]string
	unsubscribed  []string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{subscriptions: make(map[string][]string)}
}

func (f *fakeBroadcaster) Broadcast(topic string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recordedSend{Destination: topic, Payload: payload})
}

func (f *fakeBroadcaster) SendToConnection(connectionID, destination string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recordedSend{ConnectionID: connectionID, Destination: destination, Payload: payload})
	return true
}

func (f *fakeBroadcaster) Subscribe(connectionID string, topics ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[connectionID] = append(f.subscriptions[connectionID], topics...)
}

func (f *fakeBroadcaster) UnsubscribeAll(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, connectionID)
	delete(f.subscriptions, connectionID)
}

func (f *fakeBroadcaster) sent(destination string) []recordedSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedSend
	for _, s := range f.sends {
		if s.Destination == destination {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeBroadcaster) lastTo(destination string) (recordedSend, bool) {
	matches := f.sent(destination)
	if len(matches) == 0 {
		return recordedSend{}, false
	}
	return matches[len(matches)-1], true
}
