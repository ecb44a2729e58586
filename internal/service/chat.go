package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
	"github.com/PhilippeSteinbach/WatchParty/internal/repository"
	"github.com/PhilippeSteinbach/WatchParty/internal/sanitize"
)

const (
	maxChatContentLen = 500
	maxReactionLen    = 20
	chatHistoryLimit  = 200
)

// ChatService stores sanitized chat messages behind the sliding-window rate
// limiter and manages reactions.
type ChatService struct {
	messages repository.ChatMessageRepository
	limiter  *ChatRateLimiter
	now      func() time.Time
}

// NewChatService creates the chat service.
func NewChatService(messages repository.ChatMessageRepository, limiter *ChatRateLimiter) *ChatService {
	return &ChatService{messages: messages, limiter: limiter, now: time.Now}
}

// SendMessage sanitizes, rate-limits and persists one chat message. The rate
// limit is checked before the message is stored.
func (s *ChatService) SendMessage(ctx context.Context, roomID, nickname, content string) (*model.ChatMessageResponse, error) {
	nickname = sanitize.Text(nickname)
	content = sanitize.Text(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message", errs.ErrValidation)
	}
	if utf8.RuneCountInString(content) > maxChatContentLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters", errs.ErrValidation, maxChatContentLen)
	}

	if !s.limiter.Allow(roomID, nickname) {
		return nil, errs.ErrRateLimited
	}

	msg := &model.ChatMessage{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Nickname:  nickname,
		Content:   content,
		Reactions: model.ReactionMap{},
		SentAt:    s.now(),
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("save chat message: %w", err)
	}
	resp := toChatResponse(msg)
	return &resp, nil
}

// AddReaction increments the emoji's count on a message, starting at 1.
func (s *ChatService) AddReaction(ctx context.Context, messageID, emoji string) (*model.ChatMessageResponse, error) {
	emoji = sanitize.Text(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxReactionLen {
		return nil, fmt.Errorf("%w: invalid emoji", errs.ErrValidation)
	}

	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Reactions == nil {
		msg.Reactions = model.ReactionMap{}
	}
	msg.Reactions[emoji]++
	if err := s.messages.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("save reaction: %w", err)
	}
	resp := toChatResponse(msg)
	return &resp, nil
}

// History returns the room's most recent messages in chronological order.
func (s *ChatService) History(ctx context.Context, roomID string) ([]model.ChatMessageResponse, error) {
	msgs, err := s.messages.FindRecentByRoomID(ctx, roomID, chatHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	out := make([]model.ChatMessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, toChatResponse(&msgs[i]))
	}
	return out, nil
}

func toChatResponse(msg *model.ChatMessage) model.ChatMessageResponse {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = model.ReactionMap{}
	}
	return model.ChatMessageResponse{
		ID:        msg.ID,
		Nickname:  msg.Nickname,
		Content:   msg.Content,
		Reactions: reactions,
		SentAt:    msg.SentAt,
	}
}
