package gormrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

type ChatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

func (r *ChatMessageRepository) Save(ctx context.Context, msg *model.ChatMessage) error {
	return r.db.WithContext(ctx).Save(msg).Error
}

func (r *ChatMessageRepository) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (r *ChatMessageRepository) FindRecentByRoomID(ctx context.Context, roomID string, limit int) ([]model.ChatMessage, error) {
	var recent []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sent_at DESC").
		Limit(limit).
		Find(&recent).Error
	if err != nil {
		return nil, err
	}
	// Newest-first from the query; history is delivered chronologically.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}
