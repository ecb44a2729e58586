package gormrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

type PlaylistItemRepository struct {
	db *gorm.DB
}

func NewPlaylistItemRepository(db *gorm.DB) *PlaylistItemRepository {
	return &PlaylistItemRepository{db: db}
}

func (r *PlaylistItemRepository) Save(ctx context.Context, item *model.PlaylistItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *PlaylistItemRepository) SaveAll(ctx context.Context, items []model.PlaylistItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Save(&items).Error
}

func (r *PlaylistItemRepository) FindByID(ctx context.Context, id string) (*model.PlaylistItem, error) {
	var item model.PlaylistItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPlaylistItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *PlaylistItemRepository) FindByRoomID(ctx context.Context, roomID string) ([]model.PlaylistItem, error) {
	var out []model.PlaylistItem
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

func (r *PlaylistItemRepository) FindLastByRoomIDAndVideoURL(ctx context.Context, roomID, videoURL string) (*model.PlaylistItem, error) {
	var item model.PlaylistItem
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND video_url = ?", roomID, videoURL).
		Order("position DESC").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPlaylistItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *PlaylistItemRepository) CountByRoomID(ctx context.Context, roomID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.PlaylistItem{}).Where("room_id = ?", roomID).Count(&n).Error
	return n, err
}

func (r *PlaylistItemRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PlaylistItem{}).Error
}
