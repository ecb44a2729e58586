// Package gormrepo implements the repository interfaces on GORM/PostgreSQL.
package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *RoomRepository) Save(ctx context.Context, room *model.Room) error {
	return r.db.WithContext(ctx).Save(room).Error
}

func (r *RoomRepository) FindByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepository) FindByCode(ctx context.Context, code string) (*model.Room, error) {
	var room model.Room
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Room{}).Error
}

func (r *RoomRepository) DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_permanent = ? AND expires_at IS NOT NULL AND expires_at < ?", false, t).
		Delete(&model.Room{})
	return res.RowsAffected, res.Error
}
