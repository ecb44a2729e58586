package gormrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func (r *ParticipantRepository) Save(ctx context.Context, p *model.Participant) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *ParticipantRepository) FindByConnectionID(ctx context.Context, connectionID string) (*model.Participant, error) {
	var p model.Participant
	if err := r.db.WithContext(ctx).Where("connection_id = ?", connectionID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrParticipantNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) FindByRoomID(ctx context.Context, roomID string) ([]model.Participant, error) {
	var out []model.Participant
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&out).Error
	return out, err
}

func (r *ParticipantRepository) CountByRoomID(ctx context.Context, roomID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Participant{}).Where("room_id = ?", roomID).Count(&n).Error
	return n, err
}

func (r *ParticipantRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Participant{}).Error
}

func (r *ParticipantRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.Participant{})
	return res.RowsAffected, res.Error
}
