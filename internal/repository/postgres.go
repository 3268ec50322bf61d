package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"streamspace/internal/domain"
	"streamspace/internal/repository/model"
)

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) FindRoom(ctx context.Context, name string) (*domain.RoomRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).Preload("Members").First(&room, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoomRecord(&room), nil
}

func (r *PostgresRoomRepository) CreateRoom(ctx context.Context, record *domain.RoomRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil {
		return errors.New("room record is nil")
	}

	roomModel := toModelRoom(record)

	if err := r.db.WithContext(ctx).Create(roomModel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRoomExists
		}
		return err
	}
	return nil
}

func (r *PostgresRoomRepository) AddMember(ctx context.Context, roomID uuid.UUID, member domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Room{}).Where("id = ?", roomID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrRoomNotFound
		}

		row := model.Member{
			RoomID:      roomID,
			Email:       member.Email,
			DisplayName: member.DisplayName,
			JoinedAt:    time.Now().UTC(),
		}
		err := tx.Where("room_id = ? AND email = ?", roomID, member.Email).
			FirstOrCreate(&model.Member{}, row).Error
		if err != nil {
			return err
		}

		return tx.Model(&model.Room{}).Where("id = ?", roomID).
			Update("updated_at", time.Now().UTC()).Error
	})
}

func (r *PostgresRoomRepository) RemoveMember(ctx context.Context, roomID uuid.UUID, member domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("room_id = ? AND email = ?", roomID, member.Email).Delete(&model.Member{})
		if res.Error != nil {
			return res.Error
		}

		return tx.Model(&model.Room{}).Where("id = ?", roomID).
			Update("updated_at", time.Now().UTC()).Error
	})
}

func (r *PostgresRoomRepository) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&model.Member{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&model.Room{}, "id = ?", roomID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return nil
	})
}

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) FindUser(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelUser(user)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func toModelRoom(record *domain.RoomRecord) *model.Room {
	members := make([]model.Member, 0, len(record.Members))
	for _, m := range record.Members {
		members = append(members, model.Member{
			RoomID:      record.ID,
			Email:       m.Email,
			DisplayName: m.DisplayName,
			JoinedAt:    time.Now().UTC(),
		})
	}

	return &model.Room{
		ID:        record.ID,
		Name:      record.Name,
		Password:  record.Password,
		CreatedBy: record.CreatedBy,
		CreatedAt: record.CreatedAt.UTC(),
		UpdatedAt: record.UpdatedAt.UTC(),
		Members:   members,
	}
}

func toDomainRoomRecord(room *model.Room) *domain.RoomRecord {
	members := make([]domain.Identity, 0, len(room.Members))
	for _, m := range room.Members {
		members = append(members, domain.Identity{Email: m.Email, DisplayName: m.DisplayName})
	}

	return &domain.RoomRecord{
		ID:        room.ID,
		Name:      room.Name,
		Password:  room.Password,
		CreatedBy: room.CreatedBy,
		Members:   members,
		CreatedAt: room.CreatedAt.UTC(),
		UpdatedAt: room.UpdatedAt.UTC(),
	}
}

func toModelUser(user *domain.User) *model.User {
	return &model.User{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}
