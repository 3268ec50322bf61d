package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"streamspace/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user with email already exists")
)

// RoomRepository is the durable side of room membership. The live roster
// decides; these calls record the decision.
type RoomRepository interface {
	FindRoom(ctx context.Context, name string) (*domain.RoomRecord, error)
	CreateRoom(ctx context.Context, record *domain.RoomRecord) error
	AddMember(ctx context.Context, roomID uuid.UUID, member domain.Identity) error
	RemoveMember(ctx context.Context, roomID uuid.UUID, member domain.Identity) error
	DeleteRoom(ctx context.Context, roomID uuid.UUID) error
}

type UserRepository interface {
	FindUser(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
}
