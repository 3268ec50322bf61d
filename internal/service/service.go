package service

import (
	"context"
	"encoding/json"
	"errors"

	"streamspace/internal/domain"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrAuthFailed     = errors.New("incorrect room password")
	ErrNotAuthorized  = errors.New("only room creator can kick users")
	ErrTargetNotFound = errors.New("target is not a member of the room")
	ErrRoomNotFound   = errors.New("room does not exist")
	ErrConnNotFound   = errors.New("connection not found")
	ErrNotMember      = errors.New("not a member of the room")
)

type RoomInteractor interface {
	Connect(ctx context.Context, email string) (*domain.Conn, error)
	Join(ctx context.Context, conn *domain.Conn, room string, password string)
	Leave(ctx context.Context, conn *domain.Conn, room string)
	Kick(ctx context.Context, conn *domain.Conn, room string, targetEmail string)
	Disconnect(ctx context.Context, conn *domain.Conn)
	Ready(conn *domain.Conn, room string)
	ForwardSignal(kind string, payload json.RawMessage, from *domain.Conn, target string)
	StreamStopped(conn *domain.Conn, room string)
	SendMessage(ctx context.Context, conn *domain.Conn, room string, text string, timestamp string)
	MessageHistory(conn *domain.Conn, room string)
	RoomDetails(ctx context.Context, name string) (*domain.RoomRecord, domain.RoomSnapshot, error)
}

type UserInteractor interface {
	CreateUser(ctx context.Context, username string, email string) (*domain.User, error)
	GetUser(ctx context.Context, email string) (*domain.User, error)
}
