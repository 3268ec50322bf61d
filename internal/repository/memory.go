package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamspace/internal/domain"
)

// InMemoryRoomRepository keeps room records in process. Used when no database
// is configured and as the store double in tests.
type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*domain.RoomRecord
	names map[string]uuid.UUID
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[uuid.UUID]*domain.RoomRecord),
		names: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryRoomRepository) FindRoom(ctx context.Context, name string) (*domain.RoomRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.names[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return copyRecord(r.rooms[id]), nil
}

func (r *InMemoryRoomRepository) CreateRoom(ctx context.Context, record *domain.RoomRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[record.Name]; ok {
		return ErrRoomExists
	}

	r.rooms[record.ID] = copyRecord(record)
	r.names[record.Name] = record.ID
	return nil
}

func (r *InMemoryRoomRepository) AddMember(ctx context.Context, roomID uuid.UUID, member domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}

	for _, m := range record.Members {
		if m.Equal(member) {
			return nil
		}
	}
	record.Members = append(record.Members, member)
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRoomRepository) RemoveMember(ctx context.Context, roomID uuid.UUID, member domain.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}

	members := record.Members[:0]
	for _, m := range record.Members {
		if !m.Equal(member) {
			members = append(members, m)
		}
	}
	record.Members = members
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRoomRepository) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}

	delete(r.names, record.Name)
	delete(r.rooms, roomID)
	return nil
}

func copyRecord(record *domain.RoomRecord) *domain.RoomRecord {
	out := *record
	out.Members = make([]domain.Identity, len(record.Members))
	copy(out.Members, record.Members)
	return &out
}

type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{users: make(map[string]*domain.User)}
}

func (r *InMemoryUserRepository) FindUser(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (r *InMemoryUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.Email]; ok {
		return ErrUserExists
	}

	stored := *user
	r.users[user.Email] = &stored
	return nil
}
