package domain

import (
	"time"

	"github.com/google/uuid"
)

// Room is the live, in-memory view of a signaling room. The roster owns all
// mutation and locking; a Room itself carries no synchronization.
//
// Creator is set exactly once, when the room is created, and never moves to
// another member even if the creator disconnects.
type Room struct {
	Name     string
	Creator  Identity
	Password string
	Members  []Identity
	Capacity int
}

func NewRoom(name string, creator Identity, password string, capacity int) *Room {
	return &Room{
		Name:     name,
		Creator:  creator,
		Password: password,
		Members:  []Identity{creator},
		Capacity: capacity,
	}
}

// MemberIndex reports the position of the given identity, or -1.
func (r *Room) MemberIndex(id Identity) int {
	for i, m := range r.Members {
		if m.Equal(id) {
			return i
		}
	}
	return -1
}

// Snapshot copies the room state for use outside the roster lock.
func (r *Room) Snapshot() RoomSnapshot {
	members := make([]Identity, len(r.Members))
	copy(members, r.Members)
	return RoomSnapshot{
		Name:     r.Name,
		Creator:  r.Creator,
		Members:  members,
		Capacity: r.Capacity,
	}
}

// RoomSnapshot is an immutable copy of a room taken under the roster lock.
type RoomSnapshot struct {
	Name     string
	Creator  Identity
	Members  []Identity
	Capacity int
}

// MemberIndex reports the position of the given identity, or -1.
func (s RoomSnapshot) MemberIndex(id Identity) int {
	for i, m := range s.Members {
		if m.Equal(id) {
			return i
		}
	}
	return -1
}

// RoomRecord is the durable form of a room kept by the room store.
type RoomRecord struct {
	ID        uuid.UUID
	Name      string
	Password  string
	CreatedBy string
	Members   []Identity
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewRoomRecord(room RoomSnapshot, password string) *RoomRecord {
	now := time.Now().UTC()
	members := make([]Identity, len(room.Members))
	copy(members, room.Members)
	return &RoomRecord{
		ID:        uuid.New(),
		Name:      room.Name,
		Password:  password,
		CreatedBy: room.Creator.Email,
		Members:   members,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
