package service

import (
	"sync"

	"streamspace/internal/domain"
)

type Role string

const (
	RoleCreator Role = "creator"
	RoleJoinee  Role = "joinee"
)

// DefaultRoomCapacity applies when no limit is configured.
const DefaultRoomCapacity = 10000

// Roster is the authoritative live view of room membership. Every compound
// decision (exists-check plus insert, capacity plus password plus append)
// happens under one mutex that is never held across I/O, so two racing joins
// to a fresh room name cannot both become creator. Persistence is recorded
// afterwards by the coordinator and rolled back through Reinstate on failure.
type Roster struct {
	mu       sync.Mutex
	rooms    map[string]*domain.Room
	seqs     map[string]uint64
	capacity int
}

func NewRoster(capacity int) *Roster {
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &Roster{
		rooms:    make(map[string]*domain.Room),
		seqs:     make(map[string]uint64),
		capacity: capacity,
	}
}

// JoinResult reports what a committed join did to the live table. Seq is the
// room's notification ticket for this commit; an idempotent repeat join
// changes nothing and carries Seq zero.
type JoinResult struct {
	Role          Role
	Created       bool
	AlreadyMember bool
	Room          domain.RoomSnapshot
	Prior         []domain.Identity
	Seq           uint64
}

// JoinOrCreate atomically creates the room with the caller as creator, or
// validates capacity and password and appends the caller as joinee. A repeat
// join by a current member is idempotent. The create path never checks a
// password.
func (r *Roster) JoinOrCreate(name string, id domain.Identity, password string) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		room = domain.NewRoom(name, id, password, r.capacity)
		r.rooms[name] = room
		return JoinResult{
			Role:    RoleCreator,
			Created: true,
			Room:    room.Snapshot(),
			Prior:   []domain.Identity{},
			Seq:     r.nextSeq(name),
		}, nil
	}

	if idx := room.MemberIndex(id); idx >= 0 {
		role := RoleJoinee
		if room.Creator.Equal(id) {
			role = RoleCreator
		}
		return JoinResult{
			Role:          role,
			AlreadyMember: true,
			Room:          room.Snapshot(),
			Prior:         othersOf(room, id),
		}, nil
	}

	if len(room.Members) >= room.Capacity {
		return JoinResult{}, ErrRoomFull
	}
	if room.Password != password {
		return JoinResult{}, ErrAuthFailed
	}

	prior := make([]domain.Identity, len(room.Members))
	copy(prior, room.Members)
	room.Members = append(room.Members, id)

	return JoinResult{
		Role:  RoleJoinee,
		Room:  room.Snapshot(),
		Prior: prior,
		Seq:   r.nextSeq(name),
	}, nil
}

// LeaveResult reports a committed removal, carrying enough state to undo it.
// Seq is the room's notification ticket for this commit.
type LeaveResult struct {
	Room      string
	Removed   domain.Identity
	Remaining []domain.Identity
	Deleted   bool
	Seq       uint64

	index  int
	backup *domain.Room
}

// Leave removes the identity from the room. Leaving a room one is not a
// member of is a no-op, not an error. The room is deleted from the live table
// when its member list empties.
func (r *Roster) Leave(name string, id domain.Identity) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return LeaveResult{}, false
	}
	idx := room.MemberIndex(id)
	if idx < 0 {
		return LeaveResult{}, false
	}

	return r.remove(room, idx), true
}

// Kick removes target exactly as Leave would, but only on behalf of the room
// creator.
func (r *Roster) Kick(name string, requester domain.Identity, targetEmail string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return LeaveResult{}, ErrRoomNotFound
	}
	if !room.Creator.Equal(requester) {
		return LeaveResult{}, ErrNotAuthorized
	}

	idx := room.MemberIndex(domain.Identity{Email: targetEmail})
	if idx < 0 {
		return LeaveResult{}, ErrTargetNotFound
	}

	return r.remove(room, idx), nil
}

// DisconnectCleanup removes the identity from every room it belongs to and
// returns one result per affected room, so the caller can broadcast once per
// room.
func (r *Roster) DisconnectCleanup(id domain.Identity) []LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var results []LeaveResult
	for _, room := range r.rooms {
		if idx := room.MemberIndex(id); idx >= 0 {
			results = append(results, r.remove(room, idx))
		}
	}
	return results
}

// Reinstate undoes a committed removal after the persistence write for it
// failed, restoring the member at its old position and resurrecting the room
// if the removal deleted it.
func (r *Roster) Reinstate(res LeaveResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[res.Room]
	if !ok {
		// The removal emptied and deleted the room; put the backup copy back.
		r.rooms[res.Room] = res.backup
		return
	}

	if room.MemberIndex(res.Removed) >= 0 {
		return
	}
	idx := res.index
	if idx > len(room.Members) {
		idx = len(room.Members)
	}
	room.Members = append(room.Members[:idx], append([]domain.Identity{res.Removed}, room.Members[idx:]...)...)
}

// Snapshot returns a copy of the room, or false if it does not exist live.
func (r *Roster) Snapshot(name string) (domain.RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return domain.RoomSnapshot{}, false
	}
	return room.Snapshot(), true
}

// remove must be called with the roster lock held.
func (r *Roster) remove(room *domain.Room, idx int) LeaveResult {
	backup := &domain.Room{
		Name:     room.Name,
		Creator:  room.Creator,
		Password: room.Password,
		Capacity: room.Capacity,
		Members:  make([]domain.Identity, len(room.Members)),
	}
	copy(backup.Members, room.Members)

	removed := room.Members[idx]
	room.Members = append(room.Members[:idx], room.Members[idx+1:]...)

	remaining := make([]domain.Identity, len(room.Members))
	copy(remaining, room.Members)

	deleted := len(room.Members) == 0
	if deleted {
		delete(r.rooms, room.Name)
	}

	return LeaveResult{
		Room:      room.Name,
		Removed:   removed,
		Remaining: remaining,
		Deleted:   deleted,
		Seq:       r.nextSeq(room.Name),
		index:     idx,
		backup:    backup,
	}
}

// nextSeq must be called with the roster lock held. Tickets for a room name
// are monotonic across deletion and recreation, so a queued notification for
// the old room can never collide with the new one.
func (r *Roster) nextSeq(name string) uint64 {
	r.seqs[name]++
	return r.seqs[name]
}

func othersOf(room *domain.Room, id domain.Identity) []domain.Identity {
	others := make([]domain.Identity, 0, len(room.Members))
	for _, m := range room.Members {
		if !m.Equal(id) {
			others = append(others, m)
		}
	}
	return others
}
