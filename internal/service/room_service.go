package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"streamspace/internal/domain"
	"streamspace/internal/repository"
	"streamspace/lib/logger/sl"
)

// RoomService coordinates membership transactions. Every transition mutates
// the live roster first (the atomic gate), records the decision in the room
// store, and only then emits notifications. A failed store call rolls the
// live mutation back so the two views never disagree after a reported error.
//
// The store call sits between commit and notification with no lock held, so
// store latency could reorder deliveries; each commit therefore carries a
// per-room ticket and notifications drain through seq in ticket order.
type RoomService struct {
	roster   *Roster
	registry *ConnectionRegistry
	relay    *SignalRelay
	messages *MessageLog
	rooms    repository.RoomRepository
	users    repository.UserRepository
	seq      *roomSequence
	log      *slog.Logger
}

func NewRoomService(
	rooms repository.RoomRepository,
	users repository.UserRepository,
	roster *Roster,
	registry *ConnectionRegistry,
	relay *SignalRelay,
	messages *MessageLog,
	log *slog.Logger,
) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		roster:   roster,
		registry: registry,
		relay:    relay,
		messages: messages,
		rooms:    rooms,
		users:    users,
		seq:      newRoomSequence(),
		log:      log,
	}
}

// Connect resolves the user behind a fresh transport connection and registers
// the resulting identity-connection pair. The identity is immutable for the
// connection's lifetime.
func (s *RoomService) Connect(ctx context.Context, email string) (*domain.Conn, error) {
	const op = "service.room.connect"

	if email == "" {
		return nil, errors.New("email is required")
	}

	user, err := s.users.FindUser(ctx, email)
	if err != nil {
		s.log.Info("connect rejected", "op", op, "email", email, "details", sl.Err(err))
		return nil, err
	}

	conn := domain.NewConn(user.Identity())
	s.registry.Register(conn)
	s.log.Info("connection registered",
		"op", op,
		"conn_id", conn.ID,
		"email", email,
		"username", user.Username,
	)
	return conn, nil
}

// Join runs the join transition: atomically create-or-join in the roster,
// confirm durably, then notify the joiner and broadcast to the room.
func (s *RoomService) Join(ctx context.Context, conn *domain.Conn, room string, password string) {
	const op = "service.room.join"
	log := s.log.With("op", op, "room", room, "email", conn.Identity.Email)

	if room == "" {
		s.sendError(conn, "room name is required")
		return
	}

	res, err := s.roster.JoinOrCreate(room, conn.Identity, password)
	if err != nil {
		if errors.Is(err, ErrRoomFull) {
			log.Info("room full")
			conn.Enqueue(domain.SignalMessage{
				Type: domain.EventFull,
				Room: room,
				Data: map[string]any{"room": room},
			})
			return
		}
		log.Info("join refused", "details", sl.Err(err))
		s.sendError(conn, err.Error())
		return
	}

	record, err := s.persistJoin(ctx, res, password, conn.Identity)
	if err != nil {
		log.Error("failed to persist join", sl.Err(err))
		s.seq.release(room, res.Seq)
		s.rollbackJoin(res, conn.Identity)
		s.sendError(conn, "could not save room membership")
		return
	}

	// A join racing its own disconnect must not leave a dead member behind.
	if !conn.Alive() {
		log.Info("connection closed mid-join, rolling back")
		s.seq.release(room, res.Seq)
		s.rollbackJoin(res, conn.Identity)
		s.undoPersistedJoin(ctx, record, res, conn.Identity)
		return
	}

	conn.JoinRoom(room)

	if res.Created {
		log.Info("room created", "creator", conn.Identity.DisplayName)
		s.seq.play(room, res.Seq, func() {
			conn.Enqueue(domain.SignalMessage{
				Type: domain.EventCreated,
				Room: room,
				Data: map[string]any{
					"room":         room,
					"username":     conn.Identity.DisplayName,
					"room_details": roomDetails(record, res.Room),
				},
			})
		})
		return
	}

	log.Info("user joined", "username", conn.Identity.DisplayName, "members", len(res.Room.Members))
	s.seq.play(room, res.Seq, func() {
		conn.Enqueue(domain.SignalMessage{
			Type: domain.EventJoined,
			Room: room,
			Data: map[string]any{
				"room":             room,
				"username":         conn.Identity.DisplayName,
				"creator_username": res.Room.Creator.DisplayName,
				"members":          memberNames(res.Room.Members),
				"room_details":     roomDetails(record, res.Room),
			},
		})

		// A repeat join by a current member changed nothing; the room
		// already knows about them.
		if res.AlreadyMember {
			return
		}

		s.broadcast(res.Prior, domain.SignalMessage{
			Type: domain.EventUserJoined,
			Room: room,
			Data: map[string]any{
				"username":     conn.Identity.DisplayName,
				"email":        conn.Identity.Email,
				"room":         room,
				"member_count": len(res.Room.Members),
			},
		})
	})
}

// Leave runs the explicit-leave transition. Leaving a room the connection is
// not in is a silent no-op.
func (s *RoomService) Leave(ctx context.Context, conn *domain.Conn, room string) {
	const op = "service.room.leave"
	log := s.log.With("op", op, "room", room, "email", conn.Identity.Email)

	if room == "" {
		return
	}

	res, ok := s.roster.Leave(room, conn.Identity)
	if !ok {
		return
	}
	conn.LeaveRoom(room)

	if err := s.persistRemoval(ctx, res); err != nil {
		log.Error("failed to persist leave", sl.Err(err))
		s.seq.release(room, res.Seq)
		s.roster.Reinstate(res)
		conn.JoinRoom(room)
		s.sendError(conn, "could not save room membership")
		return
	}

	if res.Deleted {
		s.messages.DropRoom(room)
		log.Info("room deleted, last member left")
	}

	log.Info("user left", "remaining", len(res.Remaining))
	s.seq.play(room, res.Seq, func() {
		s.broadcast(res.Remaining, domain.SignalMessage{
			Type: domain.EventUserLeft,
			Room: room,
			Data: map[string]any{
				"username":     conn.Identity.DisplayName,
				"email":        conn.Identity.Email,
				"room":         room,
				"was_kicked":   false,
				"member_count": len(res.Remaining),
			},
		})
	})
}

// Kick removes the target on behalf of the room creator. The target gets a
// dedicated kicked notice; the rest of the room sees an involuntary
// user-left. Only the target's currently registered connection has its local
// room set cleared; an older tab's set can stay stale, so membership checks
// always read the roster.
func (s *RoomService) Kick(ctx context.Context, conn *domain.Conn, room string, targetEmail string) {
	const op = "service.room.kick"
	log := s.log.With("op", op, "room", room, "target", targetEmail)

	if room == "" || targetEmail == "" {
		s.sendError(conn, "room name and target email are required")
		return
	}

	res, err := s.roster.Kick(room, conn.Identity, targetEmail)
	if err != nil {
		log.Info("kick refused", "details", sl.Err(err))
		s.sendError(conn, err.Error())
		return
	}

	if err := s.persistRemoval(ctx, res); err != nil {
		log.Error("failed to persist kick", sl.Err(err))
		s.seq.release(room, res.Seq)
		s.roster.Reinstate(res)
		s.sendError(conn, "could not save room membership")
		return
	}

	if res.Deleted {
		s.messages.DropRoom(room)
	}

	log.Info("user kicked", "by", conn.Identity.DisplayName)
	s.seq.play(room, res.Seq, func() {
		if target, err := s.registry.Resolve(targetEmail); err == nil {
			target.LeaveRoom(room)
			target.Enqueue(domain.SignalMessage{
				Type: domain.EventKicked,
				Room: room,
				Data: map[string]any{
					"room":      room,
					"by":        conn.Identity.DisplayName,
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				},
			})
		}

		s.broadcast(res.Remaining, domain.SignalMessage{
			Type: domain.EventUserLeft,
			Room: room,
			Data: map[string]any{
				"username":     res.Removed.DisplayName,
				"email":        res.Removed.Email,
				"room":         room,
				"was_kicked":   true,
				"by":           conn.Identity.DisplayName,
				"member_count": len(res.Remaining),
			},
		})
	})
}

// Disconnect cleans up after a closed transport: the registry entry goes,
// and every room the identity belonged to gets exactly one
// user-disconnected broadcast. The connection itself receives nothing.
func (s *RoomService) Disconnect(ctx context.Context, conn *domain.Conn) {
	const op = "service.room.disconnect"
	log := s.log.With("op", op, "conn_id", conn.ID, "email", conn.Identity.Email)

	identity, err := s.registry.Unregister(conn.ID)
	if err != nil {
		// Already evicted as stale; still scrub membership.
		identity = conn.Identity
	}

	results := s.roster.DisconnectCleanup(identity)
	for _, res := range results {
		if err := s.persistRemoval(ctx, res); err != nil {
			// The member is gone either way; reinstating a dead connection
			// would break the liveness invariant, so log and move on.
			log.Error("failed to persist disconnect cleanup", "room", res.Room, sl.Err(err))
		}
		if res.Deleted {
			s.messages.DropRoom(res.Room)
		}

		s.seq.play(res.Room, res.Seq, func() {
			s.broadcast(res.Remaining, domain.SignalMessage{
				Type: domain.EventUserDisconnected,
				Room: res.Room,
				Data: map[string]any{
					"username":     identity.DisplayName,
					"email":        identity.Email,
					"room":         res.Room,
					"member_count": len(res.Remaining),
				},
			})
		})
	}

	log.Info("disconnected", "rooms_cleaned", len(results))
}

// Ready relays a joinee's readiness signal per the star topology.
func (s *RoomService) Ready(conn *domain.Conn, room string) {
	s.relay.RelayReady(room, conn)
}

// ForwardSignal routes an offer, answer or ICE candidate to one target
// connection. The payload is opaque.
func (s *RoomService) ForwardSignal(kind string, payload json.RawMessage, from *domain.Conn, target string) {
	s.relay.RelayToTarget(kind, payload, from, target)
}

// StreamStopped broadcasts a stream teardown notice to the room.
func (s *RoomService) StreamStopped(conn *domain.Conn, room string) {
	s.relay.RelayStreamStopped(room, conn)
}

// SendMessage appends to the room's bounded history and broadcasts to every
// member, the sender included.
func (s *RoomService) SendMessage(ctx context.Context, conn *domain.Conn, room string, text string, timestamp string) {
	const op = "service.room.sendMessage"

	text = strings.TrimSpace(text)
	if room == "" || text == "" {
		return
	}

	// Membership comes from the roster, not the connection's own room set,
	// which can be stale after the identity reconnected from another tab.
	// Checking before the append also keeps a deleted room's history empty.
	snap, ok := s.roster.Snapshot(room)
	if !ok || snap.MemberIndex(conn.Identity) < 0 {
		s.sendError(conn, ErrNotMember.Error())
		return
	}

	var ts time.Time
	if timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, timestamp)
		}
		if err == nil {
			ts = parsed
		}
	}

	msg := domain.NewMessage(room, conn.Identity, text, ts)
	s.messages.Append(room, msg)

	s.log.Info("message sent", "op", op, "room", room, "sender", conn.Identity.DisplayName)
	s.broadcast(snap.Members, domain.SignalMessage{
		Type: domain.EventMessageReceived,
		Room: room,
		Data: messageData(msg),
	})
}

// MessageHistory replies with the room's current buffer; a room without a
// log yields an explicit empty list.
func (s *RoomService) MessageHistory(conn *domain.Conn, room string) {
	history := s.messages.History(room)
	entries := make([]map[string]any, 0, len(history))
	for _, msg := range history {
		entries = append(entries, messageData(msg))
	}

	conn.Enqueue(domain.SignalMessage{
		Type: domain.EventMessageHistory,
		Room: room,
		Data: map[string]any{
			"room":     room,
			"messages": entries,
		},
	})
}

// RoomDetails exposes the durable record plus the live view for the HTTP
// surface.
func (s *RoomService) RoomDetails(ctx context.Context, name string) (*domain.RoomRecord, domain.RoomSnapshot, error) {
	record, err := s.rooms.FindRoom(ctx, name)
	if err != nil {
		return nil, domain.RoomSnapshot{}, err
	}
	snap, _ := s.roster.Snapshot(name)
	return record, snap, nil
}

func (s *RoomService) persistJoin(ctx context.Context, res JoinResult, password string, id domain.Identity) (*domain.RoomRecord, error) {
	if res.Created {
		record := domain.NewRoomRecord(res.Room, password)
		if err := s.rooms.CreateRoom(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	}

	record, err := s.rooms.FindRoom(ctx, res.Room.Name)
	if errors.Is(err, repository.ErrRoomNotFound) {
		// The live table already admitted this join, so a missing row means
		// the racing creator's insert is still in flight. Read once more
		// before giving up.
		record, err = s.rooms.FindRoom(ctx, res.Room.Name)
	}
	if err != nil {
		return nil, err
	}
	if err := s.rooms.AddMember(ctx, record.ID, id); err != nil {
		return nil, err
	}
	return record, nil
}

// rollbackJoin undoes the live side of a failed join. The caller releases the
// join's own ticket first; the compensating removal's ticket is released here.
func (s *RoomService) rollbackJoin(res JoinResult, id domain.Identity) {
	if res.AlreadyMember {
		return
	}
	if undo, ok := s.roster.Leave(res.Room.Name, id); ok {
		s.seq.release(res.Room.Name, undo.Seq)
		if undo.Deleted {
			s.messages.DropRoom(res.Room.Name)
		}
	}
}

// undoPersistedJoin reverses the durable side of a join whose connection died
// before notifications were committed.
func (s *RoomService) undoPersistedJoin(ctx context.Context, record *domain.RoomRecord, res JoinResult, id domain.Identity) {
	var err error
	if res.Created {
		err = s.rooms.DeleteRoom(ctx, record.ID)
	} else if !res.AlreadyMember {
		err = s.rooms.RemoveMember(ctx, record.ID, id)
	}
	if err != nil {
		s.log.Error("failed to undo persisted join", "room", res.Room.Name, sl.Err(err))
	}
}

func (s *RoomService) persistRemoval(ctx context.Context, res LeaveResult) error {
	record, err := s.rooms.FindRoom(ctx, res.Room)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil
		}
		return err
	}

	if err := s.rooms.RemoveMember(ctx, record.ID, res.Removed); err != nil {
		return err
	}
	if res.Deleted {
		return s.rooms.DeleteRoom(ctx, record.ID)
	}
	return nil
}

func (s *RoomService) broadcast(members []domain.Identity, msg domain.SignalMessage) {
	for _, member := range members {
		conn, err := s.registry.Resolve(member.Email)
		if err != nil {
			continue
		}
		if !conn.Enqueue(msg) {
			s.log.Debug("dropping broadcast event",
				slog.String("email", member.Email),
				slog.String("type", msg.Type),
			)
		}
	}
}

func (s *RoomService) sendError(conn *domain.Conn, message string) {
	conn.Enqueue(domain.SignalMessage{
		Type: domain.EventError,
		Data: map[string]any{"message": message},
	})
}

func roomDetails(record *domain.RoomRecord, snap domain.RoomSnapshot) map[string]any {
	return map[string]any{
		"id":           record.ID.String(),
		"room":         record.Name,
		"created_by":   record.CreatedBy,
		"members":      memberNames(snap.Members),
		"member_count": len(snap.Members),
		"created_at":   record.CreatedAt.Format(time.RFC3339),
		"updated_at":   record.UpdatedAt.Format(time.RFC3339),
	}
}

func memberNames(members []domain.Identity) []string {
	return lo.Map(members, func(m domain.Identity, _ int) string {
		return m.DisplayName
	})
}

func messageData(msg domain.Message) map[string]any {
	return map[string]any{
		"id":           msg.ID.String(),
		"room":         msg.Room,
		"sender":       msg.Sender.DisplayName,
		"sender_email": msg.Sender.Email,
		"text":         msg.Text,
		"timestamp":    msg.Timestamp.Format(time.RFC3339Nano),
	}
}
