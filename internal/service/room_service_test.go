package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"streamspace/internal/domain"
	"streamspace/internal/repository"
)

// flakyRoomRepository lets tests fail or stall individual store calls to
// exercise the rollback and ordering paths.
type flakyRoomRepository struct {
	*repository.InMemoryRoomRepository
	failCreate   bool
	failAdd      bool
	failRemove   bool
	missFindOnce bool
	holdAdd      map[string]chan struct{}
}

var errStoreDown = errors.New("store down")

func (r *flakyRoomRepository) FindRoom(ctx context.Context, name string) (*domain.RoomRecord, error) {
	if r.missFindOnce {
		r.missFindOnce = false
		return nil, repository.ErrRoomNotFound
	}
	return r.InMemoryRoomRepository.FindRoom(ctx, name)
}

func (r *flakyRoomRepository) CreateRoom(ctx context.Context, record *domain.RoomRecord) error {
	if r.failCreate {
		return errStoreDown
	}
	return r.InMemoryRoomRepository.CreateRoom(ctx, record)
}

func (r *flakyRoomRepository) AddMember(ctx context.Context, roomID uuid.UUID, member domain.Identity) error {
	if r.failAdd {
		return errStoreDown
	}
	if gate, ok := r.holdAdd[member.Email]; ok {
		<-gate
	}
	return r.InMemoryRoomRepository.AddMember(ctx, roomID, member)
}

func (r *flakyRoomRepository) RemoveMember(ctx context.Context, roomID uuid.UUID, member domain.Identity) error {
	if r.failRemove {
		return errStoreDown
	}
	return r.InMemoryRoomRepository.RemoveMember(ctx, roomID, member)
}

type testEnv struct {
	svc      *RoomService
	roster   *Roster
	registry *ConnectionRegistry
	messages *MessageLog
	rooms    *flakyRoomRepository
	users    *repository.InMemoryUserRepository
}

func newTestEnv(t *testing.T, capacity int) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	rooms := &flakyRoomRepository{InMemoryRoomRepository: repository.NewInMemoryRoomRepository()}
	users := repository.NewInMemoryUserRepository()
	for _, id := range []domain.Identity{alice, bob, carol} {
		user := domain.NewUser(id.DisplayName, id.Email)
		require.NoError(t, users.CreateUser(context.Background(), user))
	}

	registry := NewConnectionRegistry(log)
	roster := NewRoster(capacity)
	relay := NewSignalRelay(registry, roster, log)
	messages := NewMessageLog(0)

	return &testEnv{
		svc:      NewRoomService(rooms, users, roster, registry, relay, messages, log),
		roster:   roster,
		registry: registry,
		messages: messages,
		rooms:    rooms,
		users:    users,
	}
}

func (e *testEnv) connect(t *testing.T, email string) *domain.Conn {
	t.Helper()
	conn, err := e.svc.Connect(context.Background(), email)
	require.NoError(t, err)
	return conn
}

func eventsOfType(events []domain.SignalMessage, typ string) []domain.SignalMessage {
	var out []domain.SignalMessage
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestCoordinator_CreateJoinKickLeaveScenario(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	// A joins a fresh room and becomes creator.
	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")

	aEvents := drainEvents(a)
	require.Len(t, aEvents, 1)
	require.Equal(t, domain.EventCreated, aEvents[0].Type)
	require.Equal(t, "demo", aEvents[0].Data["room"])

	details, ok := aEvents[0].Data["room_details"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 1, details["member_count"])
	require.Equal(t, alice.Email, details["created_by"])

	// B joins and both sides hear about it.
	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "demo", "")

	bEvents := drainEvents(b)
	require.Len(t, bEvents, 1)
	require.Equal(t, domain.EventJoined, bEvents[0].Type)
	require.Equal(t, alice.DisplayName, bEvents[0].Data["creator_username"])
	require.Equal(t, []string{alice.DisplayName, bob.DisplayName}, bEvents[0].Data["members"])

	aEvents = drainEvents(a)
	require.Len(t, aEvents, 1)
	require.Equal(t, domain.EventUserJoined, aEvents[0].Type)
	require.Equal(t, bob.Email, aEvents[0].Data["email"])
	require.Equal(t, 2, aEvents[0].Data["member_count"])

	// A kicks B.
	env.svc.Kick(ctx, a, "demo", bob.Email)

	bEvents = drainEvents(b)
	require.Len(t, bEvents, 1)
	require.Equal(t, domain.EventKicked, bEvents[0].Type)
	require.Equal(t, alice.DisplayName, bEvents[0].Data["by"])
	require.False(t, b.InRoom("demo"))

	aEvents = drainEvents(a)
	require.Len(t, aEvents, 1)
	require.Equal(t, domain.EventUserLeft, aEvents[0].Type)
	require.Equal(t, true, aEvents[0].Data["was_kicked"])
	require.Equal(t, alice.DisplayName, aEvents[0].Data["by"])

	snap, ok := env.roster.Snapshot("demo")
	require.True(t, ok)
	require.Equal(t, []domain.Identity{alice}, snap.Members)

	record, err := env.rooms.FindRoom(ctx, "demo")
	require.NoError(t, err)
	require.Equal(t, []domain.Identity{alice}, record.Members)

	// A leaves; the room and its history cease to exist everywhere.
	env.svc.Leave(ctx, a, "demo")

	_, ok = env.roster.Snapshot("demo")
	require.False(t, ok)
	_, err = env.rooms.FindRoom(ctx, "demo")
	require.ErrorIs(t, err, repository.ErrRoomNotFound)

	env.svc.MessageHistory(a, "demo")
	aEvents = drainEvents(a)
	require.Len(t, aEvents, 1)
	require.Equal(t, domain.EventMessageHistory, aEvents[0].Type)
	require.Empty(t, aEvents[0].Data["messages"])
}

func TestCoordinator_FullRoomGetsDedicatedEvent(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")
	drainEvents(a)

	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "demo", "")

	bEvents := drainEvents(b)
	require.Len(t, bEvents, 1)
	require.Equal(t, domain.EventFull, bEvents[0].Type)
	require.False(t, b.InRoom("demo"))

	snap, _ := env.roster.Snapshot("demo")
	require.Len(t, snap.Members, 1)
}

func TestCoordinator_WrongPasswordLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "secret")
	drainEvents(a)

	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "demo", "wrong")

	bEvents := drainEvents(b)
	require.Len(t, bEvents, 1)
	require.Equal(t, domain.EventError, bEvents[0].Type)

	record, err := env.rooms.FindRoom(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, record.Members, 1)
	require.Empty(t, drainEvents(a))
}

func TestCoordinator_ConnectUnknownUser(t *testing.T) {
	env := newTestEnv(t, 0)

	_, err := env.svc.Connect(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestCoordinator_CreateRollsBackWhenStoreFails(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	env.rooms.failCreate = true

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")

	aEvents := drainEvents(a)
	require.Len(t, aEvents, 1)
	require.Equal(t, domain.EventError, aEvents[0].Type)
	require.False(t, a.InRoom("demo"))

	_, ok := env.roster.Snapshot("demo")
	require.False(t, ok)

	// Once the store recovers the same name is creatable again.
	env.rooms.failCreate = false
	env.svc.Join(ctx, a, "demo", "")
	aEvents = drainEvents(a)
	require.Len(t, aEvents, 1)
	require.Equal(t, domain.EventCreated, aEvents[0].Type)
}

func TestCoordinator_JoinRollsBackWhenStoreFails(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")
	drainEvents(a)

	env.rooms.failAdd = true

	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "demo", "")

	bEvents := drainEvents(b)
	require.Len(t, bEvents, 1)
	require.Equal(t, domain.EventError, bEvents[0].Type)

	snap, _ := env.roster.Snapshot("demo")
	require.Equal(t, []domain.Identity{alice}, snap.Members)
	require.Empty(t, drainEvents(a))
}

func TestCoordinator_LeaveReinstatedWhenStoreFails(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")
	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "demo", "")
	drainEvents(a)
	drainEvents(b)

	env.rooms.failRemove = true
	env.svc.Leave(ctx, b, "demo")

	bEvents := drainEvents(b)
	require.Len(t, bEvents, 1)
	require.Equal(t, domain.EventError, bEvents[0].Type)
	require.True(t, b.InRoom("demo"))

	snap, _ := env.roster.Snapshot("demo")
	require.Equal(t, []domain.Identity{alice, bob}, snap.Members)
	require.Empty(t, drainEvents(a))
}

func TestCoordinator_RepeatJoinDoesNotRebroadcast(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")
	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "demo", "")
	drainEvents(a)
	drainEvents(b)

	env.svc.Join(ctx, b, "demo", "")

	bEvents := drainEvents(b)
	require.Len(t, bEvents, 1)
	require.Equal(t, domain.EventJoined, bEvents[0].Type)
	require.Empty(t, drainEvents(a))

	snap, _ := env.roster.Snapshot("demo")
	require.Len(t, snap.Members, 2)
}

func TestCoordinator_JoinCancelledByDisconnect(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	a.Close()

	env.svc.Join(ctx, a, "demo", "")

	_, ok := env.roster.Snapshot("demo")
	require.False(t, ok)
	_, err := env.rooms.FindRoom(ctx, "demo")
	require.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestCoordinator_DisconnectBroadcastsOncePerRoom(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "one", "")
	env.svc.Join(ctx, a, "two", "")

	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "one", "")
	env.svc.Join(ctx, b, "two", "")
	drainEvents(a)
	drainEvents(b)

	env.svc.Disconnect(ctx, b)

	aEvents := drainEvents(a)
	disconnects := eventsOfType(aEvents, domain.EventUserDisconnected)
	require.Len(t, disconnects, 2)

	rooms := map[string]bool{}
	for _, e := range disconnects {
		rooms[e.Room] = true
		require.Equal(t, bob.Email, e.Data["email"])
		require.Equal(t, 1, e.Data["member_count"])
	}
	require.True(t, rooms["one"])
	require.True(t, rooms["two"])

	_, err := env.registry.Resolve(bob.Email)
	require.ErrorIs(t, err, ErrConnNotFound)

	record, err := env.rooms.FindRoom(ctx, "one")
	require.NoError(t, err)
	require.Equal(t, []domain.Identity{alice}, record.Members)
}

func TestCoordinator_SendMessageBroadcastsAndRecords(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")
	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "demo", "")
	drainEvents(a)
	drainEvents(b)

	env.svc.SendMessage(ctx, a, "demo", "  hello room  ", "")

	for _, conn := range []*domain.Conn{a, b} {
		events := drainEvents(conn)
		require.Len(t, events, 1)
		require.Equal(t, domain.EventMessageReceived, events[0].Type)
		require.Equal(t, "hello room", events[0].Data["text"])
		require.Equal(t, alice.DisplayName, events[0].Data["sender"])
	}

	history := env.messages.History("demo")
	require.Len(t, history, 1)
	require.Equal(t, "hello room", history[0].Text)
}

func TestCoordinator_NotificationsFollowCommitOrder(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")
	drainEvents(a)

	// Bob's store write stalls until the gate opens; carol's completes
	// immediately. Bob commits to the roster first, so his notification has
	// to go out first regardless.
	gate := make(chan struct{})
	env.rooms.holdAdd = map[string]chan struct{}{bob.Email: gate}

	b := env.connect(t, bob.Email)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		env.svc.Join(ctx, b, "demo", "")
	}()

	require.Eventually(t, func() bool {
		snap, ok := env.roster.Snapshot("demo")
		return ok && len(snap.Members) == 2
	}, time.Second, 5*time.Millisecond)

	c := env.connect(t, carol.Email)
	wg.Add(1)
	go func() {
		defer wg.Done()
		env.svc.Join(ctx, c, "demo", "")
	}()

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, drainEvents(a))

	close(gate)
	wg.Wait()

	joins := eventsOfType(drainEvents(a), domain.EventUserJoined)
	require.Len(t, joins, 2)
	require.Equal(t, bob.Email, joins[0].Data["email"])
	require.Equal(t, carol.Email, joins[1].Data["email"])
}

func TestCoordinator_JoinSurvivesCreatorInsertInFlight(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")
	drainEvents(a)

	// The joinee's first read misses the row the creator is still writing.
	env.rooms.missFindOnce = true

	b := env.connect(t, bob.Email)
	env.svc.Join(ctx, b, "demo", "")

	bEvents := drainEvents(b)
	require.Len(t, bEvents, 1)
	require.Equal(t, domain.EventJoined, bEvents[0].Type)

	record, err := env.rooms.FindRoom(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, record.Members, 2)
}

func TestCoordinator_SendMessageAfterRoomDeleted(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	tab1 := env.connect(t, alice.Email)
	env.svc.Join(ctx, tab1, "demo", "")
	env.svc.SendMessage(ctx, tab1, "demo", "hello", "")
	drainEvents(tab1)

	// A second tab for the same identity repeat-joins, then the first tab's
	// disconnect empties the room. The second tab's local room set still
	// claims membership.
	tab2 := env.connect(t, alice.Email)
	env.svc.Join(ctx, tab2, "demo", "")
	drainEvents(tab2)

	tab1.Close()
	env.svc.Disconnect(ctx, tab1)

	require.True(t, tab2.InRoom("demo"))
	env.svc.SendMessage(ctx, tab2, "demo", "ghost", "")

	events := drainEvents(tab2)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventError, events[0].Type)
	require.Empty(t, env.messages.History("demo"))
}

func TestCoordinator_KickedUserOldTabCannotChat(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")

	oldTab := env.connect(t, bob.Email)
	env.svc.Join(ctx, oldTab, "demo", "")
	newTab := env.connect(t, bob.Email)
	env.svc.Join(ctx, newTab, "demo", "")
	drainEvents(a)
	drainEvents(oldTab)
	drainEvents(newTab)

	env.svc.Kick(ctx, a, "demo", bob.Email)

	// Only the registered tab's local room set is cleared.
	require.True(t, oldTab.InRoom("demo"))
	require.False(t, newTab.InRoom("demo"))

	env.svc.SendMessage(ctx, oldTab, "demo", "still here", "")

	events := drainEvents(oldTab)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventError, events[0].Type)
	require.Empty(t, env.messages.History("demo"))
}

func TestCoordinator_SendMessageRequiresMembership(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	a := env.connect(t, alice.Email)
	env.svc.Join(ctx, a, "demo", "")
	drainEvents(a)

	c := env.connect(t, carol.Email)
	env.svc.SendMessage(ctx, c, "demo", "hi", "")

	cEvents := drainEvents(c)
	require.Len(t, cEvents, 1)
	require.Equal(t, domain.EventError, cEvents[0].Type)
	require.Empty(t, env.messages.History("demo"))
	require.Empty(t, drainEvents(a))
}
