package domain

import (
	"sync"

	"github.com/google/uuid"
)

const eventBufferSize = 32

// Conn is the live view of one websocket connection. The identity is fixed at
// construction; the joined-room set and the outbound event queue are the only
// mutable parts. Events are delivered through a buffered channel drained by
// the connection's write pump, so enqueueing never blocks room-level work.
type Conn struct {
	ID       string
	Identity Identity

	mu     sync.RWMutex
	rooms  map[string]struct{}
	events chan SignalMessage
	closed bool
}

func NewConn(identity Identity) *Conn {
	return &Conn{
		ID:       uuid.New().String(),
		Identity: identity,
		rooms:    make(map[string]struct{}),
		events:   make(chan SignalMessage, eventBufferSize),
	}
}

// Events exposes the outbound queue for the write pump.
func (c *Conn) Events() <-chan SignalMessage {
	return c.events
}

// Enqueue offers an event to the connection without blocking. It reports
// false when the connection is closed or the buffer is full; callers treat a
// dropped event as a slow or dead consumer, not an error.
func (c *Conn) Enqueue(msg SignalMessage) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.events <- msg:
		return true
	default:
		return false
	}
}

// Close marks the connection dead and closes the event queue. Safe to call
// more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *Conn) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *Conn) JoinRoom(name string) {
	c.mu.Lock()
	c.rooms[name] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) LeaveRoom(name string) {
	c.mu.Lock()
	delete(c.rooms, name)
	c.mu.Unlock()
}

func (c *Conn) InRoom(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[name]
	return ok
}

func (c *Conn) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		rooms = append(rooms, name)
	}
	return rooms
}
