package service

import (
	"sync"

	"streamspace/internal/domain"
)

// HistoryLimit is how many chat messages a room retains; the oldest entry is
// evicted when a new one would exceed it.
const HistoryLimit = 100

// MessageLog keeps a bounded FIFO of chat messages per room, independent of
// WebRTC signaling. The log for a room disappears with the room.
type MessageLog struct {
	mu    sync.Mutex
	rooms map[string][]domain.Message
	limit int
}

func NewMessageLog(limit int) *MessageLog {
	if limit <= 0 {
		limit = HistoryLimit
	}
	return &MessageLog{
		rooms: make(map[string][]domain.Message),
		limit: limit,
	}
}

func (l *MessageLog) Append(room string, msg domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := append(l.rooms[room], msg)
	if len(buf) > l.limit {
		buf = buf[1:]
	}
	l.rooms[room] = buf
}

// History returns the room's buffer in arrival order. A room with no log
// yields an empty slice, never an error.
func (l *MessageLog) History(room string) []domain.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.rooms[room]
	out := make([]domain.Message, len(buf))
	copy(out, buf)
	return out
}

// DropRoom discards the room's history, called when membership empties.
func (l *MessageLog) DropRoom(room string) {
	l.mu.Lock()
	delete(l.rooms, room)
	l.mu.Unlock()
}
