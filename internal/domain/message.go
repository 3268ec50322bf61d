package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one chat entry in a room's bounded history.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Room      string    `json:"room"`
	Sender    Identity  `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a chat message with a server-side id. A zero timestamp
// means the client supplied none and the server clock is used.
func NewMessage(room string, sender Identity, text string, timestamp time.Time) Message {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	return Message{
		ID:        uuid.New(),
		Room:      room,
		Sender:    sender,
		Text:      text,
		Timestamp: timestamp.UTC(),
	}
}
