package domain

import "encoding/json"

// Signal and membership event types carried over the websocket. The server
// never looks inside Payload for the WebRTC types; SDP and ICE blobs are
// routed as-is.
const (
	// client -> server
	SignalJoin           = "join"
	SignalLeaveRoom      = "leaveRoom"
	SignalKickUser       = "kick-user"
	SignalReady          = "ready"
	SignalOffer          = "offer"
	SignalAnswer         = "answer"
	SignalICECandidate   = "ice-candidate"
	SignalStreamStopped  = "stream-stopped"
	SignalSendMessage    = "send-message"
	SignalMessageHistory = "request-message-history"

	// server -> client
	EventCreated          = "created"
	EventJoined           = "joined"
	EventFull             = "full"
	EventError            = "error"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventUserDisconnected = "user-disconnected"
	EventKicked           = "kicked"
	EventMessageReceived  = "message-received"
	EventMessageHistory   = "message-history"
)

// SignalMessage is the JSON envelope for every websocket frame, both
// directions. Which fields are set depends on Type:
//
//   - offer/answer/ice-candidate carry an opaque Payload and Target, the
//     recipient's connection id;
//   - kick-user carries the target's email in Target;
//   - send-message carries Text and an optional client Timestamp;
//   - server events put their structured fields in Data.
type SignalMessage struct {
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Target    string          `json:"target,omitempty"`
	Password  string          `json:"password,omitempty"`
	Text      string          `json:"text,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
}
