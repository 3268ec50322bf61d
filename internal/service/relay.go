package service

import (
	"encoding/json"
	"log/slog"

	"streamspace/internal/domain"
)

// SignalRelay routes WebRTC handshake traffic between room members. It keeps
// no state of its own; membership comes from the roster and live connections
// from the registry. Payloads are opaque and never inspected.
type SignalRelay struct {
	registry *ConnectionRegistry
	roster   *Roster
	log      *slog.Logger
}

func NewSignalRelay(registry *ConnectionRegistry, roster *Roster, log *slog.Logger) *SignalRelay {
	if log == nil {
		log = slog.Default()
	}
	return &SignalRelay{registry: registry, roster: roster, log: log}
}

// RelayReady fans a readiness signal to every other live member of the room.
// The topology is a star with the creator as sole media source, so only
// joinees announce readiness; a ready from the creator is dropped.
func (r *SignalRelay) RelayReady(room string, from *domain.Conn) {
	snap, ok := r.roster.Snapshot(room)
	if !ok {
		r.log.Debug("ready for unknown room", slog.String("room", room))
		return
	}
	if snap.Creator.Equal(from.Identity) {
		r.log.Debug("dropping ready from creator", slog.String("room", room))
		return
	}

	r.fanOut(snap, from, domain.SignalMessage{
		Type:   domain.SignalReady,
		Room:   room,
		Sender: from.ID,
		Data: map[string]any{
			"email":    from.Identity.Email,
			"username": from.Identity.DisplayName,
		},
	})
}

// RelayToTarget forwards an offer, answer or ICE candidate to exactly one
// connection. An unresolvable target means the peer left or went stale; the
// signal is dropped and logged, never retried.
func (r *SignalRelay) RelayToTarget(kind string, payload json.RawMessage, from *domain.Conn, targetID string) {
	target, err := r.registry.ResolveID(targetID)
	if err != nil {
		r.log.Debug("dropping signal, target gone",
			slog.String("kind", kind),
			slog.String("target", targetID),
		)
		return
	}

	msg := domain.SignalMessage{
		Type:    kind,
		Sender:  from.ID,
		Payload: payload,
	}
	if kind != domain.SignalICECandidate {
		msg.Data = map[string]any{
			"email":    from.Identity.Email,
			"username": from.Identity.DisplayName,
		}
	}
	target.Enqueue(msg)
}

// RelayStreamStopped tells the rest of the room that the sender stopped
// publishing.
func (r *SignalRelay) RelayStreamStopped(room string, from *domain.Conn) {
	snap, ok := r.roster.Snapshot(room)
	if !ok {
		return
	}
	r.fanOut(snap, from, domain.SignalMessage{
		Type:   domain.SignalStreamStopped,
		Room:   room,
		Sender: from.ID,
	})
}

func (r *SignalRelay) fanOut(snap domain.RoomSnapshot, from *domain.Conn, msg domain.SignalMessage) {
	for _, member := range snap.Members {
		if member.Equal(from.Identity) {
			continue
		}
		conn, err := r.registry.Resolve(member.Email)
		if err != nil {
			continue
		}
		conn.Enqueue(msg)
	}
}
