package service

import (
	"log/slog"
	"sync"

	"streamspace/internal/domain"
)

// ConnectionRegistry maps participants to their live connections. The
// identity direction is last-write-wins: a user reconnecting from a new tab
// takes over the email mapping while the old connection stays registered by
// id until it disconnects or a lookup notices its transport is dead.
type ConnectionRegistry struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Conn
	byEmail map[string]string
	log     *slog.Logger
}

func NewConnectionRegistry(log *slog.Logger) *ConnectionRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &ConnectionRegistry{
		byID:    make(map[string]*domain.Conn),
		byEmail: make(map[string]string),
		log:     log,
	}
}

func (r *ConnectionRegistry) Register(conn *domain.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[conn.ID] = conn
	r.byEmail[conn.Identity.Email] = conn.ID
}

// Resolve returns the live connection for an identity. A mapping whose
// transport already closed is a recognized race; the entry is evicted and the
// lookup reports ErrConnNotFound.
func (r *ConnectionRegistry) Resolve(email string) (*domain.Conn, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	conn := r.byID[id]
	r.mu.RUnlock()

	if !ok || conn == nil {
		return nil, ErrConnNotFound
	}
	if !conn.Alive() {
		r.evict(conn.ID)
		r.log.Debug("evicted stale connection", slog.String("email", email), slog.String("conn_id", conn.ID))
		return nil, ErrConnNotFound
	}
	return conn, nil
}

// ResolveID returns the live connection with the given id, used for targeted
// signal relay where clients address each other by connection reference.
func (r *ConnectionRegistry) ResolveID(connID string) (*domain.Conn, error) {
	r.mu.RLock()
	conn := r.byID[connID]
	r.mu.RUnlock()

	if conn == nil {
		return nil, ErrConnNotFound
	}
	if !conn.Alive() {
		r.evict(connID)
		return nil, ErrConnNotFound
	}
	return conn, nil
}

// Unregister drops the connection and returns the identity it carried. The
// email mapping is removed only if it still points at this connection, so a
// newer tab's registration survives the old tab's disconnect.
func (r *ConnectionRegistry) Unregister(connID string) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[connID]
	if !ok {
		return domain.Identity{}, ErrConnNotFound
	}

	delete(r.byID, connID)
	if r.byEmail[conn.Identity.Email] == connID {
		delete(r.byEmail, conn.Identity.Email)
	}
	return conn.Identity, nil
}

func (r *ConnectionRegistry) evict(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[connID]
	if !ok {
		return
	}
	delete(r.byID, connID)
	if r.byEmail[conn.Identity.Email] == connID {
		delete(r.byEmail, conn.Identity.Email)
	}
}
