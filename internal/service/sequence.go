package service

import "sync"

// roomSequence gates notification delivery so each room's events go out in
// live-table commit order even when the store confirms commits out of order.
// The roster issues a ticket per committed transition; play blocks until
// every earlier ticket for the room has been played or released. Rooms are
// independent of each other.
type roomSequence struct {
	mu   sync.Mutex
	cond *sync.Cond
	done map[string]uint64
}

func newRoomSequence() *roomSequence {
	s := &roomSequence{done: make(map[string]uint64)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// play waits for the ticket's turn, runs fn, and retires the ticket. A zero
// ticket carries no ordering obligation and fn runs immediately.
func (s *roomSequence) play(room string, ticket uint64, fn func()) {
	if ticket == 0 {
		if fn != nil {
			fn()
		}
		return
	}

	s.mu.Lock()
	for s.done[room] != ticket-1 {
		s.cond.Wait()
	}
	s.mu.Unlock()

	if fn != nil {
		fn()
	}

	s.mu.Lock()
	s.done[room] = ticket
	s.mu.Unlock()
	s.cond.Broadcast()
}

// release retires the ticket of a rolled-back transition without emitting
// anything, so later tickets do not wait on it forever.
func (s *roomSequence) release(room string, ticket uint64) {
	s.play(room, ticket, nil)
}
