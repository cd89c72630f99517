package chathub

import (
	"sync/atomic"

	"chatline/backend/internal/models"
)

// Client is one live connection of a user. The hub only ever talks to it
// through this interface, so transports other than WebSocket can register.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string
	// Deliver enqueues evt for sending without blocking. It returns false when
	// the send buffer is full or the client is already closed; the event is
	// then dropped.
	Deliver(evt models.Event) bool
	// Run starts the client's read and write pumps.
	Run()
	// Close releases the client. It is safe to call more than once.
	Close()
}

// ConnState is the lifecycle of a connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// connState is an atomically updated ConnState that only moves forward.
type connState struct {
	v atomic.Int32
}

func (s *connState) load() ConnState { return ConnState(s.v.Load()) }

// advance moves to next if it is later than the current state.
func (s *connState) advance(next ConnState) bool {
	for {
		cur := s.v.Load()
		if ConnState(cur) >= next {
			return false
		}
		if s.v.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}
