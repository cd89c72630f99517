package chathub_test

import (
	"context"
	"sync"
	"time"

	"chatline/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockClient records delivered events in memory.
type MockClient struct {
	userID string

	mu       sync.Mutex
	events   []models.Event
	capacity int
	closed   bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{userID: userID, capacity: 64}
}

func (c *MockClient) GetUserID() string { return c.userID }

func (c *MockClient) Deliver(evt models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.events) >= c.capacity {
		return false
	}
	c.events = append(c.events, evt)
	return true
}

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) Events() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Event(nil), c.events...)
}

// Named returns the delivered events with the given name.
func (c *MockClient) Named(name string) []models.Event {
	var out []models.Event
	for _, e := range c.Events() {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type MockLastSeen struct {
	mock.Mock
}

func (m *MockLastSeen) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockMirror) Online(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockMirror) Offline(ctx context.Context, userID string, at time.Time) error {
	return m.Called(ctx, userID, at).Error(0)
}
