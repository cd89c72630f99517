// Package storage persists users and messages. Drivers: mongo (primary),
// postgres through GORM, and an in-memory store for tests and local runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatline/backend/internal/config"
	"chatline/backend/internal/models"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrDuplicate = errors.New("storage: duplicate key")
)

type UserStore interface {
	// CreateUser inserts u, assigning its ID. ErrDuplicate when the email is taken.
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
	// ListContacts returns every user except viewerID with the latest message
	// exchanged with the viewer.
	ListContacts(ctx context.Context, viewerID string) ([]models.Contact, error)
	// ListUsersByIDs skips ids that do not exist.
	ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type MessageStore interface {
	// CreateMessage inserts m, assigning ID and timestamps.
	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error)
	// ListConversation returns the messages between a and b in either
	// direction, oldest first. Equal timestamps keep insertion order.
	ListConversation(ctx context.Context, a, b string) ([]models.Message, error)
	// MarkSeen flags every unseen message from sender to receiver as seen and
	// returns how many changed.
	MarkSeen(ctx context.Context, senderID, receiverID string) (int64, error)
	// UpdateText rewrites the text of id if senderID sent it. ErrNotFound
	// covers both a missing message and a foreign one.
	UpdateText(ctx context.Context, id, senderID, text string) (*models.Message, error)
	// ToggleReaction applies models.ToggleReaction atomically per message.
	ToggleReaction(ctx context.Context, id, userID, emoji string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, a, b string) (int64, error)
}

type Storage interface {
	UserStore
	MessageStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Storage, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return OpenMongo(ctx, cfg)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
