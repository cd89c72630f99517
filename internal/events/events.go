// Package events publishes message lifecycle events for downstream
// consumers. Publishing is best-effort and never affects the operation that
// produced the event.
package events

import (
	"context"
	"time"
)

const (
	TypeMessageCreated      = "message.created"
	TypeMessageEdited       = "message.edited"
	TypeMessageDeleted      = "message.deleted"
	TypeMessagesSeen        = "messages.seen"
	TypeReactionToggled     = "message.reaction"
	TypeConversationCleared = "conversation.cleared"
)

// MessageEvent is the payload written to the topic.
type MessageEvent struct {
	Type       string    `json:"type"`
	MessageID  string    `json:"messageId,omitempty"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Count      int64     `json:"count,omitempty"`
	At         time.Time `json:"at"`
}

// Key partitions events by conversation so one pair stays ordered.
func (e MessageEvent) Key() string {
	a, b := e.SenderID, e.ReceiverID
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

type Publisher interface {
	Publish(ctx context.Context, evt MessageEvent) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(ctx context.Context, evt MessageEvent) error { return nil }

func (Noop) Close() error { return nil }
