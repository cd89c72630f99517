package models

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the real-time channel.
const (
	EventNewMessage        = "newMessage"
	EventMessageDeleted    = "messageDeleted"
	EventMessageUpdate     = "messageUpdate"
	EventMessageReaction   = "messageReaction"
	EventMessagesSeen      = "messagesSeen"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserOffline       = "userOffline"
	EventGetOnlineUsers    = "getOnlineUsers"

	// inbound from clients
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
)

// Event is one frame pushed to a client.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// InboundFrame is one frame read from a client. Data is decoded per event.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TypingPayload is carried by typing and stopTyping frames.
type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// TypingNotice is relayed to the receiver of a typing indicator.
type TypingNotice struct {
	SenderID string `json:"senderId"`
}

type SeenPayload struct {
	SeenBy string `json:"seenBy"`
}

type ReactionPayload struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

type DeletedPayload struct {
	MessageID string `json:"messageId"`
}

type OfflinePayload struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

// NewEvent builds an outbound frame.
func NewEvent(name string, data any) Event {
	return Event{Event: name, Data: data}
}
