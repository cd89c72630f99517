package models

import "time"

// LastMessage is the preview of the latest message between two users.
type LastMessage struct {
	ID        string    `json:"_id" bson:"_id"`
	Text      string    `json:"text,omitempty" bson:"text,omitempty"`
	Image     string    `json:"image,omitempty" bson:"image,omitempty"`
	SenderID  string    `json:"senderId" bson:"senderId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Contact is an entry of the sidebar: another user plus the latest message
// exchanged with the viewer, nil when they never talked.
type Contact struct {
	User        `bson:",inline"`
	LastMessage *LastMessage `json:"lastMessage" bson:"lastMessage,omitempty"`
}

// PreviewOf returns the sidebar preview of m.
func PreviewOf(m *Message) *LastMessage {
	if m == nil {
		return nil
	}
	return &LastMessage{
		ID:        m.ID,
		Text:      m.Text,
		Image:     m.Image,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
	}
}
