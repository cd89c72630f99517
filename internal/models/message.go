package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Reaction is one user's emoji on a message. A message holds at most one
// Reaction per user.
type Reaction struct {
	UserID string `json:"userId" bson:"userId"`
	Emoji  string `json:"emoji" bson:"emoji"`
}

// Message is a single direct message between two users.
type Message struct {
	ID         string     `gorm:"primaryKey;type:varchar(32)" json:"_id" bson:"_id"`
	SenderID   string     `gorm:"type:varchar(32);not null;index:idx_messages_pair,priority:1" json:"senderId" bson:"senderId"`
	ReceiverID string     `gorm:"type:varchar(32);not null;index:idx_messages_pair,priority:2" json:"receiverId" bson:"receiverId"`
	Text       string     `json:"text,omitempty" bson:"text,omitempty"`
	Image      string     `json:"image,omitempty" bson:"image,omitempty"`
	ReplyTo    *string    `gorm:"type:varchar(32);index" json:"-" bson:"replyTo,omitempty"`
	IsSeen     bool       `gorm:"not null;default:false" json:"isSeen" bson:"isSeen"`
	IsEdited   bool       `gorm:"not null;default:false" json:"isEdited" bson:"isEdited"`
	Reactions  []Reaction `gorm:"type:text;serializer:json" json:"reactions" bson:"reactions"`
	CreatedAt  time.Time  `gorm:"index:idx_messages_pair,priority:3" json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// BeforeCreate is a GORM hook that assigns a time-ordered ID.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	return
}

// HasContent reports whether the message carries text or an image.
func (m *Message) HasContent() bool {
	return strings.TrimSpace(m.Text) != "" || m.Image != ""
}

// Involves reports whether the message belongs to the conversation of a and b.
func (m *Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Peer returns the participant that is not userID. For a self-message both
// participants are userID.
func (m *Message) Peer(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ReplyPreview is the expanded form of a reply-to reference. Missing is set
// when the referenced message no longer exists.
type ReplyPreview struct {
	ID      string `json:"_id"`
	Text    string `json:"text,omitempty"`
	Image   string `json:"image,omitempty"`
	Missing bool   `json:"missing,omitempty"`
}

// MessageView is a message as returned to clients, with its reply-to
// reference expanded.
type MessageView struct {
	Message
	ReplyTo *ReplyPreview `json:"replyTo"`
}

// ToggleReaction applies the one-reaction-per-user rule: no reaction from
// userID appends one, the same emoji removes it and a different emoji replaces
// it in place. The input slice is not modified.
func ToggleReaction(reactions []Reaction, userID, emoji string) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.UserID != userID {
			out = append(out, r)
			continue
		}
		if found {
			// collapse duplicates left by older data
			continue
		}
		found = true
		if r.Emoji != emoji {
			out = append(out, Reaction{UserID: userID, Emoji: emoji})
		}
	}
	if !found {
		out = append(out, Reaction{UserID: userID, Emoji: emoji})
	}
	return out
}
