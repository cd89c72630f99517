package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is an account that can exchange direct messages.
// The same struct is persisted by every storage driver, hence the gorm and
// bson tags next to the JSON wire names.
type User struct {
	ID         string    `gorm:"primaryKey;type:varchar(32)" json:"_id" bson:"_id"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email" bson:"email"`
	FullName   string    `gorm:"not null" json:"fullName" bson:"fullName"`
	Password   string    `gorm:"not null" json:"-" bson:"password"`
	ProfilePic string    `json:"profilePic" bson:"profilePic"`
	LastSeen   time.Time `gorm:"index" json:"lastSeen" bson:"lastSeen"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// BeforeCreate is a GORM hook that assigns a time-ordered ID and normalizes
// the login identifier when they were not set by the caller.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = NewID()
	}
	u.Email = NormalizeEmail(u.Email)
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now().UTC()
	}
	return
}

// NormalizeEmail lowercases and trims a login identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
