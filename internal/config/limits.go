package config

import "time"

const (
	// Account
	BcryptCost        = 10
	SessionCookieName = "jwt"

	// Request bodies carry base64 images.
	MaxBodyBytes = 2 << 20

	// Images
	ChatImageMaxWidth = 1000
	AvatarSize        = 200
	ProfilePicSize    = 300
	JPEGQuality       = 80

	// Background work
	SeenMarkTimeout = 10 * time.Second
	LastSeenTimeout = 5 * time.Second
	PublishTimeout  = 5 * time.Second

	// Client send buffer, in events.
	ClientSendBuffer = 256
)
