package models

import "time"

// Session records an issued refresh token. ID is the token's jti.
// A rotated session is kept until it expires so that a replayed token can be
// told apart from one that was evicted or logged out.
type Session struct {
	ID        string
	UserID    string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	RotatedAt *time.Time
}

func (s Session) Rotated() bool { return s.RotatedAt != nil }
