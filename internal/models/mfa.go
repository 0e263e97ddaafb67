package models

import "time"

type MFACredential struct {
	UserID    string
	Secret    string
	Enabled   bool
	EnabledAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
