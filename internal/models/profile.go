package models

import "time"

// Profile is the display information of a user, synced from the identity
// provider's token claims.
type Profile struct {
	UserID    string `gorm:"primarykey"`
	Name      string
	Email     string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}
