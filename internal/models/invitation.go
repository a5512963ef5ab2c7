package models

import "time"

type InvitationStatus string

const (
	InvitationActive  InvitationStatus = "active"
	InvitationExpired InvitationStatus = "expired"
	InvitationUsed    InvitationStatus = "used"
)

// InvitationCode is a one time code a user hands to their partner.
// Once expired or used, it never becomes active again.
type InvitationCode struct {
	ID         string           `gorm:"primarykey"`
	FromUserID string           `gorm:"index;not null"`
	Code       string           `gorm:"index;not null"`
	Status     InvitationStatus `gorm:"index;not null"`
	ExpiresAt  time.Time        `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	UsedBy     string
	UsedAt     *time.Time
}

func (i *InvitationCode) IsExpired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

func (i *InvitationCode) IsActive() bool {
	return i.Status == InvitationActive
}
