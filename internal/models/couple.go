package models

import "time"

type CoupleStatus string

const (
	CoupleAccepted CoupleStatus = "accepted"
)

type Couple struct {
	ID      string `gorm:"primarykey"`
	User1ID string `gorm:"index;not null"`
	User2ID string `gorm:"index;not null"`
	// PairKey is the unordered pair in canonical form, see PairKey().
	PairKey   string       `gorm:"uniqueIndex;not null"`
	Status    CoupleStatus `gorm:"not null"`
	CreatedAt time.Time
}

// CoupleMember maps a user to the couple they belong to. UserID is the
// primary key, so a user can not be inserted into a second couple.
type CoupleMember struct {
	UserID    string `gorm:"primarykey"`
	CoupleID  string `gorm:"index;not null"`
	CreatedAt time.Time
}

// PairKey returns the same key for (a, b) and (b, a).
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Partner returns the other side of the couple, or "" if userID is not in it.
func (c *Couple) Partner(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	}
	return ""
}
