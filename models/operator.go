package models

import (
	"time"
)

// Operator is a moderator account allowed to run score sessions. The chat platform maps
// chat users onto these accounts; the API authenticates them with username + password.
type Operator struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time `gorm:"index"`
	Username       string     `gorm:"size:255;not null;unique"`
	HashedPassword []byte     `gorm:"not null"`
	Admin          bool       `gorm:"default:false"`
}
