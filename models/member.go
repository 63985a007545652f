package models

import "time"

// Member is one roster entry synced from the chat platform. MemberID is the platform's
// opaque id; DisplayName is the server nickname visible on the in-game leaderboard and
// Alias the underlying chat handle. RoleID selects the clan the member belongs to.
type Member struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	GuildID     string `gorm:"size:64;not null;index:idx_member,unique"`
	MemberID    string `gorm:"size:64;not null;index:idx_member,unique"`
	DisplayName string `gorm:"size:255;not null"`
	Alias       string `gorm:"size:255"`
	RoleID      string `gorm:"size:64;index"`
}
