package models

import "time"

// ProcessedImage is an audit row for one screenshot that went through the OCR pipeline.
// Failed rows are kept (not deleted) so moderators can review which images were dropped
// and why.
type ProcessedImage struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	SessionID    string `gorm:"size:64;index"`
	GuildID      string `gorm:"size:64;index"`
	Source       string `gorm:"size:512"`
	Readings     int
	Failed       bool   `gorm:"default:false;index"`
	FailedReason string `gorm:"size:255"`
}
