package moderation

import (
	"time"

	"gorm.io/datatypes"
)

// Result is one moderation verdict.
type Result struct {
	ID             string             `json:"id"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Flagged        bool               `json:"flagged"`
}

// Record is a persisted flagged verdict. Rows are never updated.
type Record struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ModerationID   string         `gorm:"type:varchar(64);index;not null" json:"moderation_id"`
	CategoryScores datatypes.JSON `gorm:"not null" json:"category_scores"`
	Flagged        bool           `gorm:"not null" json:"flagged"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Record) TableName() string { return "moderation" }
