package access

import (
	"fmt"
	"time"
)

type Type string

const (
	Advanced Type = "advanced"
	Blocked  Type = "blocked"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case Advanced, Blocked:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown access type %q", s)
	}
}

// Entry is one grant of an access type. Revocation sets RmDate instead of deleting the row.
type Entry struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64      `gorm:"index:idx_access_user_type,priority:1;not null" json:"user_id"`
	AccessType Type       `gorm:"type:varchar(16);index:idx_access_user_type,priority:2;not null" json:"access_type"`
	AddDate    time.Time  `gorm:"type:date;not null" json:"add_date"`
	RmDate     *time.Time `gorm:"type:date" json:"rm_date"`
}

func (Entry) TableName() string { return "access_control" }

func (e Entry) Active() bool { return e.RmDate == nil }
