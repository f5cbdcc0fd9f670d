package model

import "time"

// Role tells who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a user's conversation. Turns are append-only.
type Turn struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"index;not null"`
	Role      Role   `gorm:"type:text;not null"`
	Text      string `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName keeps the historical table name of the conversation log.
func (Turn) TableName() string {
	return "messages"
}
