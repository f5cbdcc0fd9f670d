package model

import "time"

// User stores Telegram user metadata captured on first contact.
type User struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	Username  string
	FirstName string
	JoinedAt  time.Time
	Turns     []Turn `gorm:"foreignKey:UserID"`
}
