package models

import "time"

// User is created on first contact and never deleted.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	ChatID    int64     `bson:"chat_id" json:"chat_id"`
	FirstName string    `bson:"first_name" json:"first_name"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	JoinedAt  time.Time `bson:"joined_at" json:"joined_at"`
}

// UserSettings holds per-user preferences, one document per user,
// created lazily on first access.
type UserSettings struct {
	UserID        string `bson:"_id" json:"user_id"`
	Notifications bool   `bson:"notifications" json:"notifications"`
}
