package models

import "time"

// Notification types written by the trigger pipeline.
const (
	NotificationCommentReply = "comment_reply"
)

// Notification is an entry in a user's notification feed.
type Notification struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	Type      string    `bson:"type" json:"type"`
	Message   string    `bson:"message" json:"message"`
	Link      string    `bson:"link,omitempty" json:"link,omitempty"`
	Read      bool      `bson:"read" json:"read"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	// ExpiresAt is zero when notifications never expire.
	ExpiresAt time.Time `bson:"expiresAt,omitempty" json:"-"`
}
