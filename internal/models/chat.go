package models

import "time"

type Chat struct {
	ID               string            `bson:"_id" json:"id"`
	ParticipantIDs   []string          `bson:"participantIds" json:"participantIds"`
	ParticipantNames map[string]string `bson:"participantNames" json:"participantNames"`
}

// ChatMessage lives in the messages collection, keyed to its chat by ChatID.
type ChatMessage struct {
	ID        string    `bson:"_id" json:"id"`
	ChatID    string    `bson:"chatId" json:"chatId"`
	SenderID  string    `bson:"senderId" json:"senderId"`
	Text      string    `bson:"text,omitempty" json:"text,omitempty"`
	ImageURL  string    `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
