package models

import "time"

// Post is a feed entry. CommentsCount is a denormalized count of its comments,
// maintained by the trigger pipeline.
type Post struct {
	ID            string    `bson:"_id" json:"id"`
	AuthorID      string    `bson:"authorId" json:"authorId"`
	AuthorName    string    `bson:"authorName" json:"authorName"`
	Title         string    `bson:"title" json:"title"`
	Content       string    `bson:"content" json:"content"`
	ImageURL      string    `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	CollegeDomain string    `bson:"collegeDomain" json:"collegeDomain"`
	Upvotes       int       `bson:"upvotes" json:"upvotes"`
	CommentsCount int       `bson:"commentsCount" json:"commentsCount"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
}

type Comment struct {
	ID         string    `bson:"_id" json:"id"`
	PostID     string    `bson:"postId" json:"postId"`
	AuthorID   string    `bson:"authorId" json:"authorId"`
	AuthorName string    `bson:"authorName" json:"authorName"`
	Text       string    `bson:"text" json:"text"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}
