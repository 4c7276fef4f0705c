package reactors

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/Dias221467/closure-backend/internal/repository"
	"github.com/Dias221467/closure-backend/internal/trigger"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const maxTitleLength = 30

// CommentNotifier tells a post's author that someone commented on it.
type CommentNotifier struct {
	posts         PostReader
	notifications NotificationWriter
}

func NewCommentNotifier(posts PostReader, notifications NotificationWriter) *CommentNotifier {
	return &CommentNotifier{posts: posts, notifications: notifications}
}

// Handle reacts to a created comment.
func (n *CommentNotifier) Handle(ctx context.Context, ev trigger.DocumentEvent) error {
	postID := ev.Params["postId"]
	log := logrus.WithFields(logrus.Fields{"postID": postID, "commentID": ev.Params["commentId"]})

	var comment models.Comment
	if err := bson.Unmarshal(ev.After, &comment); err != nil {
		return fmt.Errorf("failed to decode comment: %w", err)
	}

	post, err := n.posts.GetPost(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("Post no longer exists, skipping comment notification")
		return nil
	}
	if err != nil {
		return err
	}

	if comment.AuthorID == post.AuthorID {
		log.Debug("Comment by post author, no notification")
		return nil
	}

	notif := &models.Notification{
		UserID:  post.AuthorID,
		Type:    models.NotificationCommentReply,
		Message: commentMessage(comment.AuthorName, post.Title),
		Link:    "/post/" + postID,
		Read:    false,
	}
	if err := n.notifications.CreateNotification(ctx, notif); err != nil {
		return err
	}

	log.WithField("recipientID", post.AuthorID).Info("Comment notification created")
	return nil
}

func commentMessage(commenter, title string) string {
	if commenter == "" {
		commenter = "Someone"
	}
	return fmt.Sprintf("%s commented on your post \"%s\"", commenter, truncate(title, maxTitleLength))
}

// truncate keeps the first max runes of s, marking the cut with "...".
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
