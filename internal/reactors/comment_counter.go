package reactors

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dias221467/closure-backend/internal/repository"
	"github.com/Dias221467/closure-backend/internal/trigger"
	"github.com/sirupsen/logrus"
)

// CommentCounter keeps posts.commentsCount in step with the comments collection.
type CommentCounter struct {
	posts CommentCountStore
	// dedupe records a marker per comment event so redelivered events are not counted twice.
	dedupe bool
}

func NewCommentCounter(posts CommentCountStore, dedupe bool) *CommentCounter {
	return &CommentCounter{posts: posts, dedupe: dedupe}
}

// Handle reacts to any comment write; updates leave the count alone.
func (c *CommentCounter) Handle(ctx context.Context, ev trigger.DocumentEvent) error {
	var (
		delta int
		op    string
	)
	switch ev.Kind() {
	case trigger.Create:
		delta, op = 1, "created"
	case trigger.Delete:
		delta, op = -1, "deleted"
	default:
		return nil
	}

	postID, commentID := ev.Params["postId"], ev.Params["commentId"]
	log := logrus.WithFields(logrus.Fields{"postID": postID, "commentID": commentID, "delta": delta})

	key := ""
	if c.dedupe {
		key = fmt.Sprintf("comment:%s:%s:%s", postID, commentID, op)
	}

	err := c.posts.IncrementCommentsCount(ctx, postID, delta, key)
	switch {
	case errors.Is(err, repository.ErrAlreadyApplied):
		log.Info("Comment event already counted, skipping")
		return nil
	case errors.Is(err, repository.ErrNotFound):
		log.Info("Post no longer exists, skipping comment count")
		return nil
	case err != nil:
		return err
	}

	log.Debug("Comments count updated")
	return nil
}
