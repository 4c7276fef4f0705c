package reactors

import (
	"github.com/Dias221467/closure-backend/internal/trigger"
)

// Document paths the reactors listen on.
const (
	CommentPath = "posts/{postId}/comments/{commentId}"
	MessagePath = "chats/{chatId}/messages/{messageId}"
)

// Sources maps the flat comments and messages collections onto the paths above.
func Sources() []trigger.Source {
	return []trigger.Source{
		trigger.Subcollection("comments", "posts", "postId"),
		trigger.Subcollection("messages", "chats", "chatId"),
	}
}

// Set is the full group of reactors wired at startup.
type Set struct {
	CommentNotifier *CommentNotifier
	CommentCounter  *CommentCounter
	ChatNotifier    *ChatNotifier
	AvatarResizer   *AvatarResizer
}

// Register adds every reactor in set to the dispatch table. Avatar resizing
// listens on bucket.
func Register(reg *trigger.Registry, bucket string, set Set) {
	reg.OnDocument("comment-notification", CommentPath, trigger.Create, set.CommentNotifier.Handle)
	reg.OnDocument("comment-count", CommentPath, trigger.Write, set.CommentCounter.Handle)
	reg.OnDocument("chat-notification", MessagePath, trigger.Create, set.ChatNotifier.Handle)
	reg.OnObjectFinalized("avatar-resize", bucket, set.AvatarResizer.Handle)
}
