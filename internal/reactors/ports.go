package reactors

import (
	"context"
	"io"

	"github.com/Dias221467/closure-backend/internal/models"
)

type PostReader interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
}

type NotificationWriter interface {
	CreateNotification(ctx context.Context, notif *models.Notification) error
}

type CommentCountStore interface {
	IncrementCommentsCount(ctx context.Context, postID string, delta int, eventKey string) error
}

type ChatReader interface {
	GetChat(ctx context.Context, id string) (*models.Chat, error)
}

type UserReader interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type AvatarWriter interface {
	SetAvatarURL(ctx context.Context, id, url string) error
}

type ObjectStore interface {
	Download(ctx context.Context, name string, w io.Writer) error
	Upload(ctx context.Context, name string, r io.Reader, contentType string, metadata map[string]string) error
	SignedURL(name string) (string, error)
}
