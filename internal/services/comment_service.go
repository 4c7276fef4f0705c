package services

import (
	"context"
	"errors"
	"strings"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrEmptyComment = errors.New("comment text is required")

type CommentStore interface {
	CreateComment(ctx context.Context, c *models.Comment) (*models.Comment, error)
	GetComment(ctx context.Context, postID, id string) (*models.Comment, error)
	GetComments(ctx context.Context, postID string) ([]models.Comment, error)
	DeleteComment(ctx context.Context, postID, id string) error
}

type PostReader interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
}

// CommentService writes comments. Notifications and the post's comment counter
// follow from the comment triggers.
type CommentService struct {
	comments CommentStore
	posts    PostReader
	users    UserStore
}

func NewCommentService(comments CommentStore, posts PostReader, users UserStore) *CommentService {
	return &CommentService{comments: comments, posts: posts, users: users}
}

func (s *CommentService) AddComment(ctx context.Context, postID, authorID, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyComment
	}
	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return nil, err
	}

	authorName := ""
	if user, err := s.users.GetUser(ctx, authorID); err == nil {
		authorName = user.Name
	} else {
		logrus.WithError(err).WithField("userID", authorID).Warn("Commenting without author profile")
	}

	return s.comments.CreateComment(ctx, &models.Comment{
		PostID:     postID,
		AuthorID:   authorID,
		AuthorName: authorName,
		Text:       text,
	})
}

func (s *CommentService) GetComments(ctx context.Context, postID string) ([]models.Comment, error) {
	return s.comments.GetComments(ctx, postID)
}

// DeleteComment removes a comment. Its author and the post's author may delete it.
func (s *CommentService) DeleteComment(ctx context.Context, postID, commentID, userID string) error {
	comment, err := s.comments.GetComment(ctx, postID, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != userID {
		post, err := s.posts.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if post.AuthorID != userID {
			return ErrForbidden
		}
	}
	return s.comments.DeleteComment(ctx, postID, commentID)
}
