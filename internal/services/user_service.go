package services

import (
	"context"
	"errors"
	"strings"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/Dias221467/closure-backend/internal/repository"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyPushToken = errors.New("push token is required")
	ErrPushTokenTaken = errors.New("push token is registered to another user")
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetPushToken(ctx context.Context, id, token string) error
}

// UserService encapsulates the business logic for user profile operations.
type UserService struct {
	repo UserStore
}

// NewUserService creates a new instance of UserService.
func NewUserService(repo UserStore) *UserService {
	return &UserService{
		repo: repo,
	}
}

// GetUser retrieves a profile by uid.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

// RegisterPushToken stores the device token chat pushes are sent to.
// Only the latest device of a user receives pushes, and a token already bound
// to another user is refused.
func (s *UserService) RegisterPushToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyPushToken
	}
	if err := s.repo.SetPushToken(ctx, userID, token); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrPushTokenTaken
		}
		return err
	}
	logrus.WithField("userID", userID).Info("Push token registered")
	return nil
}
