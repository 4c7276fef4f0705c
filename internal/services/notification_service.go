package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/Dias221467/closure-backend/internal/repository"
	"github.com/sirupsen/logrus"
)

var ErrInvalidID = errors.New("invalid id")

type NotificationStore interface {
	GetUserNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID, id string) error
	DeleteNotification(ctx context.Context, userID, id string) error
	DeleteExpiredNotifications(ctx context.Context) (int64, error)
}

type NotificationService struct {
	repo NotificationStore
}

func NewNotificationService(repo NotificationStore) *NotificationService {
	return &NotificationService{repo: repo}
}

// GetUserNotifications returns all live notifications for a user
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.repo.GetUserNotifications(ctx, userID)
}

// MarkNotificationAsRead sets the "read" status of one of the user's notifications to true
func (s *NotificationService) MarkNotificationAsRead(ctx context.Context, userID, notifID string) error {
	if notifID == "" {
		return ErrInvalidID
	}
	return s.repo.MarkAsRead(ctx, userID, notifID)
}

// DeleteNotification deletes one of the user's notifications
func (s *NotificationService) DeleteNotification(ctx context.Context, userID, notifID string) error {
	if notifID == "" {
		return ErrInvalidID
	}
	return s.repo.DeleteNotification(ctx, userID, notifID)
}

// CleanupExpiredNotifications is called periodically by cron to delete old ones
func (s *NotificationService) CleanupExpiredNotifications(ctx context.Context) error {
	n, err := s.repo.DeleteExpiredNotifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up notifications: %w", err)
	}
	if n > 0 {
		logrus.WithField("deleted", n).Info("Expired notifications removed")
	}
	return nil
}

// IsNotFound reports whether err means the addressed record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
