package services

import (
	"context"
	"errors"
	"strings"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrEmptyMessage = errors.New("message needs text or an image")

const defaultMessageLimit = 50

type ChatStore interface {
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	SendMessage(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error)
	GetMessages(ctx context.Context, chatID string, limit int64) ([]models.ChatMessage, error)
}

type ChatService struct {
	Repo ChatStore
}

func NewChatService(repo ChatStore) *ChatService {
	return &ChatService{Repo: repo}
}

// SendMessage stores a message from a chat participant. Pushes to the other
// participants are sent by the chat-notification trigger.
func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID, text, imageURL string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" && imageURL == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.participantChat(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	return s.Repo.SendMessage(ctx, &models.ChatMessage{
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
		ImageURL: imageURL,
	})
}

// GetMessages returns the latest messages of a chat the user takes part in.
func (s *ChatService) GetMessages(ctx context.Context, chatID, userID string, limit int64) ([]models.ChatMessage, error) {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = defaultMessageLimit
	}
	return s.Repo.GetMessages(ctx, chatID, limit)
}

func (s *ChatService) participantChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := s.Repo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for _, id := range chat.ParticipantIDs {
		if id == userID {
			return chat, nil
		}
	}
	logrus.WithFields(logrus.Fields{"chatID": chatID, "userID": userID}).Warn("Chat access by non-participant")
	return nil, ErrForbidden
}
