package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatRepository reads chats and stores their messages. Messages live in their
// own collection keyed by chatId, which the trigger watcher maps to
// chats/{chatId}/messages/{messageId}.
type ChatRepository struct {
	collection *mongo.Collection
	messages   *mongo.Collection
}

func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{
		collection: db.Collection("chats"),
		messages:   db.Collection("messages"),
	}
}

func (r *ChatRepository) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if notFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat %s: %w", id, err)
	}
	return &chat, nil
}

// SendMessage appends msg to its chat, stamping id and server time.
func (r *ChatRepository) SendMessage(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	msg.Timestamp = time.Now().UTC()

	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		logrus.WithError(err).WithField("chatID", msg.ChatID).Error("Failed to insert message")
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return msg, nil
}

// GetMessages returns up to limit of the chat's latest messages, oldest first.
func (r *ChatRepository) GetMessages(ctx context.Context, chatID string, limit int64) ([]models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := r.messages.Find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := []models.ChatMessage{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
