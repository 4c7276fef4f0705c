package reactors

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/Dias221467/closure-backend/internal/push"
	"github.com/Dias221467/closure-backend/internal/repository"
	"github.com/Dias221467/closure-backend/internal/trigger"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

const (
	PushTypeChatMessage = "CHAT_MESSAGE"
	imagePlaceholder    = "📷 Sent an image"
	defaultPushTitle    = "New message"
)

type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliverySkipped DeliveryStatus = "skipped"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Delivery is the outcome of pushing one message to one recipient.
type Delivery struct {
	RecipientID string
	Status      DeliveryStatus
	Err         error
}

// ChatNotifier pushes new chat messages to every participant except the sender.
type ChatNotifier struct {
	chats       ChatReader
	users       UserReader
	sender      push.Sender
	concurrency int
}

func NewChatNotifier(chats ChatReader, users UserReader, sender push.Sender, concurrency int) *ChatNotifier {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ChatNotifier{chats: chats, users: users, sender: sender, concurrency: concurrency}
}

// Handle reacts to a created chat message.
func (n *ChatNotifier) Handle(ctx context.Context, ev trigger.DocumentEvent) error {
	var msg models.ChatMessage
	if err := bson.Unmarshal(ev.After, &msg); err != nil {
		return fmt.Errorf("failed to decode chat message: %w", err)
	}
	_, err := n.Notify(ctx, ev.Params["chatId"], msg)
	return err
}

// Notify fans msg out to the chat's other participants. Recipients are handled
// concurrently and in isolation: one failed delivery never affects another, and
// per-recipient failures are reported in the result rather than as an error.
// The result follows the chat's participant order.
func (n *ChatNotifier) Notify(ctx context.Context, chatID string, msg models.ChatMessage) ([]Delivery, error) {
	log := logrus.WithFields(logrus.Fields{"chatID": chatID, "messageID": msg.ID})

	chat, err := n.chats.GetChat(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("Chat no longer exists, skipping push")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	body := msg.Text
	if body == "" && msg.ImageURL != "" {
		body = imagePlaceholder
	}
	if body == "" {
		log.Info("Message has neither text nor image, skipping push")
		return nil, nil
	}

	title := chat.ParticipantNames[msg.SenderID]
	if title == "" {
		title = defaultPushTitle
	}

	recipients := recipientsOf(chat, msg.SenderID)
	deliveries := make([]Delivery, len(recipients))

	g := new(errgroup.Group)
	g.SetLimit(n.concurrency)
	for i, recipientID := range recipients {
		i, recipientID := i, recipientID
		g.Go(func() error {
			deliveries[i] = n.deliver(ctx, recipientID, push.Message{
				Title: title,
				Body:  body,
				Data:  map[string]string{"type": PushTypeChatMessage, "chatId": chatID},
			})
			logDelivery(log, deliveries[i])
			return nil
		})
	}
	_ = g.Wait()

	return deliveries, nil
}

func (n *ChatNotifier) deliver(ctx context.Context, recipientID string, msg push.Message) Delivery {
	d := Delivery{RecipientID: recipientID}

	user, err := n.users.GetUser(ctx, recipientID)
	if errors.Is(err, repository.ErrNotFound) {
		d.Status = DeliverySkipped
		return d
	}
	if err != nil {
		d.Status, d.Err = DeliveryFailed, err
		return d
	}
	if user.FCMToken == "" {
		d.Status = DeliverySkipped
		return d
	}

	msg.Token = user.FCMToken
	if err := n.sender.Send(ctx, msg); err != nil {
		d.Status, d.Err = DeliveryFailed, err
		return d
	}
	d.Status = DeliverySent
	return d
}

// recipientsOf lists participants other than the sender, without duplicates.
func recipientsOf(chat *models.Chat, senderID string) []string {
	seen := make(map[string]bool, len(chat.ParticipantIDs))
	var out []string
	for _, id := range chat.ParticipantIDs {
		if id == "" || id == senderID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func logDelivery(log *logrus.Entry, d Delivery) {
	entry := log.WithField("recipientID", d.RecipientID)
	switch d.Status {
	case DeliverySent:
		entry.Info("Chat push sent")
	case DeliverySkipped:
		entry.Info("Recipient has no push token, skipping")
	case DeliveryFailed:
		entry.WithError(d.Err).Warn("Chat push failed")
	}
}
