package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserRepository handles database operations on user profiles.
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

// GetUser retrieves a profile by uid.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if notFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"userID": id,
			"error":  err,
		}).Warn("Failed to find user by ID")
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return &user, nil
}

// SetAvatarURL overwrites the profile's avatarUrl. Last writer wins.
func (r *UserRepository) SetAvatarURL(ctx context.Context, id, url string) error {
	return r.setField(ctx, id, "avatarUrl", url)
}

// SetPushToken stores the device token used for push delivery. A token held
// by another profile is refused with ErrConflict (unique index on fcmToken).
func (r *UserRepository) SetPushToken(ctx context.Context, id, token string) error {
	err := r.setField(ctx, id, "fcmToken", token)
	if mongo.IsDuplicateKeyError(err) {
		logrus.WithField("userID", id).Warn("Push token already registered to another user")
		return ErrConflict
	}
	return err
}

func (r *UserRepository) setField(ctx context.Context, id, field, value string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{field: value, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"userID": id,
			"field":  field,
			"error":  err,
		}).Error("Failed to update user")
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	logrus.WithFields(logrus.Fields{"userID": id, "field": field}).Info("User updated successfully")
	return nil
}
