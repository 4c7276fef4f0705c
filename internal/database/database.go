package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/closure-backend/internal/config"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

// ConnectDB connects to MongoDB and returns the configured database.
// Change streams need a replica set, so the URI must point at one.
func ConnectDB(cfg *config.Config) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logrus.WithField("db", cfg.DBName).Info("Connected to MongoDB")
	return client.Database(cfg.DBName), nil
}

// EnsureIndexes creates the indexes the repositories rely on and turns on
// pre-images for the collections whose delete events need the old document.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	uniqueToken := options.Index().SetUnique(true).
		SetPartialFilterExpression(bson.M{"fcmToken": bson.M{"$type": "string"}})
	indexes := map[string][]mongo.IndexModel{
		"comments": {
			{Keys: bson.D{{Key: "postId", Value: 1}}},
		},
		"messages": {
			{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
		"notifications": {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		},
		"users": {
			// One owner per device token.
			{
				Keys:    bson.D{{Key: "fcmToken", Value: 1}},
				Options: uniqueToken,
			},
		},
		"processed_events": {
			// Markers only need to outlive the redelivery window.
			{
				Keys:    bson.D{{Key: "createdAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(int32((7 * 24 * time.Hour).Seconds())),
			},
		},
	}

	for coll, idx := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}

	for _, coll := range []string{"comments", "messages"} {
		if err := enablePreImages(ctx, db, coll); err != nil {
			return err
		}
	}

	logrus.Info("Database indexes ensured")
	return nil
}

func enablePreImages(ctx context.Context, db *mongo.Database, coll string) error {
	err := db.CreateCollection(ctx, coll, options.CreateCollection().SetChangeStreamPreAndPostImages(bson.M{"enabled": true}))
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Name != "NamespaceExists" {
		return fmt.Errorf("failed to create collection %s: %w", coll, err)
	}

	cmd := bson.D{
		{Key: "collMod", Value: coll},
		{Key: "changeStreamPreAndPostImages", Value: bson.M{"enabled": true}},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("failed to enable pre-images on %s: %w", coll, err)
	}
	return nil
}

// Pinger adapts a client to the health check.
type Pinger struct {
	Client *mongo.Client
}

func (p Pinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx, readpref.Primary())
}
