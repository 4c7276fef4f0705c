package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CheckpointRepository stores change-stream resume tokens, one per stream name.
type CheckpointRepository struct {
	collection *mongo.Collection
}

func NewCheckpointRepository(db *mongo.Database) *CheckpointRepository {
	return &CheckpointRepository{collection: db.Collection("trigger_checkpoints")}
}

type checkpoint struct {
	Stream    string    `bson:"_id"`
	Token     bson.Raw  `bson:"token"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Load returns the saved token, or nil if the stream has never been checkpointed.
func (r *CheckpointRepository) Load(ctx context.Context, stream string) (bson.Raw, error) {
	var cp checkpoint
	err := r.collection.FindOne(ctx, bson.M{"_id": stream}).Decode(&cp)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", stream, err)
	}
	return cp.Token, nil
}

func (r *CheckpointRepository) Save(ctx context.Context, stream string, token bson.Raw) error {
	if token == nil {
		return nil
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": stream},
		bson.M{"$set": bson.M{"token": token, "updatedAt": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", stream, err)
	}
	return nil
}

func (r *CheckpointRepository) Clear(ctx context.Context, stream string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": stream}); err != nil {
		return fmt.Errorf("failed to clear checkpoint %s: %w", stream, err)
	}
	return nil
}
