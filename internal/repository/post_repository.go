package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PostRepository reads posts and maintains their denormalized comment counter.
type PostRepository struct {
	collection *mongo.Collection
	markers    *mongo.Collection
}

func NewPostRepository(db *mongo.Database) *PostRepository {
	return &PostRepository{
		collection: db.Collection("posts"),
		markers:    db.Collection("processed_events"),
	}
}

func (r *PostRepository) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if notFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post %s: %w", id, err)
	}
	return &post, nil
}

// IncrementCommentsCount atomically adds delta to the post's commentsCount.
// With a non-empty eventKey the increment commits together with a processed-event
// marker, and a repeated key returns ErrAlreadyApplied without touching the counter.
func (r *PostRepository) IncrementCommentsCount(ctx context.Context, postID string, delta int, eventKey string) error {
	if eventKey == "" {
		return r.increment(ctx, postID, delta)
	}

	session, err := r.collection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		_, err := r.markers.InsertOne(sc, bson.M{"_id": eventKey, "createdAt": time.Now().UTC()})
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrAlreadyApplied
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record event marker: %w", err)
		}
		return nil, r.increment(sc, postID, delta)
	})
	if errors.Is(err, ErrAlreadyApplied) || errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"postID":   postID,
			"eventKey": eventKey,
		}).Error("Failed to update comments count")
		return fmt.Errorf("failed to update comments count: %w", err)
	}
	return nil
}

func (r *PostRepository) increment(ctx context.Context, postID string, delta int) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$inc": bson.M{"commentsCount": delta}},
	)
	if err != nil {
		return fmt.Errorf("failed to increment comments count: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CommentCount is a post id with its stored commentsCount.
type CommentCount struct {
	PostID string `bson:"_id"`
	Count  int    `bson:"commentsCount"`
}

// ListCommentCounts returns every post's stored counter.
func (r *PostRepository) ListCommentCounts(ctx context.Context) ([]CommentCount, error) {
	opts := options.Find().SetProjection(bson.M{"commentsCount": 1})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}
	defer cursor.Close(ctx)

	var counts []CommentCount
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode posts: %w", err)
	}
	return counts, nil
}

// GetCommentsCount returns the post's stored counter.
func (r *PostRepository) GetCommentsCount(ctx context.Context, postID string) (int, error) {
	var c CommentCount
	opts := options.FindOne().SetProjection(bson.M{"commentsCount": 1})
	err := r.collection.FindOne(ctx, bson.M{"_id": postID}, opts).Decode(&c)
	if notFound(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read comments count of post %s: %w", postID, err)
	}
	return c.Count, nil
}

// CompareAndSetCommentsCount overwrites the counter only if it still equals expected,
// so a concurrent increment is never clobbered. It reports whether the write happened.
func (r *PostRepository) CompareAndSetCommentsCount(ctx context.Context, postID string, expected, actual int) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": postID, "commentsCount": expected},
		bson.M{"$set": bson.M{"commentsCount": actual}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to set comments count: %w", err)
	}
	return res.ModifiedCount > 0, nil
}
