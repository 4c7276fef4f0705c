package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/closure-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CommentRepository stores post comments in a flat collection keyed by postId.
type CommentRepository struct {
	collection *mongo.Collection
}

func NewCommentRepository(db *mongo.Database) *CommentRepository {
	return &CommentRepository{collection: db.Collection("comments")}
}

// CreateComment inserts c, stamping id and server time. The post's counter is
// maintained by the comment-count trigger, not here.
func (r *CommentRepository) CreateComment(ctx context.Context, c *models.Comment) (*models.Comment, error) {
	if c.ID == "" {
		c.ID = primitive.NewObjectID().Hex()
	}
	c.Timestamp = time.Now().UTC()

	if _, err := r.collection.InsertOne(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return c, nil
}

func (r *CommentRepository) GetComment(ctx context.Context, postID, id string) (*models.Comment, error) {
	var c models.Comment
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "postId": postID}).Decode(&c)
	if notFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment %s: %w", id, err)
	}
	return &c, nil
}

// GetComments lists a post's comments, oldest first.
func (r *CommentRepository) GetComments(ctx context.Context, postID string) ([]models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"postId": postID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments: %w", err)
	}
	defer cursor.Close(ctx)

	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("failed to decode comments: %w", err)
	}
	return comments, nil
}

func (r *CommentRepository) DeleteComment(ctx context.Context, postID, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "postId": postID})
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByPost counts the comments currently stored for a post.
func (r *CommentRepository) CountByPost(ctx context.Context, postID string) (int, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"postId": postID})
	if err != nil {
		return 0, fmt.Errorf("failed to count comments of post %s: %w", postID, err)
	}
	return int(n), nil
}

// LatestCommentAt returns the timestamp of the post's newest comment, zero when it has none.
func (r *CommentRepository) LatestCommentAt(ctx context.Context, postID string) (time.Time, error) {
	var c models.Comment
	opts := options.FindOne().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetProjection(bson.M{"timestamp": 1})
	err := r.collection.FindOne(ctx, bson.M{"postId": postID}, opts).Decode(&c)
	if notFound(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest comment of post %s: %w", postID, err)
	}
	return c.Timestamp, nil
}
