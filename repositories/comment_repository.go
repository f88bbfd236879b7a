package repositories

import (
	"context"
	"fmt"

	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoCommentRepository struct {
	comments *mongo.Collection
}

func NewCommentRepository(db *mongo.Database) *MongoCommentRepository {
	return &MongoCommentRepository{comments: db.Collection(CommentsCollection)}
}

func (r *MongoCommentRepository) Insert(ctx context.Context, comment *models.IssueComment) error {
	if comment.ID.IsZero() {
		comment.ID = primitive.NewObjectID()
	}
	_, err := r.comments.InsertOne(ctx, comment)
	return err
}

func (r *MongoCommentRepository) ListByIssue(ctx context.Context, issueID primitive.ObjectID, includeInternal bool) ([]models.IssueComment, error) {
	filter := bson.M{"issue_id": issueID}
	if !includeInternal {
		filter["is_internal"] = bson.M{"$ne": true}
	}

	cursor, err := r.comments.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find comments: %w", err)
	}
	defer cursor.Close(ctx)

	comments := []models.IssueComment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return comments, nil
}
