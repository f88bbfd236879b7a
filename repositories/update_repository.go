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

type MongoUpdateRepository struct {
	updates *mongo.Collection
}

func NewUpdateRepository(db *mongo.Database) *MongoUpdateRepository {
	return &MongoUpdateRepository{updates: db.Collection(UpdatesCollection)}
}

func (r *MongoUpdateRepository) Insert(ctx context.Context, update *models.IssueUpdate) error {
	if update.ID.IsZero() {
		update.ID = primitive.NewObjectID()
	}
	_, err := r.updates.InsertOne(ctx, update)
	return err
}

// ListByIssue returns the timeline oldest first.
func (r *MongoUpdateRepository) ListByIssue(ctx context.Context, issueID primitive.ObjectID, includeInternal bool) ([]models.IssueUpdate, error) {
	filter := bson.M{"issue_id": issueID}
	if !includeInternal {
		filter["is_internal"] = bson.M{"$ne": true}
	}

	cursor, err := r.updates.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find updates: %w", err)
	}
	defer cursor.Close(ctx)

	updates := []models.IssueUpdate{}
	if err := cursor.All(ctx, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}
