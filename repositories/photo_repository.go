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

type MongoPhotoRepository struct {
	photos *mongo.Collection
}

func NewPhotoRepository(db *mongo.Database) *MongoPhotoRepository {
	return &MongoPhotoRepository{photos: db.Collection(PhotosCollection)}
}

func (r *MongoPhotoRepository) Insert(ctx context.Context, photo *models.IssuePhoto) error {
	if photo.ID.IsZero() {
		photo.ID = primitive.NewObjectID()
	}
	_, err := r.photos.InsertOne(ctx, photo)
	return err
}

// ListByIssue returns the primary photo first, then upload order.
func (r *MongoPhotoRepository) ListByIssue(ctx context.Context, issueID primitive.ObjectID) ([]models.IssuePhoto, error) {
	opts := options.Find().SetSort(bson.D{{Key: "is_primary", Value: -1}, {Key: "created_at", Value: 1}})
	cursor, err := r.photos.Find(ctx, bson.M{"issue_id": issueID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find photos: %w", err)
	}
	defer cursor.Close(ctx)

	photos := []models.IssuePhoto{}
	if err := cursor.All(ctx, &photos); err != nil {
		return nil, fmt.Errorf("decode photos: %w", err)
	}
	return photos, nil
}
