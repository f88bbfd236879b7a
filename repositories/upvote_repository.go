package repositories

import (
	"context"
	"fmt"
	"time"

	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoUpvoteRepository struct {
	upvotes *mongo.Collection
}

func NewUpvoteRepository(db *mongo.Database) *MongoUpvoteRepository {
	return &MongoUpvoteRepository{upvotes: db.Collection(UpvotesCollection)}
}

// Add relies on the unique (issue_id, user_id) index to reject a second upvote.
// The driver error stays in the chain so a transaction can still see its labels.
func (r *MongoUpvoteRepository) Add(ctx context.Context, issueID, userID primitive.ObjectID, now time.Time) error {
	_, err := r.upvotes.InsertOne(ctx, models.Upvote{
		ID:        primitive.NewObjectID(),
		IssueID:   issueID,
		UserID:    userID,
		CreatedAt: now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

func (r *MongoUpvoteRepository) Remove(ctx context.Context, issueID, userID primitive.ObjectID) (bool, error) {
	res, err := r.upvotes.DeleteOne(ctx, bson.M{"issue_id": issueID, "user_id": userID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// Voted reports which of issueIDs the user has upvoted.
func (r *MongoUpvoteRepository) Voted(ctx context.Context, userID primitive.ObjectID, issueIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	voted := make(map[primitive.ObjectID]bool)
	if len(issueIDs) == 0 {
		return voted, nil
	}

	cursor, err := r.upvotes.Find(ctx,
		bson.M{"user_id": userID, "issue_id": bson.M{"$in": issueIDs}},
		options.Find().SetProjection(bson.M{"issue_id": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("find upvotes: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []models.Upvote
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode upvotes: %w", err)
	}
	for _, row := range rows {
		voted[row.IssueID] = true
	}
	return voted, nil
}
