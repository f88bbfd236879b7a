package feed

import (
	"context"
	"fmt"

	"civicreport-be/logger"
	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWatcher turns a change stream on the notifications collection into events.
type MongoWatcher struct {
	collection *mongo.Collection
	log        *logger.Logger
}

func NewMongoWatcher(collection *mongo.Collection, log *logger.Logger) *MongoWatcher {
	return &MongoWatcher{collection: collection, log: log}
}

type changeDoc struct {
	OperationType string               `bson:"operationType"`
	FullDocument  *models.Notification `bson:"fullDocument"`
}

func kindOf(op string) (EventKind, bool) {
	switch op {
	case "insert":
		return Insert, true
	case "update", "replace":
		return Update, true
	}
	return "", false
}

func (w *MongoWatcher) Watch(ctx context.Context, userID primitive.ObjectID) (<-chan Event, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{
		"operationType":        bson.M{"$in": []string{"insert", "update", "replace"}},
		"fullDocument.user_id": userID,
	}}}}

	stream, err := w.collection.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("open change stream: %w", err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var change changeDoc
			if err := stream.Decode(&change); err != nil {
				w.log.WithUserID(userID.Hex()).WithError(err).Warn("undecodable notification change")
				continue
			}
			kind, ok := kindOf(change.OperationType)
			if !ok || change.FullDocument == nil {
				continue
			}

			select {
			case events <- Event{Kind: kind, Notification: *change.FullDocument}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			w.log.WithUserID(userID.Hex()).WithError(err).Error("notification change stream failed")
		}
	}()

	return events, nil
}
