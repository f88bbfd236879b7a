package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	db    *mongo.Database
	dbErr error
	once  sync.Once
)

// ConnectDB opens the process-wide MongoDB handle. Later calls return the same
// handle; nothing reconnects implicitly.
func ConnectDB(ctx context.Context, uri, name string) (*mongo.Database, error) {
	once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			dbErr = fmt.Errorf("failed to connect to MongoDB: %w", err)
			return
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			dbErr = fmt.Errorf("failed to ping MongoDB: %w", err)
			return
		}

		db = client.Database(name)
	})

	return db, dbErr
}

// DisconnectDB closes the handle opened by ConnectDB.
func DisconnectDB(ctx context.Context) error {
	if db == nil {
		return nil
	}
	return db.Client().Disconnect(ctx)
}
