// Package mongo implements the catalog and cart stores on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	productsCollection = "products"
	cartCollection     = "cart"
)

// Connect dials uri, verifies the connection and returns the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return client.Database(database), nil
}

// EnsureIndexes creates the secondary indexes used for ordered listing.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	byCreated := mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	}
	for _, name := range []string{productsCollection, cartCollection} {
		if _, err := db.Collection(name).Indexes().CreateOne(ctx, byCreated); err != nil {
			return fmt.Errorf("creating %s index: %w", name, err)
		}
	}
	return nil
}
