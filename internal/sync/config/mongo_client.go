package config

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewMongoClientOptions builds driver options for one side of the sync. The
// pool is bounded by MaxPoolSize and shared by every loop using the client.
func NewMongoClientOptions(uri string, storage StorageOptions, timing TimingOptions) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(storage.MaxPoolSize).
		SetConnectTimeout(timing.ConnectTimeout()).
		SetServerSelectionTimeout(timing.ServerSelectionTimeout())
}

// ConnectMongo creates a client for a MongoDB deployment. The driver connects
// lazily, so an unreachable deployment is not an error here: the first feed or
// prune operation fails and the loop backs off. Only invalid options fail.
func ConnectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return client, nil
}

// PingMongo checks that the primary of a deployment is reachable.
func PingMongo(ctx context.Context, client *mongo.Client) error {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}
