package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Database wraps the MongoDB client and the database all collections live in.
type Database struct {
	client *mongo.Client
	name   string
	logger *zap.Logger
}

func ConnectDB(ctx context.Context, uri, name string, logger *zap.Logger) (*Database, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGODB_URI is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB", zap.String("database", name))
	return &Database{client: client, name: name, logger: logger}, nil
}

// Collection returns a handle to the named collection.
func (d *Database) Collection(name string) *mongo.Collection {
	return d.client.Database(d.name).Collection(name)
}

// Disconnect closes the MongoDB connection
func (d *Database) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect MongoDB: %w", err)
	}
	d.logger.Info("MongoDB connection closed")
	return nil
}
