package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned by lookups that match no document.
var ErrNotFound = errors.New("not found")

type DB struct {
	client   *mongo.Client
	database *mongo.Database

	// Collections
	profiles     *mongo.Collection
	sessions     *mongo.Collection
	workerEvents *mongo.Collection
	sessionState *mongo.Collection
	blockStats   *mongo.Collection

	now func() time.Time
}

type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

func New(cfg *Config) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	db := &DB{
		client:       client,
		database:     database,
		profiles:     database.Collection("browser_profiles"),
		sessions:     database.Collection("sessions"),
		workerEvents: database.Collection("worker_events"),
		sessionState: database.Collection("session_state"),
		blockStats:   database.Collection("block_stats"),
		now:          time.Now,
	}

	if err := db.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return db, nil
}

func (db *DB) createIndexes(ctx context.Context) error {
	profileIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "updated_at", Value: -1}},
		},
	}

	if _, err := db.profiles.Indexes().CreateMany(ctx, profileIndexes); err != nil {
		return fmt.Errorf("failed to create profile indexes: %w", err)
	}

	sessionIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "execution_id", Value: 1}, {Key: "started_at", Value: -1}},
		},
	}

	if _, err := db.sessions.Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	workerIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}},
		},
	}

	if _, err := db.workerEvents.Indexes().CreateMany(ctx, workerIndexes); err != nil {
		return fmt.Errorf("failed to create worker event indexes: %w", err)
	}

	stateIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := db.sessionState.Indexes().CreateMany(ctx, stateIndexes); err != nil {
		return fmt.Errorf("failed to create session state indexes: %w", err)
	}

	statIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "mode", Value: 1},
				{Key: "date", Value: 1},
				{Key: "host", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "date", Value: 1}, {Key: "count", Value: -1}},
		},
	}

	if _, err := db.blockStats.Indexes().CreateMany(ctx, statIndexes); err != nil {
		return fmt.Errorf("failed to create block stat indexes: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.client.Ping(ctx, nil)
}

func notFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
