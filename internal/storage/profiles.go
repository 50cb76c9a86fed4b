package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"browserstealth/internal/profile"
)

// SaveProfile inserts or replaces the profile stored under rec.Name.
func (db *DB) SaveProfile(ctx context.Context, rec *ProfileRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("failed to save profile: empty name")
	}
	now := db.now()
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	filter := bson.M{"name": rec.Name}
	update := bson.M{
		"$set": bson.M{
			"description": rec.Description,
			"profile":     rec.Profile,
			"updated_at":  rec.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": rec.CreatedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	result, err := db.profiles.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	if result.UpsertedID != nil {
		if oid, ok := result.UpsertedID.(primitive.ObjectID); ok {
			rec.ID = oid
		}
	}

	return nil
}

func (db *DB) GetProfile(ctx context.Context, name string) (*ProfileRecord, error) {
	var rec ProfileRecord
	err := db.profiles.FindOne(ctx, bson.M{"name": name}).Decode(&rec)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("profile %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &rec, nil
}

// ResolveProfile loads the named profile and resolves it.
func (db *DB) ResolveProfile(ctx context.Context, name string) (profile.Resolved, error) {
	rec, err := db.GetProfile(ctx, name)
	if err != nil {
		return profile.Resolved{}, err
	}
	return profile.Resolve(rec.Profile), nil
}

func (db *DB) ListProfiles(ctx context.Context) ([]ProfileRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := db.profiles.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer cursor.Close(ctx)

	var recs []ProfileRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	return recs, nil
}

func (db *DB) DeleteProfile(ctx context.Context, name string) error {
	result, err := db.profiles.DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}
	return nil
}
