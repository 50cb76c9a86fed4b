package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"browserstealth/internal/browser"
)

// SessionStarted implements browser.Recorder.
func (db *DB) SessionStarted(ctx context.Context, info browser.SessionInfo) error {
	rec := SessionRecord{
		SessionID:   info.ID,
		ExecutionID: info.ExecutionID,
		Profile:     info.Profile,
		Patches:     info.Patches,
		StartedAt:   info.StartedAt,
	}
	if rec.Patches == nil {
		rec.Patches = []string{}
	}

	if _, err := db.sessions.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// SessionClosed implements browser.Recorder.
func (db *DB) SessionClosed(ctx context.Context, id string) error {
	update := bson.M{"$set": bson.M{"closed_at": db.now()}}

	result, err := db.sessions.UpdateOne(ctx, bson.M{"session_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to close session record: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) GetSessionRecord(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := db.sessions.FindOne(ctx, bson.M{"session_id": id}).Decode(&rec)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &rec, nil
}

// ListSessions returns the newest sessions first. An empty executionID
// matches every session.
func (db *DB) ListSessions(ctx context.Context, executionID string, limit int) ([]SessionRecord, error) {
	filter := bson.M{}
	if executionID != "" {
		filter["execution_id"] = executionID
	}
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := db.sessions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var recs []SessionRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return recs, nil
}

// SaveState stores an opaque value, typically encrypted cookies, under key.
func (db *DB) SaveState(ctx context.Context, key, value string) error {
	filter := bson.M{"key": key}
	update := bson.M{
		"$set": bson.M{
			"value":      value,
			"updated_at": db.now(),
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := db.sessionState.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

func (db *DB) GetState(ctx context.Context, key string) (string, error) {
	var state SessionState
	err := db.sessionState.FindOne(ctx, bson.M{"key": key}).Decode(&state)
	if err != nil {
		if notFound(err) {
			return "", fmt.Errorf("session state %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get session state: %w", err)
	}
	return state.Value, nil
}
