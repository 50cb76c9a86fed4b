package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"browserstealth/internal/serviceworker"
	"browserstealth/pkg/logger"
)

func (db *DB) RecordWorkerEvent(ctx context.Context, ev *WorkerEvent) error {
	if ev.At.IsZero() {
		ev.At = db.now()
	}
	if _, err := db.workerEvents.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("failed to record worker event: %w", err)
	}
	return nil
}

// ListWorkerEvents returns the events of one session in the order they
// happened.
func (db *DB) ListWorkerEvents(ctx context.Context, sessionID string) ([]WorkerEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := db.workerEvents.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list worker events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []WorkerEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode worker events: %w", err)
	}
	return events, nil
}

// WorkerObserver returns a per-session service worker observer that stores
// events in the background.
func (db *DB) WorkerObserver(log logger.Logger) func(sessionID string, e serviceworker.Event) {
	return func(sessionID string, e serviceworker.Event) {
		ev := workerEvent(sessionID, e)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
			defer cancel()
			if err := db.RecordWorkerEvent(ctx, ev); err != nil {
				log.Debug("failed to record worker event", "session_id", sessionID, "error", err)
			}
		}()
	}
}

func workerEvent(sessionID string, e serviceworker.Event) *WorkerEvent {
	return &WorkerEvent{
		SessionID:      sessionID,
		Kind:           string(e.Kind),
		RegistrationID: e.RegistrationID,
		ScopeURL:       e.ScopeURL,
		At:             e.At,
	}
}
