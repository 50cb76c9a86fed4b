package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"browserstealth/internal/adblock"
	"browserstealth/pkg/logger"
)

const observerTimeout = 5 * time.Second

// RecordBlock counts one blocked request for mode and host on the current day.
func (db *DB) RecordBlock(ctx context.Context, mode, host string) error {
	now := db.now()

	filter := bson.M{
		"mode": mode,
		"date": now.Format("2006-01-02"),
		"host": host,
	}
	update := bson.M{
		"$inc": bson.M{"count": 1},
		"$set": bson.M{"last_updated": now},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := db.blockStats.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to record block: %w", err)
	}
	return nil
}

// BlockStats returns the counters of one day, highest count first. An empty
// mode matches every mode.
func (db *DB) BlockStats(ctx context.Context, date, mode string, limit int) ([]BlockStat, error) {
	filter := bson.M{"date": date}
	if mode != "" {
		filter["mode"] = mode
	}
	opts := options.Find().SetSort(bson.D{{Key: "count", Value: -1}, {Key: "host", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := db.blockStats.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get block stats: %w", err)
	}
	defer cursor.Close(ctx)

	var stats []BlockStat
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode block stats: %w", err)
	}
	return stats, nil
}

// BlockObserver returns an adblock observer that records every block in the
// background. Write failures are logged.
func (db *DB) BlockObserver(log logger.Logger) func(adblock.BlockEvent) {
	return func(e adblock.BlockEvent) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
			defer cancel()
			if err := db.RecordBlock(ctx, string(e.Mode), e.Host); err != nil {
				log.Debug("failed to record block", "host", e.Host, "error", err)
			}
		}()
	}
}
