package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SequenceRepository hands out a gap-free, per-partition event sequence.
type SequenceRepository interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sequenceRepository struct {
	db rowQuerier
}

// NewSequenceRepository works on both lib/pq and go-sqlite3 handles.
func NewSequenceRepository(db *sql.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

// The upsert is a single statement, so concurrent callers on one partition
// serialize on the row and never observe the same value.
const nextSequenceQuery = `
INSERT INTO event_sequences (partition_key, last_sequence, updated_at)
VALUES ($1, 1, CURRENT_TIMESTAMP)
ON CONFLICT (partition_key) DO UPDATE
SET last_sequence = event_sequences.last_sequence + 1,
    updated_at = CURRENT_TIMESTAMP
RETURNING last_sequence`

func (r *sequenceRepository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, errors.New("partition key is required")
	}

	var next int64
	if err := r.db.QueryRowContext(ctx, nextSequenceQuery, partitionKey).Scan(&next); err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", partitionKey, err)
	}
	return next, nil
}
