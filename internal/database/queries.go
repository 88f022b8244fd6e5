// internal/database/queries.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsdigest/internal/feed"
)

// Error definitions
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DedupRecord is one row of the dedup ledger. Created on first successful
// inclusion in a digest; never mutated afterwards.
type DedupRecord struct {
	Identity      string
	Category      string
	FirstSeenSlot int
	FirstSeenAt   time.Time
}

const sqliteTimeFormat = "2006-01-02 15:04:05"

// Seen reports whether a DedupRecord exists for the identity.
func (db *DB) Seen(ctx context.Context, identity string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM dedup_records WHERE identity = ?",
		identity,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying dedup record: %w", err)
	}
	return true, nil
}

// SeenIdentities returns the subset of identities that already have a
// DedupRecord. Batch form of Seen so curation does one query per category.
func (db *DB) SeenIdentities(ctx context.Context, identities []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(identities))
	if len(identities) == 0 {
		return seen, nil
	}

	stmt, err := db.PrepareContext(ctx, "SELECT 1 FROM dedup_records WHERE identity = ?")
	if err != nil {
		return nil, fmt.Errorf("preparing dedup lookup: %w", err)
	}
	defer stmt.Close()

	for _, id := range identities {
		var one int
		err := stmt.QueryRowContext(ctx, id).Scan(&one)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("querying dedup record %s: %w", id, err)
		}
		seen[id] = true
	}
	return seen, nil
}

// RecordAll inserts a DedupRecord for each item not already present, in one
// transaction. INSERT OR IGNORE makes the operation idempotent and
// first-writer-wins under concurrent cycles; a successful return means the
// records are durable.
func (db *DB) RecordAll(ctx context.Context, items []feed.NewsItem, slot int) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting ledger transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR IGNORE INTO dedup_records (identity, category, first_seen_slot, first_seen_at)
        VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing ledger insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(sqliteTimeFormat)
	for _, item := range items {
		if item.Identity == "" {
			return fmt.Errorf("%w: item %q has empty identity", ErrInvalidInput, item.Title)
		}
		if _, err := stmt.ExecContext(ctx, item.Identity, item.Category, slot, now); err != nil {
			return fmt.Errorf("inserting ledger record %s: %w", item.Identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger transaction: %w", err)
	}
	return nil
}

// GetDedupRecord retrieves a single ledger row, mostly for tests and
// operator tooling.
func (db *DB) GetDedupRecord(ctx context.Context, identity string) (*DedupRecord, error) {
	var rec DedupRecord
	var firstSeen string
	err := db.QueryRowContext(ctx,
		`SELECT identity, category, first_seen_slot, first_seen_at
         FROM dedup_records WHERE identity = ?`,
		identity,
	).Scan(&rec.Identity, &rec.Category, &rec.FirstSeenSlot, &firstSeen)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying dedup record: %w", err)
	}
	if t, perr := time.Parse(sqliteTimeFormat, firstSeen); perr == nil {
		rec.FirstSeenAt = t
	} else if t, perr := time.Parse(time.RFC3339, firstSeen); perr == nil {
		rec.FirstSeenAt = t
	}
	return &rec, nil
}

// PruneDedupRecords removes ledger rows first seen before the cutoff and
// returns the number removed. Retention is a rolling window; identities
// older than it may resurface, which beats unbounded growth.
func (db *DB) PruneDedupRecords(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM dedup_records WHERE first_seen_at < ?",
		olderThan.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning dedup records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// LastFired returns the most recent local calendar date (YYYY-MM-DD) on
// which the (subscriber, slot) pair fired, or ErrNotFound.
func (db *DB) LastFired(ctx context.Context, subscriberID string, slot int) (string, error) {
	var date string
	err := db.QueryRowContext(ctx,
		`SELECT fired_date FROM last_fired
         WHERE subscriber_id = ? AND slot_index = ?
         ORDER BY fired_date DESC LIMIT 1`,
		subscriberID, slot,
	).Scan(&date)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying last fired: %w", err)
	}
	return date, nil
}

// HasFired reports whether the (subscriber, slot) pair already fired on the
// given local calendar date.
func (db *DB) HasFired(ctx context.Context, subscriberID string, slot int, date string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM last_fired
         WHERE subscriber_id = ? AND slot_index = ? AND fired_date = ?`,
		subscriberID, slot, date,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying last fired: %w", err)
	}
	return true, nil
}

// MarkFired records that the (subscriber, slot) pair completed for the given
// local calendar date. Outcome is 'delivered' or 'failed'; either way the
// pair must not fire again that day.
func (db *DB) MarkFired(ctx context.Context, subscriberID string, slot int, date, outcome string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO last_fired (subscriber_id, slot_index, fired_date, outcome, fired_at)
         VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
         ON CONFLICT(subscriber_id, slot_index, fired_date) DO UPDATE SET
         outcome = excluded.outcome,
         fired_at = CURRENT_TIMESTAMP`,
		subscriberID, slot, date, outcome,
	)
	if err != nil {
		return fmt.Errorf("marking fired: %w", err)
	}
	return nil
}

// PruneLastFired drops firing markers older than the cutoff date
// (YYYY-MM-DD). Markers only matter for same-day idempotency.
func (db *DB) PruneLastFired(ctx context.Context, beforeDate string) (int64, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM last_fired WHERE fired_date < ?",
		beforeDate,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning last fired: %w", err)
	}
	return res.RowsAffected()
}

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?",
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// UpdateSetting upserts a setting value.
func (db *DB) UpdateSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET
        value = excluded.value,
        updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}
