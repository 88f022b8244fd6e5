package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"newsdigest/internal/feed"
)

// setupTestDB initializes a temporary SQLite database via NewDB, which
// applies the schema. A file-backed store (not :memory:) keeps the pool's
// connections on one database, which the concurrency tests rely on.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testItem(identity, category string) feed.NewsItem {
	return feed.NewsItem{
		Identity:    identity,
		Category:    category,
		Title:       "Story " + identity,
		URL:         "https://example.com/" + identity,
		PublishedAt: time.Now().UTC(),
		Source:      "Test Source",
	}
}

func TestRecordAllAndSeen(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	items := []feed.NewsItem{
		testItem("id-1", "tech"),
		testItem("id-2", "tech"),
	}

	if err := db.RecordAll(ctx, items, 2); err != nil {
		t.Fatalf("RecordAll failed: %v", err)
	}

	for _, id := range []string{"id-1", "id-2"} {
		seen, err := db.Seen(ctx, id)
		if err != nil {
			t.Fatalf("Seen(%s) failed: %v", id, err)
		}
		if !seen {
			t.Errorf("Seen(%s) = false after RecordAll", id)
		}
	}

	seen, err := db.Seen(ctx, "id-unknown")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if seen {
		t.Error("Seen(id-unknown) = true, expected false")
	}

	rec, err := db.GetDedupRecord(ctx, "id-1")
	if err != nil {
		t.Fatalf("GetDedupRecord failed: %v", err)
	}
	if rec.Category != "tech" || rec.FirstSeenSlot != 2 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRecordAllIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	items := []feed.NewsItem{testItem("id-1", "tech")}

	if err := db.RecordAll(ctx, items, 0); err != nil {
		t.Fatalf("first RecordAll failed: %v", err)
	}
	// Second insert with a different slot must not replace the first record.
	if err := db.RecordAll(ctx, items, 3); err != nil {
		t.Fatalf("second RecordAll failed: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dedup_records WHERE identity = 'id-1'").Scan(&count); err != nil {
		t.Fatalf("counting records failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 record, got %d", count)
	}

	rec, err := db.GetDedupRecord(ctx, "id-1")
	if err != nil {
		t.Fatalf("GetDedupRecord failed: %v", err)
	}
	if rec.FirstSeenSlot != 0 {
		t.Errorf("firstSeenSlot mutated to %d; records must never be overwritten", rec.FirstSeenSlot)
	}
}

func TestRecordAllConcurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Two simultaneous cycles recording the same identity must produce
	// exactly one record: conditional insert, first writer wins.
	items := []feed.NewsItem{testItem("contested", "global")}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			errs <- db.RecordAll(ctx, items, slot)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent RecordAll failed: %v", err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dedup_records WHERE identity = 'contested'").Scan(&count); err != nil {
		t.Fatalf("counting records failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 record after concurrent inserts, got %d", count)
	}
}

func TestRecordAllRejectsEmptyIdentity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	items := []feed.NewsItem{{Category: "tech", Title: "No identity"}}
	if err := db.RecordAll(ctx, items, 0); err == nil {
		t.Error("expected error for item with empty identity")
	}
}

func TestSeenIdentities(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.RecordAll(ctx, []feed.NewsItem{testItem("a", "tech"), testItem("b", "tech")}, 0); err != nil {
		t.Fatalf("RecordAll failed: %v", err)
	}

	seen, err := db.SeenIdentities(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("SeenIdentities failed: %v", err)
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("expected a and b seen, got %v", seen)
	}
	if seen["c"] {
		t.Error("c should not be seen")
	}

	empty, err := db.SeenIdentities(ctx, nil)
	if err != nil {
		t.Fatalf("SeenIdentities(nil) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty map, got %v", empty)
	}
}

func TestPruneDedupRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// One old record, one fresh.
	_, err := db.ExecContext(ctx,
		"INSERT INTO dedup_records (identity, category, first_seen_slot, first_seen_at) VALUES (?, ?, ?, ?)",
		"old", "tech", 0, time.Now().UTC().AddDate(0, 0, -40).Format(sqliteTimeFormat))
	if err != nil {
		t.Fatalf("inserting old record failed: %v", err)
	}
	if err := db.RecordAll(ctx, []feed.NewsItem{testItem("fresh", "tech")}, 0); err != nil {
		t.Fatalf("RecordAll failed: %v", err)
	}

	n, err := db.PruneDedupRecords(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PruneDedupRecords failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned record, got %d", n)
	}

	if seen, _ := db.Seen(ctx, "old"); seen {
		t.Error("old record should have been pruned")
	}
	if seen, _ := db.Seen(ctx, "fresh"); !seen {
		t.Error("fresh record should have survived the prune")
	}
}

func TestLastFired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("not found initially", func(t *testing.T) {
		_, err := db.LastFired(ctx, "sub-1", 0)
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		fired, err := db.HasFired(ctx, "sub-1", 0, "2026-08-31")
		if err != nil {
			t.Fatalf("HasFired failed: %v", err)
		}
		if fired {
			t.Error("HasFired should be false before MarkFired")
		}
	})

	t.Run("mark and read back", func(t *testing.T) {
		if err := db.MarkFired(ctx, "sub-1", 0, "2026-08-31", "delivered"); err != nil {
			t.Fatalf("MarkFired failed: %v", err)
		}

		fired, err := db.HasFired(ctx, "sub-1", 0, "2026-08-31")
		if err != nil {
			t.Fatalf("HasFired failed: %v", err)
		}
		if !fired {
			t.Error("HasFired should be true after MarkFired")
		}

		date, err := db.LastFired(ctx, "sub-1", 0)
		if err != nil {
			t.Fatalf("LastFired failed: %v", err)
		}
		if date != "2026-08-31" {
			t.Errorf("expected date 2026-08-31, got %s", date)
		}
	})

	t.Run("scoped to slot and date", func(t *testing.T) {
		fired, _ := db.HasFired(ctx, "sub-1", 1, "2026-08-31")
		if fired {
			t.Error("slot 1 should not be fired")
		}
		fired, _ = db.HasFired(ctx, "sub-1", 0, "2026-09-01")
		if fired {
			t.Error("next day should not be fired")
		}
	})

	t.Run("re-mark with failed outcome", func(t *testing.T) {
		// Same day, same slot: marking again updates the outcome without
		// a second row.
		if err := db.MarkFired(ctx, "sub-1", 0, "2026-08-31", "failed"); err != nil {
			t.Fatalf("MarkFired failed: %v", err)
		}
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM last_fired WHERE subscriber_id = 'sub-1' AND slot_index = 0").Scan(&count); err != nil {
			t.Fatalf("counting rows failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 marker row, got %d", count)
		}
	})
}

func TestPruneLastFired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.MarkFired(ctx, "sub-1", 0, "2026-08-01", "delivered")
	db.MarkFired(ctx, "sub-1", 0, "2026-08-31", "delivered")

	n, err := db.PruneLastFired(ctx, "2026-08-24")
	if err != nil {
		t.Fatalf("PruneLastFired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned marker, got %d", n)
	}

	fired, _ := db.HasFired(ctx, "sub-1", 0, "2026-08-31")
	if !fired {
		t.Error("recent marker should survive the prune")
	}
}

func TestSettings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Defaults are seeded at bootstrap.
	v, err := db.GetSetting(ctx, "dedup_retention_days")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if v != "30" {
		t.Errorf("expected default retention 30, got %s", v)
	}

	if err := db.UpdateSetting(ctx, "dedup_retention_days", "14"); err != nil {
		t.Fatalf("UpdateSetting failed: %v", err)
	}
	v, err = db.GetSetting(ctx, "dedup_retention_days")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if v != "14" {
		t.Errorf("expected updated retention 14, got %s", v)
	}

	if _, err := db.GetSetting(ctx, "no_such_key"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
