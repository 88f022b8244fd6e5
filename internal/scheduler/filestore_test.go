package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeSubscribersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subscribers.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing subscribers file: %v", err)
	}
	return path
}

func TestFileStoreListSubscribers(t *testing.T) {
	path := writeSubscribersFile(t, `[
		{"id": "100200300", "timezone": "Asia/Dhaka", "slots": [0, 1, 2, 3]},
		{"id": "400500600", "timezone": "Europe/Berlin", "slots": [1]}
	]`)

	subs, err := NewFileStore(path).ListSubscribers(context.Background())
	if err != nil {
		t.Fatalf("ListSubscribers failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(subs))
	}
	if subs[0].ID != "100200300" || subs[0].Timezone != "Asia/Dhaka" {
		t.Errorf("unexpected first subscriber: %+v", subs[0])
	}
	if len(subs[0].Slots) != 4 {
		t.Errorf("expected 4 slots, got %v", subs[0].Slots)
	}
}

func TestFileStoreSkipsInvalidRecords(t *testing.T) {
	path := writeSubscribersFile(t, `[
		{"id": "", "timezone": "UTC", "slots": [0]},
		{"id": "ok", "timezone": "", "slots": [0]},
		{"id": "ok2", "timezone": "UTC", "slots": []},
		{"id": "ok3", "timezone": "UTC", "slots": [2]}
	]`)

	subs, err := NewFileStore(path).ListSubscribers(context.Background())
	if err != nil {
		t.Fatalf("ListSubscribers failed: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "ok3" {
		t.Errorf("expected only the complete record, got %+v", subs)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "nope.json")).ListSubscribers(context.Background())
	if err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestFileStoreMalformedJSON(t *testing.T) {
	path := writeSubscribersFile(t, `{not json`)
	if _, err := NewFileStore(path).ListSubscribers(context.Background()); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
