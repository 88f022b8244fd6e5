package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileStore is a PreferenceStore backed by a JSON file, for single-box
// deployments where no external subscriber service exists. The file is
// re-read on every list so external edits show up at the next cache refresh.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading subscribers file: %w", err)
	}

	var subs []Subscriber
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("parsing subscribers file: %w", err)
	}

	valid := subs[:0]
	for _, s := range subs {
		if s.ID == "" || s.Timezone == "" || len(s.Slots) == 0 {
			continue
		}
		valid = append(valid, s)
	}
	return valid, nil
}
