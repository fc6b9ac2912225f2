package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// progressEntry is one key's stored value plus its timestamps.
type progressEntry struct {
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ErrInvalidProgressKey is returned for an empty key.
type ErrInvalidProgressKey struct{}

func (e *ErrInvalidProgressKey) Error() string { return "progress key cannot be empty" }

// ErrProgressKeyNotFound is returned by Load for an unknown key.
type ErrProgressKeyNotFound struct {
	Key            string
	AvailableKeys  []string
}

func (e *ErrProgressKeyNotFound) Error() string {
	return fmt.Sprintf("progress key %q not found", e.Key)
}

// ProgressStore is a JSON-backed key-value store with list-append
// semantics when the existing value and the incoming value's "items"
// field are both lists, grounded on
// original_source/strix/tools/progress/progress_actions.py.
type ProgressStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]progressEntry
}

// NewProgressStore constructs a store backed by path, loading any existing
// contents immediately.
func NewProgressStore(path string) (*ProgressStore, error) {
	s := &ProgressStore{path: path, entries: make(map[string]progressEntry)}
	if err := readJSON(path, &s.entries); err != nil {
		return nil, err
	}
	if s.entries == nil {
		s.entries = make(map[string]progressEntry)
	}
	return s, nil
}

// Save stores data under key. If append is true, an existing entry's value,
// and an "items" list inside the incoming data, are both lists, the
// incoming items are extended onto the existing list rather than replacing
// it; otherwise the key's value is replaced outright.
func (s *ProgressStore) Save(key string, data map[string]any, appendMode bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &ErrInvalidProgressKey{}
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if appendMode && ok {
		if existingList, isList := existing.Data["data"].([]any); isList {
			if items, hasItems := data["items"].([]any); hasItems {
				existing.Data["data"] = append(existingList, items...)
				existing.UpdatedAt = now
				s.entries[key] = existing
				return s.persistLocked()
			}
		}
		existing.Data = data
		existing.UpdatedAt = now
		s.entries[key] = existing
		return s.persistLocked()
	}

	createdAt := now
	if ok {
		createdAt = existing.CreatedAt
	}
	s.entries[key] = progressEntry{Data: data, CreatedAt: createdAt, UpdatedAt: now}
	return s.persistLocked()
}

// Load returns the stored data for key.
func (s *ProgressStore) Load(key string) (map[string]any, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &ErrInvalidProgressKey{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		keys := make([]string, 0, len(s.entries))
		for k := range s.entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, &ErrProgressKeyNotFound{Key: key, AvailableKeys: keys}
	}
	return entry.Data, nil
}

// ProgressSummary is one row of List's output.
type ProgressSummary struct {
	Key       string
	CreatedAt time.Time
	UpdatedAt time.Time
	SizeHint  string
}

// List returns every key's metadata, sorted by updated_at descending.
func (s *ProgressStore) List() []ProgressSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProgressSummary, 0, len(s.entries))
	for key, entry := range s.entries {
		out = append(out, ProgressSummary{
			Key: key, CreatedAt: entry.CreatedAt, UpdatedAt: entry.UpdatedAt,
			SizeHint: sizeHint(entry.Data),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func sizeHint(data map[string]any) string {
	if raw, ok := data["data"].([]any); ok {
		return fmt.Sprintf("%d items", len(raw))
	}
	return fmt.Sprintf("%d keys", len(data))
}

func (s *ProgressStore) persistLocked() error {
	return writeJSONAtomic(s.path, s.entries)
}
