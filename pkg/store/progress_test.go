package store

import (
	"path/filepath"
	"testing"
)

func TestProgressStoreSaveLoadRoundTrip(t *testing.T) {
	s, err := NewProgressStore(filepath.Join(t.TempDir(), "progress.json"))
	if err != nil {
		t.Fatalf("NewProgressStore: %v", err)
	}

	if err := s.Save("recon", map[string]any{"hosts": []any{"a", "b"}}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("recon")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if hosts, _ := got["hosts"].([]any); len(hosts) != 2 {
		t.Errorf("Load result = %+v", got)
	}
}

func TestProgressStoreSaveRejectsEmptyKey(t *testing.T) {
	s, _ := NewProgressStore(filepath.Join(t.TempDir(), "progress.json"))
	if err := s.Save("", map[string]any{}, false); err == nil {
		t.Error("expected an error for an empty key")
	}
	if _, err := s.Load(""); err == nil {
		t.Error("expected an error loading an empty key")
	}
}

func TestProgressStoreLoadUnknownKeyListsAvailable(t *testing.T) {
	s, _ := NewProgressStore(filepath.Join(t.TempDir(), "progress.json"))
	if err := s.Save("known", map[string]any{"x": 1}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, err := s.Load("unknown")
	if err == nil {
		t.Fatal("expected an error for an unknown key")
	}
	kerr, ok := err.(*ErrProgressKeyNotFound)
	if !ok {
		t.Fatalf("error type = %T, want *ErrProgressKeyNotFound", err)
	}
	if len(kerr.AvailableKeys) != 1 || kerr.AvailableKeys[0] != "known" {
		t.Errorf("AvailableKeys = %v", kerr.AvailableKeys)
	}
}

func TestProgressStoreAppendModeExtendsItemsList(t *testing.T) {
	s, _ := NewProgressStore(filepath.Join(t.TempDir(), "progress.json"))
	if err := s.Save("findings", map[string]any{"data": []any{"one"}}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("findings", map[string]any{"items": []any{"two", "three"}}, true); err != nil {
		t.Fatalf("Save append: %v", err)
	}

	got, err := s.Load("findings")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	data, _ := got["data"].([]any)
	if len(data) != 3 {
		t.Fatalf("appended data = %+v, want 3 items", data)
	}
}

func TestProgressStoreAppendModeWithoutMatchingShapeReplaces(t *testing.T) {
	s, _ := NewProgressStore(filepath.Join(t.TempDir(), "progress.json"))
	if err := s.Save("k", map[string]any{"scalar": "v1"}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("k", map[string]any{"scalar": "v2"}, true); err != nil {
		t.Fatalf("Save append: %v", err)
	}
	got, _ := s.Load("k")
	if got["scalar"] != "v2" {
		t.Errorf("got %+v, want replaced value v2", got)
	}
}

func TestProgressStoreListSortedByUpdatedDescending(t *testing.T) {
	s, _ := NewProgressStore(filepath.Join(t.TempDir(), "progress.json"))
	if err := s.Save("first", map[string]any{"a": 1}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("second", map[string]any{"a": 1}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Re-saving "first" should move it ahead of "second" in the list.
	if err := s.Save("first", map[string]any{"a": 2}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	list := s.List()
	if len(list) != 2 || list[0].Key != "first" {
		t.Errorf("List() = %+v, want [first, second]", list)
	}
}
