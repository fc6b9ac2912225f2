package store

import (
	"path/filepath"
	"testing"
)

func TestNotesStoreCreateValidatesFields(t *testing.T) {
	s, err := NewNotesStore(filepath.Join(t.TempDir(), "notes.json"))
	if err != nil {
		t.Fatalf("NewNotesStore: %v", err)
	}

	if _, err := s.Create("", "content", "", nil, ""); err == nil {
		t.Error("expected an error for an empty title")
	}
	if _, err := s.Create("title", "", "", nil, ""); err == nil {
		t.Error("expected an error for empty content")
	}
	if _, err := s.Create("title", "content", "not-a-real-category", nil, ""); err == nil {
		t.Error("expected an error for an invalid category")
	}
	if _, err := s.Create("title", "content", "", nil, "not-a-real-priority"); err == nil {
		t.Error("expected an error for an invalid priority")
	}

	n, err := s.Create("interesting header", "X-Debug: 1", "", []string{"recon"}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Category != "general" || n.Priority != "normal" {
		t.Errorf("defaults not applied: category=%q priority=%q", n.Category, n.Priority)
	}
}

func TestNotesStoreUpdateAndDelete(t *testing.T) {
	s, _ := NewNotesStore(filepath.Join(t.TempDir(), "notes.json"))
	n, err := s.Create("title", "content", "todo", nil, "low")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newTitle := "updated title"
	updated, err := s.Update(n.ID, &newTitle, nil, []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "updated title" || len(updated.Tags) != 2 {
		t.Errorf("Update result = %+v", updated)
	}
	if !updated.UpdatedAt.After(n.CreatedAt.Add(-1)) {
		t.Error("UpdatedAt should move forward after Update")
	}

	if err := s.Delete(n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Delete(n.ID); err == nil {
		t.Error("expected an error deleting an already-deleted note")
	}

	if _, err := s.Update("nonexistent", &newTitle, nil, nil, nil); err == nil {
		t.Error("expected an error updating a nonexistent note")
	}
}

func TestNotesStoreListFiltersAndOrders(t *testing.T) {
	s, _ := NewNotesStore(filepath.Join(t.TempDir(), "notes.json"))
	if _, err := s.Create("first", "alpha finding", "findings", []string{"sql"}, "high"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("second", "beta todo", "todo", []string{"xss"}, "low"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	findings := s.List("findings", nil, "", "")
	if len(findings) != 1 || findings[0].Title != "first" {
		t.Errorf("category filter = %+v", findings)
	}

	byTag := s.List("", []string{"xss"}, "", "")
	if len(byTag) != 1 || byTag[0].Title != "second" {
		t.Errorf("tag filter = %+v", byTag)
	}

	bySearch := s.List("", nil, "", "alpha")
	if len(bySearch) != 1 || bySearch[0].Title != "first" {
		t.Errorf("search filter = %+v", bySearch)
	}

	all := s.List("", nil, "", "")
	if len(all) != 2 {
		t.Errorf("unfiltered List = %d notes, want 2", len(all))
	}
}

func TestNotesStorePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.json")
	s1, _ := NewNotesStore(path)
	n, err := s1.Create("persisted", "content", "", nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s2, err := NewNotesStore(path)
	if err != nil {
		t.Fatalf("reload NewNotesStore: %v", err)
	}
	reloaded := s2.List("", nil, "", "")
	if len(reloaded) != 1 || reloaded[0].ID != n.ID {
		t.Errorf("reloaded notes = %+v, want the one persisted note", reloaded)
	}
}
