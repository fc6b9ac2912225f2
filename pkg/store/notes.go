package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var validNoteCategories = map[string]bool{
	"general": true, "findings": true, "methodology": true,
	"todo": true, "questions": true, "plan": true,
}

var validNotePriorities = map[string]bool{"low": true, "normal": true, "high": true, "urgent": true}

// Note is one entry in the Notes store, carrying structured metadata
// (category, priority, tags) alongside its title and content.
type Note struct {
	ID        string    `json:"note_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrInvalidNote describes a validation failure on a note field.
type ErrInvalidNote struct{ Reason string }

func (e *ErrInvalidNote) Error() string { return e.Reason }

// ErrNoteNotFound is returned when a note id doesn't exist.
type ErrNoteNotFound struct{ NoteID string }

func (e *ErrNoteNotFound) Error() string { return fmt.Sprintf("note %q not found", e.NoteID) }

// NotesStore is a JSON-backed, atomically-persisted collection of notes.
type NotesStore struct {
	mu    sync.Mutex
	path  string
	notes map[string]Note
}

// NewNotesStore constructs a store backed by path, loading any existing
// contents immediately.
func NewNotesStore(path string) (*NotesStore, error) {
	s := &NotesStore{path: path, notes: make(map[string]Note)}
	if err := readJSON(path, &s.notes); err != nil {
		return nil, err
	}
	if s.notes == nil {
		s.notes = make(map[string]Note)
	}
	return s, nil
}

// Create adds a note, validating category/priority/non-empty title and
// content per the original tool's rules.
func (s *NotesStore) Create(title, content, category string, tags []string, priority string) (Note, error) {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" {
		return Note{}, &ErrInvalidNote{Reason: "title cannot be empty"}
	}
	if content == "" {
		return Note{}, &ErrInvalidNote{Reason: "content cannot be empty"}
	}
	if category == "" {
		category = "general"
	}
	if !validNoteCategories[category] {
		return Note{}, &ErrInvalidNote{Reason: fmt.Sprintf("invalid category %q", category)}
	}
	if priority == "" {
		priority = "normal"
	}
	if !validNotePriorities[priority] {
		return Note{}, &ErrInvalidNote{Reason: fmt.Sprintf("invalid priority %q", priority)}
	}

	now := time.Now().UTC()
	n := Note{
		ID:        uuid.NewString()[:5],
		Title:     title,
		Content:   content,
		Category:  category,
		Tags:      append([]string(nil), tags...),
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.notes[n.ID] = n
	err := s.persistLocked()
	s.mu.Unlock()
	return n, err
}

// Update mutates the named fields of an existing note; nil pointers leave
// the field untouched.
func (s *NotesStore) Update(id string, title, content *string, tags []string, priority *string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return Note{}, &ErrNoteNotFound{NoteID: id}
	}
	if title != nil {
		t := strings.TrimSpace(*title)
		if t == "" {
			return Note{}, &ErrInvalidNote{Reason: "title cannot be empty"}
		}
		n.Title = t
	}
	if content != nil {
		c := strings.TrimSpace(*content)
		if c == "" {
			return Note{}, &ErrInvalidNote{Reason: "content cannot be empty"}
		}
		n.Content = c
	}
	if tags != nil {
		n.Tags = tags
	}
	if priority != nil {
		if !validNotePriorities[*priority] {
			return Note{}, &ErrInvalidNote{Reason: fmt.Sprintf("invalid priority %q", *priority)}
		}
		n.Priority = *priority
	}
	n.UpdatedAt = time.Now().UTC()
	s.notes[id] = n
	return n, s.persistLocked()
}

// Delete removes a note by id.
func (s *NotesStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return &ErrNoteNotFound{NoteID: id}
	}
	delete(s.notes, id)
	return s.persistLocked()
}

// List filters notes by category/tags/priority/search, sorted by
// created_at descending, matching the original tool's ordering.
func (s *NotesStore) List(category string, tags []string, priority, search string) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Note
	searchLower := strings.ToLower(search)
	for _, n := range s.notes {
		if category != "" && n.Category != category {
			continue
		}
		if priority != "" && n.Priority != priority {
			continue
		}
		if len(tags) > 0 && !anyTagMatches(n.Tags, tags) {
			continue
		}
		if search != "" {
			if !strings.Contains(strings.ToLower(n.Title), searchLower) &&
				!strings.Contains(strings.ToLower(n.Content), searchLower) {
				continue
			}
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func anyTagMatches(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

func (s *NotesStore) persistLocked() error {
	return writeJSONAtomic(s.path, s.notes)
}
