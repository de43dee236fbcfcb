package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/notes"
)

// entry pairs a record with its own lock so writes to different lectures do
// not contend.
type entry struct {
	mu     sync.Mutex
	record *LectureRecord
}

// MemoryStore keeps lecture records in process memory. Suitable for
// single-host use and as the test double for the Postgres store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) Create(_ context.Context, record *LectureRecord) error {
	if record.ID == "" {
		return fmt.Errorf("lecture record has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[record.ID]; exists {
		return fmt.Errorf("%w: %s", lcerrors.ErrDuplicateLecture, record.ID)
	}
	s.entries[record.ID] = &entry{record: record.Clone()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*LectureRecord, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: lecture %s", lcerrors.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Clone(), nil
}

func (s *MemoryStore) UpdateNotes(_ context.Context, id string, chapter int, set notes.ArtifactSet) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: lecture %s", lcerrors.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if chapter != notes.LectureLevel {
		if _, ok := e.record.Chapter(chapter); !ok {
			return fmt.Errorf("%w: lecture %s has no chapter %d", lcerrors.ErrNotFound, id, chapter)
		}
	}
	e.record.ApplyNotes(chapter, set)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: lecture %s", lcerrors.ErrNotFound, id)
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]LectureSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]LectureSummary, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		summaries = append(summaries, e.record.Summary())
		e.mu.Unlock()
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}
