package store

import (
	"context"

	"github.com/lecternlabs/lectern/pkg/notes"
)

// Store is the lecture record boundary. Writes to the same lecture id are
// serialized; reads and writes to different ids may run concurrently.
type Store interface {
	// Create persists a new record. Returns ErrDuplicateLecture when the id
	// is already taken.
	Create(ctx context.Context, record *LectureRecord) error

	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, id string) (*LectureRecord, error)

	// UpdateNotes overwrites the given chapter's artifacts of the kinds
	// present in set, leaving transcript and chapters untouched. Use
	// notes.LectureLevel for the rollup. Returns ErrNotFound if the record
	// does not exist.
	UpdateNotes(ctx context.Context, id string, chapter int, set notes.ArtifactSet) error

	// Delete removes the record, or returns ErrNotFound. Callers must
	// remove the lecture from the search index before deleting here.
	Delete(ctx context.Context, id string) error

	// List returns summaries of all records, newest first.
	List(ctx context.Context) ([]LectureSummary, error)
}
