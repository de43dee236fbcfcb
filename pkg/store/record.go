// Package store persists assembled lecture records. Two implementations
// share the Store interface: an in-memory store for single-process use and
// tests, and a Postgres-backed store that keeps each record as a JSONB
// document.
package store

import (
	"time"

	"github.com/lecternlabs/lectern/pkg/notes"
	"github.com/lecternlabs/lectern/pkg/segment"
	"github.com/lecternlabs/lectern/pkg/transcript"
)

// LectureRecord is the aggregate produced by one successful pipeline run.
// Transcript and chapters are immutable after creation; only notes are
// regenerable.
type LectureRecord struct {
	ID             string                    `json:"id"`
	Title          string                    `json:"title"`
	SourceFilename string                    `json:"source_filename"`
	Language       string                    `json:"language"`
	CreatedAt      time.Time                 `json:"created_at"`
	Transcript     []transcript.Segment      `json:"transcript"`
	Chapters       []segment.Chapter         `json:"chapters"`
	Notes          map[int]notes.ArtifactSet `json:"notes"`
	Missing        []notes.Missing           `json:"missing,omitempty"`
}

// ApplyNotes merges an artifact set into the record for the given chapter
// (notes.LectureLevel for the rollup), overwriting artifacts of the same
// kind and clearing any missing-manifest entries they satisfy.
func (r *LectureRecord) ApplyNotes(chapter int, set notes.ArtifactSet) {
	if r.Notes == nil {
		r.Notes = make(map[int]notes.ArtifactSet)
	}
	r.Notes[chapter] = r.Notes[chapter].Merge(set)

	if len(r.Missing) == 0 {
		return
	}
	kept := r.Missing[:0]
	for _, m := range r.Missing {
		if _, regenerated := set[m.Kind]; m.Chapter == chapter && regenerated {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		kept = nil
	}
	r.Missing = kept
}

// Chapter returns the chapter with the given index, or false.
func (r *LectureRecord) Chapter(index int) (segment.Chapter, bool) {
	for _, ch := range r.Chapters {
		if ch.Index == index {
			return ch, true
		}
	}
	return segment.Chapter{}, false
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *LectureRecord) Clone() *LectureRecord {
	out := *r
	out.Transcript = append([]transcript.Segment(nil), r.Transcript...)
	out.Chapters = make([]segment.Chapter, len(r.Chapters))
	for i, ch := range r.Chapters {
		ch.Segments = append([]transcript.Segment(nil), ch.Segments...)
		out.Chapters[i] = ch
	}
	if r.Notes != nil {
		out.Notes = make(map[int]notes.ArtifactSet, len(r.Notes))
		for idx, set := range r.Notes {
			out.Notes[idx] = notes.ArtifactSet(nil).Merge(set)
		}
	}
	out.Missing = append([]notes.Missing(nil), r.Missing...)
	return &out
}

// Summary condenses the record for listings.
func (r *LectureRecord) Summary() LectureSummary {
	return LectureSummary{
		ID:             r.ID,
		Title:          r.Title,
		SourceFilename: r.SourceFilename,
		Language:       r.Language,
		CreatedAt:      r.CreatedAt,
		Chapters:       len(r.Chapters),
		MissingNotes:   len(r.Missing),
	}
}

// LectureSummary is the listing row returned by Store.List.
type LectureSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	SourceFilename string    `json:"source_filename"`
	Language       string    `json:"language"`
	CreatedAt      time.Time `json:"created_at"`
	Chapters       int       `json:"chapters"`
	MissingNotes   int       `json:"missing_notes"`
}
