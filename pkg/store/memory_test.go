package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/notes"
	"github.com/lecternlabs/lectern/pkg/segment"
	"github.com/lecternlabs/lectern/pkg/transcript"
)

func testRecord(created time.Time) *LectureRecord {
	seg0 := transcript.Segment{Start: 0, End: 100 * time.Second, Text: "opening material"}
	seg1 := transcript.Segment{Start: 110 * time.Second, End: 200 * time.Second, Text: "closing material"}
	return &LectureRecord{
		ID:             uuid.NewString(),
		Title:          "Intro to Signals",
		SourceFilename: "intro_to_signals.mp3",
		Language:       "English",
		CreatedAt:      created,
		Transcript:     []transcript.Segment{seg0, seg1},
		Chapters: []segment.Chapter{
			{Index: 0, Title: "opening material", Start: 0, End: 110 * time.Second, Segments: []transcript.Segment{seg0}},
			{Index: 1, Title: "closing material", Start: 110 * time.Second, End: 200 * time.Second, Segments: []transcript.Segment{seg1}},
		},
		Notes: map[int]notes.ArtifactSet{
			0: {notes.KindSummary: {Kind: notes.KindSummary, Language: "English", Content: "chapter one summary"}},
		},
		Missing: []notes.Missing{{Chapter: 1, Kind: notes.KindQuiz, Reason: "timeout"}},
	}
}

func TestMemoryStore_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := testRecord(time.Now())

	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Transcript, got.Transcript)
	assert.Len(t, got.Chapters, 2)
	assert.Equal(t, "chapter one summary", got.Notes[0][notes.KindSummary].Content)
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := testRecord(time.Now())

	require.NoError(t, s.Create(ctx, rec))
	err := s.Create(ctx, rec)
	assert.ErrorIs(t, err, lcerrors.ErrDuplicateLecture)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, lcerrors.ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := testRecord(time.Now())
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	got.Title = "mutated"
	got.Chapters[0].Title = "mutated"
	got.Notes[0][notes.KindSummary] = notes.Artifact{Content: "mutated"}

	fresh, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Intro to Signals", fresh.Title)
	assert.Equal(t, "opening material", fresh.Chapters[0].Title)
	assert.Equal(t, "chapter one summary", fresh.Notes[0][notes.KindSummary].Content)
}

func TestMemoryStore_UpdateNotesOverwritesAndClearsMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := testRecord(time.Now())
	require.NoError(t, s.Create(ctx, rec))

	set := notes.ArtifactSet{
		notes.KindQuiz: {Kind: notes.KindQuiz, Language: "English", Content: "regenerated quiz"},
	}
	require.NoError(t, s.UpdateNotes(ctx, rec.ID, 1, set))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "regenerated quiz", got.Notes[1][notes.KindQuiz].Content)
	assert.Empty(t, got.Missing, "regenerating the quiz clears its missing entry")

	// Transcript and chapters are untouched.
	assert.Equal(t, rec.Transcript, got.Transcript)
	assert.Len(t, got.Chapters, 2)
}

func TestMemoryStore_UpdateNotesLectureRollup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := testRecord(time.Now())
	require.NoError(t, s.Create(ctx, rec))

	set := notes.ArtifactSet{
		notes.KindSummary: {Kind: notes.KindSummary, Content: "whole lecture summary"},
	}
	require.NoError(t, s.UpdateNotes(ctx, rec.ID, notes.LectureLevel, set))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "whole lecture summary", got.Notes[notes.LectureLevel][notes.KindSummary].Content)
}

func TestMemoryStore_UpdateNotesUnknownChapter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := testRecord(time.Now())
	require.NoError(t, s.Create(ctx, rec))

	err := s.UpdateNotes(ctx, rec.ID, 9, notes.ArtifactSet{})
	assert.ErrorIs(t, err, lcerrors.ErrNotFound)
}

func TestMemoryStore_DeleteThenGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := testRecord(time.Now())
	require.NoError(t, s.Create(ctx, rec))

	require.NoError(t, s.Delete(ctx, rec.ID))
	_, err := s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, lcerrors.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, rec.ID), lcerrors.ErrNotFound)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		rec := testRecord(base.Add(time.Duration(i) * time.Hour))
		rec.Title = fmt.Sprintf("Lecture %d", i)
		require.NoError(t, s.Create(ctx, rec))
		ids = append(ids, rec.ID)
	}

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "Lecture 2", summaries[0].Title)
	assert.Equal(t, "Lecture 0", summaries[2].Title)
	assert.Equal(t, ids[2], summaries[0].ID)
	assert.Equal(t, 2, summaries[0].Chapters)
	assert.Equal(t, 1, summaries[0].MissingNotes)
}

func TestMemoryStore_ConcurrentWritesDifferentLectures(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var recs []*LectureRecord
	for i := 0; i < 8; i++ {
		rec := testRecord(time.Now())
		require.NoError(t, s.Create(ctx, rec))
		recs = append(recs, rec)
	}

	var wg sync.WaitGroup
	for _, rec := range recs {
		for k := 0; k < 4; k++ {
			wg.Add(1)
			go func(id string, k int) {
				defer wg.Done()
				set := notes.ArtifactSet{
					notes.KindSummary: {Kind: notes.KindSummary, Content: fmt.Sprintf("pass %d", k)},
				}
				assert.NoError(t, s.UpdateNotes(ctx, id, 0, set))
			}(rec.ID, k)
		}
	}
	wg.Wait()

	for _, rec := range recs {
		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Contains(t, got.Notes[0][notes.KindSummary].Content, "pass ")
	}
}

func TestApplyNotes_Idempotent(t *testing.T) {
	rec := testRecord(time.Now())
	set := notes.ArtifactSet{
		notes.KindQuiz: {Kind: notes.KindQuiz, Content: "quiz body"},
	}

	rec.ApplyNotes(1, set)
	once := rec.Clone()
	rec.ApplyNotes(1, set)

	assert.Equal(t, once.Notes, rec.Notes)
	assert.Equal(t, once.Missing, rec.Missing)
}
