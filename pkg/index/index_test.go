package index

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecternlabs/lectern/pkg/segment"
	"github.com/lecternlabs/lectern/pkg/store"
	"github.com/lecternlabs/lectern/pkg/transcript"
)

// stubEmbedder maps keywords to fixed axis-aligned vectors so similarity is
// predictable in tests.
type stubEmbedder struct {
	version string
	err     error
	calls   int
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 3)
		if strings.Contains(text, "calculus") {
			v[0] = 2
		}
		if strings.Contains(text, "biology") {
			v[1] = 2
		}
		if strings.Contains(text, "history") {
			v[2] = 2
		}
		if v[0] == 0 && v[1] == 0 && v[2] == 0 {
			v = []float32{1, 1, 1}
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) ModelVersion() string {
	if e.version == "" {
		return "stub-v1"
	}
	return e.version
}

func indexedRecord(id, topic string, created time.Time, chapters int) *store.LectureRecord {
	rec := &store.LectureRecord{
		ID:        id,
		Title:     topic,
		CreatedAt: created,
		Language:  "English",
	}
	for i := 0; i < chapters; i++ {
		start := time.Duration(i) * time.Minute
		seg := transcript.Segment{Start: start, End: start + time.Minute, Text: topic + " lecture material"}
		rec.Transcript = append(rec.Transcript, seg)
		rec.Chapters = append(rec.Chapters, segment.Chapter{
			Index:    i,
			Title:    topic,
			Start:    start,
			End:      start + time.Minute,
			Segments: []transcript.Segment{seg},
		})
	}
	return rec
}

func TestAdd_IndexesEveryChapter(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	rec := indexedRecord("lec-1", "calculus", time.Now(), 3)

	require.NoError(t, ix.Add(context.Background(), rec))
	assert.Equal(t, 3, ix.Len())
	assert.False(t, ix.Empty())
}

func TestAdd_IsIdempotent(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	rec := indexedRecord("lec-1", "calculus", time.Now(), 2)

	require.NoError(t, ix.Add(context.Background(), rec))
	require.NoError(t, ix.Add(context.Background(), rec))
	assert.Equal(t, 2, ix.Len())
}

func TestAdd_EmbedderFailure(t *testing.T) {
	ix := New(&stubEmbedder{err: errors.New("model offline")}, nil)
	err := ix.Add(context.Background(), indexedRecord("lec-1", "calculus", time.Now(), 1))
	assert.Error(t, err)
	assert.True(t, ix.Empty())
}

func TestQuery_RanksBySimilarity(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, ix.Add(ctx, indexedRecord("lec-math", "calculus", now, 1)))
	require.NoError(t, ix.Add(ctx, indexedRecord("lec-bio", "biology", now, 1)))

	query, err := ix.EmbedQuery(ctx, "question about calculus")
	require.NoError(t, err)

	matches := ix.Query(query, "", 10, 0.1)
	require.NotEmpty(t, matches)
	assert.Equal(t, "lec-math", matches[0].LectureID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestQuery_TopKBound(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		created := time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, ix.Add(ctx, indexedRecord(id, "calculus", created, 1)))
	}

	query, err := ix.EmbedQuery(ctx, "calculus")
	require.NoError(t, err)

	matches := ix.Query(query, "", 3, 0)
	assert.Len(t, matches, 3)
}

func TestQuery_TieBreakNewerLectureThenChapter(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	ctx := context.Background()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ix.Add(ctx, indexedRecord("lec-old", "calculus", older, 2)))
	require.NoError(t, ix.Add(ctx, indexedRecord("lec-new", "calculus", newer, 2)))

	query, err := ix.EmbedQuery(ctx, "calculus")
	require.NoError(t, err)

	matches := ix.Query(query, "", 10, 0)
	require.Len(t, matches, 4)
	assert.Equal(t, "lec-new", matches[0].LectureID)
	assert.Equal(t, 0, matches[0].Chapter)
	assert.Equal(t, "lec-new", matches[1].LectureID)
	assert.Equal(t, 1, matches[1].Chapter)
	assert.Equal(t, "lec-old", matches[2].LectureID)
}

func TestQuery_LectureFilter(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, ix.Add(ctx, indexedRecord("lec-a", "calculus", now, 1)))
	require.NoError(t, ix.Add(ctx, indexedRecord("lec-b", "calculus", now, 1)))

	query, err := ix.EmbedQuery(ctx, "calculus")
	require.NoError(t, err)

	matches := ix.Query(query, "lec-b", 10, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, "lec-b", matches[0].LectureID)
}

func TestRemove_ThenQueryNeverReturnsLecture(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, ix.Add(ctx, indexedRecord("lec-a", "calculus", now, 2)))
	require.NoError(t, ix.Add(ctx, indexedRecord("lec-b", "calculus", now, 2)))

	ix.Remove("lec-a")
	ix.Remove("lec-a") // idempotent

	query, err := ix.EmbedQuery(ctx, "calculus")
	require.NoError(t, err)
	for _, m := range ix.Query(query, "", 10, 0) {
		assert.NotEqual(t, "lec-a", m.LectureID)
	}
}

func TestReindex_RecomputesOnlyChangedChapters(t *testing.T) {
	emb := &stubEmbedder{}
	ix := New(emb, nil)
	ctx := context.Background()
	rec := indexedRecord("lec-1", "calculus", time.Now(), 3)
	require.NoError(t, ix.Add(ctx, rec))

	rec.Chapters[1].Segments[0].Text = "now it is biology content"
	callsBefore := emb.calls
	require.NoError(t, ix.Reindex(ctx, rec, []int{1}))
	assert.Equal(t, callsBefore+1, emb.calls)
	assert.Equal(t, 3, ix.Len())

	query, err := ix.EmbedQuery(ctx, "biology")
	require.NoError(t, err)
	matches := ix.Query(query, "lec-1", 1, 0.5)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].Chapter)
}

func TestStale_DetectsModelUpgrade(t *testing.T) {
	emb := &stubEmbedder{version: "model-v1"}
	ix := New(emb, nil)
	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, indexedRecord("lec-1", "calculus", time.Now(), 1)))

	assert.Empty(t, ix.Stale())

	emb.version = "model-v2"
	assert.Equal(t, []string{"lec-1"}, ix.Stale())

	require.NoError(t, ix.Add(ctx, indexedRecord("lec-1", "calculus", time.Now(), 1)))
	assert.Empty(t, ix.Stale())
}

func TestRebuild_PopulatesFromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx, indexedRecord("lec-1", "calculus", time.Now(), 2)))
	require.NoError(t, st.Create(ctx, indexedRecord("lec-2", "history", time.Now(), 1)))

	ix := New(&stubEmbedder{}, nil)
	require.NoError(t, ix.Rebuild(ctx, st))
	assert.Equal(t, 3, ix.Len())
}

// upgradingEmbedder reports a newer model version after its first call,
// like a service upgrading mid-rebuild.
type upgradingEmbedder struct {
	stubEmbedder
}

func (e *upgradingEmbedder) ModelVersion() string {
	if e.calls > 1 {
		return "model-v2"
	}
	return "model-v1"
}

func TestRebuild_RefreshesEntriesFromOlderModel(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Now()
	require.NoError(t, st.Create(ctx, indexedRecord("lec-1", "calculus", now, 1)))
	require.NoError(t, st.Create(ctx, indexedRecord("lec-2", "history", now.Add(-time.Hour), 1)))

	emb := &upgradingEmbedder{}
	ix := New(emb, nil)
	require.NoError(t, ix.Rebuild(ctx, st))

	// lec-1 was stamped with model-v1 before the upgrade and must be
	// embedded a second time.
	assert.Empty(t, ix.Stale())
	assert.Equal(t, 3, emb.calls)
	assert.Equal(t, 2, ix.Len())
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, Normalize(zero))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", Excerpt("  short text  "))

	long := strings.Repeat("word ", 100)
	got := Excerpt(long)
	assert.Less(t, len([]rune(got)), 210)
	assert.True(t, strings.HasSuffix(got, "…"))
}
