// Package index maintains the semantic search index over saved lectures.
// Each chapter becomes one entry: its text embedded into a normalized vector
// tagged with the embedding model version, so a model upgrade can find and
// re-embed stale entries.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/store"
)

// excerptRunes bounds the stored text excerpt per entry.
const excerptRunes = 200

// Embedder is the embedding service boundary. Embed must be deterministic
// for identical input text and model version.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
}

// Entry is one indexed chapter.
type Entry struct {
	LectureID      string
	Chapter        int
	Excerpt        string
	Vector         []float32
	ModelVersion   string
	LectureCreated time.Time
}

// Match is a scored entry returned from Query.
type Match struct {
	Entry
	Score float64
}

// Index is an in-memory vector index over lecture chapters. Reads and
// queries run concurrently; writes to the same lecture replace its entries
// wholesale, so re-adding a lecture is idempotent.
type Index struct {
	embedder Embedder
	logger   logging.Logger

	mu      sync.RWMutex
	entries map[string][]Entry
}

// New creates an empty index over the given embedder.
func New(embedder Embedder, logger logging.Logger) *Index {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Index{
		embedder: embedder,
		logger:   logger.With(logging.F("component", "semantic_index")),
		entries:  make(map[string][]Entry),
	}
}

// Add embeds every chapter of the record and stores its entries, replacing
// any previous entries for the lecture.
func (ix *Index) Add(ctx context.Context, record *store.LectureRecord) error {
	texts := make([]string, len(record.Chapters))
	for i, ch := range record.Chapters {
		texts[i] = ch.Text()
	}

	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		return err
	}

	entries := make([]Entry, len(record.Chapters))
	for i, ch := range record.Chapters {
		entries[i] = Entry{
			LectureID:      record.ID,
			Chapter:        ch.Index,
			Excerpt:        Excerpt(texts[i]),
			Vector:         vectors[i],
			ModelVersion:   ix.embedder.ModelVersion(),
			LectureCreated: record.CreatedAt,
		}
	}

	ix.mu.Lock()
	ix.entries[record.ID] = entries
	ix.mu.Unlock()

	ix.logger.Debug("lecture indexed",
		logging.F("lecture_id", record.ID),
		logging.F("chapters", len(entries)),
		logging.F("model_version", ix.embedder.ModelVersion()))
	return nil
}

// Reindex recomputes entries for the given chapters only, keeping the rest.
// An empty chapter list re-embeds the whole lecture.
func (ix *Index) Reindex(ctx context.Context, record *store.LectureRecord, chapters []int) error {
	if len(chapters) == 0 {
		return ix.Add(ctx, record)
	}

	changed := make(map[int]bool, len(chapters))
	var texts []string
	var order []int
	for _, idx := range chapters {
		ch, ok := record.Chapter(idx)
		if !ok {
			return fmt.Errorf("lecture %s has no chapter %d", record.ID, idx)
		}
		changed[idx] = true
		texts = append(texts, ch.Text())
		order = append(order, idx)
	}

	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		return err
	}

	fresh := make(map[int]Entry, len(order))
	for i, idx := range order {
		fresh[idx] = Entry{
			LectureID:      record.ID,
			Chapter:        idx,
			Excerpt:        Excerpt(texts[i]),
			Vector:         vectors[i],
			ModelVersion:   ix.embedder.ModelVersion(),
			LectureCreated: record.CreatedAt,
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	entries := ix.entries[record.ID]
	for i, e := range entries {
		if changed[e.Chapter] {
			entries[i] = fresh[e.Chapter]
			delete(fresh, e.Chapter)
		}
	}
	for _, e := range fresh {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Chapter < entries[j].Chapter })
	ix.entries[record.ID] = entries
	return nil
}

// Rebuild repopulates the index from every record in the store. Used at
// startup, since entries live in process memory.
func (ix *Index) Rebuild(ctx context.Context, st store.Store) error {
	summaries, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("listing lectures for rebuild: %w", err)
	}
	for _, sum := range summaries {
		record, err := st.Get(ctx, sum.ID)
		if err != nil {
			return fmt.Errorf("loading lecture %s for rebuild: %w", sum.ID, err)
		}
		if err := ix.Add(ctx, record); err != nil {
			return err
		}
	}

	// Entries stamped with an older model version, possible when the
	// embedding service upgrades while the rebuild is running, are
	// embedded again with the current one.
	if stale := ix.Stale(); len(stale) > 0 {
		ix.logger.Warn("re-embedding lectures with outdated vectors",
			logging.F("lectures", len(stale)))
		for _, id := range stale {
			record, err := st.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("loading stale lecture %s: %w", id, err)
			}
			if err := ix.Add(ctx, record); err != nil {
				return err
			}
		}
	}

	ix.logger.Info("index rebuilt", logging.F("lectures", len(summaries)))
	return nil
}

// Remove drops every entry for the lecture. Removing an unknown lecture is
// a no-op so deletion stays idempotent.
func (ix *Index) Remove(lectureID string) {
	ix.mu.Lock()
	delete(ix.entries, lectureID)
	ix.mu.Unlock()
}

// Empty reports whether nothing has ever been indexed.
func (ix *Index) Empty() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries) == 0
}

// Len returns the total entry count.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, entries := range ix.entries {
		n += len(entries)
	}
	return n
}

// Stale returns the ids of lectures whose entries were embedded with a
// model version other than the embedder's current one.
func (ix *Index) Stale() []string {
	current := ix.embedder.ModelVersion()

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var stale []string
	for id, entries := range ix.entries {
		for _, e := range entries {
			if e.ModelVersion != current {
				stale = append(stale, id)
				break
			}
		}
	}
	sort.Strings(stale)
	return stale
}

// Query scores every entry against the query vector by cosine similarity
// and returns up to topK matches at or above minScore, best first. Ties
// break toward the more recent lecture, then the lower chapter index.
// lectureID, when non-empty, restricts matches to that lecture.
func (ix *Index) Query(vector []float32, lectureID string, topK int, minScore float64) []Match {
	ix.mu.RLock()
	var matches []Match
	for id, entries := range ix.entries {
		if lectureID != "" && id != lectureID {
			continue
		}
		for _, e := range entries {
			score := dot(vector, e.Vector)
			if score < minScore {
				continue
			}
			matches = append(matches, Match{Entry: e, Score: score})
		}
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].LectureCreated.Equal(matches[j].LectureCreated) {
			return matches[i].LectureCreated.After(matches[j].LectureCreated)
		}
		return matches[i].Chapter < matches[j].Chapter
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// EmbedQuery embeds a single query string with the index's model.
func (ix *Index) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := ix.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (ix *Index) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedder returned an empty vector for text %d", i)
		}
		vectors[i] = Normalize(v)
	}
	return vectors, nil
}

// Normalize scales the vector to unit length, making dot product equal to
// cosine similarity. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// dot computes the dot product; over normalized vectors this is cosine
// similarity.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Excerpt bounds chapter text for display in search results.
func Excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:excerptRunes])) + "…"
}
