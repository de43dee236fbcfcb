package cmd

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecternlabs/lectern/config"
	"github.com/lecternlabs/lectern/pkg/index"
	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/media"
	"github.com/lecternlabs/lectern/pkg/notes"
	"github.com/lecternlabs/lectern/pkg/pipeline"
	"github.com/lecternlabs/lectern/pkg/search"
	"github.com/lecternlabs/lectern/pkg/segment"
	"github.com/lecternlabs/lectern/pkg/store"
	"github.com/lecternlabs/lectern/pkg/transcript"
)

// fakeExecutor stands in for ffmpeg and emits one second of quiet PCM.
type fakeExecutor struct{}

func (fakeExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	samples := media.TargetSampleRate
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(8192)))
	}
	return buf, nil
}

// fakeTranscriber returns a fixed two-topic transcript with a long pause
// between the topics.
type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, track *media.AudioTrack, lang string) ([]transcript.Segment, error) {
	return []transcript.Segment{
		{Start: 0, End: 140 * time.Second, Text: "Photosynthesis converts sunlight into chemical energy."},
		{Start: 140 * time.Second, End: 290 * time.Second, Text: "Chlorophyll absorbs red and blue light."},
		{Start: 300 * time.Second, End: 450 * time.Second, Text: "Cellular respiration releases that stored energy."},
		{Start: 450 * time.Second, End: 600 * time.Second, Text: "Mitochondria host the respiration reactions."},
	}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return fmt.Sprintf("generated(%d)", len(prompt)), nil
}

// fakeEmbedder maps texts onto fixed axes by keyword so searches rank
// predictably.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := []float32{0.1, 0.1, 0.1}
		lower := strings.ToLower(text)
		if strings.Contains(lower, "photosynthesis") || strings.Contains(lower, "chlorophyll") || strings.Contains(lower, "sunlight") {
			v = []float32{1, 0, 0}
		}
		if strings.Contains(lower, "respiration") || strings.Contains(lower, "mitochondria") || strings.Contains(lower, "energy release") {
			v = []float32{0, 1, 0}
		}
		out[i] = index.Normalize(v)
	}
	return out, nil
}

func (fakeEmbedder) ModelVersion() string { return "embed-test-1" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Chapters: config.ChapterConfig{
			GapThreshold: 5 * time.Second,
			MaxDuration:  45 * time.Minute,
			MinDuration:  time.Minute,
		},
		Notes: config.NotesConfig{
			Language:           "English",
			Kinds:              []string{"summary", "quiz"},
			ChapterConcurrency: 2,
		},
		Search: config.SearchConfig{TopK: 5, MinScore: 0.3},
		Store: config.StoreConfig{
			Driver:  config.StoreDriverMemory,
			DataDir: t.TempDir(),
		},
		OutputFormat: config.OutputFormatText,
	}
}

// newTestDeps builds command dependencies over an in-memory app. The app is
// shared across invocations so one test can ingest and then query.
func newTestDeps(t *testing.T) (*Deps, *bytes.Buffer, *App) {
	t.Helper()

	cfg := testConfig(t)
	logger := logging.NewNopLogger()

	st := store.NewMemoryStore()
	ix := index.New(fakeEmbedder{}, logger)
	spool, err := pipeline.NewSpool(filepath.Join(cfg.Store.DataDir, "spool"))
	require.NoError(t, err)

	metrics := pipeline.NewMetrics(nil)
	pl := pipeline.New(pipeline.Deps{
		Preprocessor: media.NewPreprocessor(fakeExecutor{}, cfg.Silence, logger),
		Transcriber:  transcript.NewAdapter(fakeTranscriber{}, logger),
		Segmenter:    segment.New(cfg.Chapters),
		Generator:    notes.NewGenerator(fakeGenerator{}, cfg.Notes, logger),
		Store:        st,
		Index:        ix,
		Spool:        spool,
		Metrics:      metrics,
		Logger:       logger,
	})

	app := &App{
		Pipeline: pl,
		Store:    st,
		Index:    ix,
		Search:   search.New(ix, cfg.Search, logger),
		Metrics:  metrics,
	}

	out := &bytes.Buffer{}
	deps := &Deps{
		Config: cfg,
		Logger: logger,
		Out:    out,
		NewApp: func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, func(), error) {
			return app, func() {}, nil
		},
	}
	return deps, out, app
}

func writeMediaFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not real audio"), 0o644))
	return path
}

func runCommand(t *testing.T, deps *Deps, args ...string) error {
	t.Helper()
	root := NewRootCommand(deps)
	root.SetArgs(args)
	root.SetOut(deps.Out)
	root.SetErr(deps.Out)
	return root.ExecuteContext(context.Background())
}

func TestIngestCommand(t *testing.T) {
	deps, out, app := newTestDeps(t)
	path := writeMediaFile(t, "plant_biology_week2.mp3")

	err := runCommand(t, deps, "ingest", path)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Lecture processed: plant biology week2")
	assert.Contains(t, out.String(), "Chapters: 2")
	assert.Contains(t, out.String(), "preprocess")
	assert.Contains(t, out.String(), "index")

	summaries, err := app.Store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "plant biology week2", summaries[0].Title)
	assert.Equal(t, 2, summaries[0].Chapters)
}

func TestIngestCommand_TitleFlag(t *testing.T) {
	deps, out, _ := newTestDeps(t)
	path := writeMediaFile(t, "rec001.mp3")

	err := runCommand(t, deps, "ingest", path, "--title", "Plant Biology II")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Lecture processed: Plant Biology II")
}

func TestIngestCommand_UnsupportedFormat(t *testing.T) {
	deps, _, app := newTestDeps(t)
	path := writeMediaFile(t, "slides.pdf")

	err := runCommand(t, deps, "ingest", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported media format")

	summaries, listErr := app.Store.List(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, summaries)
}

func TestIngestCommand_AsyncWithoutQueue(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	path := writeMediaFile(t, "lecture.mp3")

	err := runCommand(t, deps, "ingest", path, "--async")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestIngestCommand_JSONOutput(t *testing.T) {
	deps, out, _ := newTestDeps(t)
	path := writeMediaFile(t, "biology.mp3")

	err := runCommand(t, deps, "-o", "json", "ingest", path)
	require.NoError(t, err)

	var result pipeline.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.NotNil(t, result.Record)
	assert.Equal(t, "biology", result.Record.Title)
	assert.Len(t, result.Record.Chapters, 2)
}

func TestLecturesListCommand(t *testing.T) {
	deps, out, _ := newTestDeps(t)
	path := writeMediaFile(t, "cell_energy.mp3")
	require.NoError(t, runCommand(t, deps, "ingest", path))
	out.Reset()

	err := runCommand(t, deps, "lectures", "list")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "cell energy")
	assert.Contains(t, out.String(), "TITLE")
}

func TestLecturesListCommand_Empty(t *testing.T) {
	deps, out, _ := newTestDeps(t)

	err := runCommand(t, deps, "lectures", "list")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No lectures yet")
}

func TestLecturesShowCommand(t *testing.T) {
	deps, out, app := newTestDeps(t)
	path := writeMediaFile(t, "cell_energy.mp3")
	require.NoError(t, runCommand(t, deps, "ingest", path))

	summaries, err := app.Store.List(context.Background())
	require.NoError(t, err)
	id := summaries[0].ID
	out.Reset()

	require.NoError(t, runCommand(t, deps, "lectures", "show", id))
	assert.Contains(t, out.String(), "cell energy")
	assert.Contains(t, out.String(), "Chapter 1:")
	assert.Contains(t, out.String(), "Chapter 2:")
	assert.Contains(t, out.String(), "[summary]")
	assert.Contains(t, out.String(), "[quiz]")
	assert.Contains(t, out.String(), "Lecture rollup")
}

func TestLecturesShowCommand_SingleChapterAndKind(t *testing.T) {
	deps, out, app := newTestDeps(t)
	path := writeMediaFile(t, "cell_energy.mp3")
	require.NoError(t, runCommand(t, deps, "ingest", path))

	summaries, err := app.Store.List(context.Background())
	require.NoError(t, err)
	id := summaries[0].ID
	out.Reset()

	require.NoError(t, runCommand(t, deps, "lectures", "show", id, "--chapter", "1", "--kind", "summary"))
	assert.Contains(t, out.String(), "Chapter 1:")
	assert.NotContains(t, out.String(), "Chapter 2:")
	assert.Contains(t, out.String(), "[summary]")
	assert.NotContains(t, out.String(), "[quiz]")
}

func TestLecturesShowCommand_UnknownID(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	err := runCommand(t, deps, "lectures", "show", "no-such-id")
	require.Error(t, err)
}

func TestLecturesDeleteCommand(t *testing.T) {
	deps, out, app := newTestDeps(t)
	path := writeMediaFile(t, "cell_energy.mp3")
	require.NoError(t, runCommand(t, deps, "ingest", path))

	summaries, err := app.Store.List(context.Background())
	require.NoError(t, err)
	id := summaries[0].ID

	// Without --force nothing is deleted.
	out.Reset()
	require.NoError(t, runCommand(t, deps, "lectures", "delete", id))
	assert.Contains(t, out.String(), "--force")
	_, err = app.Store.Get(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, runCommand(t, deps, "lectures", "delete", id, "--force"))
	_, err = app.Store.Get(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, 0, app.Index.Len())
}

func TestSearchCommand(t *testing.T) {
	deps, out, _ := newTestDeps(t)
	path := writeMediaFile(t, "plant_biology.mp3")
	require.NoError(t, runCommand(t, deps, "ingest", path))
	out.Reset()

	err := runCommand(t, deps, "search", "how", "does", "photosynthesis", "work")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "plant biology")
	assert.Contains(t, out.String(), "chapter 1")
}

func TestSearchCommand_EmptyIndex(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	err := runCommand(t, deps, "search", "photosynthesis")
	require.Error(t, err)
}

func TestNotesRegenerateCommand(t *testing.T) {
	deps, out, app := newTestDeps(t)
	path := writeMediaFile(t, "cell_energy.mp3")
	require.NoError(t, runCommand(t, deps, "ingest", path))

	summaries, err := app.Store.List(context.Background())
	require.NoError(t, err)
	id := summaries[0].ID
	out.Reset()

	require.NoError(t, runCommand(t, deps, "notes", "regenerate", id, "--chapter", "1", "--kind", "quiz"))
	assert.Contains(t, out.String(), "Regenerated notes")
	assert.Contains(t, out.String(), "All artifacts present")
}

func TestNotesRegenerateCommand_BadChapter(t *testing.T) {
	deps, _, app := newTestDeps(t)
	path := writeMediaFile(t, "cell_energy.mp3")
	require.NoError(t, runCommand(t, deps, "ingest", path))

	summaries, err := app.Store.List(context.Background())
	require.NoError(t, err)
	id := summaries[0].ID

	err = runCommand(t, deps, "notes", "regenerate", id, "--chapter", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1-based")
}

func TestRootCommand_UnknownOutputFormat(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	err := runCommand(t, deps, "-o", "xml", "lectures", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
