package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/pipeline"
)

// recordingQueue captures enqueued jobs.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []*pipeline.Job
}

func (q *recordingQueue) Enqueue(ctx context.Context, job *pipeline.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Dequeue(ctx context.Context) (*pipeline.Job, error) { return nil, nil }

func (q *recordingQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

func (q *recordingQueue) snapshot() []*pipeline.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*pipeline.Job(nil), q.jobs...)
}

func TestWatchLoop_QueuesSettledMedia(t *testing.T) {
	dir := t.TempDir()
	queue := &recordingQueue{}
	deps := &Deps{Out: &bytes.Buffer{}, Logger: logging.NewNopLogger()}

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, watcher.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, deps, queue, watcher, 20*time.Millisecond) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lecture.mp3"), []byte("audio"), 0o644))
	// Unsupported files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0o644))

	require.Eventually(t, func() bool {
		return len(queue.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	jobs := queue.snapshot()
	assert.Equal(t, filepath.Join(dir, "lecture.mp3"), jobs[0].Path)
	assert.NotEmpty(t, jobs[0].LectureID)

	cancel()
	require.NoError(t, <-done)

	// Nothing else got queued.
	assert.Len(t, queue.snapshot(), 1)
}

func TestWatchLoop_StopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, watcher.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, &Deps{Out: &bytes.Buffer{}, Logger: logging.NewNopLogger()}, &recordingQueue{}, watcher, time.Millisecond)
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch loop did not stop on cancel")
	}
}
