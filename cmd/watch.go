package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lecternlabs/lectern/config"
	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/pipeline"
)

// settleDelay is how long a file must stop growing before it is
// considered fully written and safe to ingest.
const settleDelay = 2 * time.Second

// NewWatchCommand creates the 'watch' command.
func NewWatchCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Watch a folder and queue new recordings automatically",
		Long: `Watch a directory for new media files and enqueue each one for the
background workers as soon as it finishes copying. Useful as a drop
folder: record a lecture, save it into the watched directory, and the
workers pick it up.

Requires redis.addr in the configuration and a running 'lectern worker'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setup(); err != nil {
				return err
			}

			dir, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving watch directory: %w", err)
			}
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("watch directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			app, cleanup, err := deps.NewApp(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if app.Queue == nil {
				return fmt.Errorf("watch needs redis.addr configured")
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("creating watcher: %w", err)
			}
			defer watcher.Close()

			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}

			fmt.Fprintf(deps.Out, "Watching %s for new recordings, press Ctrl+C to stop\n", dir)
			return watchLoop(cmd.Context(), deps, app.Queue, watcher, settleDelay)
		},
	}

	return cmd
}

// watchLoop enqueues media files once they stop growing. Writes reset the
// pending timer so half-copied files are never queued.
func watchLoop(ctx context.Context, deps *Deps, queue pipeline.JobQueue, watcher *fsnotify.Watcher, settle time.Duration) error {
	logger := deps.Logger.With(logging.F("component", "watch"))
	pending := make(map[string]*time.Timer)
	settled := make(chan string)

	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			path := event.Name
			if !config.IsSupportedMedia(path) {
				continue
			}
			if t, exists := pending[path]; exists {
				t.Reset(settle)
				continue
			}
			pending[path] = time.AfterFunc(settle, func() {
				select {
				case settled <- path:
				case <-ctx.Done():
				}
			})

		case path := <-settled:
			delete(pending, path)
			if _, err := os.Stat(path); err != nil {
				continue // removed before it settled
			}
			job := pipeline.NewJob(path, "", "")
			if err := queue.Enqueue(ctx, job); err != nil {
				logger.Error("failed to enqueue recording", logging.F("path", path), logging.Err(err))
				continue
			}
			fmt.Fprintf(deps.Out, "Queued %s (lecture %s)\n", filepath.Base(path), job.LectureID)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logging.Err(err))
		}
	}
}
