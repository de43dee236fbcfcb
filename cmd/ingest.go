package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lecternlabs/lectern/config"
	"github.com/lecternlabs/lectern/pkg/pipeline"
)

// NewIngestCommand creates the 'ingest' command.
func NewIngestCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		language string
		title    string
		async    bool
		resumeID string
	)

	cmd := &cobra.Command{
		Use:   "ingest <media-file>",
		Short: "Process a lecture recording into searchable study notes",
		Long: `Process a lecture recording through the full pipeline: audio
normalization, transcription, chapter segmentation, note generation,
and semantic indexing.

Supported formats: mp3, wav, mp4, m4a, mpeg.

Examples:
  # Process a lecture synchronously
  lectern ingest recordings/calculus_week3.mp3

  # Generate notes in another language
  lectern ingest lecture.mp4 --language Hindi

  # Queue for background workers instead of processing inline
  lectern ingest lecture.wav --async

  # Retry a run that failed during transcription
  lectern ingest lecture.mp3 --resume 4f7c9a12-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setup(); err != nil {
				return err
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving media path: %w", err)
			}
			if !config.IsSupportedMedia(path) {
				return fmt.Errorf("unsupported media format %q (supported: mp3, wav, mp4, m4a, mpeg)", filepath.Ext(path))
			}

			app, cleanup, err := deps.NewApp(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if async {
				if app.Queue == nil {
					return fmt.Errorf("async ingest needs redis.addr configured")
				}
				job := pipeline.NewJob(path, title, language)
				if resumeID != "" {
					job.LectureID = resumeID
				}
				if err := app.Queue.Enqueue(cmd.Context(), job); err != nil {
					return err
				}
				fmt.Fprintf(deps.Out, "Queued lecture %s (job %s)\n", job.LectureID, job.ID)
				return nil
			}

			result, err := app.Pipeline.Run(cmd.Context(), pipeline.Request{
				Path:      path,
				Title:     title,
				Language:  language,
				LectureID: resumeID,
			})
			if err != nil {
				printStages(deps, result)
				return err
			}

			if !deps.textFormat() {
				return deps.printResult(result)
			}

			rec := result.Record
			fmt.Fprintf(deps.Out, "Lecture processed: %s\n", rec.Title)
			fmt.Fprintf(deps.Out, "  ID:       %s\n", rec.ID)
			fmt.Fprintf(deps.Out, "  Chapters: %d\n", len(rec.Chapters))
			for _, ch := range rec.Chapters {
				fmt.Fprintf(deps.Out, "    %2d. %-40s [%s - %s]\n", ch.Index+1, ch.Title,
					formatDuration(ch.Start), formatDuration(ch.End))
			}
			if len(rec.Missing) > 0 {
				fmt.Fprintf(deps.Out, "  Missing artifacts (%d), retry with 'lectern notes regenerate %s':\n", len(rec.Missing), rec.ID)
				for _, m := range rec.Missing {
					fmt.Fprintf(deps.Out, "    chapter %d, %s: %s\n", m.Chapter, m.Kind, m.Reason)
				}
			}
			printStages(deps, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&language, "language", "", "output language for notes (default English)")
	cmd.Flags().StringVar(&title, "title", "", "lecture title (default derived from the filename)")
	cmd.Flags().BoolVar(&async, "async", false, "enqueue for background workers instead of processing inline")
	cmd.Flags().StringVar(&resumeID, "resume", "", "lecture id of a failed run to resume")

	return cmd
}

func printStages(deps *Deps, result *pipeline.RunResult) {
	if result == nil || !deps.textFormat() {
		return
	}
	fmt.Fprintln(deps.Out, "  Stages:")
	for _, s := range result.Stages {
		status := "ok"
		if s.Error != "" {
			status = s.Error
		}
		fmt.Fprintf(deps.Out, "    %-12s %8s  %s\n", s.Stage, s.Duration.Round(msRound), status)
	}
}
