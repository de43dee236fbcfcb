package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lecternlabs/lectern/pkg/notes"
	"github.com/lecternlabs/lectern/pkg/store"
)

// NewLecturesCommand creates the 'lectures' command group.
func NewLecturesCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "lectures",
		Short: "List, inspect, and delete processed lectures",
	}

	cmd.AddCommand(newLecturesListCommand(deps))
	cmd.AddCommand(newLecturesShowCommand(deps))
	cmd.AddCommand(newLecturesDeleteCommand(deps))

	return cmd
}

func newLecturesListCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List processed lectures, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setup(); err != nil {
				return err
			}

			app, cleanup, err := deps.NewApp(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			summaries, err := app.Store.List(cmd.Context())
			if err != nil {
				return err
			}

			if !deps.textFormat() {
				return deps.printResult(summaries)
			}

			if len(summaries) == 0 {
				fmt.Fprintln(deps.Out, "No lectures yet, run 'lectern ingest <file>' first")
				return nil
			}
			w := tabwriter.NewWriter(deps.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tCHAPTERS\tMISSING\tCREATED")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", s.ID, s.Title, s.Chapters, s.MissingNotes, formatTime(s.CreatedAt))
			}
			return w.Flush()
		},
	}
}

func newLecturesShowCommand(deps *Deps) *cobra.Command {
	var (
		chapter int
		kind    string
	)

	cmd := &cobra.Command{
		Use:   "show <lecture-id>",
		Short: "Show a lecture's chapters and generated notes",
		Long: `Show a processed lecture: its chapters and the notes generated for
each. Narrow the output to one chapter with --chapter (1-based), to the
lecture-level rollup with --chapter 0, or to one note kind with --kind.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setup(); err != nil {
				return err
			}

			app, cleanup, err := deps.NewApp(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := app.Store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var kindFilter notes.Kind
			if kind != "" {
				kindFilter, err = notes.ParseKind(kind)
				if err != nil {
					return err
				}
			}

			if !deps.textFormat() {
				return deps.printResult(rec)
			}
			return printLecture(deps, rec, chapter, kindFilter)
		},
	}

	cmd.Flags().IntVar(&chapter, "chapter", -1, "show only this chapter (1-based, 0 for the lecture rollup)")
	cmd.Flags().StringVar(&kind, "kind", "", "show only this note kind (summary, definitions, exam_points, quiz, flashcards, eli5)")

	return cmd
}

func printLecture(deps *Deps, rec *store.LectureRecord, chapter int, kind notes.Kind) error {
	fmt.Fprintf(deps.Out, "%s\n", rec.Title)
	fmt.Fprintf(deps.Out, "  ID:       %s\n", rec.ID)
	fmt.Fprintf(deps.Out, "  Source:   %s\n", rec.SourceFilename)
	if rec.Language != "" {
		fmt.Fprintf(deps.Out, "  Language: %s\n", rec.Language)
	}
	fmt.Fprintf(deps.Out, "  Created:  %s\n", formatTime(rec.CreatedAt))
	fmt.Fprintf(deps.Out, "  Chapters: %d\n\n", len(rec.Chapters))

	if chapter == 0 {
		return printNotes(deps, "Lecture rollup", rec.Notes[notes.LectureLevel], kind)
	}
	if chapter > 0 {
		ch, ok := rec.Chapter(chapter - 1)
		if !ok {
			return fmt.Errorf("lecture has no chapter %d", chapter)
		}
		header := fmt.Sprintf("Chapter %d: %s [%s - %s]", chapter, ch.Title, formatDuration(ch.Start), formatDuration(ch.End))
		return printNotes(deps, header, rec.Notes[ch.Index], kind)
	}

	for _, ch := range rec.Chapters {
		header := fmt.Sprintf("Chapter %d: %s [%s - %s]", ch.Index+1, ch.Title, formatDuration(ch.Start), formatDuration(ch.End))
		if err := printNotes(deps, header, rec.Notes[ch.Index], kind); err != nil {
			return err
		}
	}
	if set, ok := rec.Notes[notes.LectureLevel]; ok {
		if err := printNotes(deps, "Lecture rollup", set, kind); err != nil {
			return err
		}
	}
	if len(rec.Missing) > 0 {
		fmt.Fprintf(deps.Out, "Missing artifacts (%d), retry with 'lectern notes regenerate %s':\n", len(rec.Missing), rec.ID)
		for _, m := range rec.Missing {
			fmt.Fprintf(deps.Out, "  chapter %d, %s: %s\n", m.Chapter, m.Kind, m.Reason)
		}
	}
	return nil
}

func printNotes(deps *Deps, header string, set notes.ArtifactSet, kind notes.Kind) error {
	fmt.Fprintf(deps.Out, "%s\n", header)
	if len(set) == 0 {
		fmt.Fprintln(deps.Out, "  (no notes)")
		fmt.Fprintln(deps.Out)
		return nil
	}

	kinds := set.Kinds()
	sort.Slice(kinds, func(i, j int) bool { return kindOrder(kinds[i]) < kindOrder(kinds[j]) })
	for _, k := range kinds {
		if kind != "" && k != kind {
			continue
		}
		a := set[k]
		fmt.Fprintf(deps.Out, "  [%s]\n", k)
		fmt.Fprintf(deps.Out, "  %s\n", a.Content)
	}
	fmt.Fprintln(deps.Out)
	return nil
}

func kindOrder(k notes.Kind) int {
	for i, known := range notes.AllKinds() {
		if k == known {
			return i
		}
	}
	return len(notes.AllKinds())
}

func newLecturesDeleteCommand(deps *Deps) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <lecture-id>",
		Short: "Delete a lecture, its notes, and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setup(); err != nil {
				return err
			}

			app, cleanup, err := deps.NewApp(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			id := args[0]
			rec, err := app.Store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if !force {
				fmt.Fprintf(deps.Out, "Delete %q (%s)? Re-run with --force to confirm\n", rec.Title, id)
				return nil
			}

			if err := app.Pipeline.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(deps.Out, "Deleted lecture %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete without confirmation")

	return cmd
}
