package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lecternlabs/lectern/pkg/notes"
)

// NewNotesCommand creates the 'notes' command group.
func NewNotesCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage generated study notes",
	}

	cmd.AddCommand(newNotesRegenerateCommand(deps))

	return cmd
}

func newNotesRegenerateCommand(deps *Deps) *cobra.Command {
	var (
		chapters []int
		kinds    []string
	)

	cmd := &cobra.Command{
		Use:   "regenerate <lecture-id>",
		Short: "Re-run note generation for a stored lecture",
		Long: `Re-run note generation against a lecture's stored transcript and
overwrite the affected artifacts. Use this to fill in notes that failed
during ingest, or to regenerate with a different model.

By default every chapter and every configured note kind is regenerated.
Restrict with --chapter (1-based, repeatable) and --kind (repeatable).

Examples:
  # Fill in everything that is missing
  lectern notes regenerate 4f7c9a12-...

  # Only the quiz for chapter 2
  lectern notes regenerate 4f7c9a12-... --chapter 2 --kind quiz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setup(); err != nil {
				return err
			}

			parsedKinds, err := notes.ParseKinds(kinds)
			if err != nil {
				return err
			}
			indices := make([]int, 0, len(chapters))
			for _, c := range chapters {
				if c < 1 {
					return fmt.Errorf("chapter numbers are 1-based, got %d", c)
				}
				indices = append(indices, c-1)
			}

			app, cleanup, err := deps.NewApp(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			id := args[0]
			if err := app.Pipeline.RegenerateNotes(cmd.Context(), id, indices, parsedKinds); err != nil {
				return err
			}

			rec, err := app.Store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !deps.textFormat() {
				return deps.printResult(rec)
			}
			fmt.Fprintf(deps.Out, "Regenerated notes for %q\n", rec.Title)
			if len(rec.Missing) == 0 {
				fmt.Fprintln(deps.Out, "All artifacts present")
			} else {
				fmt.Fprintf(deps.Out, "Still missing (%d):\n", len(rec.Missing))
				for _, m := range rec.Missing {
					fmt.Fprintf(deps.Out, "  chapter %d, %s: %s\n", m.Chapter, m.Kind, m.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&chapters, "chapter", nil, "chapter to regenerate (1-based, repeatable; default all)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "note kind to regenerate (repeatable; default all configured)")

	return cmd
}
