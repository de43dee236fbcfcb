package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lecternlabs/lectern/pkg/search"
)

// NewSearchCommand creates the 'search' command.
func NewSearchCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		lectureID string
		topK      int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed lectures by meaning",
		Long: `Search across all processed lectures semantically: the query is
matched against chapter content by meaning, not keywords, so
"how do plants make food" finds a photosynthesis chapter.

Structured filters can appear anywhere in the query:
  lecture:<id>       only this lecture (same as --lecture)
  chapter:<n>        only this chapter (1-based)
  after:<date>       lectures recorded on or after the date
  before:<date>      lectures recorded before the date
  sort:newest        order by lecture date instead of relevance
  limit:<n>          cap the result count (same as --top-k)

Dates accept 2026-03-01 style and relative forms like yesterday,
thisweek, lastmonth.

Examples:
  lectern search "big O notation of mergesort"
  lectern search --lecture 4f7c9a12 "recursion base case"
  lectern search "after:lastweek sort:newest exam review"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.setup(); err != nil {
				return err
			}

			app, cleanup, err := deps.NewApp(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			query := strings.Join(args, " ")
			results, err := app.Search.Search(cmd.Context(), query, search.Options{
				LectureID: lectureID,
				TopK:      topK,
			})
			if err != nil {
				return err
			}

			if !deps.textFormat() {
				return deps.printResult(results)
			}

			if len(results) == 0 {
				fmt.Fprintln(deps.Out, "No matching chapters found")
				return nil
			}
			for i, r := range results {
				title := r.Excerpt
				rec, err := app.Store.Get(cmd.Context(), r.LectureID)
				lecture := r.LectureID
				if err == nil {
					lecture = rec.Title
					if ch, ok := rec.Chapter(r.Chapter); ok {
						title = ch.Title
					}
				}
				fmt.Fprintf(deps.Out, "%d. %s, chapter %d: %s (score %.2f)\n", i+1, lecture, r.Chapter+1, title, r.Score)
				fmt.Fprintf(deps.Out, "   %s\n", r.Excerpt)
				fmt.Fprintf(deps.Out, "   lectern lectures show %s --chapter %d\n", r.LectureID, r.Chapter+1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&lectureID, "lecture", "", "restrict the search to one lecture id")
	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum results to return (default from config)")

	return cmd
}
