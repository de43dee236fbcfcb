package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lecternlabs/lectern/config"
	"github.com/lecternlabs/lectern/pkg/buildinfo"
)

// NewRootCommand creates the root 'lectern' command with all subcommands.
func NewRootCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		output string
		debug  bool
	)

	root := &cobra.Command{
		Use:   "lectern",
		Short: "Turn lecture recordings into searchable study notes",
		Long: `Lectern processes lecture recordings into structured study material:
it transcribes the audio, splits it into chapters, generates notes
(summaries, definitions, quizzes, flashcards), and indexes everything
for semantic search.

Typical flow:
  lectern auth set-key transcribe     # once, per service
  lectern ingest recording.mp3
  lectern search "how does mergesort partition"`,
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				format := config.OutputFormat(output)
				switch format {
				case config.OutputFormatText, config.OutputFormatJSON, config.OutputFormatYAML:
					deps.OutputFormat = format
				default:
					return fmt.Errorf("unknown output format %q (text, json, yaml)", output)
				}
			}
			if debug && deps.Config != nil {
				deps.Config.Debug = true
			}
			if debug && deps.Config == nil {
				// Loaded lazily in setup; flip the flag afterwards.
				load := deps.LoadConfig
				deps.LoadConfig = func() (*config.Config, error) {
					cfg, err := load()
					if err != nil {
						return nil, err
					}
					cfg.Debug = true
					return cfg, nil
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&output, "output", "o", "", "output format: text, json, or yaml")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(NewIngestCommand(deps))
	root.AddCommand(NewWorkerCommand(deps))
	root.AddCommand(NewWatchCommand(deps))
	root.AddCommand(NewSearchCommand(deps))
	root.AddCommand(NewLecturesCommand(deps))
	root.AddCommand(NewNotesCommand(deps))
	root.AddCommand(NewAuthCommand(deps))

	return root
}
