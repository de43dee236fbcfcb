package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lecternlabs/lectern/credentials"
)

// NewAuthCommand creates the 'auth' command group.
func NewAuthCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API keys for the transcription, generation, and embedding services",
		Long: `Manage the API keys used to call the model services. Keys are stored
encrypted on disk and never leave this machine. Service names:
transcribe, generate, embed.

Environment variables named in the configuration (api_key_env) take
precedence over stored keys.`,
	}

	cmd.AddCommand(newAuthSetKeyCommand(deps))
	cmd.AddCommand(newAuthListCommand(deps))
	cmd.AddCommand(newAuthDeleteCommand(deps))

	return cmd
}

func newAuthSetKeyCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <service>",
		Short: "Store an API key for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := strings.ToLower(args[0])

			store, err := credentials.NewStore()
			if err != nil {
				return err
			}

			key, err := readSecret(deps, fmt.Sprintf("API key for %s: ", service))
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty API key")
			}

			if err := store.SetAPIKey(service, key); err != nil {
				return err
			}
			fmt.Fprintf(deps.Out, "Stored API key for %s\n", service)
			return nil
		},
	}
}

func newAuthListCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List services with stored API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentials.NewStore()
			if err != nil {
				return err
			}

			services, err := store.Services()
			if err != nil {
				return err
			}
			if len(services) == 0 {
				fmt.Fprintln(deps.Out, "No stored API keys")
				return nil
			}
			for _, svc := range services {
				fmt.Fprintf(deps.Out, "%s: configured\n", svc)
			}
			return nil
		},
	}
}

func newAuthDeleteCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <service>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentials.NewStore()
			if err != nil {
				return err
			}

			service := strings.ToLower(args[0])
			if err := store.DeleteAPIKey(service); err != nil {
				return err
			}
			fmt.Fprintf(deps.Out, "Removed API key for %s\n", service)
			return nil
		},
	}
}

// readSecret prompts for a secret without echoing when stdin is a
// terminal, and falls back to a plain line read otherwise (pipes, tests).
func readSecret(deps *Deps, prompt string) (string, error) {
	fmt.Fprint(deps.Out, prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(deps.Out)
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
