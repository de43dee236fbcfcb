package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor runs external commands. It exists so tests can substitute a fake
// ffmpeg.
type Executor interface {
	// Run executes the command and returns its stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execExecutor struct{}

// NewExecutor creates an Executor backed by os/exec.
func NewExecutor() Executor {
	return &execExecutor{}
}

func (e *execExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return nil, fmt.Errorf("command %q failed: %w: %s", name, err, stderrStr)
		}
		return nil, fmt.Errorf("command %q failed: %w", name, err)
	}

	return stdout.Bytes(), nil
}
