package analysis

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandTaskRunner invokes an external model process per task. The
// image arrives on stdin, the task name is appended as the final
// argument, and stdout is the result.
type CommandTaskRunner struct {
	command string
	logger  *slog.Logger
}

// NewCommandTaskRunner creates a runner around the configured command line
func NewCommandTaskRunner(command string, logger *slog.Logger) *CommandTaskRunner {
	return &CommandTaskRunner{
		command: command,
		logger:  logger.With("component", "task_runner"),
	}
}

// Run executes the model command for one task
func (r *CommandTaskRunner) Run(ctx context.Context, task string, image []byte) (string, error) {
	parts := strings.Fields(r.command)
	if len(parts) == 0 {
		return "", fmt.Errorf("no model command configured")
	}

	args := append(parts[1:], task)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			r.logger.Error("model command failed", "task", task, "stderr", stderr.String())
		}
		return "", fmt.Errorf("model command failed: %w", err)
	}

	return stdout.String(), nil
}
