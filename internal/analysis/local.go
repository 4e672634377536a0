package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// TaskRunner executes one model task against an image and returns the
// model's raw output
type TaskRunner interface {
	Run(ctx context.Context, task string, image []byte) (string, error)
}

// LocalBackend runs the configured tasks sequentially through a local
// model process and joins the per-task outputs into one JSON document.
type LocalBackend struct {
	runner TaskRunner
	tasks  []string
	logger *slog.Logger
}

// NewLocalBackend creates the local backend
func NewLocalBackend(runner TaskRunner, tasks []string, logger *slog.Logger) *LocalBackend {
	return &LocalBackend{
		runner: runner,
		tasks:  tasks,
		logger: logger.With("backend", "local"),
	}
}

func (b *LocalBackend) Tag() string { return "LocalModel" }

type taskResult struct {
	Task   string `json:"task"`
	Result string `json:"result"`
}

// Analyze runs every configured task in order. Tasks run one at a
// time: the local model holds a single inference slot.
func (b *LocalBackend) Analyze(ctx context.Context, image []byte) (string, error) {
	if len(b.tasks) == 0 {
		return "", ErrSkipped
	}

	var results []taskResult
	for _, task := range b.tasks {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		out, err := b.runner.Run(ctx, task, image)
		if err != nil {
			return "", fmt.Errorf("task %q failed: %w", task, err)
		}
		out = strings.TrimSpace(out)
		if out == "" {
			b.logger.Info("task produced no output, skipping", "task", task)
			continue
		}
		results = append(results, taskResult{Task: task, Result: out})
	}

	if len(results) == 0 {
		return "", ErrSkipped
	}

	doc, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to encode task results: %w", err)
	}
	return string(doc), nil
}
