// Package analysis dispatches stored images to the configured
// vision backend and routes results to observers and alerts.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mailsight/mailsight/internal/config"
)

// ErrSkipped marks a dispatch the backend declined without failing.
// The image stays stored with an empty analysis.
var ErrSkipped = errors.New("analysis skipped by backend")

// Backend analyzes one image payload and returns the raw result body
type Backend interface {
	// Tag identifies the backend in the record's tag history
	Tag() string

	Analyze(ctx context.Context, image []byte) (string, error)
}

// Dispatcher holds the backend registry and forwards every image to
// the one selected by configuration.
type Dispatcher struct {
	backends map[config.Backend]Backend
	active   config.Backend
	logger   *slog.Logger
}

// NewDispatcher builds the registry for the configured backend set
func NewDispatcher(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	client := &http.Client{Timeout: 60 * time.Second}
	budget := NewCallBudget(cfg.VisionCallsPerMin, cfg.VisionCallsPerDay)

	return &Dispatcher{
		active: cfg.AIBackend,
		logger: logger.With("component", "dispatcher"),
		backends: map[config.Backend]Backend{
			config.BackendLocal:   NewLocalBackend(NewCommandTaskRunner(cfg.LocalModelCmd, logger), cfg.TaskTypes, logger),
			config.BackendCloudV1: NewCloudV1Backend(cfg.VisionEndpoint, cfg.VisionKey, budget, client),
			config.BackendCloudV2: NewCloudV2Backend(cfg.VisionEndpoint, cfg.VisionKey, budget, client),
			config.BackendBridge:  NewBridgeBackend(cfg.BridgeURL, cfg.TaskTypes, client),
		},
	}
}

// Analyze runs the image through the active backend and returns the
// result body together with the backend's tag.
func (d *Dispatcher) Analyze(ctx context.Context, image []byte) (string, string, error) {
	backend, ok := d.backends[d.active]
	if !ok {
		return "", "", fmt.Errorf("no backend registered for %q", d.active)
	}

	started := time.Now()
	result, err := backend.Analyze(ctx, image)
	if err != nil {
		return "", backend.Tag(), err
	}

	d.logger.Debug("image analyzed",
		"backend", backend.Tag(),
		"bytes", len(image),
		"duration", time.Since(started))
	return result, backend.Tag(), nil
}
