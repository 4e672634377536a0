// Package observe lets interactive sessions subscribe to finished
// image analyses.
package observe

import (
	"log/slog"
	"sync"

	"github.com/mailsight/mailsight/pkg/models"
)

// Observer receives finished analyses. SessionID identifies the
// subscriber so a reconnecting session replaces its old registration
// instead of stacking a duplicate.
type Observer interface {
	SessionID() string
	ImageAnalyzed(img *models.ImageRecord)
}

// Registry is a concurrency-safe observer set keyed by session id
type Registry struct {
	mu        sync.RWMutex
	observers map[string]Observer
	logger    *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		observers: make(map[string]Observer),
		logger:    logger.With("component", "observers"),
	}
}

// Subscribe registers the observer, replacing any previous observer
// with the same session id.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := o.SessionID()
	if _, replaced := r.observers[id]; replaced {
		r.logger.Debug("observer replaced", "session", id)
	}
	r.observers[id] = o
}

// Unsubscribe removes the observer for the session id, if registered
func (r *Registry) Unsubscribe(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, sessionID)
}

// Len returns the number of registered observers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

// Notify delivers the finished analysis to every observer. Delivery
// order is unspecified.
func (r *Registry) Notify(img *models.ImageRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.observers {
		o.ImageAnalyzed(img)
	}
}
