// Package queue re-dispatches stored images whose analysis is missing
// or needs to be redone, one image per tick.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mailsight/mailsight/pkg/models"
)

// maxAttempts bounds re-dispatch retries per enqueued image
const maxAttempts = 3

// Store loads stored images by id
type Store interface {
	GetImageByID(ctx context.Context, id int64) (*models.ImageRecord, error)
}

// Analyzer re-runs the analysis pipeline for one image
type Analyzer interface {
	Process(ctx context.Context, img *models.ImageRecord) error
}

type item struct {
	id       int64
	attempts int
}

// Drain is a paced in-memory work queue. Ticks with an empty queue are
// normal; only one image is dispatched per tick so re-analysis never
// bursts against the backend budget.
type Drain struct {
	mu       sync.Mutex
	items    []item
	store    Store
	analyzer Analyzer
	notFound func(error) bool
	interval time.Duration
	logger   *slog.Logger
}

// New creates a drain queue. notFound recognizes the store's missing
// record error so deleted images are dropped silently.
func New(store Store, analyzer Analyzer, notFound func(error) bool, interval time.Duration, logger *slog.Logger) *Drain {
	return &Drain{
		store:    store,
		analyzer: analyzer,
		notFound: notFound,
		interval: interval,
		logger:   logger.With("component", "queue"),
	}
}

// Enqueue schedules the image for re-dispatch
func (d *Drain) Enqueue(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, item{id: id})
	d.logger.Debug("image enqueued for re-dispatch", "id", id, "depth", len(d.items))
}

// Len returns the number of queued images
func (d *Drain) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *Drain) pop() (item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return item{}, false
	}
	it := d.items[0]
	d.items = d.items[1:]
	return it, true
}

// Run drains the queue until the context is cancelled
func (d *Drain) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			it, ok := d.pop()
			if !ok {
				continue
			}
			d.dispatch(ctx, it)
		}
	}
}

func (d *Drain) dispatch(ctx context.Context, it item) {
	img, err := d.store.GetImageByID(ctx, it.id)
	if err != nil {
		if d.notFound != nil && d.notFound(err) {
			d.logger.Debug("queued image no longer exists", "id", it.id)
			return
		}
		d.logger.Error("failed to load queued image", "id", it.id, "error", err)
		d.requeue(it)
		return
	}

	if err := d.analyzer.Process(ctx, img); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		d.logger.Error("failed to re-dispatch image", "id", it.id, "attempt", it.attempts+1, "error", err)
		d.requeue(it)
		return
	}
	d.logger.Info("image re-dispatched", "id", it.id)
}

func (d *Drain) requeue(it item) {
	it.attempts++
	if it.attempts >= maxAttempts {
		d.logger.Warn("dropping image after repeated re-dispatch failures", "id", it.id, "attempts", it.attempts)
		return
	}
	d.mu.Lock()
	d.items = append(d.items, it)
	d.mu.Unlock()
}
