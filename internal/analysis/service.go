package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mailsight/mailsight/pkg/models"
)

// Store persists analysis results onto stored images
type Store interface {
	UpdateImageAnalysis(ctx context.Context, img *models.ImageRecord) error
}

// Observers fan a finished analysis out to subscribed sessions
type Observers interface {
	Notify(img *models.ImageRecord)
}

// AlertSink evaluates a finished analysis against the alert rules
type AlertSink interface {
	Process(ctx context.Context, img *models.ImageRecord) error
}

// Service ties the dispatcher to persistence, observers and alerting.
// It is the single entry point for analyzing a stored image, used both
// by the poller and by the re-dispatch queue.
type Service struct {
	dispatcher *Dispatcher
	store      Store
	observers  Observers
	alerts     AlertSink
	logger     *slog.Logger
}

// NewService creates the analysis service
func NewService(dispatcher *Dispatcher, store Store, observers Observers, alerts AlertSink, logger *slog.Logger) *Service {
	return &Service{
		dispatcher: dispatcher,
		store:      store,
		observers:  observers,
		alerts:     alerts,
		logger:     logger.With("component", "analysis"),
	}
}

// Process analyzes the image, persists the result and notifies
// downstream consumers. A skipped dispatch leaves the record untouched.
func (s *Service) Process(ctx context.Context, img *models.ImageRecord) error {
	result, tag, err := s.dispatcher.Analyze(ctx, img.Image)
	if errors.Is(err, ErrSkipped) {
		s.logger.Info("analysis skipped", "id", img.ID, "backend", tag)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to analyze image %d: %w", img.ID, err)
	}

	img.Analysis = result
	img.AppendBackendTag(tag)
	if err := s.store.UpdateImageAnalysis(ctx, img); err != nil {
		return fmt.Errorf("failed to save analysis for image %d: %w", img.ID, err)
	}
	s.logger.Info("analysis saved", "id", img.ID, "backend", tag, "result_bytes", len(result))

	if s.observers != nil {
		s.observers.Notify(img)
	}
	if s.alerts != nil {
		if err := s.alerts.Process(ctx, img); err != nil {
			// Alerting failures never unwind a finished analysis
			s.logger.Error("failed to process alerts", "id", img.ID, "error", err)
		}
	}
	return nil
}
