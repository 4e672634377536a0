// Package metrics exposes Prometheus instrumentation for the watcher.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PollerState holds the numeric poller state (see email.State values)
	PollerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailsight_poller_state",
		Help: "Current poller state machine value",
	})

	ImagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsight_images_processed_total",
		Help: "Images extracted and persisted",
	})

	MessagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsight_messages_fetched_total",
		Help: "Mail messages fetched from the watched folder",
	})

	CyclesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsight_fetch_cycles_discarded_total",
		Help: "Fetch cycles deferred by the discard rate limiter",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsight_reconnects_total",
		Help: "Mailbox reconnect attempts",
	})

	AnalysisErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsight_analysis_errors_total",
		Help: "Image analysis dispatches that returned an error",
	})

	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailsight_alerts_sent_total",
		Help: "Alert notifications sent, by channel",
	}, []string{"channel"})
)

// Serve runs the metrics listener until the context is cancelled. A blank
// address disables the listener.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
