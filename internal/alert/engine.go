// Package alert matches analysis output against keyword rules and
// notifies the configured channels.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mailsight/mailsight/internal/metrics"
	"github.com/mailsight/mailsight/pkg/models"
)

// RuleSource returns the alert rules in scope for an owner. A null
// owner returns only the global rules.
type RuleSource interface {
	GetAlertRulesForOwner(ctx context.Context, owner uuid.NullUUID) ([]*models.AlertRule, error)
}

// Notifier delivers one fired alert over one channel
type Notifier interface {
	Name() string
	Send(ctx context.Context, rule *models.AlertRule, img *models.ImageRecord, keyword string) error
}

// Engine evaluates finished analyses against the stored rules. Each
// channel sends independently: one channel failing never blocks the
// others.
type Engine struct {
	rules     RuleSource
	notifiers []Notifier
	logger    *slog.Logger
}

// NewEngine creates an engine over the given channels
func NewEngine(rules RuleSource, notifiers []Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		rules:     rules,
		notifiers: notifiers,
		logger:    logger.With("component", "alerts"),
	}
}

// Process evaluates every in-scope rule against the image's analysis.
// Each matching keyword fires the rule's channels once.
func (e *Engine) Process(ctx context.Context, img *models.ImageRecord) error {
	if img.Analysis == "" {
		return nil
	}

	rules, err := e.rules.GetAlertRulesForOwner(ctx, img.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to load alert rules: %w", err)
	}

	for _, rule := range rules {
		if !rule.AppliesTo(img) {
			continue
		}
		keywords := rule.KeywordList()
		if len(keywords) == 0 {
			continue
		}

		payload := img.Analysis
		for _, remove := range rule.RemoveKeywordList() {
			stripped, n := removeFold(payload, remove)
			if n > 0 {
				e.logger.Debug("stripped keyword before matching",
					"rule", rule.ID, "keyword", remove, "occurrences", n)
			}
			payload = stripped
		}

		for _, keyword := range keywords {
			if containsFold(payload, keyword) {
				e.logger.Info("alert rule matched",
					"rule", rule.ID, "title", rule.Title, "image", img.ID, "keyword", keyword)
				e.fire(ctx, rule, img, keyword)
			}
		}
	}
	return nil
}

// fire sends the alert on every channel, logging failures per channel
func (e *Engine) fire(ctx context.Context, rule *models.AlertRule, img *models.ImageRecord, keyword string) {
	for _, n := range e.notifiers {
		if err := n.Send(ctx, rule, img, keyword); err != nil {
			e.logger.Error("failed to send alert",
				"channel", n.Name(), "rule", rule.ID, "image", img.ID, "error", err)
			continue
		}
		metrics.AlertsSent.WithLabelValues(n.Name()).Inc()
	}
}
