// Package owner maps outgoing messages to the accounts their images
// belong to, using the stored sender/subject/body mapping rules.
package owner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mailsight/mailsight/internal/email"
	"github.com/mailsight/mailsight/internal/parser"
	"github.com/mailsight/mailsight/pkg/models"
)

// MappingSource returns the mapping rules filtered to one sender
type MappingSource interface {
	GetMappingsBySender(ctx context.Context, sender string) ([]*models.OwnerMapping, error)
}

// Resolver applies mapping rules to a fetched message. Owner matches on
// sender plus subject key, sub-owner on a body substring. Messages
// without a match stay unowned; alert rules without an owner scope
// still apply to them.
type Resolver struct {
	source MappingSource
	logger *slog.Logger
}

// New creates a resolver
func New(source MappingSource, logger *slog.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: logger.With("component", "owner_resolver"),
	}
}

// Resolve returns the owner and sub-owner for the message, either of
// which may be null.
func (r *Resolver) Resolve(ctx context.Context, msg *email.Message) (uuid.NullUUID, uuid.NullUUID, error) {
	var owner, subOwner uuid.NullUUID

	mappings, err := r.source.GetMappingsBySender(ctx, msg.Sender)
	if err != nil {
		return owner, subOwner, fmt.Errorf("failed to load mappings: %w", err)
	}
	if len(mappings) == 0 {
		return owner, subOwner, nil
	}

	body := r.messageBody(msg)

	for _, m := range mappings {
		if !owner.Valid && m.Value.Valid && subjectMatches(m, msg.Subject) {
			owner = m.Value
			r.logger.Debug("owner matched", "mapping", m.Name, "uid", msg.UID)
		}
		if !subOwner.Valid && m.SubValue.Valid && bodyMatches(m, body) {
			subOwner = m.SubValue
			r.logger.Debug("sub-owner matched", "mapping", m.Name, "uid", msg.UID)
		}
		if owner.Valid && subOwner.Valid {
			break
		}
	}
	return owner, subOwner, nil
}

// subjectMatches checks the mapping's subject key. A null key matches
// any subject from the sender.
func subjectMatches(m *models.OwnerMapping, subject string) bool {
	if !m.Key.Valid {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(m.Key.String), strings.TrimSpace(subject))
}

// bodyMatches checks the mapping's body substring, case-insensitively
func bodyMatches(m *models.OwnerMapping, body string) bool {
	if !m.SubFilter.Valid || m.SubFilter.String == "" || body == "" {
		return false
	}
	return strings.Contains(strings.ToLower(body), strings.ToLower(m.SubFilter.String))
}

// messageBody prefers the plain text part, falling back to the HTML
// part converted to text.
func (r *Resolver) messageBody(msg *email.Message) string {
	if msg.BodyText != "" {
		return msg.BodyText
	}
	if msg.BodyHTML == "" {
		return ""
	}
	text, err := parser.HTMLToText(msg.BodyHTML)
	if err != nil {
		r.logger.Warn("failed to convert html body", "uid", msg.UID, "error", err)
		return ""
	}
	return text
}
