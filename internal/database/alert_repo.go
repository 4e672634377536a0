package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mailsight/mailsight/pkg/models"
)

// GetAlertRulesForOwner returns every rule whose owner scope is global
// or matches the given owner
func (db *DB) GetAlertRulesForOwner(ctx context.Context, owner uuid.NullUUID) ([]*models.AlertRule, error) {
	var rules []*models.AlertRule
	query := `SELECT * FROM alert_rules WHERE owner_id IS NULL OR owner_id = ?`
	err := db.SelectContext(ctx, &rules, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rules: %w", err)
	}
	return rules, nil
}

// CreateAlertRule inserts an alert rule. Rules are authored by the outer
// application; this exists for tooling and tests.
func (db *DB) CreateAlertRule(ctx context.Context, rule *models.AlertRule) error {
	query := `
		INSERT INTO alert_rules (title, description, keywords, remove_keywords, owner_id, sub_owner_id, send_to, text_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.ExecContext(ctx, query,
		rule.Title,
		rule.Description,
		rule.Keywords,
		rule.RemoveKeywords,
		rule.OwnerID,
		rule.SubOwnerID,
		rule.SendTo,
		rule.TextTo,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rule.ID = id
	return nil
}
