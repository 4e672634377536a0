package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mailsight/mailsight/pkg/models"
)

// GetMappingsBySender returns the owner mappings whose sender filter
// matches the given address
func (db *DB) GetMappingsBySender(ctx context.Context, sender string) ([]*models.OwnerMapping, error) {
	var mappings []*models.OwnerMapping
	query := `SELECT * FROM owner_mappings WHERE filter = ?`
	err := db.SelectContext(ctx, &mappings, query, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to get owner mappings: %w", err)
	}
	return mappings, nil
}

// CreateMapping inserts an owner mapping. Mappings are authored by the
// outer application; this exists for tooling and tests.
func (db *DB) CreateMapping(ctx context.Context, m *models.OwnerMapping) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO owner_mappings (id, name, filter, key, sub_filter, value, sub_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		m.ID,
		m.Name,
		m.Filter,
		m.Key,
		m.SubFilter,
		m.Value,
		m.SubValue,
	)
	if err != nil {
		return fmt.Errorf("failed to create owner mapping: %w", err)
	}
	return nil
}
