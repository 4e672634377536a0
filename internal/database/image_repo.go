package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailsight/mailsight/pkg/models"
)

// CreateImage persists a new image record (ignores if the uid/name pair already exists)
func (db *DB) CreateImage(ctx context.Context, img *models.ImageRecord) error {
	query := `
		INSERT OR IGNORE INTO images (uid, name, subject, owner_id, sub_owner_id, image, analysis, backend_tags, email_date, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		img.UID,
		img.Name,
		img.Subject,
		img.OwnerID,
		img.SubOwnerID,
		img.Image,
		img.Analysis,
		img.BackendTags,
		img.EmailDate,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}

	// A row ignored due to the unique (uid, name) key means this image
	// was already stored.
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	img.ID = id
	img.AddedAt = now
	return nil
}

// GetImageByID returns an image record by ID
func (db *DB) GetImageByID(ctx context.Context, id int64) (*models.ImageRecord, error) {
	var img models.ImageRecord
	query := `SELECT * FROM images WHERE id = ?`
	err := db.GetContext(ctx, &img, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return &img, nil
}

// ImageExistsByUID reports whether an image for the source message uid exists
func (db *DB) ImageExistsByUID(ctx context.Context, uid uint32) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM images WHERE uid = ?`
	if err := db.GetContext(ctx, &count, query, uid); err != nil {
		return false, fmt.Errorf("failed to check image uid: %w", err)
	}
	return count > 0, nil
}

// GetLatestImage returns the image with the most recent email date
func (db *DB) GetLatestImage(ctx context.Context) (*models.ImageRecord, error) {
	var img models.ImageRecord
	query := `SELECT * FROM images ORDER BY email_date DESC LIMIT 1`
	err := db.GetContext(ctx, &img, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest image: %w", err)
	}
	return &img, nil
}

// UpdateImageAnalysis attaches an analysis result and its backend tag history
func (db *DB) UpdateImageAnalysis(ctx context.Context, img *models.ImageRecord) error {
	query := `UPDATE images SET analysis = ?, backend_tags = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, img.Analysis, img.BackendTags, img.ID)
	if err != nil {
		return fmt.Errorf("failed to update image analysis: %w", err)
	}
	return nil
}

// PurgeImage removes an image record. Records are otherwise never deleted.
func (db *DB) PurgeImage(ctx context.Context, id int64) error {
	query := `DELETE FROM images WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to purge image: %w", err)
	}
	return nil
}
