package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailsight/mailsight/pkg/models"
)

// GetWatermark returns the watermark state for a mailbox
func (db *DB) GetWatermark(ctx context.Context, mailbox string) (*models.WatermarkState, error) {
	var w models.WatermarkState
	query := `SELECT * FROM watermarks WHERE mailbox = ?`
	err := db.GetContext(ctx, &w, query, mailbox)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}
	return &w, nil
}

// GetOrCreateWatermark returns the watermark state for a mailbox,
// creating a row on first run. A fresh row is seeded from the newest
// stored image, so a lost watermark resumes past already-archived mail
// instead of refetching the whole folder.
func (db *DB) GetOrCreateWatermark(ctx context.Context, mailbox string) (*models.WatermarkState, error) {
	w, err := db.GetWatermark(ctx, mailbox)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var lastUID sql.NullInt64
	var lastSeen sql.NullTime
	latest, err := db.GetLatestImage(ctx)
	switch {
	case err == nil:
		lastUID = sql.NullInt64{Int64: int64(latest.UID), Valid: true}
		lastSeen = sql.NullTime{Time: latest.EmailDate, Valid: true}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	query := `INSERT OR IGNORE INTO watermarks (mailbox, messages_count, total_size, last_uid, last_seen, updated_at) VALUES (?, 0, 0, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, mailbox, lastUID, lastSeen, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to create watermark: %w", err)
	}

	return db.GetWatermark(ctx, mailbox)
}

// SaveWatermark persists the watermark state. The cursor never moves
// backward: stored uid and last-seen values only grow.
func (db *DB) SaveWatermark(ctx context.Context, w *models.WatermarkState) error {
	query := `
		UPDATE watermarks
		SET messages_count = ?,
		    total_size = ?,
		    last_uid = CASE WHEN ? IS NOT NULL AND ? > COALESCE(last_uid, 0) THEN ? ELSE last_uid END,
		    last_seen = COALESCE(?, last_seen),
		    updated_at = ?
		WHERE mailbox = ?
	`
	_, err := db.ExecContext(ctx, query,
		w.MessagesCount,
		w.TotalSize,
		w.LastUID, w.LastUID, w.LastUID,
		w.LastSeen,
		time.Now(),
		w.Mailbox,
	)
	if err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	return nil
}

// AdjustWatermarkCount applies a delta to the processed message counter,
// used when the server expunges messages below the cursor
func (db *DB) AdjustWatermarkCount(ctx context.Context, mailbox string, delta int) error {
	query := `UPDATE watermarks SET messages_count = MAX(0, messages_count + ?), updated_at = ? WHERE mailbox = ?`
	_, err := db.ExecContext(ctx, query, delta, time.Now(), mailbox)
	if err != nil {
		return fmt.Errorf("failed to adjust watermark count: %w", err)
	}
	return nil
}
