package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// AlertRule matches analysis output against keywords and names the
// destinations to notify. Rules are authored externally and read-only
// from the pipeline's perspective.
type AlertRule struct {
	ID             int64          `db:"id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Keywords       string         `db:"keywords"`        // semicolon-separated
	RemoveKeywords sql.NullString `db:"remove_keywords"` // stripped from the payload before matching
	OwnerID        uuid.NullUUID  `db:"owner_id"`        // null = global scope
	SubOwnerID     uuid.NullUUID  `db:"sub_owner_id"`
	SendTo         string         `db:"send_to"` // email destinations, semicolon-separated
	TextTo         string         `db:"text_to"` // SMS destinations, semicolon-separated
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
}

// KeywordList returns the keywords to match
func (r *AlertRule) KeywordList() []string {
	return splitList(r.Keywords)
}

// RemoveKeywordList returns the keywords to strip before matching
func (r *AlertRule) RemoveKeywordList() []string {
	if !r.RemoveKeywords.Valid {
		return nil
	}
	return splitList(r.RemoveKeywords.String)
}

// EmailRecipients returns the email destinations
func (r *AlertRule) EmailRecipients() []string {
	return splitList(r.SendTo)
}

// SMSRecipients returns the SMS destinations
func (r *AlertRule) SMSRecipients() []string {
	return splitList(r.TextTo)
}

// AppliesTo reports whether the rule's owner scope covers the image
func (r *AlertRule) AppliesTo(img *ImageRecord) bool {
	if !r.OwnerID.Valid {
		return true
	}
	return img.OwnerID.Valid && r.OwnerID.UUID == img.OwnerID.UUID
}
