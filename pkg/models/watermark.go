package models

import (
	"database/sql"
	"time"
)

// WatermarkState is the persisted read cursor for one mailbox
type WatermarkState struct {
	Mailbox       string        `db:"mailbox"`        // mailbox address
	MessagesCount int           `db:"messages_count"` // processed message counter
	TotalSize     int64         `db:"total_size"`     // accumulated image bytes
	LastUID       sql.NullInt64 `db:"last_uid"`       // last processed IMAP uid, if uids are stable
	LastSeen      sql.NullTime  `db:"last_seen"`      // search lower bound for date-range fetches
	UpdatedAt     time.Time     `db:"updated_at"`
}

// Advance moves the cursor forward for one processed message.
// The watermark never moves backward: older uids and dates are ignored.
func (w *WatermarkState) Advance(uid uint32, emailDate time.Time, size int) {
	w.MessagesCount++
	w.TotalSize += int64(size)
	if !w.LastUID.Valid || int64(uid) > w.LastUID.Int64 {
		w.LastUID = sql.NullInt64{Int64: int64(uid), Valid: true}
	}
	if !w.LastSeen.Valid || emailDate.After(w.LastSeen.Time) {
		w.LastSeen = sql.NullTime{Time: emailDate, Valid: true}
	}
}
