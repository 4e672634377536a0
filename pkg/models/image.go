package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImageRecord represents one image extracted from a sent message
type ImageRecord struct {
	ID          int64         `db:"id"`
	UID         uint32        `db:"uid"`          // IMAP unique id of the source message (dedup key)
	Name        string        `db:"name"`         // attachment file name
	Subject     string        `db:"subject"`      // subject of the source message
	OwnerID     uuid.NullUUID `db:"owner_id"`     // resolved from sender mapping rules
	SubOwnerID  uuid.NullUUID `db:"sub_owner_id"` // resolved from body mapping rules
	Image       []byte        `db:"image"`        // raw image bytes
	Analysis    string        `db:"analysis"`     // serialized backend result
	BackendTags string        `db:"backend_tags"` // semicolon-separated history of backends that ran
	EmailDate   time.Time     `db:"email_date"`   // internal date of the source message
	AddedAt     time.Time     `db:"added_at"`
}

// AppendBackendTag records which backend produced the current analysis.
// Tags accumulate over the record's lifetime for audit purposes.
func (r *ImageRecord) AppendBackendTag(tag string) {
	r.BackendTags += tag + ";"
}

// BackendTagList returns the tag history as a slice
func (r *ImageRecord) BackendTagList() []string {
	return splitList(r.BackendTags)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ";") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
