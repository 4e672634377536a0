package models

import (
	"database/sql"

	"github.com/google/uuid"
)

// OwnerMapping maps a sender address (plus optional subject and body
// predicates) to an owner/sub-owner pair. Read-only lookup table.
type OwnerMapping struct {
	ID        uuid.UUID      `db:"id"`
	Name      string         `db:"name"`
	Filter    string         `db:"filter"`     // sender email address to match
	Key       sql.NullString `db:"key"`        // subject to match, if set
	SubFilter sql.NullString `db:"sub_filter"` // substring to search in the body text, if set
	Value     uuid.NullUUID  `db:"value"`      // owner id assigned on match
	SubValue  uuid.NullUUID  `db:"sub_value"`  // sub-owner id assigned on match
}
