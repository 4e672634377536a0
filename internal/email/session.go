package email

import (
	"context"
	"time"
)

// Message is a fetched mail message with enough material for extraction
// and owner resolution
type Message struct {
	UID        uint32
	Sender     string
	SenderName string
	Subject    string
	Date       time.Time // internal date of the message
	BodyText   string
	BodyHTML   string
	Raw        []byte // full RFC 822 source
}

// Session is the mail protocol collaborator the poller drives. The
// poller depends only on these operations, not on their wire encoding.
type Session interface {
	// Connect dials the server. Idempotent: a no-op when already connected.
	Connect(ctx context.Context) error

	// Authenticate logs in and opens the sent folder. Idempotent: a
	// no-op when already authenticated.
	Authenticate(ctx context.Context) error

	// Reset drops the connection state so the next Connect dials again
	Reset()

	// Close unsubscribes from folder events and disconnects
	Close() error

	// MessageCount returns the number of messages in the watched folder
	MessageCount() (uint32, error)

	// SearchSince returns uids of messages sent on or after the given
	// date. Server-side granularity is a day; callers re-filter locally.
	SearchSince(ctx context.Context, since time.Time) ([]uint32, error)

	// FetchSince fetches every message with uid greater than the given uid
	FetchSince(ctx context.Context, uid uint32) ([]*Message, error)

	// FetchUIDs fetches the given messages
	FetchUIDs(ctx context.Context, uids []uint32) ([]*Message, error)

	// Idle blocks until the context is cancelled or the wait fails.
	// Folder changes surface on Events while idling.
	Idle(ctx context.Context) error

	// Events is the single-consumer folder event feed
	Events() <-chan Event
}
