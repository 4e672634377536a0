package email

// Event is a folder-level change observed while connected. The protocol
// client's update goroutine only translates library updates into these
// values and enqueues them; the poller is the single consumer and the
// only place that acts on them.
type Event interface {
	event()
}

// CountChanged reports the folder's new message count
type CountChanged struct {
	Count uint32
}

// MessageExpunged reports that the message at SeqNum was removed
type MessageExpunged struct {
	SeqNum uint32
}

// FlagsUpdated reports a message flag change. Informational only.
type FlagsUpdated struct {
	SeqNum uint32
	Flags  []string
}

func (CountChanged) event()    {}
func (MessageExpunged) event() {}
func (FlagsUpdated) event()    {}
