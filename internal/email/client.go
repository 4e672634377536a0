package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/mailsight/mailsight/internal/config"
)

// ErrNotConnected is returned when an operation requires an open session
var ErrNotConnected = errors.New("not connected")

// gmailSentFolder is the special sent folder name used by Gmail-style servers
const gmailSentFolder = "[Gmail]/Sent Mail"

// Client is the IMAP implementation of Session, watching one account's
// sent folder
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	mu            sync.Mutex
	client        *client.Client
	authenticated bool
	folder        string
	quit          chan struct{} // per-connection, stops the update pump

	events chan Event
}

// NewClient creates an IMAP client for the configured account
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "imap", "email", cfg.EmailLogin),
		events: make(chan Event, 64),
	}
}

// Connect dials the server. A no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	c.logger.Info("connecting to IMAP server", "server", c.cfg.IMAPServer)

	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.cfg.IMAPServer, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}

	c.client = imapClient
	c.logger.Info("connection established")

	return nil
}

// Authenticate logs in and opens the sent folder. A no-op when already
// authenticated.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return ErrNotConnected
	}
	if c.authenticated {
		return nil
	}

	if err := c.client.Login(c.cfg.EmailLogin, c.cfg.EmailPassword); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	folder, err := c.selectSentFolder(c.client)
	if err != nil {
		return err
	}

	// Library updates flow through a connection-scoped channel drained by
	// the pump until the connection is dropped.
	updates := make(chan client.Update, 32)
	c.client.Updates = updates
	quit := make(chan struct{})
	go c.pumpUpdates(updates, quit)

	c.authenticated = true
	c.folder = folder
	c.quit = quit
	c.logger.Info("authenticated, sent folder open", "folder", folder)

	return nil
}

// selectSentFolder opens the sent folder read-only, falling back to any
// folder whose name contains "sent" when the configured name is missing
func (c *Client) selectSentFolder(imapClient *client.Client) (string, error) {
	name := c.cfg.SentFolder
	if c.cfg.GmailFolderSemantics() {
		name = gmailSentFolder
	}

	if _, err := imapClient.Select(name, true); err == nil {
		return name, nil
	}

	c.logger.Warn("configured sent folder not found, listing folders", "folder", name)

	mailboxes := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.List("", "*", mailboxes)
	}()

	var candidate string
	for mbox := range mailboxes {
		if candidate == "" && strings.Contains(strings.ToLower(mbox.Name), "sent") {
			candidate = mbox.Name
		}
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("failed to list folders: %w", err)
	}
	if candidate == "" {
		return "", fmt.Errorf("sent folder %q cannot be found", name)
	}

	if _, err := imapClient.Select(candidate, true); err != nil {
		return "", fmt.Errorf("failed to select folder %q: %w", candidate, err)
	}
	return candidate, nil
}

// pumpUpdates translates library updates into typed events. It performs
// no I/O: the poller goroutine is the only consumer acting on events.
func (c *Client) pumpUpdates(updates <-chan client.Update, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case update := <-updates:
			var ev Event
			switch u := update.(type) {
			case *client.MailboxUpdate:
				ev = CountChanged{Count: u.Mailbox.Messages}
			case *client.ExpungeUpdate:
				ev = MessageExpunged{SeqNum: u.SeqNum}
			case *client.MessageUpdate:
				if u.Message == nil {
					continue
				}
				ev = FlagsUpdated{SeqNum: u.Message.SeqNum, Flags: u.Message.Flags}
			default:
				continue
			}

			// Count events are droppable when the consumer lags: only
			// the latest count matters, and blocking here would back up
			// the library's update channel.
			if _, droppable := ev.(CountChanged); droppable {
				select {
				case c.events <- ev:
				case <-quit:
					return
				default:
					c.logger.Debug("event buffer full, dropping count update")
				}
				continue
			}

			select {
			case c.events <- ev:
			case <-quit:
				return
			}
		}
	}
}

// Events returns the folder event feed
func (c *Client) Events() <-chan Event {
	return c.events
}

// MessageCount returns the message count of the open folder
func (c *Client) MessageCount() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authenticated || c.client == nil {
		return 0, ErrNotConnected
	}
	mbox := c.client.Mailbox()
	if mbox == nil {
		return 0, ErrNotConnected
	}
	return mbox.Messages, nil
}

// SearchSince returns the uids of messages sent on or after the date
func (c *Client) SearchSince(ctx context.Context, since time.Time) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authenticated || c.client == nil {
		return nil, ErrNotConnected
	}

	criteria := imap.NewSearchCriteria()
	criteria.SentSince = since

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return uids, nil
}

// FetchSince fetches messages with uid greater than the given uid
func (c *Client) FetchSince(ctx context.Context, uid uint32) ([]*Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(uid+1, 0) // 0 means * (all)
	return c.fetch(seqSet)
}

// FetchUIDs fetches the given messages
func (c *Client) FetchUIDs(ctx context.Context, uids []uint32) ([]*Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	return c.fetch(seqSet)
}

func (c *Client) fetch(seqSet *imap.SeqSet) ([]*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authenticated || c.client == nil {
		return nil, ErrNotConnected
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchUid,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var fetched []*Message
	for msg := range messages {
		m, err := c.parseMessage(msg, section)
		if err != nil {
			c.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		fetched = append(fetched, m)
	}

	if err := <-done; err != nil {
		return fetched, fmt.Errorf("failed to fetch: %w", err)
	}
	return fetched, nil
}

// parseMessage converts an IMAP message into a Message
func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*Message, error) {
	m := &Message{
		UID:  msg.Uid,
		Date: msg.InternalDate,
	}

	if msg.Envelope != nil {
		m.Subject = msg.Envelope.Subject
		if m.Date.IsZero() {
			m.Date = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			m.Sender = strings.TrimSpace(from.Address())
			m.SenderName = from.PersonalName
		}
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return nil, fmt.Errorf("message has no body section")
	}

	raw, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	m.Raw = raw

	c.parseBodyText(m)

	return m, nil
}

// parseBodyText fills the plain and HTML body fields used by owner
// mapping rules. Parse failures leave them empty.
func (c *Client) parseBodyText(m *Message) {
	mr, err := mail.CreateReader(strings.NewReader(string(m.Raw)))
	if err != nil {
		c.logger.Debug("failed to create mail reader", "uid", m.UID, "error", err)
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Debug("failed to read part", "uid", m.UID, "error", err)
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/html"):
			m.BodyHTML = string(body)
		case strings.HasPrefix(ct, "text/plain"):
			m.BodyText = string(body)
		}
	}
}

// Idle waits for folder changes until the context is cancelled. Falls
// back to interval polling when the server does not support IDLE.
func (c *Client) Idle(ctx context.Context) error {
	c.mu.Lock()
	imapClient := c.client
	authenticated := c.authenticated
	c.mu.Unlock()

	if !authenticated || imapClient == nil {
		return ErrNotConnected
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Idle(stop, &client.IdleOptions{
			LogoutTimeout: c.cfg.IdleTimeout,
			PollInterval:  c.cfg.PollInterval,
		})
	}()

	select {
	case <-ctx.Done():
		close(stop)
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Reset drops the connection state so the next Connect dials again
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown(false)
}

// Close stops the update pump and disconnects
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown(true)
	return nil
}

// teardown stops the update pump before touching the connection so no
// event is delivered against a disposed session
func (c *Client) teardown(graceful bool) {
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}

	imapClient := c.client
	c.client = nil
	c.authenticated = false

	if imapClient == nil {
		return
	}

	if !graceful {
		imapClient.Terminate()
		return
	}

	// Bounded logout: force close if the server does not answer
	done := make(chan struct{})
	go func() {
		imapClient.Logout()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		imapClient.Terminate()
	}
}
