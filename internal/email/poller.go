package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mailsight/mailsight/internal/config"
	"github.com/mailsight/mailsight/internal/extract"
	"github.com/mailsight/mailsight/internal/metrics"
	"github.com/mailsight/mailsight/internal/ratelimit"
	"github.com/mailsight/mailsight/pkg/models"
)

// reconnectDelay is the pause before redialing after a session failure
const reconnectDelay = 10 * time.Second

// discardRetryDelay is the pause before retrying a deferred fetch cycle
const discardRetryDelay = 10 * time.Second

// State is the poller's lifecycle position
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateSynchronizing
	StateIdling
	StateFetching
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSynchronizing:
		return "synchronizing"
	case StateIdling:
		return "idling"
	case StateFetching:
		return "fetching"
	case StateShuttingDown:
		return "shutting down"
	default:
		return "unknown"
	}
}

// Store is the persistence surface the poller needs
type Store interface {
	ImageExistsByUID(ctx context.Context, uid uint32) (bool, error)
	CreateImage(ctx context.Context, img *models.ImageRecord) error
	GetOrCreateWatermark(ctx context.Context, mailbox string) (*models.WatermarkState, error)
	SaveWatermark(ctx context.Context, w *models.WatermarkState) error
	AdjustWatermarkCount(ctx context.Context, mailbox string, delta int) error
}

// OwnerResolver maps a message to the owners its images belong to
type OwnerResolver interface {
	Resolve(ctx context.Context, msg *Message) (owner, subOwner uuid.NullUUID, err error)
}

// Analyzer runs a stored image through the analysis pipeline
type Analyzer interface {
	Process(ctx context.Context, img *models.ImageRecord) error
}

// IsDuplicate is the store-provided duplicate check for CreateImage
// errors, so the poller does not depend on the concrete database package.
type IsDuplicate func(error) bool

// Requeuer accepts stored image ids whose analysis failed, for a later
// retry outside the fetch cycle.
type Requeuer interface {
	Enqueue(id int64)
}

// Poller watches the sent folder and drives fetched messages through
// extraction, owner resolution, persistence and analysis. It owns the
// session: all protocol calls happen on the poller's goroutine.
type Poller struct {
	cfg         *config.Config
	logger      *slog.Logger
	session     Session
	store       Store
	extractor   *extract.Extractor
	resolver    OwnerResolver
	analyzer    Analyzer
	requeue     Requeuer
	limiter     *ratelimit.DiscardLimiter
	isDuplicate IsDuplicate

	state      atomic.Int32
	localCount uint32 // folder count as of the last handshake or fetch
}

// NewPoller creates a poller around its collaborators
func NewPoller(
	cfg *config.Config,
	logger *slog.Logger,
	session Session,
	store Store,
	extractor *extract.Extractor,
	resolver OwnerResolver,
	analyzer Analyzer,
	requeue Requeuer,
	isDuplicate IsDuplicate,
) *Poller {
	return &Poller{
		cfg:         cfg,
		logger:      logger.With("component", "poller"),
		session:     session,
		store:       store,
		extractor:   extractor,
		resolver:    resolver,
		analyzer:    analyzer,
		requeue:     requeue,
		limiter:     ratelimit.New(cfg.DiscardWhenTPMGreaterThan),
		isDuplicate: isDuplicate,
	}
}

// State returns the poller's current lifecycle state
func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
	metrics.PollerState.Set(float64(s))
	p.logger.Debug("poller state changed", "state", s.String())
}

// Run watches the folder until the context is cancelled. Session
// failures reconnect indefinitely; only cancellation stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	defer p.shutdown()

	for {
		if err := p.runSession(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.recover(ctx, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// runSession connects, catches up, then alternates between idling and
// fetching until the session fails or the context ends.
func (p *Poller) runSession(ctx context.Context) error {
	if err := p.reconnect(ctx); err != nil {
		return err
	}

	count, err := p.session.MessageCount()
	if err != nil {
		return fmt.Errorf("failed to read folder count: %w", err)
	}
	p.localCount = count

	// A fresh session always synchronizes once: anything sent while
	// disconnected is waiting in the folder.
	pending := true

	for {
		if pending {
			if !p.limiter.Admit() {
				metrics.CyclesDiscarded.Inc()
				p.logger.Warn("fetch cycle deferred by rate limiter",
					"rate_per_minute", p.limiter.Rate(),
					"threshold", p.cfg.DiscardWhenTPMGreaterThan)
				if err := sleepCtx(ctx, discardRetryDelay); err != nil {
					return err
				}
				continue
			}
			if err := p.fetchCycle(ctx); err != nil {
				return err
			}
			pending = false
		}

		arrived, err := p.waitForArrival(ctx)
		if err != nil {
			return err
		}
		pending = arrived
	}
}

// reconnect brings the session up, walking the connect and
// authenticate states.
func (p *Poller) reconnect(ctx context.Context) error {
	p.setState(StateConnecting)
	if err := p.session.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	p.setState(StateAuthenticating)
	if err := p.session.Authenticate(ctx); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	p.setState(StateSynchronizing)
	return nil
}

// waitForArrival idles until the folder changes, the idle wait expires,
// or the context ends. It reports whether new messages arrived.
func (p *Poller) waitForArrival(ctx context.Context) (bool, error) {
	p.setState(StateIdling)

	idleCtx, stopIdle := context.WithCancel(ctx)
	defer stopIdle()

	idleDone := make(chan error, 1)
	go func() {
		idleDone <- p.session.Idle(idleCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			<-idleDone
			return false, ctx.Err()

		case err := <-idleDone:
			if err != nil && ctx.Err() == nil {
				return false, fmt.Errorf("idle wait failed: %w", err)
			}
			return false, ctx.Err()

		case ev := <-p.session.Events():
			arrived, err := p.handleEvent(ctx, ev)
			if err != nil {
				return false, err
			}
			if arrived {
				// Stop idling before fetching: the session cannot
				// run other commands while the wait is in flight.
				stopIdle()
				if err := <-idleDone; err != nil && ctx.Err() == nil {
					return false, fmt.Errorf("idle wait failed: %w", err)
				}
				return true, ctx.Err()
			}
		}
	}
}

// handleEvent reacts to one folder event, reporting whether it signals
// newly arrived mail.
func (p *Poller) handleEvent(ctx context.Context, ev Event) (bool, error) {
	switch e := ev.(type) {
	case CountChanged:
		if e.Count > p.localCount {
			p.logger.Info("new mail in folder", "count", e.Count, "known", p.localCount)
			p.localCount = e.Count
			return true, nil
		}
		// Shrinking counts come from expunges; the expunge event
		// adjusts the watermark.
		p.localCount = e.Count
		return false, nil

	case MessageExpunged:
		p.logger.Info("message expunged from folder", "seq", e.SeqNum)
		if err := p.store.AdjustWatermarkCount(ctx, p.cfg.EmailLogin, -1); err != nil {
			p.logger.Error("failed to adjust watermark count", "error", err)
		}
		return false, nil

	case FlagsUpdated:
		p.logger.Debug("message flags updated", "seq", e.SeqNum, "flags", e.Flags)
		return false, nil

	default:
		return false, nil
	}
}

// fetchCycle pulls every message past the watermark and processes it
func (p *Poller) fetchCycle(ctx context.Context) error {
	p.setState(StateFetching)
	defer p.setState(StateSynchronizing)

	mark, err := p.store.GetOrCreateWatermark(ctx, p.cfg.EmailLogin)
	if err != nil {
		return fmt.Errorf("failed to load watermark: %w", err)
	}

	var msgs []*Message
	if p.cfg.StableUIDs && mark.LastUID.Valid {
		msgs, err = p.session.FetchSince(ctx, uint32(mark.LastUID.Int64))
		if err == nil {
			// An open-ended uid range always returns the highest-uid
			// message even when nothing is new; drop what the
			// watermark already covers.
			kept := msgs[:0]
			for _, m := range msgs {
				if m.UID > uint32(mark.LastUID.Int64) {
					kept = append(kept, m)
				}
			}
			msgs = kept
		}
	} else {
		msgs, err = p.fetchByDate(ctx, mark)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	if len(msgs) == 0 {
		p.logger.Debug("fetch cycle found nothing new")
		return nil
	}
	metrics.MessagesFetched.Add(float64(len(msgs)))
	p.logger.Info("processing fetched messages", "count", len(msgs))

	before := *mark
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.processMessage(ctx, msg, mark); err != nil {
			return err
		}
	}

	// A failed save only widens the next fetch window; dedup by uid
	// keeps the reprocessing harmless.
	if *mark != before {
		if err := p.store.SaveWatermark(ctx, mark); err != nil {
			p.logger.Error("failed to save watermark", "error", err)
		}
	}

	if count, err := p.session.MessageCount(); err == nil {
		p.localCount = count
	}
	return nil
}

// fetchByDate searches by sent date and re-filters locally, for servers
// whose uids are not stable across sessions.
func (p *Poller) fetchByDate(ctx context.Context, mark *models.WatermarkState) ([]*Message, error) {
	since := p.cfg.StartDate
	if mark.LastSeen.Valid && mark.LastSeen.Time.After(since) {
		since = mark.LastSeen.Time
	}

	uids, err := p.session.SearchSince(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// Cap a cold-start backlog to the newest messages. Search results
	// come back in ascending uid order.
	if q := p.cfg.InitialLoadQuantity; q > 0 && len(uids) > q {
		p.logger.Warn("capping backlog fetch", "found", len(uids), "cap", q)
		uids = uids[len(uids)-q:]
	}

	msgs, err := p.session.FetchUIDs(ctx, uids)
	if err != nil {
		return nil, err
	}

	// Server-side date search is day-granular; re-filter with the full
	// timestamp. Messages sharing the watermark's exact timestamp pass
	// through here and fall to uid dedup.
	kept := msgs[:0]
	for _, m := range msgs {
		if m.Date.Before(since) {
			continue
		}
		kept = append(kept, m)
	}
	return kept, nil
}

// processMessage extracts, persists and analyzes one message's images
// and advances the in-memory watermark.
func (p *Poller) processMessage(ctx context.Context, msg *Message, mark *models.WatermarkState) error {
	logger := p.logger.With("uid", msg.UID, "subject", msg.Subject)

	exists, err := p.store.ImageExistsByUID(ctx, msg.UID)
	if err != nil {
		return fmt.Errorf("failed to check message uid: %w", err)
	}
	if exists {
		logger.Debug("message already processed")
		return nil
	}

	images, err := p.extractor.Extract(msg.Raw)
	if err != nil {
		// A message the extractor cannot read is skipped, not fatal
		logger.Error("failed to extract images", "error", err)
		mark.Advance(msg.UID, msg.Date, 0)
		return nil
	}
	if len(images) == 0 {
		logger.Debug("no images in message")
		mark.Advance(msg.UID, msg.Date, 0)
		return nil
	}

	owner, subOwner, err := p.resolver.Resolve(ctx, msg)
	if err != nil {
		logger.Error("failed to resolve owner", "error", err)
	}

	size := 0
	for _, img := range images {
		record := &models.ImageRecord{
			UID:        msg.UID,
			Name:       img.Name,
			Subject:    msg.Subject,
			OwnerID:    owner,
			SubOwnerID: subOwner,
			Image:      img.Data,
			EmailDate:  msg.Date,
		}

		if err := p.store.CreateImage(ctx, record); err != nil {
			if p.isDuplicate != nil && p.isDuplicate(err) {
				logger.Debug("image already stored", "name", img.Name)
				continue
			}
			return fmt.Errorf("failed to store image: %w", err)
		}
		size += len(img.Data)
		metrics.ImagesProcessed.Inc()
		logger.Info("image stored", "name", img.Name, "bytes", len(img.Data), "owner_set", owner.Valid)

		if err := p.analyzer.Process(ctx, record); err != nil {
			// Analysis failures never hold up the mailbox; the drain
			// queue re-dispatches stored images later.
			metrics.AnalysisErrors.Inc()
			logger.Error("failed to analyze image", "name", img.Name, "error", err)
			if p.requeue != nil {
				p.requeue.Enqueue(record.ID)
			}
		}
	}

	mark.Advance(msg.UID, msg.Date, size)
	return nil
}

// recover tears the session down and pauses before the next attempt
func (p *Poller) recover(ctx context.Context, cause error) {
	p.logger.Error("session failed, reconnecting", "error", cause, "delay", reconnectDelay)
	metrics.Reconnects.Inc()

	p.setState(StateDisconnected)
	p.session.Reset()

	_ = sleepCtx(ctx, reconnectDelay)
}

func (p *Poller) shutdown() {
	p.setState(StateShuttingDown)
	if err := p.session.Close(); err != nil {
		p.logger.Error("failed to close session", "error", err)
	}
	p.setState(StateDisconnected)
	p.logger.Info("poller stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
