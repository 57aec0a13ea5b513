package mailbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jobdesk/naukri-refresh/internal/otp"
)

// ErrTimedOut is returned when the time budget elapses without a matching
// message yielding a code.
var ErrTimedOut = errors.New("mailbox: timed out waiting for code")

const (
	defaultPollInterval  = 5 * time.Second
	defaultRecencyWindow = 2 * time.Minute
	defaultMaxMessages   = 5
)

// Poller repeatedly queries a Store until a message produces a passcode or
// the request budget runs out.
type Poller struct {
	store  Store
	logger *zap.Logger

	interval    time.Duration
	recency     time.Duration
	maxMessages int

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	extract func(text string) (string, bool)
}

// PollerOption customizes poller behavior.
type PollerOption func(*Poller)

// WithPollInterval overrides the delay between polls.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithRecencyWindow overrides how far back each poll looks.
func WithRecencyWindow(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.recency = d
		}
	}
}

// WithMaxMessages overrides how many candidate messages each poll inspects.
func WithMaxMessages(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxMessages = n
		}
	}
}

// WithClock overrides the wall clock and the sleep function, primarily so
// tests can simulate time deterministically.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// NewPoller returns a Poller with the standard extraction and timing
// defaults: 5s interval, 2m recency window, 5 candidates per poll.
func NewPoller(store Store, logger *zap.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		store:       store,
		logger:      logger.Named("mailbox"),
		interval:    defaultPollInterval,
		recency:     defaultRecencyWindow,
		maxMessages: defaultMaxMessages,
		now:         time.Now,
		sleep:       sleepContext,
		extract:     otp.Extract,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch polls the store until a candidate message yields a code. It returns
// ErrTimedOut once elapsed time exceeds the request budget, or the context
// error if the caller cancels first. Store errors never abort the loop; mail
// delivery latency must not be conflated with unrecoverable failure.
func (p *Poller) Fetch(ctx context.Context, req Request) (string, error) {
	start := req.IssuedAt
	if start.IsZero() {
		start = p.now()
	}
	deadline := start.Add(req.MaxWait)

	p.logger.Info("Waiting for passcode email.",
		zap.String("sender_domain", req.SenderDomain),
		zap.Duration("budget", req.MaxWait),
	)

	for {
		if p.now().After(deadline) {
			p.logger.Warn("Passcode wait budget exhausted.",
				zap.String("sender_domain", req.SenderDomain))
			return "", ErrTimedOut
		}

		since := p.now().Add(-p.recency)
		messages, err := p.store.Search(ctx, req.SenderDomain, since, p.maxMessages)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Transient fetch error, treat as an empty poll.
			p.logger.Warn("Mailbox search failed, will retry.", zap.Error(err))
		}

		for _, msg := range messages {
			code, ok := p.extract(msg.Body)
			if !ok {
				continue
			}
			p.logger.Info("Passcode found.",
				zap.String("message_id", msg.ID),
				zap.Time("received_at", msg.ReceivedAt),
			)
			return code, nil
		}

		if len(messages) == 0 {
			p.logger.Debug("No new messages yet.")
		} else {
			p.logger.Debug("No passcode in recent messages.",
				zap.Int("inspected", len(messages)))
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return "", err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
