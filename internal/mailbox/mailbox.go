// Package mailbox retrieves one-time passcodes from an email account.
//
// The mailbox is treated as eventually consistent: new mail may take many
// seconds to appear, so retrieval is a polling loop with an explicit time
// budget rather than a single fetch. Transient errors (network, auth, parse)
// are logged and treated as an empty poll; only budget exhaustion is
// surfaced to the caller.
package mailbox

import (
	"context"
	"time"
)

// Message is a read-only view of one fetched mail. It lives only for the
// duration of the polling loop.
type Message struct {
	ID         string
	ReceivedAt time.Time
	// Body is the extracted plain text of the message.
	Body string
}

// Request describes one passcode retrieval. It is created once per login
// attempt and never mutated.
type Request struct {
	// SenderDomain filters messages by the From header, e.g. "naukri.com".
	SenderDomain string
	// MaxWait bounds the whole retrieval. Exceeding it yields ErrTimedOut.
	MaxWait time.Duration
	// IssuedAt anchors the budget. The zero value means "now".
	IssuedAt time.Time
}

// Store is the message source queried by the Poller. Search returns up to
// limit messages from the sender domain received at or after since, newest
// first.
type Store interface {
	Search(ctx context.Context, senderDomain string, since time.Time, limit int) ([]Message, error)
}
