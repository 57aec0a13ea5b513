package mailbox

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// GoogleTokenURL is the OAuth2 token endpoint used to refresh Gmail
	// access tokens from the long-lived refresh token.
	GoogleTokenURL = "https://oauth2.googleapis.com/token"

	defaultIMAPHost    = "imap.gmail.com"
	defaultIMAPPort    = 993
	defaultIMAPFolder  = "INBOX"
	defaultDialTimeout = 10 * time.Second
)

// GoogleTokenSource builds a self-refreshing token source from the three
// mailbox secrets. The access token is minted lazily on first use and
// refreshed automatically when it expires.
func GoogleTokenSource(ctx context.Context, clientID, clientSecret, refreshToken string) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: GoogleTokenURL},
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

// GmailStore implements Store against Gmail over IMAP with OAuth bearer
// authentication. The connection is established lazily on the first search
// and dropped on any protocol error so the next poll redials cleanly.
type GmailStore struct {
	host        string
	port        int
	username    string
	folder      string
	dialTimeout time.Duration
	tokens      oauth2.TokenSource
	logger      *zap.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

// GmailOption customizes a GmailStore.
type GmailOption func(*GmailStore)

// WithIMAPAddr overrides the IMAP endpoint, mainly for local test servers.
func WithIMAPAddr(host string, port int) GmailOption {
	return func(s *GmailStore) {
		if host != "" {
			s.host = host
		}
		if port > 0 {
			s.port = port
		}
	}
}

// WithFolder overrides the mailbox folder to search.
func WithFolder(folder string) GmailOption {
	return func(s *GmailStore) {
		if folder != "" {
			s.folder = folder
		}
	}
}

// WithDialTimeout overrides the socket dial timeout.
func WithDialTimeout(d time.Duration) GmailOption {
	return func(s *GmailStore) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// NewGmailStore returns a store for the given account. username is the full
// mailbox address; tokens supplies OAuth2 access tokens for it.
func NewGmailStore(username string, tokens oauth2.TokenSource, logger *zap.Logger, opts ...GmailOption) *GmailStore {
	s := &GmailStore{
		host:        defaultIMAPHost,
		port:        defaultIMAPPort,
		username:    username,
		folder:      defaultIMAPFolder,
		dialTimeout: defaultDialTimeout,
		tokens:      tokens,
		logger:      logger.Named("gmail"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search implements Store. It returns up to limit messages from the sender
// domain received at or after since, newest first.
func (s *GmailStore) Search(ctx context.Context, senderDomain string, since time.Time, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		Since: since,
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: "@" + senderDomain},
		},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		s.drop()
		return nil, fmt.Errorf("imap search: %w", err)
	}

	uids := recentUIDs(searchData.AllUIDs(), limit)
	if len(uids) == 0 {
		return nil, nil
	}

	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{}},
	}
	buffers, err := client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		s.drop()
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	messages := make([]Message, 0, len(buffers))
	for _, buf := range buffers {
		raw := buf.FindBodySection(&imap.FetchItemBodySection{})
		if raw == nil {
			continue
		}
		messages = append(messages, Message{
			ID:         fmt.Sprintf("%d", buf.UID),
			ReceivedAt: buf.InternalDate,
			Body:       bodyText(raw),
		})
	}
	return selectCandidates(messages, since), nil
}

// recentUIDs keeps the last n entries of an ascending UID list.
func recentUIDs(uids []imap.UID, n int) []imap.UID {
	if n > 0 && len(uids) > n {
		return uids[len(uids)-n:]
	}
	return uids
}

// selectCandidates drops messages received before since and orders the rest
// newest first. The IMAP SINCE criterion is date-granular, so the server-side
// search alone cannot enforce a minute-level recency window; without this
// cutoff a stale code from an earlier run the same day would be extracted
// before the fresh mail arrives.
func selectCandidates(messages []Message, since time.Time) []Message {
	kept := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.ReceivedAt.Before(since) {
			continue
		}
		kept = append(kept, msg)
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].ReceivedAt.After(kept[j].ReceivedAt)
	})
	return kept
}

// Close logs out and closes the connection if one is open.
func (s *GmailStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("IMAP logout failed.", zap.Error(err))
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// ensureClient dials and authenticates if no live connection exists.
// Caller must hold s.mu.
func (s *GmailStore) ensureClient(ctx context.Context) (*imapclient.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	token, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh gmail token: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	client, err := imapclient.DialTLS(addr, &imapclient.Options{
		Dialer: &net.Dialer{Timeout: s.dialTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}

	saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: s.username,
		Token:    token.AccessToken,
		Host:     s.host,
		Port:     s.port,
	})
	if err := client.Authenticate(saslClient); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap auth: %w", err)
	}
	if _, err := client.Select(s.folder, nil).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap select %s: %w", s.folder, err)
	}

	s.logger.Info("Connected to mailbox.", zap.String("addr", addr), zap.String("folder", s.folder))
	s.client = client
	if ctx.Err() != nil {
		s.drop()
		return nil, ctx.Err()
	}
	return s.client, nil
}

// drop discards the connection so the next search redials.
// Caller must hold s.mu.
func (s *GmailStore) drop() {
	if s.client == nil {
		return
	}
	s.client.Close()
	s.client = nil
}
