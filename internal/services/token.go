package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackmeta/internal/shared"
	"golang.org/x/oauth2"
)

// DefaultExpiryMargin refreshes tokens slightly before they expire so in-flight requests do not race the expiry.
const DefaultExpiryMargin = 30 * time.Second

// tokenSourceTimeout bounds refreshes triggered through [TokenManager.Token], which has no caller context.
const tokenSourceTimeout = 30 * time.Second

// Token is a bearer token and the instant it stops being valid.
type Token struct {
	Value  string
	Expiry time.Time
}

// ValidAt reports whether the token can be used at now with margin to spare.
func (t Token) ValidAt(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Add(margin).Before(t.Expiry)
}

// RefreshFunc performs a credential exchange and returns a new token.
type RefreshFunc func(ctx context.Context) (Token, error)

// TokenManagerOpts configures a [TokenManager].
type TokenManagerOpts struct {
	// Name identifies the token in logs and errors.
	Name   string
	Margin time.Duration
	Logger *log.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// TokenManager caches a bearer token and refreshes it when stale.
//
// Readers that find a fresh token never block. When the token is stale, one caller performs the
// exchange while the rest wait on the refresh lock and then reuse its result. A failed exchange is
// not remembered: the next call tries again.
type TokenManager struct {
	name    string
	refresh RefreshFunc
	margin  time.Duration
	now     func() time.Time
	logger  *log.Logger

	current   atomic.Pointer[Token]
	mu        sync.Mutex
	refreshes atomic.Int64
}

// NewTokenManager creates a [TokenManager] around refresh.
func NewTokenManager(refresh RefreshFunc, opts TokenManagerOpts) *TokenManager {
	if opts.Name == "" {
		opts.Name = "token"
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &TokenManager{
		name:    opts.Name,
		refresh: refresh,
		margin:  opts.Margin,
		now:     opts.Now,
		logger:  shared.WithLogger(opts.Logger, "token", opts.Name),
	}
}

// Get returns a token that has not expired, refreshing it first if needed.
func (m *TokenManager) Get(ctx context.Context) (Token, error) {
	if t := m.current.Load(); t != nil && t.ValidAt(m.now(), m.margin) {
		return *t, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while this one waited for the lock.
	if t := m.current.Load(); t != nil && t.ValidAt(m.now(), m.margin) {
		return *t, nil
	}

	started := m.now()
	t, err := m.refresh(ctx)
	if err != nil {
		m.logger.Warn("token refresh failed", "error", err)
		return Token{}, fmt.Errorf("%w: %s: %w", shared.ErrAuthFailed, m.name, err)
	}

	now := m.now()
	if t.Value == "" {
		return Token{}, fmt.Errorf("%w: %s: exchange returned an empty token", shared.ErrAuthFailed, m.name)
	}
	if !t.Expiry.After(now) {
		return Token{}, fmt.Errorf("%w: %s: exchange returned a token that expired at %s",
			shared.ErrAuthFailed, m.name, t.Expiry.Format(time.RFC3339))
	}

	m.current.Store(&t)
	m.refreshes.Add(1)
	m.logger.Debug("token refreshed", "expires_in", t.Expiry.Sub(now).Round(time.Second), "took", now.Sub(started))
	return t, nil
}

// Token implements [oauth2.TokenSource] so the manager can back an [oauth2.Transport].
func (m *TokenManager) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tokenSourceTimeout)
	defer cancel()

	t, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: t.Value, TokenType: "Bearer", Expiry: t.Expiry}, nil
}

// Invalidate drops the cached token so the next call refreshes, e.g. after the API rejected it.
func (m *TokenManager) Invalidate() {
	m.current.Store(nil)
}

// Refreshes returns the number of successful exchanges.
func (m *TokenManager) Refreshes() int64 {
	return m.refreshes.Load()
}

var (
	_ TokenProvider      = (*TokenManager)(nil)
	_ oauth2.TokenSource = (*TokenManager)(nil)
)
