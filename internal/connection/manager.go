// Package connection owns the single logical channel to the auction backend:
// the push feed, the REST client, connection status and reconnection.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/events"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/metrics"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/session"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/transport"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

// Status of the connection
type Status string

// Connection states.
// disconnected -> connecting -> {connected | error}; error -> connecting on retry
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

var allStatuses = []string{
	string(StatusDisconnected), string(StatusConnecting), string(StatusConnected), string(StatusError),
}

// Reconnection policy defaults
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 3 * time.Second
	attemptTimeout    = 15 * time.Second
)

// ErrReconnectExhausted is recorded once automatic retries are used up.
// Only an explicit Connect resumes.
var ErrReconnectExhausted = errors.New("could not reach the auction server, tap retry or sign in again")

// API is the request/response half of the backend protocol
type API interface {
	ListCars(ctx context.Context, token string) ([]models.AuctionItem, error)
	FetchPrice(ctx context.Context, token, itemID string) (models.LivePrice, error)
	SubmitBid(ctx context.Context, token string, req models.BidRequest) (models.BidResult, error)
}

// TokenStore persists the auth token after a successful connect
type TokenStore interface {
	SaveToken(ctx context.Context, token string) error
}

// Options configures a Manager
type Options struct {
	API API
	// Feed is the push channel; nil means request/response only
	Feed transport.Feed
	// Fallback is started when Feed cannot be established
	Fallback   transport.Feed
	Tokens     TokenStore
	Hub        *events.Hub
	MaxRetries int
	RetryDelay time.Duration
	Now        func() time.Time
}

// Manager supervises the connection. It exclusively owns the raw car list.
type Manager struct {
	api        API
	feed       transport.Feed
	fallback   transport.Feed
	tokens     TokenStore
	hub        *events.Hub
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
	log        *slog.Logger

	mu         sync.Mutex
	status     Status
	lastErr    error
	token      string
	retries    int
	retryTimer *time.Timer
	// bumped by Disconnect; results tagged with an older generation are dropped
	gen        uint64
	active     transport.Feed
	activeSink *feedSink
	items      []models.AuctionItem
}

// NewManager creates a disconnected manager
func NewManager(opts Options) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Hub == nil {
		opts.Hub = events.NewHub()
	}

	m := &Manager{
		api:        opts.API,
		feed:       opts.Feed,
		fallback:   opts.Fallback,
		tokens:     opts.Tokens,
		hub:        opts.Hub,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		now:        opts.Now,
		log:        slog.With("component", "connection"),
		status:     StatusDisconnected,
	}
	metrics.SetConnectionStatus(string(StatusDisconnected), allStatuses...)
	return m
}

// Connect establishes the connection. It is idempotent: while connecting or
// connected it returns nil immediately. An empty token reuses the last one.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.status == StatusConnecting || m.status == StatusConnected {
		m.mu.Unlock()
		return nil
	}
	if token != "" {
		m.token = token
	}
	// an explicit connect restarts the retry budget
	m.retries = 0
	m.stopRetryLocked()
	m.setStatusLocked(StatusConnecting, nil)
	gen, tok := m.gen, m.token
	m.mu.Unlock()

	return m.attempt(ctx, gen, tok, "explicit")
}

// attempt runs one connection attempt for generation gen
func (m *Manager) attempt(ctx context.Context, gen uint64, token, trigger string) error {
	if session.TokenExpired(token, m.now()) {
		m.mu.Lock()
		if gen == m.gen {
			// terminal: retrying with the same token cannot succeed
			m.setStatusLocked(StatusError, session.ErrTokenExpired)
		}
		m.mu.Unlock()
		metrics.ConnectAttempts.WithLabelValues(trigger, "expired").Inc()
		return session.ErrTokenExpired
	}

	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	feed, sink := m.startFeed(ctx, gen, token)

	items, err := m.api.ListCars(ctx, token)
	if err != nil {
		if feed != nil {
			feed.Stop()
		}
		metrics.ConnectAttempts.WithLabelValues(trigger, "error").Inc()
		m.fail(gen, fmt.Errorf("failed to load live cars: %w", err))
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		// disconnected while we were connecting
		m.mu.Unlock()
		if feed != nil {
			feed.Stop()
		}
		return nil
	}
	m.active, m.activeSink = feed, sink
	m.items = items
	m.retries = 0
	m.setStatusLocked(StatusConnected, nil)
	// the feed may have dropped before it became the active one
	lostEarly := sink != nil && sink.lost
	var lostErr error
	if lostEarly {
		m.active, m.activeSink = nil, nil
		lostErr = sink.cause
	}
	m.mu.Unlock()

	metrics.ConnectAttempts.WithLabelValues(trigger, "ok").Inc()
	m.hub.Publish(events.TopicCars, cloneItems(items))

	if m.tokens != nil && token != "" {
		if err := m.tokens.SaveToken(ctx, token); err != nil {
			m.log.Warn("failed to persist auth token", "error", err)
		}
	}

	feedName := "none"
	if feed != nil {
		feedName = feed.Name()
	}
	m.log.Info("connected", "cars", len(items), "feed", feedName, "trigger", trigger)

	if lostEarly {
		go m.recoverFeed(sink, token, lostErr)
	}
	return nil
}

// startFeed brings up the push feed, falling back to the secondary one.
// A nil result means updates only arrive through explicit refreshes.
func (m *Manager) startFeed(ctx context.Context, gen uint64, token string) (transport.Feed, *feedSink) {
	for _, f := range []transport.Feed{m.feed, m.fallback} {
		if f == nil {
			continue
		}
		// a previous attempt may have left it running
		f.Stop()
		sink := &feedSink{m: m, gen: gen, feed: f}
		if err := f.Start(ctx, token, sink); err != nil {
			m.log.Warn("feed unavailable", "feed", f.Name(), "error", err)
			continue
		}
		return f, sink
	}
	return nil, nil
}

// feedLost handles a push channel that dropped without being stopped
func (m *Manager) feedLost(s *feedSink, err error) {
	m.mu.Lock()
	s.lost, s.cause = true, err
	if s.gen != m.gen || m.activeSink != s {
		m.mu.Unlock()
		return
	}
	m.active, m.activeSink = nil, nil
	token := m.token
	m.mu.Unlock()

	// runs off the feed's goroutine: stopping the feed waits for it
	go m.recoverFeed(s, token, err)
}

// recoverFeed switches to the fallback feed after the primary dropped. When
// there is none, or it cannot start, the loss goes through the retry policy.
func (m *Manager) recoverFeed(lost *feedSink, token string, cause error) {
	lost.feed.Stop()
	m.log.Warn("live feed lost", "feed", lost.feed.Name(), "error", cause)

	if fb := m.fallback; fb != nil && fb != lost.feed {
		fb.Stop()
		sink := &feedSink{m: m, gen: lost.gen, feed: fb}
		if err := fb.Start(context.Background(), token, sink); err != nil {
			m.log.Warn("feed unavailable", "feed", fb.Name(), "error", err)
		} else {
			m.mu.Lock()
			stale, dropped := lost.gen != m.gen, sink.lost
			if !stale && !dropped {
				m.active, m.activeSink = fb, sink
			}
			m.mu.Unlock()

			if !stale && !dropped {
				m.log.Info("switched to fallback feed", "feed", fb.Name())
				return
			}
			fb.Stop()
			if stale {
				return
			}
		}
	}

	m.fail(lost.gen, fmt.Errorf("live feed %s lost: %w", lost.feed.Name(), cause))
}

// fail records err and schedules the next automatic retry, if any is left
func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}

	if m.retries >= m.maxRetries {
		m.setStatusLocked(StatusError, fmt.Errorf("%w: %v", ErrReconnectExhausted, err))
		m.log.Error("giving up on automatic reconnection", "attempts", m.retries, "error", err)
		return
	}

	m.setStatusLocked(StatusError, err)
	m.retries++
	m.log.Warn("connection failed, retrying", "attempt", m.retries, "of", m.maxRetries, "in", m.retryDelay, "error", err)
	m.retryTimer = time.AfterFunc(m.retryDelay, func() { m.retry(gen) })
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusError {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.setStatusLocked(StatusConnecting, nil)
	token := m.token
	m.mu.Unlock()

	m.attempt(context.Background(), gen, token, "retry")
}

// Disconnect stops the feed and any pending retry, drops cached cars and
// returns to disconnected. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopRetryLocked()
	feed := m.active
	m.active, m.activeSink = nil, nil
	m.items = nil
	m.retries = 0
	wasDisconnected := m.status == StatusDisconnected
	m.setStatusLocked(StatusDisconnected, nil)
	m.mu.Unlock()

	if feed != nil {
		if err := feed.Stop(); err != nil {
			m.log.Warn("failed to stop feed", "feed", feed.Name(), "error", err)
		}
	}
	if !wasDisconnected {
		m.log.Info("disconnected")
	}
}

// GetLiveCars refreshes the car list in the background. The result is
// published on the hub; failures leave the previous list in place.
func (m *Manager) GetLiveCars(ctx context.Context) {
	go func() {
		if err := m.RefreshCars(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn("car list refresh failed", "error", err)
		}
	}()
}

// RefreshCars is the synchronous form of GetLiveCars
func (m *Manager) RefreshCars(ctx context.Context) error {
	m.mu.Lock()
	gen, token, status := m.gen, m.token, m.status
	m.mu.Unlock()
	if status == StatusDisconnected {
		return fmt.Errorf("refresh skipped: %s", status)
	}

	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	items, err := m.api.ListCars(ctx, token)
	if err != nil {
		return err
	}
	m.applyCars(gen, items)
	return nil
}

// FetchPrice fetches one car's live price. Failures are returned, never
// raised; the caller decides whether to retry.
func (m *Manager) FetchPrice(ctx context.Context, itemID string) (models.LivePrice, error) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	return m.api.FetchPrice(ctx, token, itemID)
}

// SubmitBid sends a bid. An empty token uses the connection's token.
func (m *Manager) SubmitBid(ctx context.Context, token string, req models.BidRequest) (models.BidResult, error) {
	if token == "" {
		m.mu.Lock()
		token = m.token
		m.mu.Unlock()
	}
	return m.api.SubmitBid(ctx, token, req)
}

// Status returns the current status
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected reports whether status is connected
func (m *Manager) IsConnected() bool {
	return m.Status() == StatusConnected
}

// LastError returns the error behind the current error status, if any
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Items returns a copy of the last car list
func (m *Manager) Items() []models.AuctionItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneItems(m.items)
}

// FeedName returns the name of the running feed, or "" when none runs
func (m *Manager) FeedName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.Name()
}

// Hub returns the hub the manager publishes on
func (m *Manager) Hub() *events.Hub { return m.hub }

func (m *Manager) applyCars(gen uint64, items []models.AuctionItem) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.items = items
	m.mu.Unlock()
	m.hub.Publish(events.TopicCars, cloneItems(items))
}

func (m *Manager) applyPrice(gen uint64, itemID string, price models.LivePrice) {
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}
	m.hub.Publish(events.TopicPrice, events.PriceUpdate{ItemID: itemID, Price: price})
}

func (m *Manager) setStatusLocked(s Status, err error) {
	m.status = s
	m.lastErr = err
	change := events.StatusChange{Status: string(s)}
	if err != nil {
		change.Error = err.Error()
	}
	metrics.SetConnectionStatus(string(s), allStatuses...)
	m.hub.Publish(events.TopicStatus, change)
}

func (m *Manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// feedSink binds feed deliveries to the generation that started the feed
type feedSink struct {
	m    *Manager
	gen  uint64
	feed transport.Feed
	// guarded by m.mu
	lost  bool
	cause error
}

func (s *feedSink) OnCars(items []models.AuctionItem) { s.m.applyCars(s.gen, items) }

func (s *feedSink) OnPrice(itemID string, price models.LivePrice) {
	s.m.applyPrice(s.gen, itemID, price)
}

func (s *feedSink) OnClosed(err error) { s.m.feedLost(s, err) }

func cloneItems(items []models.AuctionItem) []models.AuctionItem {
	if items == nil {
		return nil
	}
	return append([]models.AuctionItem(nil), items...)
}
