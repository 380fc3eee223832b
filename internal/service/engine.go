// Package service assembles the sync engine and exposes the operations the
// screens call: connect, live cars, prices, countdowns and the bid dialog.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/bidding"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/connection"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/countdown"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/events"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/metrics"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/pricecache"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/session"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/transport"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/window"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

// ErrArchiveDisabled is returned by history queries when no archive is configured
var ErrArchiveDisabled = errors.New("bid history is not enabled")

// Session is the persisted credential and wishlist store
type Session interface {
	LoadCredentials(ctx context.Context) (session.Credentials, error)
	SaveToken(ctx context.Context, token string) error
	SaveUserID(ctx context.Context, userID string) error
	SignOut(ctx context.Context) error
	Wishlist(ctx context.Context) ([]string, error)
	AddToWishlist(ctx context.Context, itemID string) error
	RemoveFromWishlist(ctx context.Context, itemID string) error
	InWishlist(ctx context.Context, itemID string) (bool, error)
}

// Archive stores placed bids and auction results
type Archive interface {
	InsertBid(ctx context.Context, event *models.BidEvent) (string, error)
	InsertResult(ctx context.Context, result *models.AuctionResult) (string, error)
	RecentBids(ctx context.Context, userID string, limit int) ([]models.BidEvent, error)
	Results(ctx context.Context, limit int) ([]models.AuctionResult, error)
}

// Notifier fans bid events out to other sessions
type Notifier interface {
	PublishBid(ctx context.Context, event models.BidEvent) error
}

// Config wires the engine. Session, Archive and Notifier are optional.
type Config struct {
	API        connection.API
	Feed       transport.Feed
	Fallback   transport.Feed
	Session    Session
	Archive    Archive
	Notifier   Notifier
	MaxRetries int
	RetryDelay time.Duration
	Now        func() time.Time
}

// CarView is one car of the live view with its countdown and cached price
type CarView struct {
	window.ActiveItem
	Display models.CarDisplay `json:"display"`
	Price   int64             `json:"price"`
}

// StatusView is the read-only connection state
type StatusView struct {
	Status    connection.Status `json:"status"`
	Connected bool              `json:"connected"`
	Error     string            `json:"error,omitempty"`
	Feed      string            `json:"feed,omitempty"`
	Cars      int               `json:"cars"`
}

// Engine owns every component and the goroutines driving them
type Engine struct {
	hub      *events.Hub
	conn     *connection.Manager
	tracker  *window.Tracker
	prices   *pricecache.Cache
	bids     *bidding.Controller
	session  Session
	archive  Archive
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// New builds an engine. Call Start to run its schedulers.
func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	hub := events.NewHub()

	opts := connection.Options{
		API:        cfg.API,
		Feed:       cfg.Feed,
		Fallback:   cfg.Fallback,
		Hub:        hub,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Now:        cfg.Now,
	}
	if cfg.Session != nil {
		opts.Tokens = cfg.Session
	}
	conn := connection.NewManager(opts)
	tracker := window.NewTracker(cfg.Now)
	prices := pricecache.New(conn)

	e := &Engine{
		hub:      hub,
		conn:     conn,
		tracker:  tracker,
		prices:   prices,
		session:  cfg.Session,
		archive:  cfg.Archive,
		notifier: cfg.Notifier,
		now:      cfg.Now,
		log:      slog.With("component", "engine"),
	}
	e.bids = bidding.NewController(bidding.Options{
		Prices: prices,
		Server: conn,
		Items:  tracker.Item,
		Active: tracker.ActiveIDs,
		Hub:    hub,
		Now:    cfg.Now,
	})
	return e
}

// Start launches the countdown and price schedulers and the event pump
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)

	subs := []*events.Subscription{
		e.hub.Subscribe(events.TopicCars, 16),
		e.hub.Subscribe(events.TopicPrice, 256),
		e.hub.Subscribe(events.TopicBidPlaced, 16),
		e.hub.Subscribe(events.TopicExpired, 64),
	}

	e.workers.Add(3)
	go func() {
		defer e.workers.Done()
		e.tracker.Run(ctx, e.onTick)
	}()
	go func() {
		defer e.workers.Done()
		e.prices.Run(ctx, e.tracker.ActiveIDs)
	}()
	go func() {
		defer e.workers.Done()
		e.pump(ctx, subs)
	}()
	e.log.Info("engine started")
}

// Stop disconnects and waits for the engine goroutines
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	e.DisconnectWebSocket()
	if cancel != nil {
		cancel()
		e.workers.Wait()
	}
	e.hub.Close()
	e.log.Info("engine stopped")
}

// pump applies hub events to the components that own the data
func (e *Engine) pump(ctx context.Context, subs []*events.Subscription) {
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()
	cars, prices, bids, expired := subs[0].C, subs[1].C, subs[2].C, subs[3].C

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cars:
			if !ok {
				return
			}
			items, _ := ev.Payload.([]models.AuctionItem)
			// a list queued before a disconnect must not repopulate the view
			if e.conn.Status() == connection.StatusDisconnected {
				continue
			}
			e.tracker.Observe(items)
			e.prices.Wake()
		case ev, ok := <-prices:
			if !ok {
				return
			}
			if up, ok := ev.Payload.(events.PriceUpdate); ok {
				e.prices.Apply(up.ItemID, up.Price)
			}
		case ev, ok := <-bids:
			if !ok {
				return
			}
			if bid, ok := ev.Payload.(models.BidEvent); ok {
				e.recordBid(ctx, bid)
			}
		case ev, ok := <-expired:
			if !ok {
				return
			}
			if res, ok := ev.Payload.(models.AuctionResult); ok {
				e.recordResult(ctx, res)
			}
		}
	}
}

func (e *Engine) onTick(snap window.Snapshot) {
	metrics.ActiveAuctions.Set(float64(len(snap.Active)))
	for _, item := range snap.Expired {
		metrics.ExpiredAuctions.Inc()
		price, _ := e.prices.Lookup(item.Keys()...)
		e.hub.Publish(events.TopicExpired, models.AuctionResult{
			ItemID:     item.ID.String(),
			Title:      item.Title(),
			FinalPrice: price.Price,
			EndedAt:    snap.At,
		})
	}
	e.hub.Publish(events.TopicActive, snap)
}

func (e *Engine) recordBid(ctx context.Context, bid models.BidEvent) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if e.archive != nil {
		if _, err := e.archive.InsertBid(ctx, &bid); err != nil {
			e.log.Warn("failed to archive bid", "event", bid.EventID, "error", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.PublishBid(ctx, bid); err != nil {
			e.log.Warn("failed to publish bid event", "event", bid.EventID, "error", err)
		}
	}
}

func (e *Engine) recordResult(ctx context.Context, res models.AuctionResult) {
	if e.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := e.archive.InsertResult(ctx, &res); err != nil {
		e.log.Warn("failed to archive auction result", "item", res.ItemID, "error", err)
	}
}

// ConnectWebSocket connects with token, or with the stored token when empty
func (e *Engine) ConnectWebSocket(ctx context.Context, token string) error {
	if token == "" && e.session != nil {
		creds, err := e.session.LoadCredentials(ctx)
		if err != nil && !errors.Is(err, session.ErrNotSignedIn) {
			e.log.Warn("failed to load stored credentials", "error", err)
		}
		token = creds.Token
	}
	return e.conn.Connect(ctx, token)
}

// DisconnectWebSocket tears the connection down and clears every cache
func (e *Engine) DisconnectWebSocket() {
	e.conn.Disconnect()
	e.bids.Close()
	e.prices.Clear()
	e.tracker.Reset()
	metrics.ActiveAuctions.Set(0)
}

// GetLiveCars refreshes the car list in the background
func (e *Engine) GetLiveCars(ctx context.Context) {
	e.conn.GetLiveCars(ctx)
}

// IsConnected reports whether the engine is connected
func (e *Engine) IsConnected() bool { return e.conn.IsConnected() }

// Status returns the read-only connection state
func (e *Engine) Status() StatusView {
	v := StatusView{
		Status:    e.conn.Status(),
		Connected: e.conn.IsConnected(),
		Feed:      e.conn.FeedName(),
		Cars:      len(e.tracker.ActiveIDs()),
	}
	if err := e.conn.LastError(); err != nil {
		v.Error = err.Error()
	}
	return v
}

// LiveCars returns the live view joined with cached prices
func (e *Engine) LiveCars() []CarView {
	active := e.tracker.Active()
	out := make([]CarView, 0, len(active))
	for _, ai := range active {
		price, _ := e.prices.Lookup(ai.Item.Keys()...)
		out = append(out, CarView{ActiveItem: ai, Display: ai.Item.Display(), Price: price.Price})
	}
	return out
}

// FetchLivePrice refreshes and returns one car's price. nil means the price
// could not be loaded and nothing was cached.
func (e *Engine) FetchLivePrice(ctx context.Context, itemID string) (*models.LivePrice, error) {
	err := e.prices.Refresh(ctx, itemID)
	keys := []string{itemID}
	if item, ok := e.tracker.Item(itemID); ok {
		keys = append(keys, item.Keys()...)
	}
	if price, ok := e.prices.Lookup(keys...); ok {
		return &price, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no price for %s", itemID)
}

// GetCountdown returns the HH:MM:SS countdown for a live car
func (e *Engine) GetCountdown(itemID string) (string, bool) {
	if cd, ok := e.tracker.Countdown(itemID); ok {
		return cd, true
	}
	if item, ok := e.tracker.Item(itemID); ok {
		return e.tracker.Countdown(item.ID.String())
	}
	return "", false
}

// GetTimer formats the time left until deadline as "Mm Ss"
func (e *Engine) GetTimer(deadline time.Time) string {
	return countdown.FormatMinutes(deadline.Sub(e.now()))
}

// OpenBidModal opens the bid dialog for a car
func (e *Engine) OpenBidModal(ctx context.Context, itemID string) (bidding.Draft, error) {
	return e.bids.Open(ctx, itemID)
}

// AdjustBid moves the candidate by one increment up or down
func (e *Engine) AdjustBid(up bool) (bidding.Draft, error) {
	delta := bidding.MinIncrement
	if !up {
		delta = -delta
	}
	return e.bids.Adjust(delta)
}

// SetBidText stores the user's typed amount
func (e *Engine) SetBidText(text string) (bidding.Draft, error) {
	return e.bids.SetText(text)
}

// PlaceBid submits the open draft. Empty credentials are taken from the
// session store.
func (e *Engine) PlaceBid(ctx context.Context, userID, token string) (models.BidResult, error) {
	if (userID == "" || token == "") && e.session != nil {
		if creds, err := e.session.LoadCredentials(ctx); err == nil {
			if userID == "" {
				userID = creds.UserID
			}
			if token == "" {
				token = creds.Token
			}
		}
	}
	if userID == "" && token != "" {
		userID = session.UserIDFromToken(token)
	}
	return e.bids.Submit(ctx, userID, token)
}

// RefreshBid re-fetches price and cars for the open dialog
func (e *Engine) RefreshBid(ctx context.Context) (bidding.Draft, error) {
	return e.bids.Refresh(ctx)
}

// CloseBidModal discards the draft
func (e *Engine) CloseBidModal() { e.bids.Close() }

// BidDraft returns the open draft, if any
func (e *Engine) BidDraft() (bidding.Draft, bool) { return e.bids.Draft() }

// SignIn stores credentials and connects
func (e *Engine) SignIn(ctx context.Context, token, userID string) error {
	if e.session != nil {
		if userID == "" {
			userID = session.UserIDFromToken(token)
		}
		if userID != "" {
			if err := e.session.SaveUserID(ctx, userID); err != nil {
				return err
			}
		}
		if err := e.session.SaveToken(ctx, token); err != nil {
			return err
		}
	}
	return e.ConnectWebSocket(ctx, token)
}

// SignOut disconnects and forgets the credentials
func (e *Engine) SignOut(ctx context.Context) error {
	e.DisconnectWebSocket()
	if e.session == nil {
		return nil
	}
	return e.session.SignOut(ctx)
}

// Wishlist returns the wishlisted car ids
func (e *Engine) Wishlist(ctx context.Context) ([]string, error) {
	if e.session == nil {
		return nil, nil
	}
	return e.session.Wishlist(ctx)
}

// IsWishlisted reports whether a car is on the wishlist
func (e *Engine) IsWishlisted(ctx context.Context, itemID string) (bool, error) {
	if e.session == nil {
		return false, nil
	}
	return e.session.InWishlist(ctx, itemID)
}

// SetWishlisted adds or removes a car from the wishlist
func (e *Engine) SetWishlisted(ctx context.Context, itemID string, on bool) error {
	if e.session == nil {
		return fmt.Errorf("wishlist requires a session store")
	}
	if on {
		return e.session.AddToWishlist(ctx, itemID)
	}
	return e.session.RemoveFromWishlist(ctx, itemID)
}

// RecentBids returns the user's archived bids
func (e *Engine) RecentBids(ctx context.Context, userID string, limit int) ([]models.BidEvent, error) {
	if e.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return e.archive.RecentBids(ctx, userID, limit)
}

// Results returns archived auction results
func (e *Engine) Results(ctx context.Context, limit int) ([]models.AuctionResult, error) {
	if e.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return e.archive.Results(ctx, limit)
}

// Hub exposes the event hub for subscribers
func (e *Engine) Hub() *events.Hub { return e.hub }
