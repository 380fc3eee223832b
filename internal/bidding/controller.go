// Package bidding owns the single bid dialog: it snapshots the live price
// when the dialog opens, validates the candidate amount against it and
// serializes submission to the server.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/events"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/metrics"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/transport"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
	"github.com/google/uuid"
)

// State of the bid dialog
type State string

// closed -> opening -> open -> submitting -> {closed | open}
const (
	StateClosed     State = "closed"
	StateOpening    State = "opening"
	StateOpen       State = "open"
	StateSubmitting State = "submitting"
)

// MinIncrement is the only step Adjust accepts
const MinIncrement = models.MinBidIncrement

// GenericFailure is shown when a submission fails without a server message
const GenericFailure = "Could not place bid due to a network or server error. Please try again."

var (
	ErrAuthRequired     = errors.New("authentication required")
	ErrInvalidBid       = errors.New("invalid bid")
	ErrNoDialog         = errors.New("no bid dialog is open")
	ErrPriceUnavailable = errors.New("could not load current price, try again")
	ErrSubmitInFlight   = errors.New("a bid is already being submitted")
	ErrBadIncrement     = fmt.Errorf("bid can only change in steps of %d", MinIncrement)
)

// Prices is the live price cache as seen by the controller
type Prices interface {
	Refresh(ctx context.Context, itemID string) error
	RefreshAll(ctx context.Context, ids []string)
	Lookup(keys ...string) (models.LivePrice, bool)
}

// Server submits bids and refreshes the car list
type Server interface {
	SubmitBid(ctx context.Context, token string, req models.BidRequest) (models.BidResult, error)
	GetLiveCars(ctx context.Context)
}

// Options wires a Controller to the rest of the engine
type Options struct {
	Prices Prices
	Server Server
	// Items resolves a car by any of its ids; optional
	Items func(id string) (models.AuctionItem, bool)
	// Active lists the ids refreshed after a successful bid; optional
	Active func() []string
	Hub    *events.Hub
	Now    func() time.Time
}

// Draft is the state of the open dialog
type Draft struct {
	ItemID   string `json:"itemId"`
	BidCarID string `json:"bidCarId"`
	Title    string `json:"title,omitempty"`
	// OpenPrice is the price snapshotted when the dialog opened; every
	// submitted amount must be strictly greater
	OpenPrice int64 `json:"openPrice"`
	Candidate int64 `json:"candidate"`
	// Text is what the user typed, parsed only on submit
	Text     string `json:"text"`
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
	State    State  `json:"state"`
}

// Controller is the bid dialog state machine. One draft at a time; opening
// another item discards the current one.
type Controller struct {
	prices Prices
	server Server
	items  func(string) (models.AuctionItem, bool)
	active func() []string
	hub    *events.Hub
	now    func() time.Time
	log    *slog.Logger

	mu    sync.Mutex
	state State
	draft *Draft
	// bumped on Open and Close; async results for an older dialog are dropped
	gen uint64
}

// NewController creates a closed controller
func NewController(opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Items == nil {
		opts.Items = func(string) (models.AuctionItem, bool) { return models.AuctionItem{}, false }
	}
	if opts.Active == nil {
		opts.Active = func() []string { return nil }
	}
	return &Controller{
		prices: opts.Prices,
		server: opts.Server,
		items:  opts.Items,
		active: opts.Active,
		hub:    opts.Hub,
		now:    opts.Now,
		log:    slog.With("component", "bidding"),
		state:  StateClosed,
	}
}

// Open fetches a fresh price for itemID and opens the dialog with the
// candidate seeded one increment above it. When the fetch fails the last
// cached price is used; with nothing cached ErrPriceUnavailable is returned
// and the dialog stays closed.
func (c *Controller) Open(ctx context.Context, itemID string) (Draft, error) {
	item, found := c.items(itemID)
	keys := []string{itemID}
	bidCarID := itemID
	if found {
		keys = append(keys, item.Keys()...)
		bidCarID = item.BidTarget()
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = StateOpening
	c.draft = &Draft{ItemID: itemID, BidCarID: bidCarID, State: StateOpening}
	if found {
		c.draft.Title = item.Title()
	}
	c.mu.Unlock()

	refreshErr := c.prices.Refresh(ctx, itemID)
	price, ok := c.prices.Lookup(keys...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return Draft{}, ErrNoDialog
	}
	if !ok {
		c.state = StateClosed
		c.draft = nil
		if refreshErr != nil {
			return Draft{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, refreshErr)
		}
		return Draft{}, ErrPriceUnavailable
	}
	if refreshErr != nil {
		c.log.Warn("opening bid dialog with cached price", "item", itemID, "price", price.Price, "error", refreshErr)
		c.draft.Degraded = true
	}

	c.state = StateOpen
	c.draft.OpenPrice = price.Price
	c.setCandidateLocked(price.Price + MinIncrement)
	return c.snapshotLocked(), nil
}

// Adjust moves the candidate by +MinIncrement or -MinIncrement. A decrease
// that would not stay above the open-time price is ignored.
func (c *Controller) Adjust(delta int64) (Draft, error) {
	if delta != MinIncrement && delta != -MinIncrement {
		return Draft{}, ErrBadIncrement
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return Draft{}, c.notOpenLocked()
	}

	base := c.draft.Candidate
	if n, err := parseAmount(c.draft.Text); err == nil {
		base = n
	}
	next := base + delta
	if delta < 0 && next <= c.draft.OpenPrice {
		return c.snapshotLocked(), nil
	}
	c.setCandidateLocked(next)
	return c.snapshotLocked(), nil
}

// SetText stores the user's raw input verbatim
func (c *Controller) SetText(raw string) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return Draft{}, c.notOpenLocked()
	}
	c.draft.Text = raw
	if n, err := parseAmount(raw); err == nil {
		c.draft.Candidate = n
	}
	return c.snapshotLocked(), nil
}

// Submit validates the candidate and sends it. Validation failures never
// reach the server. On success the dialog closes, prices and cars are
// refreshed and a bid.placed event is published; on failure the dialog
// returns to open with the reason in Draft.Error.
func (c *Controller) Submit(ctx context.Context, userID, token string) (models.BidResult, error) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return models.BidResult{}, ErrSubmitInFlight
	}
	if c.state != StateOpen {
		err := c.notOpenLocked()
		c.mu.Unlock()
		return models.BidResult{}, err
	}
	if userID == "" || token == "" {
		c.draft.Error = ErrAuthRequired.Error()
		c.mu.Unlock()
		metrics.Bids.WithLabelValues("invalid").Inc()
		return models.BidResult{}, ErrAuthRequired
	}

	amount, err := parseAmount(c.draft.Text)
	if err != nil || amount <= c.draft.OpenPrice {
		msg := fmt.Sprintf("bid must be a number greater than %d", c.draft.OpenPrice)
		c.draft.Error = msg
		c.mu.Unlock()
		metrics.Bids.WithLabelValues("invalid").Inc()
		return models.BidResult{}, fmt.Errorf("%w: %s", ErrInvalidBid, msg)
	}

	c.state = StateSubmitting
	c.draft.State = StateSubmitting
	c.draft.Error = ""
	gen := c.gen
	now := c.now()
	draft := *c.draft
	c.mu.Unlock()

	req := models.BidRequest{
		UserID:   userID,
		BidCarID: draft.BidCarID,
		DateTime: now.Local().Format(models.BidDateTimeLayout),
		Amount:   amount,
	}
	result, err := c.server.SubmitBid(ctx, token, req)
	if err == nil && !result.Success {
		err = &transport.RejectedError{Message: result.Message}
	}

	if err != nil {
		c.failed(gen, draft.ItemID, err)
		return result, err
	}

	c.mu.Lock()
	if gen == c.gen {
		c.state = StateClosed
		c.draft = nil
	}
	c.mu.Unlock()

	metrics.Bids.WithLabelValues("placed").Inc()
	c.log.Info("bid placed", "item", draft.ItemID, "bid_car", draft.BidCarID, "amount", amount)

	c.prices.RefreshAll(ctx, c.active())
	c.server.GetLiveCars(ctx)
	if c.hub != nil {
		c.hub.Publish(events.TopicBidPlaced, models.BidEvent{
			EventID:       uuid.New().String(),
			ItemID:        draft.ItemID,
			BidCarID:      draft.BidCarID,
			UserID:        userID,
			Amount:        amount,
			PreviousPrice: draft.OpenPrice,
			Timestamp:     now,
		})
	}
	return result, nil
}

func (c *Controller) failed(gen uint64, itemID string, err error) {
	msg := GenericFailure
	var rejected *transport.RejectedError
	if errors.As(err, &rejected) {
		metrics.Bids.WithLabelValues("rejected").Inc()
		if rejected.Message != "" {
			msg = rejected.Message
		}
	} else {
		metrics.Bids.WithLabelValues("network").Inc()
	}
	c.log.Warn("bid failed", "item", itemID, "error", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.state = StateOpen
	c.draft.State = StateOpen
	c.draft.Error = msg
}

// Refresh re-fetches the price and the car list for the open dialog and
// re-snapshots the open-time price, lifting the candidate when it no longer
// clears it. This is the recovery path after a rejected bid.
func (c *Controller) Refresh(ctx context.Context) (Draft, error) {
	c.mu.Lock()
	if c.state != StateOpen {
		err := c.notOpenLocked()
		c.mu.Unlock()
		return Draft{}, err
	}
	gen, itemID := c.gen, c.draft.ItemID
	c.mu.Unlock()

	keys := []string{itemID}
	if item, ok := c.items(itemID); ok {
		keys = append(keys, item.Keys()...)
	}
	refreshErr := c.prices.Refresh(ctx, itemID)
	c.server.GetLiveCars(ctx)
	price, ok := c.prices.Lookup(keys...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateOpen {
		return Draft{}, ErrNoDialog
	}
	if refreshErr != nil {
		c.draft.Error = ErrPriceUnavailable.Error()
		return c.snapshotLocked(), fmt.Errorf("%w: %v", ErrPriceUnavailable, refreshErr)
	}
	if ok {
		c.draft.OpenPrice = price.Price
	}
	c.draft.Degraded = false
	c.draft.Error = ""
	candidate := c.draft.Candidate
	if n, err := parseAmount(c.draft.Text); err == nil {
		candidate = n
	}
	if candidate <= c.draft.OpenPrice {
		c.setCandidateLocked(c.draft.OpenPrice + MinIncrement)
	}
	return c.snapshotLocked(), nil
}

// Close discards the draft. A submission in flight still completes but no
// longer touches the dialog.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateClosed
	c.draft = nil
}

// Draft returns the open draft, if any
func (c *Controller) Draft() (Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return Draft{}, false
	}
	return c.snapshotLocked(), true
}

// State returns the dialog state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setCandidateLocked(amount int64) {
	c.draft.Candidate = amount
	c.draft.Text = strconv.FormatInt(amount, 10)
}

func (c *Controller) snapshotLocked() Draft {
	d := *c.draft
	d.State = c.state
	return d
}

func (c *Controller) notOpenLocked() error {
	if c.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	return ErrNoDialog
}

// parseAmount accepts digits with optional grouping commas or spaces
func parseAmount(raw string) (int64, error) {
	s := strings.NewReplacer(",", "", " ", "", "_", "").Replace(strings.TrimSpace(raw))
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(s, 10, 64)
}
