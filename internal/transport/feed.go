package transport

import (
	"context"
	"errors"

	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

// ErrFeedRunning is returned by Start on a feed that was not stopped
var ErrFeedRunning = errors.New("feed already running")

// ErrFeedClosed is reported through Sink.OnClosed when the remote end drops
// a push channel
var ErrFeedClosed = errors.New("feed closed by server")

// Sink receives live updates from a Feed. Calls may come from any goroutine.
type Sink interface {
	OnCars(items []models.AuctionItem)
	OnPrice(itemID string, price models.LivePrice)
	// OnClosed reports that the feed stopped delivering on its own. It is
	// not called after Stop.
	OnClosed(err error)
}

// Feed is a source of live car lists and price updates. Implementations are
// interchangeable: the engine does not care whether updates are pushed or
// polled. A stopped feed can be started again.
type Feed interface {
	Name() string
	// Start connects and begins delivering to sink. It returns once the
	// feed is established; delivery continues in the background.
	Start(ctx context.Context, token string, sink Sink) error
	Stop() error
}

// Feed names accepted by NewFeed-style configuration
const (
	FeedPolling   = "polling"
	FeedNATS      = "nats"
	FeedRedis     = "redis"
	FeedWebSocket = "websocket"
	FeedPubNub    = "pubnub"
)
