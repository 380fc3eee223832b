package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects carrying live updates.
// Cars:   "auction.cars"          payload: array of cars
// Prices: "auction.price.{carID}" payload: price object
const (
	natsCarsSubject   = "auction.cars"
	natsPricePrefix   = "auction.price."
	natsPriceWildcard = natsPricePrefix + "*"
)

// NATSFeed receives pushed updates over NATS
type NATSFeed struct {
	url string
	log *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewNATSFeed creates a NATS feed
func NewNATSFeed(url string) *NATSFeed {
	return &NATSFeed{
		url: url,
		log: slog.With("component", "feed", "feed", FeedNATS),
	}
}

// Name implements Feed
func (f *NATSFeed) Name() string { return FeedNATS }

// Start implements Feed
func (f *NATSFeed) Start(ctx context.Context, token string, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		return ErrFeedRunning
	}

	opts := []nats.Option{
		nats.Name("livesync"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				f.log.Warn("disconnected from NATS", "error", err)
			}
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	conn, err := nats.Connect(f.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	carsSub, err := conn.Subscribe(natsCarsSubject, func(msg *nats.Msg) {
		f.handleCars(msg.Data, sink)
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", natsCarsSubject, err)
	}

	// Using wildcard "*" to match all cars: auction.price.101, auction.price.102, ...
	priceSub, err := conn.Subscribe(natsPriceWildcard, func(msg *nats.Msg) {
		f.handlePrice(msg.Subject, msg.Data, sink)
	})
	if err != nil {
		carsSub.Unsubscribe()
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", natsPriceWildcard, err)
	}

	f.conn = conn
	f.subs = []*nats.Subscription{carsSub, priceSub}
	f.log.Info("subscribed", "subjects", []string{natsCarsSubject, natsPriceWildcard})
	return nil
}

func (f *NATSFeed) handleCars(data []byte, sink Sink) {
	items, err := DecodeCars(data)
	if err != nil {
		f.log.Warn("failed to decode cars message", "error", err)
		return
	}
	sink.OnCars(items)
}

func (f *NATSFeed) handlePrice(subject string, data []byte, sink Sink) {
	itemID := extractItemIDFromSubject(subject)
	if itemID == "" {
		f.log.Warn("price message without car id", "subject", subject)
		return
	}
	obj, err := DecodePrice(data)
	if err != nil {
		f.log.Warn("failed to decode price message", "subject", subject, "error", err)
		return
	}
	sink.OnPrice(itemID, obj.ToLivePrice(time.Now()))
}

// extractItemIDFromSubject extracts the car id from a price subject
// Example: "auction.price.101" -> "101"
func extractItemIDFromSubject(subject string) string {
	id, ok := strings.CutPrefix(subject, natsPricePrefix)
	if !ok || strings.Contains(id, ".") {
		return ""
	}
	return id
}

// Stop implements Feed
func (f *NATSFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	for _, sub := range f.subs {
		sub.Unsubscribe()
	}
	f.conn.Close()
	f.conn, f.subs = nil, nil
	return nil
}
