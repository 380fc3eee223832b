package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis Pub/Sub channels carrying live updates.
// Cars:   "auction_cars"
// Prices: "auction_price:{carID}"
const (
	redisCarsChannel  = "auction_cars"
	redisPricePrefix  = "auction_price:"
	redisPricePattern = redisPricePrefix + "*"
)

// RedisFeed receives pushed updates over Redis Pub/Sub
type RedisFeed struct {
	opts *redis.Options
	log  *slog.Logger

	mu     sync.Mutex
	client *redis.Client
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisFeed creates a Redis Pub/Sub feed
func NewRedisFeed(addr, password string, db int) *RedisFeed {
	return &RedisFeed{
		opts: &redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		},
		log: slog.With("component", "feed", "feed", FeedRedis),
	}
}

// Name implements Feed
func (f *RedisFeed) Name() string { return FeedRedis }

// Start implements Feed
func (f *RedisFeed) Start(ctx context.Context, token string, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return ErrFeedRunning
	}

	rdb := redis.NewClient(f.opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	pubsub := rdb.Subscribe(ctx, redisCarsChannel)
	if err := pubsub.PSubscribe(ctx, redisPricePattern); err != nil {
		pubsub.Close()
		rdb.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", redisPricePattern, err)
	}

	f.client = rdb
	f.pubsub = pubsub
	f.done = make(chan struct{})
	go f.listen(pubsub.Channel(), sink, f.done)

	f.log.Info("subscribed", "channel", redisCarsChannel, "pattern", redisPricePattern)
	return nil
}

// listen runs until the pubsub channel is closed by Stop
func (f *RedisFeed) listen(ch <-chan *redis.Message, sink Sink, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		f.handle(msg, sink)
	}
}

func (f *RedisFeed) handle(msg *redis.Message, sink Sink) {
	if msg.Channel == redisCarsChannel {
		items, err := DecodeCars([]byte(msg.Payload))
		if err != nil {
			f.log.Warn("failed to parse cars message", "error", err)
			return
		}
		sink.OnCars(items)
		return
	}

	itemID := extractItemIDFromChannel(msg.Channel)
	if itemID == "" {
		return
	}
	obj, err := DecodePrice([]byte(msg.Payload))
	if err != nil {
		f.log.Warn("failed to parse price message", "channel", msg.Channel, "error", err)
		return
	}
	sink.OnPrice(itemID, obj.ToLivePrice(time.Now()))
}

// extractItemIDFromChannel extracts the car id from a price channel name
// Example: "auction_price:101" -> "101"
func extractItemIDFromChannel(channel string) string {
	if len(channel) > len(redisPricePrefix) && channel[:len(redisPricePrefix)] == redisPricePrefix {
		return channel[len(redisPricePrefix):]
	}
	return ""
}

// Stop implements Feed
func (f *RedisFeed) Stop() error {
	f.mu.Lock()
	client, pubsub, done := f.client, f.pubsub, f.done
	f.client, f.pubsub, f.done = nil, nil, nil
	f.mu.Unlock()

	if client == nil {
		return nil
	}
	pubsub.Close()
	<-done
	return client.Close()
}
