package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

// CarLister is the part of the API the polling feed needs
type CarLister interface {
	ListCars(ctx context.Context, token string) ([]models.AuctionItem, error)
}

// PollingFeed re-fetches the car list over HTTP on a fixed interval. It is
// the default path when no push channel is configured.
type PollingFeed struct {
	api      CarLister
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPollingFeed creates a polling feed
func NewPollingFeed(api CarLister, interval time.Duration) *PollingFeed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollingFeed{
		api:      api,
		interval: interval,
		log:      slog.With("component", "feed", "feed", FeedPolling),
	}
}

// Name implements Feed
func (f *PollingFeed) Name() string { return FeedPolling }

// Start implements Feed. The first poll happens after one interval; the
// connection manager performs the initial fetch itself.
func (f *PollingFeed) Start(ctx context.Context, token string, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return ErrFeedRunning
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})

	go f.loop(pollCtx, token, sink, f.done)
	return nil
}

func (f *PollingFeed) loop(ctx context.Context, token string, sink Sink, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reqCtx, cancel := context.WithTimeout(ctx, f.interval)
			items, err := f.api.ListCars(reqCtx, token)
			cancel()
			if err != nil {
				// keep the previous list; the next tick retries
				f.log.Warn("poll failed", "error", err)
				continue
			}
			sink.OnCars(items)
		}
	}
}

// Stop implements Feed
func (f *PollingFeed) Stop() error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
