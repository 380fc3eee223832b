package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	pubnubgo "github.com/pubnub/go/v7"
)

// PubNubConfig holds the keys of the PubNub channel carrying live updates
type PubNubConfig struct {
	SubscribeKey string
	UserID       string
	Channel      string // default "auction-live"
}

// PubNubFeed receives push envelopes from a PubNub channel
type PubNubFeed struct {
	cfg PubNubConfig
	log *slog.Logger

	mu       sync.Mutex
	pn       *pubnubgo.PubNub
	listener *pubnubgo.Listener
	stop     chan struct{}
	done     chan struct{}
}

// NewPubNubFeed creates a PubNub feed
func NewPubNubFeed(cfg PubNubConfig) *PubNubFeed {
	if cfg.Channel == "" {
		cfg.Channel = "auction-live"
	}
	return &PubNubFeed{
		cfg: cfg,
		log: slog.With("component", "feed", "feed", FeedPubNub),
	}
}

// Name implements Feed
func (f *PubNubFeed) Name() string { return FeedPubNub }

// Start implements Feed
func (f *PubNubFeed) Start(ctx context.Context, token string, sink Sink) error {
	if f.cfg.SubscribeKey == "" || f.cfg.UserID == "" {
		return fmt.Errorf("pubnub feed requires a subscribe key and a user id")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pn != nil {
		return ErrFeedRunning
	}

	cfg := pubnubgo.NewConfigWithUserId(pubnubgo.UserId(f.cfg.UserID))
	cfg.SubscribeKey = f.cfg.SubscribeKey
	if token != "" {
		cfg.AuthKey = token
	}

	pn := pubnubgo.NewPubNub(cfg)
	listener := pubnubgo.NewListener()
	pn.AddListener(listener)

	f.pn = pn
	f.listener = listener
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.listen(listener, sink, f.stop, f.done)

	pn.Subscribe().Channels([]string{f.cfg.Channel}).Execute()
	f.log.Info("subscribed", "channel", f.cfg.Channel)
	return nil
}

func (f *PubNubFeed) listen(listener *pubnubgo.Listener, sink Sink, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case status := <-listener.Status:
			if status != nil && status.Error {
				f.log.Warn("pubnub status error", "category", status.Category, "error", status.ErrorData)
			}
		case msg := <-listener.Message:
			if msg != nil {
				f.handleMessage(msg.Message, sink)
			}
		case <-listener.Presence:
		case <-listener.Signal:
		}
	}
}

func (f *PubNubFeed) handleMessage(payload interface{}, sink Sink) {
	data, err := messageBytes(payload)
	if err != nil {
		f.log.Warn("unreadable pubnub message", "error", err)
		return
	}
	push, err := DecodePush(data)
	if err != nil {
		f.log.Warn("ignoring pubnub message", "error", err)
		return
	}
	dispatch(sink, push)
}

// messageBytes normalizes a PubNub payload, which arrives either as a JSON
// string or as already-decoded JSON values.
func messageBytes(m interface{}) ([]byte, error) {
	if s, ok := m.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(m)
}

// Stop implements Feed
func (f *PubNubFeed) Stop() error {
	f.mu.Lock()
	pn, listener, stop, done := f.pn, f.listener, f.stop, f.done
	f.pn, f.listener, f.stop, f.done = nil, nil, nil, nil
	f.mu.Unlock()

	if pn == nil {
		return nil
	}
	pn.UnsubscribeAll()
	close(stop)
	<-done
	pn.RemoveListener(listener)
	pn.Destroy()
	return nil
}
