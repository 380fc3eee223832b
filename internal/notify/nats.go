// Package notify fans "bid placed" events out over NATS so other sessions of
// the same user, and the bid history archive, hear about them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subjects. Live: "bid_events.{itemID}". Durable: "bid.events.{itemID}".
const (
	LivePrefix    = "bid_events."
	DurablePrefix = "bid.events."
	StreamName    = "LIVESYNC_BIDS"
)

// conn is the slice of *nats.Conn the publisher needs
type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher publishes bid events
type Publisher struct {
	nc   *nats.Conn
	conn conn
	js   jetstream.JetStream // nil unless durable history is enabled
	log  *slog.Logger
}

// NewPublisher connects to NATS. With durable set, a JetStream stream keeps
// a 30 day history of bid events.
func NewPublisher(url string, durable bool) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("livesync-notify"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := &Publisher{nc: nc, conn: nc, log: slog.With("component", "notify")}
	if !durable {
		return p, nil
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Bids placed from livesync clients",
		Subjects:    []string{DurablePrefix + "*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	p.js = js
	p.log.Info("stream ready", "stream", StreamName)
	return p, nil
}

// PublishBid sends event to the live subject and, when enabled, to the
// durable stream
func (p *Publisher) PublishBid(ctx context.Context, event models.BidEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := LiveSubject(event.ItemID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish bid event: %w", err)
	}

	if p.js != nil {
		ack, err := p.js.Publish(ctx, DurablePrefix+subjectToken(event.ItemID), data)
		if err != nil {
			return fmt.Errorf("failed to publish to JetStream: %w", err)
		}
		p.log.Debug("bid event stored", "seq", ack.Sequence)
	}

	p.log.Info("published bid event", "subject", subject, "event", event.EventID)
	return nil
}

// SubscribeBids delivers bid events published by any session until ctx ends
func (p *Publisher) SubscribeBids(ctx context.Context, handle func(models.BidEvent)) error {
	if p.nc == nil {
		return fmt.Errorf("subscribe requires a NATS connection")
	}
	sub, err := p.nc.Subscribe(LivePrefix+"*", func(msg *nats.Msg) {
		event, err := DecodeBid(msg.Data)
		if err != nil {
			p.log.Warn("failed to unmarshal event", "subject", msg.Subject, "error", err)
			return
		}
		handle(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	return nil
}

// Close drains and closes the connection
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// LiveSubject returns the live subject for an item
func LiveSubject(itemID string) string {
	return LivePrefix + subjectToken(itemID)
}

// DecodeBid parses a published bid event
func DecodeBid(data []byte) (models.BidEvent, error) {
	var event models.BidEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return models.BidEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.EventID == "" || event.ItemID == "" {
		return models.BidEvent{}, fmt.Errorf("bid event missing event_id or item_id")
	}
	return event, nil
}

// subjectToken keeps an id from adding tokens or wildcards to a subject
func subjectToken(id string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
}
