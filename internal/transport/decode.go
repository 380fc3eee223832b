package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

// DecodeCars accepts a JSON array of cars or an {"object": [...]} wrapper.
// Individual records that do not decode are dropped.
func DecodeCars(data []byte) ([]models.AuctionItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Object json.RawMessage `json:"object"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil || len(wrapped.Object) == 0 {
			return nil, fmt.Errorf("%w: car list is neither an array nor an object wrapper", ErrMalformed)
		}
		data = bytes.TrimSpace(wrapped.Object)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	items := make([]models.AuctionItem, 0, len(raw))
	for _, r := range raw {
		var item models.AuctionItem
		if err := json.Unmarshal(r, &item); err != nil {
			slog.Warn("skipping undecodable car record", "component", "transport", "error", err)
			continue
		}
		if item.ID == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// DecodePrice accepts {"object": {...}} or a bare price object
func DecodePrice(data []byte) (models.PriceObject, error) {
	var env models.PriceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.PriceObject{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Object != nil {
		return *env.Object, nil
	}

	var bare struct {
		models.PriceObject
		Price *models.FlexInt `json:"price"`
	}
	if err := json.Unmarshal(data, &bare); err != nil || bare.Price == nil {
		return models.PriceObject{}, fmt.Errorf("%w: price object missing", ErrMalformed)
	}
	obj := bare.PriceObject
	obj.Price = *bare.Price
	return obj, nil
}

// DecodePush decodes a multiplexed push envelope
func DecodePush(data []byte) (models.PushMessage, error) {
	var msg models.PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch msg.Type {
	case models.PushTypeCars, models.PushTypePrice:
		return msg, nil
	default:
		return msg, fmt.Errorf("%w: unknown push type %q", ErrMalformed, msg.Type)
	}
}

// dispatch hands a push envelope to the sink
func dispatch(sink Sink, msg models.PushMessage) {
	switch msg.Type {
	case models.PushTypeCars:
		sink.OnCars(msg.Cars)
	case models.PushTypePrice:
		if msg.ItemID == "" || msg.Price == nil {
			return
		}
		sink.OnPrice(msg.ItemID, msg.Price.ToLivePrice(time.Now()))
	}
}
