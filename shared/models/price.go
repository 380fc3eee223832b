package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// LivePrice is the last known live bid state of one car
type LivePrice struct {
	Price         int64     `json:"price"`
	RemainingTime string    `json:"remainingTime,omitempty"`
	StartTime     string    `json:"startTime,omitempty"`
	EndTime       string    `json:"endTime,omitempty"`
	FetchedAt     time.Time `json:"fetchedAt"`
}

// PriceObject is the inner object of the price endpoint response
type PriceObject struct {
	Price         FlexInt    `json:"price"`
	RemainingTime FlexString `json:"remainingTime,omitempty"`
	StartTime     FlexString `json:"startTime,omitempty"`
	EndTime       FlexString `json:"endTime,omitempty"`
}

// PriceEnvelope is the price endpoint response: { "object": {...} }
type PriceEnvelope struct {
	Object *PriceObject `json:"object"`
}

// ToLivePrice converts the wire object, clamping negative prices to zero
func (p PriceObject) ToLivePrice(fetchedAt time.Time) LivePrice {
	price := int64(p.Price)
	if price < 0 {
		price = 0
	}
	return LivePrice{
		Price:         price,
		RemainingTime: string(p.RemainingTime),
		StartTime:     string(p.StartTime),
		EndTime:       string(p.EndTime),
		FetchedAt:     fetchedAt,
	}
}

// PushMessage is the envelope used by push transports that multiplex cars
// and prices over one channel.
type PushMessage struct {
	Type   string        `json:"type"` // "cars", "price"
	ItemID string        `json:"itemId,omitempty"`
	Cars   []AuctionItem `json:"cars,omitempty"`
	Price  *PriceObject  `json:"price,omitempty"`
}

// PushMessage types
const (
	PushTypeCars  = "cars"
	PushTypePrice = "price"
)

// FlexInt accepts JSON numbers or numeric strings
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = FlexInt(math.Floor(v))
	return nil
}

// FlexString accepts JSON strings and renders numbers as their text
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}
