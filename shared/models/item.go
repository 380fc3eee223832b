package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultAuctionDuration is used when a car carries no usable end time
const DefaultAuctionDuration = 30 * time.Minute

// Placeholder shown for descriptive attributes the feed left out
const Placeholder = "N/A"

// AuctionItem represents a car under auction as delivered by the live feed.
// Time fields are kept raw; the window tracker decides which one wins.
type AuctionItem struct {
	ID           FlexID `json:"id"`
	BeadingCarID FlexID `json:"beadingCarId,omitempty"`
	BidCarID     FlexID `json:"bidCarId,omitempty"`

	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Variant      string `json:"variant,omitempty"`
	KmsDriven    string `json:"kmsDriven,omitempty"`
	FuelType     string `json:"fuelType,omitempty"`
	City         string `json:"city,omitempty"`
	Registration string `json:"registration,omitempty"`
	IsScrap      bool   `json:"isScrap,omitempty"`

	AuctionStartTime Timestamp `json:"auctionStartTime,omitempty"`
	AuctionEndTime   Timestamp `json:"auctionEndTime,omitempty"`
	StartTime        Timestamp `json:"startTime,omitempty"`
	EndTime          Timestamp `json:"endTime,omitempty"`
	CreatedAt        Timestamp `json:"createdAt,omitempty"`
}

// Keys returns the distinct non-empty identifiers of the car in lookup order:
// id, beadingCarId, bidCarId.
func (i AuctionItem) Keys() []string {
	keys := make([]string, 0, 3)
	for _, k := range []FlexID{i.ID, i.BeadingCarID, i.BidCarID} {
		s := k.String()
		if s == "" {
			continue
		}
		dup := false
		for _, existing := range keys {
			if existing == s {
				dup = true
				break
			}
		}
		if !dup {
			keys = append(keys, s)
		}
	}
	return keys
}

// BidTarget is the id bids are addressed to
func (i AuctionItem) BidTarget() string {
	if s := i.BidCarID.String(); s != "" {
		return s
	}
	return i.ID.String()
}

// Title joins make, model and variant for display
func (i AuctionItem) Title() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.Make, i.Model, i.Variant} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Placeholder
	}
	return strings.Join(parts, " ")
}

// DisplayOr returns v, or the presentation placeholder when v is blank
func DisplayOr(v string) string {
	if strings.TrimSpace(v) == "" {
		return Placeholder
	}
	return v
}

// CarDisplay holds the presentation strings of a car. Blank attributes show
// the placeholder.
type CarDisplay struct {
	Title        string `json:"title"`
	KmsDriven    string `json:"kmsDriven"`
	FuelType     string `json:"fuelType"`
	City         string `json:"city"`
	Registration string `json:"registration"`
}

// Display returns the car's attributes ready for the live view
func (i AuctionItem) Display() CarDisplay {
	return CarDisplay{
		Title:        i.Title(),
		KmsDriven:    DisplayOr(i.KmsDriven),
		FuelType:     DisplayOr(i.FuelType),
		City:         DisplayOr(i.City),
		Registration: DisplayOr(i.Registration),
	}
}

// AuctionWindow is the client-side auction time window for one car, in epoch
// milliseconds.
type AuctionWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Remaining returns End - now, never negative
func (w AuctionWindow) Remaining(now time.Time) time.Duration {
	left := w.End - now.UnixMilli()
	if left <= 0 {
		return 0
	}
	return time.Duration(left) * time.Millisecond
}

// FlexID accepts both JSON strings and numbers and normalizes them to a string
type FlexID string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexID) UnmarshalJSON(b []byte) error {
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
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// Timestamp is an optional point in time decoded leniently from the feed.
// Epoch milliseconds (number or numeric string) and ISO-like strings are
// accepted; anything else decodes as absent rather than failing the record.
type Timestamp struct {
	ms    int64
	valid bool
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TimestampFromMillis builds a present Timestamp
func TimestampFromMillis(ms int64) Timestamp {
	return Timestamp{ms: ms, valid: true}
}

// TimestampFromTime builds a present Timestamp
func TimestampFromTime(t time.Time) Timestamp {
	return TimestampFromMillis(t.UnixMilli())
}

// Millis returns the epoch milliseconds and whether the value is present
func (t Timestamp) Millis() (int64, bool) {
	return t.ms, t.valid
}

// IsZero reports whether the timestamp is absent
func (t Timestamp) IsZero() bool { return !t.valid }

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = Timestamp{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*t = ParseTimestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return nil
	}
	*t = parseNumber(n.String())
	return nil
}

// MarshalJSON writes present timestamps as epoch milliseconds
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.ms, 10)), nil
}

// ParseTimestamp parses a feed time string. Zone-less layouts are read in
// local time.
func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	if ts := parseNumber(s); ts.valid {
		return ts
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return TimestampFromTime(parsed)
		}
	}
	return Timestamp{}
}

func parseNumber(s string) Timestamp {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return TimestampFromMillis(ms)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return TimestampFromMillis(int64(f))
	}
	return Timestamp{}
}
