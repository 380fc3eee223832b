package models

import "time"

// MinBidIncrement is the step used to seed and adjust bid candidates
const MinBidIncrement int64 = 2000

// BidDateTimeLayout is the local wall-clock format the bid endpoint expects
const BidDateTimeLayout = "2006-01-02T15:04:05"

// BidRequest is the body sent to the bid submission endpoint
type BidRequest struct {
	UserID   string `json:"userId"`
	BidCarID string `json:"bidCarId"`
	DateTime string `json:"dateTime"`
	Amount   int64  `json:"amount"`
}

// BidResult is the server's answer to a bid submission
type BidResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// BidEvent is emitted locally once the server accepts a bid.
// It is fanned out to:
// 1. the in-process event hub (UI refresh)
// 2. NATS (other devices / services of the same user)
// 3. the local bid history archive
type BidEvent struct {
	EventID       string    `json:"event_id"`
	ItemID        string    `json:"item_id"`
	BidCarID      string    `json:"bid_car_id"`
	UserID        string    `json:"user_id"`
	Amount        int64     `json:"amount"`
	PreviousPrice int64     `json:"previous_price"`
	Timestamp     time.Time `json:"timestamp"`
}

// AuctionResult is the last known state of a car whose window elapsed
type AuctionResult struct {
	ItemID     string    `json:"item_id"`
	Title      string    `json:"title"`
	FinalPrice int64     `json:"final_price"`
	EndedAt    time.Time `json:"ended_at"`
}
