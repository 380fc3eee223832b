package events

import "github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"

// PriceUpdate is published on TopicPrice when a push feed delivers a price
type PriceUpdate struct {
	ItemID string
	Price  models.LivePrice
}

// StatusChange is published on TopicStatus on every connection transition
type StatusChange struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
