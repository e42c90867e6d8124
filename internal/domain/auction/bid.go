package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/smri29/BidPulse/internal/domain/values"
)

// Bid is an immutable record of one competitive offer, embedded in its
// auction's history in insertion order. Amounts are strictly increasing.
type Bid struct {
	ID         uuid.UUID    `json:"id"`
	AuctionID  uuid.UUID    `json:"auctionId"`
	BidderID   uuid.UUID    `json:"bidder"`
	BidderName string       `json:"bidderName,omitempty"`
	Amount     values.Money `json:"amount"`
	PlacedAt   time.Time    `json:"time"`
}
