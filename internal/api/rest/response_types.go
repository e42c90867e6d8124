package rest

import (
	"time"

	"github.com/smri29/BidPulse/internal/domain/auction"
)

// auctionDetailResponse decorates an auction with the caller's capabilities
// when the request carried an identity.
type auctionDetailResponse struct {
	*auction.Auction
	Capabilities *auction.Capabilities `json:"capabilities,omitempty"`
}

type auctionListResponse struct {
	Auctions []*auction.Auction `json:"auctions"`
}

type bidListResponse struct {
	AuctionID string        `json:"auctionId"`
	Bids      []auction.Bid `json:"bids"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type messageResponse struct {
	Message string `json:"message"`
}
