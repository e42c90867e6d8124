package auction

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smri29/BidPulse/internal/domain/errors"
	"github.com/smri29/BidPulse/internal/domain/values"
)

// Status is the lifecycle state of an auction. The string values are
// persisted and must not change.
type Status string

const (
	StatusActive           Status = "active"
	StatusCompleted        Status = "completed"
	StatusUnsold           Status = "unsold"
	StatusPaidHeldInEscrow Status = "paid_held_in_escrow"
	StatusClosed           Status = "closed"
)

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusCompleted, StatusUnsold, StatusPaidHeldInEscrow, StatusClosed:
		return Status(s), nil
	}
	return "", errors.NewValidationError("INVALID_STATUS", "unknown auction status: "+s)
}

// Category classifies the listed item.
type Category string

const (
	CategoryElectronics  Category = "electronics"
	CategoryFashion      Category = "fashion"
	CategoryCollectibles Category = "collectibles"
	CategoryArt          Category = "art"
	CategoryVehicles     Category = "vehicles"
	CategoryOther        Category = "other"
)

// ParseCategory converts user input into a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(s)) {
	case CategoryElectronics, CategoryFashion, CategoryCollectibles, CategoryArt, CategoryVehicles, CategoryOther:
		return Category(strings.ToLower(s)), nil
	}
	return "", errors.NewValidationError("INVALID_CATEGORY", "unknown category: "+s)
}

// ShippingDetails is populated once the winner proceeds to checkout.
type ShippingDetails struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// Auction is one listed item and its competitive sale process. All mutation
// happens through the methods below, inside the record store's atomic
// ApplyUpdate, so two bidders racing on the same auction can never both win
// the write.
type Auction struct {
	ID            uuid.UUID        `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Category      Category         `json:"category"`
	StartingPrice values.Money     `json:"startingPrice"`
	CurrentPrice  values.Money     `json:"currentPrice"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       time.Time        `json:"endTime"`
	Images        []string         `json:"images"`
	SellerID      uuid.UUID        `json:"seller"`
	WinnerID      *uuid.UUID       `json:"winner,omitempty"`
	Bids          []Bid            `json:"bids"`
	Status        Status           `json:"status"`
	Shipping      *ShippingDetails `json:"shippingDetails,omitempty"`

	// Version is the optimistic-concurrency counter; bumped on every
	// persisted update.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAuctionParams carries validated creation input.
type NewAuctionParams struct {
	Title         string
	Description   string
	Category      Category
	StartingPrice values.Money
	EndTime       time.Time
	Images        []string
	SellerID      uuid.UUID
}

// New creates an auction in the active state with the current price seeded
// from the starting price.
func New(p NewAuctionParams, now time.Time) (*Auction, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, errors.NewValidationError("MISSING_TITLE", "title is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, errors.NewValidationError("MISSING_DESCRIPTION", "description is required")
	}
	if p.SellerID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SELLER", "seller is required")
	}
	if !p.StartingPrice.IsPositive() {
		return nil, errors.NewValidationError("INVALID_STARTING_PRICE", "starting price must be positive")
	}
	if !p.EndTime.After(now) {
		return nil, errors.NewValidationError("INVALID_END_TIME", "end time must be in the future")
	}
	if _, err := ParseCategory(string(p.Category)); err != nil {
		return nil, err
	}

	return &Auction{
		ID:            uuid.New(),
		Title:         p.Title,
		Description:   p.Description,
		Category:      p.Category,
		StartingPrice: p.StartingPrice,
		CurrentPrice:  p.StartingPrice,
		StartTime:     now,
		EndTime:       p.EndTime,
		Images:        p.Images,
		SellerID:      p.SellerID,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// HasBids reports whether any bid has been accepted.
func (a *Auction) HasBids() bool {
	return len(a.Bids) > 0
}

// HighestBid returns the last accepted bid, which by the strictly-increasing
// invariant is also the highest. Nil when no bids exist.
func (a *Auction) HighestBid() *Bid {
	if len(a.Bids) == 0 {
		return nil
	}
	return &a.Bids[len(a.Bids)-1]
}

// EnsureBiddable checks the state an incoming bid requires: the auction is
// active and its end time has not passed. The time check defends against a
// stale read racing the closer sweep.
func (a *Auction) EnsureBiddable(now time.Time) error {
	if a.Status != StatusActive {
		return errors.ErrAuctionClosed
	}
	if !now.Before(a.EndTime) {
		return errors.ErrAuctionExpired
	}
	return nil
}

// ApplyBid validates and applies one bid: append to history, raise the
// current price, record the bidder as provisional winner, and extend the
// deadline when the bid lands inside the soft-close window. Callers run this
// inside ApplyUpdate so the checks are always against the freshest record.
func (a *Auction) ApplyBid(bidderID uuid.UUID, bidderName string, amount values.Money, now time.Time, softCloseWindow time.Duration) (*Bid, error) {
	if err := a.EnsureBiddable(now); err != nil {
		return nil, err
	}
	if bidderID == a.SellerID {
		return nil, errors.ErrSelfBid
	}
	if !amount.GreaterThan(a.CurrentPrice) {
		return nil, errors.ErrBidTooLow
	}

	bid := Bid{
		ID:         uuid.New(),
		AuctionID:  a.ID,
		BidderID:   bidderID,
		BidderName: bidderName,
		Amount:     amount,
		PlacedAt:   now,
	}
	a.Bids = append(a.Bids, bid)
	a.CurrentPrice = amount
	winner := bidderID
	a.WinnerID = &winner

	// Soft close: a bid inside the trailing window resets the countdown, so
	// the auction only ends once the window elapses with no new bid.
	if a.EndTime.Sub(now) < softCloseWindow {
		a.EndTime = now.Add(softCloseWindow)
	}

	a.UpdatedAt = now
	return &a.Bids[len(a.Bids)-1], nil
}

// FinalizeOutcome describes what Finalize decided.
type FinalizeOutcome struct {
	Finalized bool
	Sold      bool
	WinnerID  uuid.UUID
}

// Finalize transitions an expired active auction to completed (with the last
// bidder as winner) or unsold. It is a no-op, not an error, when the auction
// already left the active state or when a late bid pushed the end time back
// past now; re-running a sweep against a finalized auction must not emit
// duplicate events.
func (a *Auction) Finalize(now time.Time) FinalizeOutcome {
	if a.Status != StatusActive {
		return FinalizeOutcome{}
	}
	if a.EndTime.After(now) {
		return FinalizeOutcome{}
	}

	if last := a.HighestBid(); last != nil {
		a.Status = StatusCompleted
		winner := last.BidderID
		a.WinnerID = &winner
		a.UpdatedAt = now
		return FinalizeOutcome{Finalized: true, Sold: true, WinnerID: winner}
	}

	a.Status = StatusUnsold
	a.UpdatedAt = now
	return FinalizeOutcome{Finalized: true}
}

// MarkPaid records the payment provider's confirmation that the winner's
// charge succeeded, moving the funds into escrow. The guard makes repeated
// webhook deliveries fail rather than double-transition.
func (a *Auction) MarkPaid(payerID uuid.UUID, now time.Time) error {
	if a.WinnerID == nil || *a.WinnerID != payerID {
		return errors.NewForbiddenError("Only the winner can pay for this auction")
	}
	if a.Status != StatusCompleted {
		return errors.NewInvalidStateError("PAYMENT_NOT_EXPECTED", "auction is not awaiting payment")
	}
	a.Status = StatusPaidHeldInEscrow
	a.UpdatedAt = now
	return nil
}

// ConfirmReceipt records the buyer's confirmation of receipt, releasing the
// escrow and closing the auction.
func (a *Auction) ConfirmReceipt(confirmerID uuid.UUID, now time.Time) error {
	if a.WinnerID == nil || *a.WinnerID != confirmerID {
		return errors.NewForbiddenError("Not authorized")
	}
	if a.Status != StatusPaidHeldInEscrow {
		return errors.NewInvalidStateError("FUNDS_NOT_RELEASABLE", "Funds cannot be released yet")
	}
	a.Status = StatusClosed
	a.UpdatedAt = now
	return nil
}

// SetShipping stores the shipping details captured at checkout.
func (a *Auction) SetShipping(s ShippingDetails, now time.Time) {
	a.Shipping = &s
	a.UpdatedAt = now
}
