package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/domain/user"
	"github.com/smri29/BidPulse/internal/domain/values"
)

// AuctionRepository is the slice of the record store payments need.
type AuctionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	ApplyUpdate(ctx context.Context, id uuid.UUID, mutate func(*auction.Auction) error) (*auction.Auction, error)
}

// UserRepository reads seller records for payout routing.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// CheckoutParams describes the hosted checkout page for one won auction.
type CheckoutParams struct {
	AuctionID   uuid.UUID
	PayerID     uuid.UUID
	Title       string
	Amount      values.Money
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the provider-hosted payment page the winner is sent to.
type CheckoutSession struct {
	ID  string
	URL string
}

// TransferParams describes one payout to a seller's connected account.
type TransferParams struct {
	Amount      values.Money
	Destination string
	Description string
}

// WebhookEvent is a verified provider callback.
type WebhookEvent struct {
	Type      string
	AuctionID uuid.UUID
	PayerID   uuid.UUID
}

// Provider abstracts the payment processor. The production implementation
// talks to Stripe; tests substitute a fake.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	Transfer(ctx context.Context, p TransferParams) (string, error)
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
