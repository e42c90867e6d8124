package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/domain/user"
)

// AuctionRepository is the slice of the record store bid acceptance needs.
type AuctionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	ApplyUpdate(ctx context.Context, id uuid.UUID, mutate func(*auction.Auction) error) (*auction.Auction, error)
}

// UserRepository reads seller records for the block-list check.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// RateLimiter bounds per-bidder bid frequency.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
