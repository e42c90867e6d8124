package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/domain/errors"
	"github.com/smri29/BidPulse/internal/domain/user"
	"github.com/smri29/BidPulse/internal/domain/values"
)

// AuctionRepository is the slice of the record store listings need.
type AuctionRepository interface {
	Create(ctx context.Context, a *auction.Auction) error
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	List(ctx context.Context) ([]*auction.Auction, error)
	ListActive(ctx context.Context) ([]*auction.Auction, error)
	Delete(ctx context.Context, id uuid.UUID, force bool) error
}

// UserRepository resolves actors for capability checks.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// CreateAuctionInput is the validated listing request.
type CreateAuctionInput struct {
	Title         string
	Description   string
	Category      string
	StartingPrice values.Money
	EndTime       time.Time
	Images        []string
	SellerID      uuid.UUID
}

// ListFilter narrows ListAuctions.
type ListFilter struct {
	ActiveOnly bool
}

// Service manages the auction catalog: listing creation, browsing and
// deletion. Bid placement and the money flow live in their own services;
// this one owns everything before the first bid and after the last event.
type Service struct {
	auctions AuctionRepository
	users    UserRepository
	clock    auction.Clock
	logger   *zap.Logger
	policy   auction.DeletePolicy
}

func NewService(
	auctions AuctionRepository,
	users UserRepository,
	clock auction.Clock,
	logger *zap.Logger,
	policy auction.DeletePolicy,
) *Service {
	return &Service{
		auctions: auctions,
		users:    users,
		clock:    clock,
		logger:   logger,
		policy:   policy,
	}
}

// CreateAuction validates and stores a new listing in the active state.
func (s *Service) CreateAuction(ctx context.Context, in CreateAuctionInput) (*auction.Auction, error) {
	category, err := auction.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}

	a, err := auction.New(auction.NewAuctionParams{
		Title:         in.Title,
		Description:   in.Description,
		Category:      category,
		StartingPrice: in.StartingPrice,
		EndTime:       in.EndTime,
		Images:        in.Images,
		SellerID:      in.SellerID,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.auctions.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("auction created",
		zap.String("auction_id", a.ID.String()),
		zap.String("seller_id", in.SellerID.String()),
		zap.Time("end_time", a.EndTime))

	return a, nil
}

// GetAuction returns one auction with its bid history.
func (s *Service) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	return s.auctions.GetByID(ctx, id)
}

// GetBids returns an auction's bid history, oldest first.
func (s *Service) GetBids(ctx context.Context, id uuid.UUID) ([]auction.Bid, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Bids, nil
}

// ListAuctions returns the catalog, newest first.
func (s *Service) ListAuctions(ctx context.Context, filter ListFilter) ([]*auction.Auction, error) {
	if filter.ActiveOnly {
		return s.auctions.ListActive(ctx)
	}
	return s.auctions.List(ctx)
}

// CapabilitiesFor reports what the given actor may do with the auction.
func (s *Service) CapabilitiesFor(ctx context.Context, auctionID, actorID uuid.UUID) (auction.Capabilities, error) {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return auction.Capabilities{}, err
	}
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return auction.Capabilities{}, err
	}
	return auction.CapabilitiesFor(actor, a, s.policy), nil
}

// DeleteAuction removes a listing. The seller may delete their own auction
// while it has no bids; an admin may additionally override the bid guard
// when policy allows it.
func (s *Service) DeleteAuction(ctx context.Context, auctionID, actorID uuid.UUID) error {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return err
	}
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return err
	}

	caps := auction.CapabilitiesFor(actor, a, s.policy)
	if !caps.CanDelete {
		if actor.ID != a.SellerID && !actor.IsAdmin() {
			return errors.NewForbiddenError("Not authorized to delete this auction")
		}
		return errors.NewConflictError("Cannot delete auction with active bids")
	}

	force := actor.IsAdmin() && s.policy.AdminOverridesBids
	if err := s.auctions.Delete(ctx, auctionID, force); err != nil {
		return err
	}

	s.logger.Info("auction deleted",
		zap.String("auction_id", auctionID.String()),
		zap.String("actor_id", actorID.String()),
		zap.Bool("forced", force && a.HasBids()))

	return nil
}
