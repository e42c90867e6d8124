package bidding

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/domain/errors"
	"github.com/smri29/BidPulse/internal/domain/values"
	"github.com/smri29/BidPulse/internal/infrastructure/events"
	"github.com/smri29/BidPulse/internal/metrics"
)

// Config carries the bid acceptance knobs.
type Config struct {
	SoftCloseWindow time.Duration
	BidsPerMinute   int
}

// Service is the single authoritative path for adding a bid to an auction.
type Service struct {
	auctions AuctionRepository
	users    UserRepository
	limiter  RateLimiter
	events   events.Publisher
	metrics  *metrics.Metrics
	clock    auction.Clock
	logger   *zap.Logger
	cfg      Config
}

func NewService(
	auctions AuctionRepository,
	users UserRepository,
	limiter RateLimiter,
	publisher events.Publisher,
	m *metrics.Metrics,
	clock auction.Clock,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if cfg.SoftCloseWindow <= 0 {
		cfg.SoftCloseWindow = 5 * time.Minute
	}
	if cfg.BidsPerMinute <= 0 {
		cfg.BidsPerMinute = 30
	}
	return &Service{
		auctions: auctions,
		users:    users,
		limiter:  limiter,
		events:   publisher,
		metrics:  m,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// PlaceBid validates and applies one bid. Validation order is fixed: the
// auction must exist, be active, not be past its end time, not belong to the
// bidder, not have the bidder on the seller's block-list, and the amount
// must beat the current price. The write is optimistic: a version conflict
// triggers exactly one re-validation against the fresh record, and a second
// conflict surfaces as "someone beat you to it".
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, bidderName string, amount values.Money) (*auction.Auction, error) {
	started := s.clock.Now()

	if auctionID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_AUCTION_ID", "auction ID is required")
	}
	if bidderID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_BIDDER_ID", "bidder ID is required")
	}
	if !amount.IsPositive() {
		return nil, errors.NewValidationError("INVALID_BID_AMOUNT", "bid amount must be positive")
	}

	if err := s.checkRateLimit(ctx, bidderID); err != nil {
		return nil, err
	}

	updated, prevWinner, err := s.attempt(ctx, auctionID, bidderID, bidderName, amount)
	if stderrors.Is(err, errors.ErrUpdateConflict) {
		updated, prevWinner, err = s.attempt(ctx, auctionID, bidderID, bidderName, amount)
		if stderrors.Is(err, errors.ErrUpdateConflict) {
			// Lost the race twice; the price has moved past this bid.
			err = errors.ErrBidTooLow
		}
	}
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	s.metrics.RecordBidPlaced(s.clock.Now().Sub(started))
	s.publishBidPlaced(ctx, updated, bidderID, bidderName, prevWinner)

	return updated, nil
}

// attempt runs one full validation+write sequence. The pre-checks outside
// ApplyUpdate give deterministic error ordering against a stable snapshot;
// ApplyBid re-runs state, ownership and amount checks inside the atomic
// update so a stale read can never slip a bid in.
func (s *Service) attempt(ctx context.Context, auctionID, bidderID uuid.UUID, bidderName string, amount values.Money) (*auction.Auction, *uuid.UUID, error) {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	if err := a.EnsureBiddable(now); err != nil {
		return nil, nil, err
	}
	if bidderID == a.SellerID {
		return nil, nil, errors.ErrSelfBid
	}

	seller, err := s.users.GetByID(ctx, a.SellerID)
	if err != nil {
		return nil, nil, errors.NewInternalError("failed to load seller").WithCause(err)
	}
	if seller.HasBlocked(bidderID) {
		return nil, nil, errors.ErrBidderBlocked
	}

	if !amount.GreaterThan(a.CurrentPrice) {
		return nil, nil, errors.ErrBidTooLow
	}

	var prevWinner *uuid.UUID
	updated, err := s.auctions.ApplyUpdate(ctx, auctionID, func(fresh *auction.Auction) error {
		if fresh.WinnerID != nil {
			prev := *fresh.WinnerID
			prevWinner = &prev
		}
		_, err := fresh.ApplyBid(bidderID, bidderName, amount, s.clock.Now(), s.cfg.SoftCloseWindow)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return updated, prevWinner, nil
}

func (s *Service) checkRateLimit(ctx context.Context, bidderID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}

	allowed, err := s.limiter.Allow(ctx, "bid:"+bidderID.String(), s.cfg.BidsPerMinute, time.Minute)
	if err != nil {
		// Fail open: a limiter outage must not stop the marketplace.
		s.logger.Warn("bid rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !allowed {
		return errors.NewRateLimitError("bid rate limit exceeded")
	}
	return nil
}

// publishBidPlaced emits the bid_update snapshot to the auction's channel
// and, when someone else held the lead, an outbid notification to them.
// Events go out only after the store update committed, which is what keeps
// per-auction delivery in commit order.
func (s *Service) publishBidPlaced(ctx context.Context, a *auction.Auction, bidderID uuid.UUID, bidderName string, prevWinner *uuid.UUID) {
	if s.events == nil {
		return
	}

	snapshot := map[string]any{
		"auctionId":     a.ID,
		"currentPrice":  a.CurrentPrice,
		"highestBidder": bidderName,
		"endTime":       a.EndTime,
		"bids":          a.Bids,
	}
	if err := s.events.Publish(ctx, events.New(events.TypeBidUpdate, events.AuctionTopic(a.ID), snapshot)); err != nil {
		s.logger.Warn("failed to publish bid update",
			zap.String("auction_id", a.ID.String()),
			zap.Error(err))
	}

	if prevWinner != nil && *prevWinner != bidderID {
		outbid := map[string]any{
			"message":   "You have been outbid on \"" + a.Title + "\"",
			"auctionId": a.ID,
		}
		if err := s.events.Publish(ctx, events.New(events.TypeNotification, events.UserTopic(*prevWinner), outbid)); err != nil {
			s.logger.Warn("failed to publish outbid notification",
				zap.String("auction_id", a.ID.String()),
				zap.Error(err))
		}
	}
}

func (s *Service) recordRejection(err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		s.metrics.RecordBidRejected(appErr.Code)
		return
	}
	s.metrics.RecordBidRejected("INTERNAL")
}
