package payment

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/domain/errors"
	"github.com/smri29/BidPulse/internal/domain/values"
	"github.com/smri29/BidPulse/internal/infrastructure/events"
	"github.com/smri29/BidPulse/internal/metrics"
)

// WebhookTypeCheckoutCompleted is the provider callback confirming the
// winner's charge went through.
const WebhookTypeCheckoutCompleted = "checkout.session.completed"

// Config carries the escrow knobs.
type Config struct {
	CommissionRate float64
	SuccessURL     string
	CancelURL      string
}

// Service drives the post-sale money flow: checkout for the winner, escrow
// on payment confirmation, and release with a commission-deducted payout
// when the buyer confirms receipt. Both escrow transitions are guarded
// inside the atomic auction update, so duplicate webhooks or double release
// requests fail on the state check instead of moving money twice.
type Service struct {
	auctions AuctionRepository
	users    UserRepository
	provider Provider
	events   events.Publisher
	metrics  *metrics.Metrics
	clock    auction.Clock
	logger   *zap.Logger
	cfg      Config
}

func NewService(
	auctions AuctionRepository,
	users UserRepository,
	provider Provider,
	publisher events.Publisher,
	m *metrics.Metrics,
	clock auction.Clock,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if cfg.CommissionRate <= 0 {
		cfg.CommissionRate = 0.08
	}
	return &Service{
		auctions: auctions,
		users:    users,
		provider: provider,
		events:   publisher,
		metrics:  m,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateCheckout builds a hosted checkout session for the auction's winner.
// Shipping details, when supplied, are stored before the session is created
// so the seller sees them as soon as payment confirms.
func (s *Service) CreateCheckout(ctx context.Context, auctionID, payerID uuid.UUID, shipping *auction.ShippingDetails) (*CheckoutSession, error) {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if a.WinnerID == nil || *a.WinnerID != payerID {
		return nil, errors.NewForbiddenError("Only the winner can pay for this auction")
	}
	if a.Status != auction.StatusCompleted {
		return nil, errors.NewInvalidStateError("PAYMENT_NOT_EXPECTED", "auction is not awaiting payment")
	}

	if shipping != nil {
		a, err = s.auctions.ApplyUpdate(ctx, auctionID, func(fresh *auction.Auction) error {
			fresh.SetShipping(*shipping, s.clock.Now())
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		AuctionID:  a.ID,
		PayerID:    payerID,
		Title:      a.Title,
		Amount:     a.CurrentPrice,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return nil, errors.NewExternalError("stripe", "failed to create checkout session").WithCause(err)
	}

	return session, nil
}

// HandleWebhook verifies a provider callback and applies the transition it
// confirms. Unknown event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.VerifyWebhook(payload, signature)
	if err != nil {
		return errors.NewUnauthorizedError("invalid webhook signature").WithCause(err)
	}

	switch event.Type {
	case WebhookTypeCheckoutCompleted:
		return s.ConfirmPayment(ctx, event.AuctionID, event.PayerID)
	default:
		s.logger.Debug("ignoring webhook event", zap.String("type", event.Type))
		return nil
	}
}

// ConfirmPayment moves a completed auction into escrow once the provider
// confirms the winner's charge. Redelivered webhooks hit the state guard
// and come back as an invalid-state error.
func (s *Service) ConfirmPayment(ctx context.Context, auctionID, payerID uuid.UUID) error {
	updated, err := s.auctions.ApplyUpdate(ctx, auctionID, func(fresh *auction.Auction) error {
		return fresh.MarkPaid(payerID, s.clock.Now())
	})
	if err != nil {
		return err
	}

	s.metrics.RecordPaymentConfirmed()
	s.logger.Info("payment held in escrow",
		zap.String("auction_id", auctionID.String()),
		zap.String("payer_id", payerID.String()))

	s.broadcast(ctx, auctionID,
		"Auction \""+updated.Title+"\" has been paid for!")
	s.notify(ctx, updated.SellerID,
		"Payment received for \""+updated.Title+"\". Ship the item to the buyer.", auctionID)
	s.notify(ctx, payerID,
		"Your payment for \""+updated.Title+"\" is held in escrow until you confirm receipt.", auctionID)

	return nil
}

// ReleaseFunds closes the auction on the buyer's confirmation of receipt and
// pays the seller their share. The payout is best-effort: the auction closes
// on the state transition, and a failed transfer is logged and counted for
// manual settlement rather than reopening the escrow.
func (s *Service) ReleaseFunds(ctx context.Context, auctionID, confirmerID uuid.UUID) error {
	updated, err := s.auctions.ApplyUpdate(ctx, auctionID, func(fresh *auction.Auction) error {
		return fresh.ConfirmReceipt(confirmerID, s.clock.Now())
	})
	if err != nil {
		return err
	}

	commission := updated.CurrentPrice.MulFloat(s.cfg.CommissionRate).Round(2)
	payout, err := updated.CurrentPrice.Sub(commission)
	if err != nil {
		return errors.NewInternalError("failed to compute payout").WithCause(err)
	}

	s.metrics.RecordFundsReleased()
	s.logger.Info("funds released",
		zap.String("auction_id", auctionID.String()),
		zap.String("commission", commission.String()),
		zap.String("payout", payout.String()))

	s.payoutSeller(ctx, updated, payout)

	s.notify(ctx, updated.SellerID,
		"Funds for \""+updated.Title+"\" have been released to you.", auctionID)

	return nil
}

func (s *Service) payoutSeller(ctx context.Context, a *auction.Auction, payout values.Money) {
	seller, err := s.users.GetByID(ctx, a.SellerID)
	if err != nil {
		s.metrics.RecordPayoutFailure()
		s.logger.Error("payout skipped: failed to load seller",
			zap.String("auction_id", a.ID.String()),
			zap.Error(err))
		return
	}
	if seller.StripeAccountID == "" {
		s.metrics.RecordPayoutFailure()
		s.logger.Error("payout skipped: seller has no connected account",
			zap.String("auction_id", a.ID.String()),
			zap.String("seller_id", a.SellerID.String()))
		return
	}

	transferID, err := s.provider.Transfer(ctx, TransferParams{
		Amount:      payout,
		Destination: seller.StripeAccountID,
		Description: "Auction payout: " + a.Title,
	})
	if err != nil {
		s.metrics.RecordPayoutFailure()
		s.logger.Error("payout transfer failed",
			zap.String("auction_id", a.ID.String()),
			zap.Error(err))
		return
	}

	s.logger.Info("payout transferred",
		zap.String("auction_id", a.ID.String()),
		zap.String("transfer_id", transferID))
}

// broadcast tells everyone watching the auction's room about the transition.
func (s *Service) broadcast(ctx context.Context, auctionID uuid.UUID, message string) {
	if s.events == nil {
		return
	}
	e := events.New(events.TypeNotification, events.AuctionTopic(auctionID), map[string]any{
		"message":   message,
		"auctionId": auctionID,
	})
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish notification",
			zap.String("topic", e.Topic),
			zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, message string, auctionID uuid.UUID) {
	if s.events == nil {
		return
	}
	e := events.New(events.TypeNotification, events.UserTopic(userID), map[string]any{
		"message":   message,
		"auctionId": auctionID,
	})
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish notification",
			zap.String("topic", e.Topic),
			zap.Error(err))
	}
}
