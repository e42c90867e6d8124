package closer

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/infrastructure/events"
	"github.com/smri29/BidPulse/internal/metrics"
)

// AuctionRepository is the slice of the record store the closer needs.
type AuctionRepository interface {
	ListExpired(ctx context.Context, now time.Time) ([]*auction.Auction, error)
	ApplyUpdate(ctx context.Context, id uuid.UUID, mutate func(*auction.Auction) error) (*auction.Auction, error)
}

// Worker periodically finalizes expired auctions: sold with the last bidder
// as winner, or unsold. Each auction is handled independently, so one bad
// record never stalls the rest of the sweep, and every transition goes
// through the same optimistic update as bids, so a sweep racing a late bid
// simply loses and moves on.
type Worker struct {
	auctions AuctionRepository
	events   events.Publisher
	metrics  *metrics.Metrics
	clock    auction.Clock
	logger   *zap.Logger
	interval time.Duration
}

func NewWorker(
	auctions AuctionRepository,
	publisher events.Publisher,
	m *metrics.Metrics,
	clock auction.Clock,
	logger *zap.Logger,
	interval time.Duration,
) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		auctions: auctions,
		events:   publisher,
		metrics:  m,
		clock:    clock,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. The first
// sweep happens immediately so a restart picks up overdue auctions without
// waiting a full tick.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("auction closer started", zap.Duration("interval", w.interval))

	if err := w.RunSweep(ctx); err != nil {
		w.logger.Error("sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("auction closer stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunSweep(ctx); err != nil {
				w.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunSweep finalizes every expired active auction. It returns an error only
// when the expired listing itself fails; per-auction failures are logged,
// counted and skipped. Safe to run concurrently with itself or with another
// instance: the conditional write makes finalization happen exactly once.
func (w *Worker) RunSweep(ctx context.Context) error {
	now := w.clock.Now()

	expired, err := w.auctions.ListExpired(ctx, now)
	if err != nil {
		w.metrics.RecordSweepFailure()
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	w.logger.Info("sweeping expired auctions", zap.Int("count", len(expired)))

	for _, a := range expired {
		if err := w.finalizeOne(ctx, a.ID); err != nil {
			w.metrics.RecordSweepFailure()
			w.logger.Error("failed to finalize auction",
				zap.String("auction_id", a.ID.String()),
				zap.Error(err))
		}
	}

	return nil
}

func (w *Worker) finalizeOne(ctx context.Context, id uuid.UUID) error {
	var outcome auction.FinalizeOutcome
	updated, err := w.auctions.ApplyUpdate(ctx, id, func(fresh *auction.Auction) error {
		outcome = fresh.Finalize(w.clock.Now())
		if !outcome.Finalized {
			// Already finalized, or a late bid pushed the deadline back.
			return auction.ErrNoChange
		}
		return nil
	})
	if stderrors.Is(err, auction.ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	result := "unsold"
	if outcome.Sold {
		result = "sold"
	}
	w.metrics.RecordAuctionFinalized(result)
	w.logger.Info("auction finalized",
		zap.String("auction_id", id.String()),
		zap.String("outcome", result))

	w.publishFinalized(ctx, updated, outcome)
	return nil
}

// publishFinalized emits auction_ended to the auction's channel plus the
// personal notifications. Events fire after the commit; a crash between
// commit and publish loses the events, and clients recover by re-fetching.
func (w *Worker) publishFinalized(ctx context.Context, a *auction.Auction, outcome auction.FinalizeOutcome) {
	if w.events == nil {
		return
	}

	ended := map[string]any{
		"auctionId":  a.ID,
		"status":     a.Status,
		"finalPrice": a.CurrentPrice,
	}
	if outcome.Sold {
		ended["winner"] = outcome.WinnerID
	}
	w.publish(ctx, events.New(events.TypeAuctionEnded, events.AuctionTopic(a.ID), ended))

	if outcome.Sold {
		w.publish(ctx, events.New(events.TypeNotification, events.UserTopic(outcome.WinnerID), map[string]any{
			"message":   "Congratulations! You won the auction for \"" + a.Title + "\"",
			"auctionId": a.ID,
		}))
		w.publish(ctx, events.New(events.TypeNotification, events.UserTopic(a.SellerID), map[string]any{
			"message":   "Your auction \"" + a.Title + "\" sold",
			"auctionId": a.ID,
		}))
		return
	}

	w.publish(ctx, events.New(events.TypeNotification, events.UserTopic(a.SellerID), map[string]any{
		"message":   "Your auction \"" + a.Title + "\" ended without bids",
		"auctionId": a.ID,
	}))
}

func (w *Worker) publish(ctx context.Context, e events.Event) {
	if err := w.events.Publish(ctx, e); err != nil {
		w.logger.Warn("failed to publish event",
			zap.String("type", e.Type),
			zap.String("topic", e.Topic),
			zap.Error(err))
	}
}
