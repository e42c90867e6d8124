package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/domain/errors"
	"github.com/smri29/BidPulse/internal/domain/user"
	"github.com/smri29/BidPulse/internal/domain/values"
	"github.com/smri29/BidPulse/internal/infrastructure/events"
)

type fakeAuctionRepo struct {
	auctions  map[uuid.UUID]*auction.Auction
	conflicts int
	updates   int
}

func (f *fakeAuctionRepo) GetByID(_ context.Context, id uuid.UUID) (*auction.Auction, error) {
	a, ok := f.auctions[id]
	if !ok {
		return nil, errors.ErrAuctionNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAuctionRepo) ApplyUpdate(_ context.Context, id uuid.UUID, mutate func(*auction.Auction) error) (*auction.Auction, error) {
	f.updates++
	if f.conflicts > 0 {
		f.conflicts--
		return nil, errors.ErrUpdateConflict
	}
	a, ok := f.auctions[id]
	if !ok {
		return nil, errors.ErrAuctionNotFound
	}
	copied := *a
	copied.Bids = append([]auction.Bid(nil), a.Bids...)
	if err := mutate(&copied); err != nil {
		return nil, err
	}
	copied.Version++
	f.auctions[id] = &copied
	return &copied, nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*user.User
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	return u, nil
}

type fakePublisher struct {
	published []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	f.published = append(f.published, e)
	return nil
}

type fakeLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (f *fakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	f.calls++
	return f.allowed, f.err
}

type biddingFixture struct {
	svc       *Service
	repo      *fakeAuctionRepo
	users     *fakeUserRepo
	publisher *fakePublisher
	limiter   *fakeLimiter
	clock     *auction.MockClock

	auctionID uuid.UUID
	sellerID  uuid.UUID
	bidderID  uuid.UUID
}

func usd(amount float64) values.Money {
	return values.MustNewMoneyFromFloat(amount, values.USD)
}

func newBiddingFixture(t *testing.T) *biddingFixture {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &auction.MockClock{CurrentTime: now}

	sellerID := uuid.New()
	a, err := auction.New(auction.NewAuctionParams{
		Title:         "Vintage camera",
		Description:   "Working Leica M3",
		Category:      auction.CategoryCollectibles,
		StartingPrice: usd(100),
		EndTime:       now.Add(time.Hour),
		SellerID:      sellerID,
	}, now)
	require.NoError(t, err)

	f := &biddingFixture{
		repo:      &fakeAuctionRepo{auctions: map[uuid.UUID]*auction.Auction{a.ID: a}},
		users:     &fakeUserRepo{users: map[uuid.UUID]*user.User{}},
		publisher: &fakePublisher{},
		limiter:   &fakeLimiter{allowed: true},
		clock:     clock,
		auctionID: a.ID,
		sellerID:  sellerID,
		bidderID:  uuid.New(),
	}
	f.users.users[sellerID] = &user.User{ID: sellerID, Name: "Sam Seller", Role: user.RoleUser}

	f.svc = NewService(f.repo, f.users, f.limiter, f.publisher, nil, clock, zap.NewNop(), Config{
		SoftCloseWindow: 5 * time.Minute,
		BidsPerMinute:   30,
	})
	return f
}

func TestPlaceBid(t *testing.T) {
	t.Run("accepts a higher bid and publishes the update", func(t *testing.T) {
		f := newBiddingFixture(t)

		got, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
		require.NoError(t, err)

		assert.True(t, got.CurrentPrice.Equal(usd(150)))
		require.NotNil(t, got.WinnerID)
		assert.Equal(t, f.bidderID, *got.WinnerID)
		require.Len(t, got.Bids, 1)
		assert.Equal(t, "Bella", got.Bids[0].BidderName)

		require.Len(t, f.publisher.published, 1)
		e := f.publisher.published[0]
		assert.Equal(t, events.TypeBidUpdate, e.Type)
		assert.Equal(t, events.AuctionTopic(f.auctionID), e.Topic)
		payload, ok := e.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, f.auctionID, payload["auctionId"])
		assert.Equal(t, "Bella", payload["highestBidder"])
		assert.Contains(t, payload, "currentPrice")
		assert.Contains(t, payload, "endTime")
		assert.Contains(t, payload, "bids")
	})

	t.Run("rejects a bid at or below the current price", func(t *testing.T) {
		f := newBiddingFixture(t)

		_, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(100))
		assert.ErrorIs(t, err, errors.ErrBidTooLow)
		assert.Empty(t, f.publisher.published)
		assert.Zero(t, f.repo.updates)
	})

	t.Run("rejects the seller bidding on their own auction", func(t *testing.T) {
		f := newBiddingFixture(t)

		_, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.sellerID, "Sam Seller", usd(150))
		assert.ErrorIs(t, err, errors.ErrSelfBid)
	})

	t.Run("rejects a bidder the seller has blocked", func(t *testing.T) {
		f := newBiddingFixture(t)
		f.users.users[f.sellerID].BlockedUserIDs = []uuid.UUID{f.bidderID}

		_, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
		assert.ErrorIs(t, err, errors.ErrBidderBlocked)
	})

	t.Run("rejects a bid on an unknown auction", func(t *testing.T) {
		f := newBiddingFixture(t)

		_, err := f.svc.PlaceBid(context.Background(), uuid.New(), f.bidderID, "Bella", usd(150))
		assert.ErrorIs(t, err, errors.ErrAuctionNotFound)
	})

	t.Run("rejects a bid once the auction left the active state", func(t *testing.T) {
		f := newBiddingFixture(t)
		f.repo.auctions[f.auctionID].Status = auction.StatusCompleted

		_, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
		assert.ErrorIs(t, err, errors.ErrAuctionClosed)
	})

	t.Run("rejects a bid past the end time even while still active", func(t *testing.T) {
		f := newBiddingFixture(t)
		f.clock.Advance(2 * time.Hour)

		_, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
		assert.ErrorIs(t, err, errors.ErrAuctionExpired)
	})

	t.Run("rejects when the bidder exceeds the rate limit", func(t *testing.T) {
		f := newBiddingFixture(t)
		f.limiter.allowed = false

		_, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
		require.Error(t, err)
		assert.Equal(t, 429, errors.GetStatusCode(err))
		assert.Zero(t, f.repo.updates)
	})

	t.Run("fails open when the rate limiter is unavailable", func(t *testing.T) {
		f := newBiddingFixture(t)
		f.limiter.allowed = false
		f.limiter.err = context.DeadlineExceeded

		_, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
		assert.NoError(t, err)
	})

	t.Run("validates arguments before touching the store", func(t *testing.T) {
		f := newBiddingFixture(t)

		_, err := f.svc.PlaceBid(context.Background(), uuid.Nil, f.bidderID, "Bella", usd(150))
		assert.Equal(t, 400, errors.GetStatusCode(err))

		_, err = f.svc.PlaceBid(context.Background(), f.auctionID, uuid.Nil, "Bella", usd(150))
		assert.Equal(t, 400, errors.GetStatusCode(err))

		_, err = f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(0))
		assert.Equal(t, 400, errors.GetStatusCode(err))

		assert.Zero(t, f.limiter.calls)
	})
}

func TestPlaceBid_ConflictRetry(t *testing.T) {
	t.Run("retries once after a version conflict", func(t *testing.T) {
		f := newBiddingFixture(t)
		f.repo.conflicts = 1

		got, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
		require.NoError(t, err)
		assert.True(t, got.CurrentPrice.Equal(usd(150)))
		assert.Equal(t, 2, f.repo.updates)
	})

	t.Run("gives up after a second conflict", func(t *testing.T) {
		f := newBiddingFixture(t)
		f.repo.conflicts = 2

		_, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
		assert.ErrorIs(t, err, errors.ErrBidTooLow)
		assert.Equal(t, 2, f.repo.updates)
	})
}

func TestPlaceBid_SoftClose(t *testing.T) {
	f := newBiddingFixture(t)
	f.clock.Advance(57 * time.Minute) // 3 minutes remain

	got, err := f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(150))
	require.NoError(t, err)

	assert.Equal(t, f.clock.Now().Add(5*time.Minute), got.EndTime)
}

func TestPlaceBid_OutbidNotification(t *testing.T) {
	f := newBiddingFixture(t)
	firstBidder := uuid.New()

	_, err := f.svc.PlaceBid(context.Background(), f.auctionID, firstBidder, "Alice", usd(150))
	require.NoError(t, err)

	_, err = f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(200))
	require.NoError(t, err)

	require.Len(t, f.publisher.published, 3)
	outbid := f.publisher.published[2]
	assert.Equal(t, events.TypeNotification, outbid.Type)
	assert.Equal(t, events.UserTopic(firstBidder), outbid.Topic)

	// A bidder raising their own bid is not notified.
	_, err = f.svc.PlaceBid(context.Background(), f.auctionID, f.bidderID, "Bella", usd(250))
	require.NoError(t, err)
	assert.Len(t, f.publisher.published, 4)
}
