package payment

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
	auctions map[uuid.UUID]*auction.Auction
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
	a, ok := f.auctions[id]
	if !ok {
		return nil, errors.ErrAuctionNotFound
	}
	copied := *a
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

type fakeProvider struct {
	session      *CheckoutSession
	sessionErr   error
	lastCheckout CheckoutParams
	transfers    []TransferParams
	transferErr  error
	webhookEvent *WebhookEvent
	webhookErr   error
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, p CheckoutParams) (*CheckoutSession, error) {
	f.lastCheckout = p
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.session, nil
}

func (f *fakeProvider) Transfer(_ context.Context, p TransferParams) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transfers = append(f.transfers, p)
	return "tr_test", nil
}

func (f *fakeProvider) VerifyWebhook(_ []byte, _ string) (*WebhookEvent, error) {
	return f.webhookEvent, f.webhookErr
}

type fakePublisher struct {
	published []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	f.published = append(f.published, e)
	return nil
}

type paymentFixture struct {
	svc      *Service
	repo     *fakeAuctionRepo
	users    *fakeUserRepo
	provider *fakeProvider
	pub      *fakePublisher

	auctionID uuid.UUID
	sellerID  uuid.UUID
	winnerID  uuid.UUID
}

func usd(amount float64) values.Money {
	return values.MustNewMoneyFromFloat(amount, values.USD)
}

// newPaymentFixture builds an auction already finalized as sold for $1000.
func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-2 * time.Hour)
	sellerID := uuid.New()
	winnerID := uuid.New()

	a, err := auction.New(auction.NewAuctionParams{
		Title:         "Road bike",
		Description:   "Carbon frame, 54cm",
		Category:      auction.CategoryOther,
		StartingPrice: usd(500),
		EndTime:       created.Add(time.Hour),
		SellerID:      sellerID,
	}, created)
	require.NoError(t, err)
	_, err = a.ApplyBid(winnerID, "Wes", usd(1000), created.Add(10*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	outcome := a.Finalize(now)
	require.True(t, outcome.Sold)

	f := &paymentFixture{
		repo:      &fakeAuctionRepo{auctions: map[uuid.UUID]*auction.Auction{a.ID: a}},
		users:     &fakeUserRepo{users: map[uuid.UUID]*user.User{}},
		provider:  &fakeProvider{session: &CheckoutSession{ID: "cs_test", URL: "https://pay.example/cs_test"}},
		pub:       &fakePublisher{},
		auctionID: a.ID,
		sellerID:  sellerID,
		winnerID:  winnerID,
	}
	f.users.users[sellerID] = &user.User{ID: sellerID, Name: "Sam", StripeAccountID: "acct_seller"}

	f.svc = NewService(f.repo, f.users, f.provider, f.pub, nil,
		&auction.MockClock{CurrentTime: now}, zap.NewNop(), Config{
			CommissionRate: 0.08,
			SuccessURL:     "https://app.example/success",
			CancelURL:      "https://app.example/cancel",
		})
	return f
}

func TestCreateCheckout(t *testing.T) {
	t.Run("creates a session priced at the final bid", func(t *testing.T) {
		f := newPaymentFixture(t)

		sess, err := f.svc.CreateCheckout(context.Background(), f.auctionID, f.winnerID, nil)
		require.NoError(t, err)

		assert.Equal(t, "https://pay.example/cs_test", sess.URL)
		assert.True(t, f.provider.lastCheckout.Amount.Equal(usd(1000)))
		assert.Equal(t, f.auctionID, f.provider.lastCheckout.AuctionID)
	})

	t.Run("stores shipping details before creating the session", func(t *testing.T) {
		f := newPaymentFixture(t)
		shipping := &auction.ShippingDetails{Name: "Wes", Address: "1 Main St", City: "Springfield", Country: "US"}

		_, err := f.svc.CreateCheckout(context.Background(), f.auctionID, f.winnerID, shipping)
		require.NoError(t, err)

		stored := f.repo.auctions[f.auctionID].Shipping
		require.NotNil(t, stored)
		assert.Equal(t, "1 Main St", stored.Address)
	})

	t.Run("rejects anyone but the winner", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.CreateCheckout(context.Background(), f.auctionID, uuid.New(), nil)
		assert.Equal(t, 403, errors.GetStatusCode(err))
	})

	t.Run("rejects checkout before the auction completes", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.repo.auctions[f.auctionID].Status = auction.StatusActive

		_, err := f.svc.CreateCheckout(context.Background(), f.auctionID, f.winnerID, nil)
		assert.Equal(t, 422, errors.GetStatusCode(err))
	})
}

func TestConfirmPayment(t *testing.T) {
	t.Run("moves the auction into escrow and notifies both parties", func(t *testing.T) {
		f := newPaymentFixture(t)

		require.NoError(t, f.svc.ConfirmPayment(context.Background(), f.auctionID, f.winnerID))

		assert.Equal(t, auction.StatusPaidHeldInEscrow, f.repo.auctions[f.auctionID].Status)
		require.Len(t, f.pub.published, 3)
		topics := []string{f.pub.published[0].Topic, f.pub.published[1].Topic, f.pub.published[2].Topic}
		assert.Contains(t, topics, events.AuctionTopic(f.auctionID))
		assert.Contains(t, topics, events.UserTopic(f.sellerID))
		assert.Contains(t, topics, events.UserTopic(f.winnerID))
	})

	t.Run("tells the auction room the item has been paid for", func(t *testing.T) {
		f := newPaymentFixture(t)

		require.NoError(t, f.svc.ConfirmPayment(context.Background(), f.auctionID, f.winnerID))

		var room *events.Event
		for i := range f.pub.published {
			if f.pub.published[i].Topic == events.AuctionTopic(f.auctionID) {
				room = &f.pub.published[i]
			}
		}
		require.NotNil(t, room, "auction room subscribers should hear about the payment")
		assert.Equal(t, events.TypeNotification, room.Type)
		data, ok := room.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, `Auction "Road bike" has been paid for!`, data["message"])
		assert.Equal(t, f.auctionID, data["auctionId"])
	})

	t.Run("a redelivered confirmation fails on the state guard", func(t *testing.T) {
		f := newPaymentFixture(t)

		require.NoError(t, f.svc.ConfirmPayment(context.Background(), f.auctionID, f.winnerID))
		err := f.svc.ConfirmPayment(context.Background(), f.auctionID, f.winnerID)
		assert.Equal(t, 422, errors.GetStatusCode(err))
		assert.Equal(t, auction.StatusPaidHeldInEscrow, f.repo.auctions[f.auctionID].Status)
	})

	t.Run("rejects a payer who is not the winner", func(t *testing.T) {
		f := newPaymentFixture(t)

		err := f.svc.ConfirmPayment(context.Background(), f.auctionID, uuid.New())
		assert.Equal(t, 403, errors.GetStatusCode(err))
	})
}

func TestHandleWebhook(t *testing.T) {
	t.Run("checkout completion confirms payment", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.provider.webhookEvent = &WebhookEvent{
			Type:      WebhookTypeCheckoutCompleted,
			AuctionID: f.auctionID,
			PayerID:   f.winnerID,
		}

		require.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
		assert.Equal(t, auction.StatusPaidHeldInEscrow, f.repo.auctions[f.auctionID].Status)
	})

	t.Run("unknown event types are acknowledged", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.provider.webhookEvent = &WebhookEvent{Type: "charge.refunded"}

		assert.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
		assert.Equal(t, auction.StatusCompleted, f.repo.auctions[f.auctionID].Status)
	})

	t.Run("an invalid signature is rejected", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.provider.webhookErr = context.DeadlineExceeded

		err := f.svc.HandleWebhook(context.Background(), []byte("{}"), "bad")
		assert.Equal(t, 401, errors.GetStatusCode(err))
	})
}

func TestReleaseFunds(t *testing.T) {
	pay := func(t *testing.T, f *paymentFixture) {
		t.Helper()
		require.NoError(t, f.svc.ConfirmPayment(context.Background(), f.auctionID, f.winnerID))
		f.pub.published = nil
	}

	t.Run("closes the auction and pays the seller minus commission", func(t *testing.T) {
		f := newPaymentFixture(t)
		pay(t, f)

		require.NoError(t, f.svc.ReleaseFunds(context.Background(), f.auctionID, f.winnerID))

		assert.Equal(t, auction.StatusClosed, f.repo.auctions[f.auctionID].Status)
		require.Len(t, f.provider.transfers, 1)
		// 8% of $1000 is $80 commission, $920 payout.
		assert.True(t, f.provider.transfers[0].Amount.Equal(usd(920)))
		assert.Equal(t, "acct_seller", f.provider.transfers[0].Destination)
	})

	t.Run("a failed payout still closes the auction", func(t *testing.T) {
		f := newPaymentFixture(t)
		pay(t, f)
		f.provider.transferErr = context.DeadlineExceeded

		require.NoError(t, f.svc.ReleaseFunds(context.Background(), f.auctionID, f.winnerID))
		assert.Equal(t, auction.StatusClosed, f.repo.auctions[f.auctionID].Status)
	})

	t.Run("rejects release before payment", func(t *testing.T) {
		f := newPaymentFixture(t)

		err := f.svc.ReleaseFunds(context.Background(), f.auctionID, f.winnerID)
		assert.Equal(t, 422, errors.GetStatusCode(err))
		assert.Empty(t, f.provider.transfers)
	})

	t.Run("rejects release by anyone but the winner", func(t *testing.T) {
		f := newPaymentFixture(t)
		pay(t, f)

		err := f.svc.ReleaseFunds(context.Background(), f.auctionID, f.sellerID)
		assert.Equal(t, 403, errors.GetStatusCode(err))
	})

	t.Run("a second release fails on the state guard", func(t *testing.T) {
		f := newPaymentFixture(t)
		pay(t, f)

		require.NoError(t, f.svc.ReleaseFunds(context.Background(), f.auctionID, f.winnerID))
		err := f.svc.ReleaseFunds(context.Background(), f.auctionID, f.winnerID)
		assert.Equal(t, 422, errors.GetStatusCode(err))
		assert.Len(t, f.provider.transfers, 1)
	})
}
