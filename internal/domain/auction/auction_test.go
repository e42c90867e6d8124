package auction

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smri29/BidPulse/internal/domain/errors"
	"github.com/smri29/BidPulse/internal/domain/user"
	"github.com/smri29/BidPulse/internal/domain/values"
)

const softClose = 5 * time.Minute

func newTestAuction(t *testing.T, now time.Time) *Auction {
	t.Helper()
	a, err := New(NewAuctionParams{
		Title:         "Vintage camera",
		Description:   "Working Leica M3",
		Category:      CategoryCollectibles,
		StartingPrice: values.MustNewMoneyFromFloat(100, values.USD),
		EndTime:       now.Add(10 * time.Minute),
		SellerID:      uuid.New(),
	}, now)
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	now := time.Now()

	t.Run("seeds current price from starting price", func(t *testing.T) {
		a := newTestAuction(t, now)
		assert.Equal(t, StatusActive, a.Status)
		assert.True(t, a.CurrentPrice.Equal(a.StartingPrice))
		assert.Nil(t, a.WinnerID)
		assert.Empty(t, a.Bids)
	})

	tests := []struct {
		name   string
		mutate func(*NewAuctionParams)
	}{
		{"empty title", func(p *NewAuctionParams) { p.Title = "  " }},
		{"empty description", func(p *NewAuctionParams) { p.Description = "" }},
		{"zero starting price", func(p *NewAuctionParams) { p.StartingPrice = values.Zero(values.USD) }},
		{"end time in the past", func(p *NewAuctionParams) { p.EndTime = now.Add(-time.Minute) }},
		{"bad category", func(p *NewAuctionParams) { p.Category = "gadgets" }},
		{"missing seller", func(p *NewAuctionParams) { p.SellerID = uuid.Nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewAuctionParams{
				Title:         "Vintage camera",
				Description:   "Working Leica M3",
				Category:      CategoryCollectibles,
				StartingPrice: values.MustNewMoneyFromFloat(100, values.USD),
				EndTime:       now.Add(time.Hour),
				SellerID:      uuid.New(),
			}
			tt.mutate(&p)
			_, err := New(p, now)
			assert.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestAuction_ApplyBid(t *testing.T) {
	now := time.Now()

	t.Run("accepted bid raises price and sets winner", func(t *testing.T) {
		a := newTestAuction(t, now)
		bidder := uuid.New()

		bid, err := a.ApplyBid(bidder, "x", values.MustNewMoneyFromFloat(150, values.USD), now.Add(time.Minute), softClose)
		require.NoError(t, err)

		assert.True(t, a.CurrentPrice.Equal(bid.Amount))
		require.NotNil(t, a.WinnerID)
		assert.Equal(t, bidder, *a.WinnerID)
		assert.Len(t, a.Bids, 1)
	})

	t.Run("amounts strictly increasing in insertion order", func(t *testing.T) {
		a := newTestAuction(t, now)

		_, err := a.ApplyBid(uuid.New(), "x", values.MustNewMoneyFromFloat(150, values.USD), now.Add(time.Minute), softClose)
		require.NoError(t, err)
		_, err = a.ApplyBid(uuid.New(), "y", values.MustNewMoneyFromFloat(160, values.USD), now.Add(2*time.Minute), softClose)
		require.NoError(t, err)

		_, err = a.ApplyBid(uuid.New(), "x", values.MustNewMoneyFromFloat(160, values.USD), now.Add(3*time.Minute), softClose)
		assert.ErrorIs(t, err, errors.ErrBidTooLow)
		_, err = a.ApplyBid(uuid.New(), "x", values.MustNewMoneyFromFloat(150, values.USD), now.Add(3*time.Minute), softClose)
		assert.ErrorIs(t, err, errors.ErrBidTooLow)

		assert.Len(t, a.Bids, 2)
		for i := 1; i < len(a.Bids); i++ {
			assert.True(t, a.Bids[i].Amount.GreaterThan(a.Bids[i-1].Amount))
		}
	})

	t.Run("seller cannot bid regardless of amount", func(t *testing.T) {
		a := newTestAuction(t, now)
		_, err := a.ApplyBid(a.SellerID, "seller", values.MustNewMoneyFromFloat(9999, values.USD), now.Add(time.Minute), softClose)
		assert.ErrorIs(t, err, errors.ErrSelfBid)
		assert.Empty(t, a.Bids)
	})

	t.Run("closed auction rejects bids", func(t *testing.T) {
		a := newTestAuction(t, now)
		a.Status = StatusCompleted
		_, err := a.ApplyBid(uuid.New(), "x", values.MustNewMoneyFromFloat(150, values.USD), now.Add(time.Minute), softClose)
		assert.ErrorIs(t, err, errors.ErrAuctionClosed)
	})

	t.Run("expired auction rejects bids", func(t *testing.T) {
		a := newTestAuction(t, now)
		_, err := a.ApplyBid(uuid.New(), "x", values.MustNewMoneyFromFloat(150, values.USD), now.Add(11*time.Minute), softClose)
		assert.ErrorIs(t, err, errors.ErrAuctionExpired)
	})
}

func TestAuction_SoftClose(t *testing.T) {
	start := time.Now()
	a := newTestAuction(t, start) // ends at start+10m

	// Bid with more than the window remaining leaves the end time alone.
	at := start.Add(1 * time.Minute)
	_, err := a.ApplyBid(uuid.New(), "X", values.MustNewMoneyFromFloat(150, values.USD), at, softClose)
	require.NoError(t, err)
	assert.True(t, a.EndTime.Equal(start.Add(10*time.Minute)))

	// Bid one minute before the end resets the countdown to now+window.
	at = start.Add(9 * time.Minute)
	_, err = a.ApplyBid(uuid.New(), "Y", values.MustNewMoneyFromFloat(160, values.USD), at, softClose)
	require.NoError(t, err)
	assert.True(t, a.EndTime.Equal(at.Add(softClose)), "end time should be acceptance time + window")

	// A re-bid at the old winning price loses.
	_, err = a.ApplyBid(uuid.New(), "X", values.MustNewMoneyFromFloat(150, values.USD), at.Add(time.Second), softClose)
	assert.ErrorIs(t, err, errors.ErrBidTooLow)
}

func TestAuction_Finalize(t *testing.T) {
	start := time.Now()

	t.Run("with bids completes and picks last bidder", func(t *testing.T) {
		a := newTestAuction(t, start)
		winner := uuid.New()
		_, err := a.ApplyBid(uuid.New(), "x", values.MustNewMoneyFromFloat(150, values.USD), start.Add(time.Minute), softClose)
		require.NoError(t, err)
		_, err = a.ApplyBid(winner, "y", values.MustNewMoneyFromFloat(160, values.USD), start.Add(2*time.Minute), softClose)
		require.NoError(t, err)

		out := a.Finalize(start.Add(11 * time.Minute))
		assert.True(t, out.Finalized)
		assert.True(t, out.Sold)
		assert.Equal(t, winner, out.WinnerID)
		assert.Equal(t, StatusCompleted, a.Status)
		require.NotNil(t, a.WinnerID)
		assert.Equal(t, winner, *a.WinnerID)
	})

	t.Run("without bids goes unsold with no winner", func(t *testing.T) {
		a := newTestAuction(t, start)
		out := a.Finalize(start.Add(11 * time.Minute))
		assert.True(t, out.Finalized)
		assert.False(t, out.Sold)
		assert.Equal(t, StatusUnsold, a.Status)
		assert.Nil(t, a.WinnerID)
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		a := newTestAuction(t, start)
		first := a.Finalize(start.Add(11 * time.Minute))
		assert.True(t, first.Finalized)

		second := a.Finalize(start.Add(12 * time.Minute))
		assert.False(t, second.Finalized)
		assert.Equal(t, StatusUnsold, a.Status)
	})

	t.Run("skips when a late bid extended the deadline", func(t *testing.T) {
		a := newTestAuction(t, start)
		_, err := a.ApplyBid(uuid.New(), "x", values.MustNewMoneyFromFloat(150, values.USD), start.Add(9*time.Minute+30*time.Second), softClose)
		require.NoError(t, err)

		out := a.Finalize(start.Add(10*time.Minute + 1*time.Second))
		assert.False(t, out.Finalized)
		assert.Equal(t, StatusActive, a.Status)
	})
}

func TestAuction_EscrowTransitions(t *testing.T) {
	start := time.Now()
	winner := uuid.New()

	finished := func(t *testing.T) *Auction {
		a := newTestAuction(t, start)
		_, err := a.ApplyBid(winner, "w", values.MustNewMoneyFromFloat(150, values.USD), start.Add(time.Minute), softClose)
		require.NoError(t, err)
		a.Finalize(start.Add(20 * time.Minute))
		require.Equal(t, StatusCompleted, a.Status)
		return a
	}

	t.Run("happy path completed -> escrow -> closed", func(t *testing.T) {
		a := finished(t)
		require.NoError(t, a.MarkPaid(winner, start.Add(21*time.Minute)))
		assert.Equal(t, StatusPaidHeldInEscrow, a.Status)
		require.NoError(t, a.ConfirmReceipt(winner, start.Add(22*time.Minute)))
		assert.Equal(t, StatusClosed, a.Status)
	})

	t.Run("receipt before payment is invalid state", func(t *testing.T) {
		a := finished(t)
		err := a.ConfirmReceipt(winner, start.Add(21*time.Minute))
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidState))
		assert.Equal(t, StatusCompleted, a.Status)
	})

	t.Run("double payment confirmation is invalid state", func(t *testing.T) {
		a := finished(t)
		require.NoError(t, a.MarkPaid(winner, start.Add(21*time.Minute)))
		err := a.MarkPaid(winner, start.Add(22*time.Minute))
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidState))
	})

	t.Run("double receipt confirmation is invalid state", func(t *testing.T) {
		a := finished(t)
		require.NoError(t, a.MarkPaid(winner, start.Add(21*time.Minute)))
		require.NoError(t, a.ConfirmReceipt(winner, start.Add(22*time.Minute)))
		err := a.ConfirmReceipt(winner, start.Add(23*time.Minute))
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidState))
	})

	t.Run("non-winner may not pay or release", func(t *testing.T) {
		a := finished(t)
		stranger := uuid.New()
		assert.True(t, errors.IsType(a.MarkPaid(stranger, start), errors.ErrorTypeForbidden))
		require.NoError(t, a.MarkPaid(winner, start))
		assert.True(t, errors.IsType(a.ConfirmReceipt(stranger, start), errors.ErrorTypeForbidden))
	})
}

func TestCapabilitiesFor(t *testing.T) {
	now := time.Now()
	a := newTestAuction(t, now)
	seller := &user.User{ID: a.SellerID, Role: user.RoleUser}
	stranger := &user.User{ID: uuid.New(), Role: user.RoleUser}
	admin := &user.User{ID: uuid.New(), Role: user.RoleAdmin}

	t.Run("seller may edit and delete but never bid", func(t *testing.T) {
		caps := CapabilitiesFor(seller, a, DeletePolicy{})
		assert.False(t, caps.CanBid)
		assert.True(t, caps.CanEdit)
		assert.True(t, caps.CanDelete)
	})

	t.Run("stranger may bid only", func(t *testing.T) {
		caps := CapabilitiesFor(stranger, a, DeletePolicy{})
		assert.True(t, caps.CanBid)
		assert.False(t, caps.CanEdit)
		assert.False(t, caps.CanDelete)
	})

	t.Run("bids block deletion unless admin override", func(t *testing.T) {
		_, err := a.ApplyBid(stranger.ID, "s", values.MustNewMoneyFromFloat(150, values.USD), now.Add(time.Minute), softClose)
		require.NoError(t, err)

		assert.False(t, CapabilitiesFor(seller, a, DeletePolicy{}).CanDelete)
		assert.False(t, CapabilitiesFor(admin, a, DeletePolicy{}).CanDelete)
		assert.True(t, CapabilitiesFor(admin, a, DeletePolicy{AdminOverridesBids: true}).CanDelete)
		assert.False(t, CapabilitiesFor(seller, a, DeletePolicy{AdminOverridesBids: true}).CanDelete)
	})

	t.Run("winner may release funds only while escrowed", func(t *testing.T) {
		a := newTestAuction(t, now)
		_, err := a.ApplyBid(stranger.ID, "s", values.MustNewMoneyFromFloat(150, values.USD), now.Add(time.Minute), softClose)
		require.NoError(t, err)
		a.Finalize(now.Add(20 * time.Minute))
		require.NoError(t, a.MarkPaid(stranger.ID, now.Add(21*time.Minute)))

		assert.True(t, CapabilitiesFor(stranger, a, DeletePolicy{}).CanReleaseFunds)
		assert.False(t, CapabilitiesFor(seller, a, DeletePolicy{}).CanReleaseFunds)

		require.NoError(t, a.ConfirmReceipt(stranger.ID, now.Add(22*time.Minute)))
		assert.False(t, CapabilitiesFor(stranger, a, DeletePolicy{}).CanReleaseFunds)
	})

	t.Run("nil actor has no capabilities", func(t *testing.T) {
		assert.Equal(t, Capabilities{}, CapabilitiesFor(nil, a, DeletePolicy{}))
	})
}
