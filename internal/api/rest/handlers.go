package rest

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/domain/errors"
	"github.com/smri29/BidPulse/internal/domain/values"
	"github.com/smri29/BidPulse/internal/service/marketplace"
	"github.com/smri29/BidPulse/internal/service/payment"
)

// MarketplaceService is the catalog surface the handlers call.
type MarketplaceService interface {
	CreateAuction(ctx context.Context, in marketplace.CreateAuctionInput) (*auction.Auction, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	GetBids(ctx context.Context, id uuid.UUID) ([]auction.Bid, error)
	ListAuctions(ctx context.Context, filter marketplace.ListFilter) ([]*auction.Auction, error)
	CapabilitiesFor(ctx context.Context, auctionID, actorID uuid.UUID) (auction.Capabilities, error)
	DeleteAuction(ctx context.Context, auctionID, actorID uuid.UUID) error
}

// BiddingService is the bid acceptance surface.
type BiddingService interface {
	PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, bidderName string, amount values.Money) (*auction.Auction, error)
}

// PaymentService is the escrow surface.
type PaymentService interface {
	CreateCheckout(ctx context.Context, auctionID, payerID uuid.UUID, shipping *auction.ShippingDetails) (*payment.CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ReleaseFunds(ctx context.Context, auctionID, confirmerID uuid.UUID) error
}

const maxWebhookBody = 1 << 16

// Handler holds the HTTP endpoints.
type Handler struct {
	marketplace MarketplaceService
	bidding     BiddingService
	payments    PaymentService
	version     string
}

func NewHandler(marketplaceSvc MarketplaceService, biddingSvc BiddingService, paymentSvc PaymentService, version string) *Handler {
	return &Handler{
		marketplace: marketplaceSvc,
		bidding:     biddingSvc,
		payments:    paymentSvc,
		version:     version,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: nowUTC(),
	})
}

func (h *Handler) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	filter := marketplace.ListFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	auctions, err := h.marketplace.ListAuctions(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if auctions == nil {
		auctions = []*auction.Auction{}
	}
	writeJSON(w, http.StatusOK, auctionListResponse{Auctions: auctions})
}

func (h *Handler) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, errors.NewUnauthorizedError("Authorization required"))
		return
	}

	var req CreateAuctionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	price, err := values.NewMoneyFromFloat(req.StartingPrice, values.USD)
	if err != nil {
		writeError(w, r, errors.NewValidationError("INVALID_STARTING_PRICE", err.Error()))
		return
	}

	created, err := h.marketplace.CreateAuction(r.Context(), marketplace.CreateAuctionInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		StartingPrice: price,
		EndTime:       req.EndTime,
		Images:        req.Images,
		SellerID:      sellerID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.marketplace.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := auctionDetailResponse{Auction: a}
	if actorID, ok := userIDFrom(r.Context()); ok {
		if caps, err := h.marketplace.CapabilitiesFor(r.Context(), id, actorID); err == nil {
			resp.Capabilities = &caps
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actorID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, errors.NewUnauthorizedError("Authorization required"))
		return
	}

	if err := h.marketplace.DeleteAuction(r.Context(), id, actorID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Auction deleted"})
}

func (h *Handler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	bidderID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, errors.NewUnauthorizedError("Authorization required"))
		return
	}

	var req PlaceBidRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := values.NewMoneyFromFloat(req.Amount, values.USD)
	if err != nil {
		writeError(w, r, errors.NewValidationError("INVALID_BID_AMOUNT", err.Error()))
		return
	}

	updated, err := h.bidding.PlaceBid(r.Context(), id, bidderID, userNameFrom(r.Context()), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleGetBids(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "auctionId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	bids, err := h.marketplace.GetBids(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bids == nil {
		bids = []auction.Bid{}
	}
	writeJSON(w, http.StatusOK, bidListResponse{AuctionID: id.String(), Bids: bids})
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "auctionId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	payerID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, errors.NewUnauthorizedError("Authorization required"))
		return
	}

	var req CheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var shipping *auction.ShippingDetails
	if req.Shipping != nil {
		shipping = &auction.ShippingDetails{
			Name:       req.Shipping.Name,
			Address:    req.Shipping.Address,
			City:       req.Shipping.City,
			PostalCode: req.Shipping.PostalCode,
			Country:    req.Shipping.Country,
			Phone:      req.Shipping.Phone,
		}
	}

	session, err := h.payments.CreateCheckout(r.Context(), id, payerID, shipping)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{SessionID: session.ID, URL: session.URL})
}

func (h *Handler) handleReleaseFunds(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "auctionId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	confirmerID, ok := userIDFrom(r.Context())
	if !ok {
		writeError(w, r, errors.NewUnauthorizedError("Authorization required"))
		return
	}

	if err := h.payments.ReleaseFunds(r.Context(), id, confirmerID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Funds released"})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, errors.NewValidationError("INVALID_BODY", "Failed to read webhook payload"))
		return
	}
	defer r.Body.Close()

	if err := h.payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "received"})
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, errors.NewValidationError("INVALID_ID", "Invalid "+name+" in path")
	}
	return id, nil
}
