package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ws "github.com/smri29/BidPulse/internal/api/websocket"
	"github.com/smri29/BidPulse/internal/infrastructure/config"
)

// RouterDeps bundles what the router wires together.
type RouterDeps struct {
	Handler    *Handler
	Auth       *AuthMiddleware
	WSHandler  *ws.Handler
	Registry   *prometheus.Registry
	RateLimit  config.RateLimitConfig
}

// NewRouter builds the HTTP routing table. Reads are public (with optional
// identity for personalization); writes require a verified token; the
// webhook authenticates itself through its provider signature.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	h := deps.Handler
	auth := deps.Auth

	mux.HandleFunc("GET /health", h.handleHealth)
	if deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	mux.Handle("GET /api/auctions", auth.Optional(http.HandlerFunc(h.handleListAuctions)))
	mux.Handle("POST /api/auctions", auth.Require(http.HandlerFunc(h.handleCreateAuction)))
	mux.Handle("GET /api/auctions/{id}", auth.Optional(http.HandlerFunc(h.handleGetAuction)))
	mux.Handle("DELETE /api/auctions/{id}", auth.Require(http.HandlerFunc(h.handleDeleteAuction)))
	mux.Handle("POST /api/auctions/{id}/bid", auth.Require(http.HandlerFunc(h.handlePlaceBid)))
	mux.Handle("GET /api/bids/{auctionId}", http.HandlerFunc(h.handleGetBids))

	mux.Handle("POST /api/payment/checkout/{auctionId}", auth.Require(http.HandlerFunc(h.handleCheckout)))
	mux.Handle("POST /api/payment/release/{auctionId}", auth.Require(http.HandlerFunc(h.handleReleaseFunds)))
	mux.HandleFunc("POST /api/webhook", h.handleWebhook)

	if deps.WSHandler != nil {
		mux.Handle("GET /ws", deps.WSHandler)
	}

	limiter := newIPRateLimiter(deps.RateLimit.RequestsPerSecond, deps.RateLimit.BurstSize)

	return chain(mux,
		requestIDMiddleware,
		loggingMiddleware,
		recoveryMiddleware,
		securityHeadersMiddleware,
		corsMiddleware,
		limiter.Middleware,
	)
}
