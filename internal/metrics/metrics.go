package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the auction-domain instruments. All recording methods are
// nil-safe so wiring metrics stays optional in tests.
type Metrics struct {
	bidsPlaced        prometheus.Counter
	bidsRejected      *prometheus.CounterVec
	bidDuration       prometheus.Histogram
	auctionsFinalized *prometheus.CounterVec
	sweepFailures     prometheus.Counter
	paymentsConfirmed prometheus.Counter
	fundsReleased     prometheus.Counter
	payoutFailures    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		bidsPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "bidpulse_bids_placed_total",
			Help: "Accepted bids.",
		}),
		bidsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bidpulse_bids_rejected_total",
			Help: "Rejected bids by reason code.",
		}, []string{"reason"}),
		bidDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bidpulse_bid_processing_seconds",
			Help:    "Bid acceptance latency from request to commit.",
			Buckets: prometheus.DefBuckets,
		}),
		auctionsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bidpulse_auctions_finalized_total",
			Help: "Auctions finalized by the sweep, by outcome.",
		}, []string{"outcome"}),
		sweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bidpulse_sweep_failures_total",
			Help: "Auctions the sweep failed to finalize.",
		}),
		paymentsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bidpulse_payments_confirmed_total",
			Help: "Payment-provider confirmations moving auctions into escrow.",
		}),
		fundsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "bidpulse_funds_released_total",
			Help: "Buyer receipt confirmations releasing escrow.",
		}),
		payoutFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bidpulse_payout_failures_total",
			Help: "Best-effort seller payouts that failed and need reconciliation.",
		}),
	}
}

func (m *Metrics) RecordBidPlaced(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bidsPlaced.Inc()
	m.bidDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordBidRejected(reason string) {
	if m == nil {
		return
	}
	m.bidsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordAuctionFinalized(outcome string) {
	if m == nil {
		return
	}
	m.auctionsFinalized.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSweepFailure() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}

func (m *Metrics) RecordPaymentConfirmed() {
	if m == nil {
		return
	}
	m.paymentsConfirmed.Inc()
}

func (m *Metrics) RecordFundsReleased() {
	if m == nil {
		return
	}
	m.fundsReleased.Inc()
}

func (m *Metrics) RecordPayoutFailure() {
	if m == nil {
		return
	}
	m.payoutFailures.Inc()
}
