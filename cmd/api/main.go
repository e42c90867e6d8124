package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/smri29/BidPulse/internal/api/rest"
	ws "github.com/smri29/BidPulse/internal/api/websocket"
	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/infrastructure/cache"
	"github.com/smri29/BidPulse/internal/infrastructure/config"
	"github.com/smri29/BidPulse/internal/infrastructure/database"
	"github.com/smri29/BidPulse/internal/infrastructure/events"
	"github.com/smri29/BidPulse/internal/infrastructure/repository"
	"github.com/smri29/BidPulse/internal/infrastructure/telemetry"
	"github.com/smri29/BidPulse/internal/metrics"
	"github.com/smri29/BidPulse/internal/service/bidding"
	"github.com/smri29/BidPulse/internal/service/closer"
	"github.com/smri29/BidPulse/internal/service/marketplace"
	"github.com/smri29/BidPulse/internal/service/payment"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(ctx, cfg); err != nil && err != context.Canceled {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting bidpulse api",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port)

	zapLogger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	pool, err := database.NewPool(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(&cfg.Redis, zapLogger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	auctionRepo := repository.NewAuctionRepository(pool, zapLogger)
	userRepo := repository.NewUserRepository(pool)
	bus := events.NewRedisBus(redisClient, zapLogger)
	limiter := cache.NewRedisRateLimiter(redisClient, zapLogger)
	clock := auction.RealClock{}

	biddingSvc := bidding.NewService(auctionRepo, userRepo, limiter, bus, m, clock, zapLogger, bidding.Config{
		SoftCloseWindow: cfg.Auction.SoftCloseWindow,
		BidsPerMinute:   cfg.Security.RateLimit.BidsPerMinute,
	})
	marketplaceSvc := marketplace.NewService(auctionRepo, userRepo, clock, zapLogger, auction.DeletePolicy{
		AdminOverridesBids: cfg.Auction.AdminDeleteWithBids,
	})
	paymentSvc := payment.NewService(auctionRepo, userRepo,
		payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret),
		bus, m, clock, zapLogger, payment.Config{
			CommissionRate: cfg.Auction.CommissionRate,
			SuccessURL:     cfg.Stripe.SuccessURL,
			CancelURL:      cfg.Stripe.CancelURL,
		})
	sweeper := closer.NewWorker(auctionRepo, bus, m, clock, zapLogger, cfg.Auction.SweepInterval)

	auth := rest.NewAuthMiddleware(cfg.Security.JWTSecret)
	hub := ws.NewHub(bus, zapLogger)
	wsHandler := ws.NewHandler(hub, auth.Identity, zapLogger)

	router := rest.NewRouter(rest.RouterDeps{
		Handler:   rest.NewHandler(marketplaceSvc, biddingSvc, paymentSvc, cfg.Version),
		Auth:      auth,
		WSHandler: wsHandler,
		Registry:  registry,
		RateLimit: cfg.Security.RateLimit,
	})
	server := rest.NewServer(cfg.Server, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	err = g.Wait()
	slog.Info("shutdown complete")
	return err
}
