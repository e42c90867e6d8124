package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/smri29/BidPulse/internal/domain/auction"
	"github.com/smri29/BidPulse/internal/infrastructure/cache"
	"github.com/smri29/BidPulse/internal/infrastructure/config"
	"github.com/smri29/BidPulse/internal/infrastructure/database"
	"github.com/smri29/BidPulse/internal/infrastructure/events"
	"github.com/smri29/BidPulse/internal/infrastructure/repository"
	"github.com/smri29/BidPulse/internal/infrastructure/telemetry"
	"github.com/smri29/BidPulse/internal/metrics"
	"github.com/smri29/BidPulse/internal/service/closer"
)

// The closer can run inside the api process; this binary exists for
// deployments that want the sweep isolated from request serving. Running
// both at once is safe: finalization is guarded by the conditional write.
func main() {
	configPath := flag.String("config", "", "path to config file")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, *once); err != nil && err != context.Canceled {
		slog.Error("closer failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, once bool) error {
	logger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := database.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(&cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	auctionRepo := repository.NewAuctionRepository(pool, logger)
	bus := events.NewRedisBus(redisClient, logger)
	m := metrics.New(nil)

	worker := closer.NewWorker(auctionRepo, bus, m, auction.RealClock{}, logger, cfg.Auction.SweepInterval)

	if once {
		return worker.RunSweep(ctx)
	}
	return worker.Run(ctx)
}
