package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/smri29/BidPulse/internal/infrastructure/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dir := flag.String("dir", "migrations", "migrations directory")
	down := flag.Bool("down", false, "roll back one migration instead of migrating up")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg.Database.URL, *dir, *down); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(databaseURL, dir string, down bool) error {
	// The pgx/v5 migrate driver registers under its own scheme.
	url := databaseURL
	if rest, ok := strings.CutPrefix(url, "postgres://"); ok {
		url = "pgx5://" + rest
	}

	m, err := migrate.New("file://"+dir, url)
	if err != nil {
		return err
	}
	defer m.Close()

	if down {
		if err := m.Steps(-1); err != nil {
			return err
		}
		slog.Info("rolled back one migration")
		return nil
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database is up to date")
			return nil
		}
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	slog.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}
