package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/smri29/BidPulse/internal/domain/auction"
	domainErrors "github.com/smri29/BidPulse/internal/domain/errors"
)

const auctionColumns = `
	id, title, description, category,
	starting_price::text, current_price::text,
	start_time, end_time, images, seller_id, winner_id,
	status, shipping, version, created_at, updated_at`

// AuctionRepository is the PostgreSQL auction record store. Bids live in a
// separate append-only table keyed by (auction_id, seq); current_price,
// winner_id and version are cached on the auction row and written
// transactionally with new bids, so a snapshot is always self-consistent.
type AuctionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewAuctionRepository(pool *pgxpool.Pool, logger *zap.Logger) *AuctionRepository {
	return &AuctionRepository{pool: pool, logger: logger}
}

// Create stores a new auction. The caller constructs it via auction.New, so
// the active status and seeded current price are already in place.
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	shipping, err := marshalShipping(a.Shipping)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO auctions (
			id, title, description, category,
			starting_price, current_price,
			start_time, end_time, images, seller_id, winner_id,
			status, shipping, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`

	_, err = r.pool.Exec(ctx, query,
		a.ID, a.Title, a.Description, string(a.Category),
		a.StartingPrice.Amount().String(), a.CurrentPrice.Amount().String(),
		a.StartTime, a.EndTime, a.Images, a.SellerID, winnerParam(a.WinnerID),
		string(a.Status), shipping, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	return nil
}

// GetByID returns one auction snapshot with its full bid history.
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)

	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	if err := r.loadBids(ctx, map[uuid.UUID]*auction.Auction{a.ID: a}); err != nil {
		return nil, err
	}

	return a, nil
}

// List returns all auctions, newest first, each with its bid history.
func (r *AuctionRepository) List(ctx context.Context) ([]*auction.Auction, error) {
	return r.list(ctx, `SELECT `+auctionColumns+` FROM auctions ORDER BY created_at DESC`)
}

// ListActive returns auctions still open for bidding, newest first.
func (r *AuctionRepository) ListActive(ctx context.Context) ([]*auction.Auction, error) {
	return r.list(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status = $1 ORDER BY created_at DESC`,
		string(auction.StatusActive))
}

// ListExpired returns active auctions whose end time has passed; the closer
// sweep finalizes each one through ApplyUpdate.
func (r *AuctionRepository) ListExpired(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	return r.list(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status = $1 AND end_time < $2 ORDER BY end_time`,
		string(auction.StatusActive), now)
}

// ApplyUpdate atomically reads, mutates and writes one auction. The write is
// conditional on the version read, so two writers racing on the same auction
// cannot both win; the loser gets ErrUpdateConflict and must re-validate
// against a fresh snapshot. A mutation returning auction.ErrNoChange aborts
// without touching the row.
func (r *AuctionRepository) ApplyUpdate(ctx context.Context, id uuid.UUID, mutate func(*auction.Auction) error) (*auction.Auction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to read auction: %w", err)
	}

	if err := r.loadBidsTx(ctx, tx, a); err != nil {
		return nil, err
	}
	existingBids := len(a.Bids)
	readVersion := a.Version

	if err := mutate(a); err != nil {
		return nil, err
	}

	shipping, err := marshalShipping(a.Shipping)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE auctions SET
			current_price = $1, end_time = $2, winner_id = $3,
			status = $4, shipping = $5, updated_at = $6,
			version = version + 1
		WHERE id = $7 AND version = $8`,
		a.CurrentPrice.Amount().String(), a.EndTime, winnerParam(a.WinnerID),
		string(a.Status), shipping, a.UpdatedAt,
		a.ID, readVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// The row moved (or vanished) between our read and write.
		return nil, domainErrors.ErrUpdateConflict
	}

	for i := existingBids; i < len(a.Bids); i++ {
		b := a.Bids[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO bids (id, auction_id, seq, bidder_id, bidder_name, amount, placed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			b.ID, b.AuctionID, i+1, b.BidderID, b.BidderName, b.Amount.Amount().String(), b.PlacedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to append bid: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit auction update: %w", err)
	}

	a.Version = readVersion + 1
	return a, nil
}

// Delete removes an auction. Auctions with bids are protected; force is the
// administrative override controlled by policy.
func (r *AuctionRepository) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var bidCount int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM bids WHERE auction_id = $1`, id).Scan(&bidCount)
	if err != nil {
		return fmt.Errorf("failed to count bids: %w", err)
	}
	if bidCount > 0 && !force {
		return domainErrors.NewConflictError("Cannot delete auction with active bids")
	}

	tag, err := tx.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrAuctionNotFound
	}

	return tx.Commit(ctx)
}

func (r *AuctionRepository) list(ctx context.Context, query string, args ...any) ([]*auction.Auction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*auction.Auction)
	var out []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		byID[a.ID] = a
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate auctions: %w", err)
	}

	if err := r.loadBids(ctx, byID); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *AuctionRepository) loadBids(ctx context.Context, auctions map[uuid.UUID]*auction.Auction) error {
	if len(auctions) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(auctions))
	for id := range auctions {
		ids = append(ids, id)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, auction_id, bidder_id, bidder_name, amount::text, placed_at
		FROM bids WHERE auction_id = ANY($1) ORDER BY auction_id, seq`, ids)
	if err != nil {
		return fmt.Errorf("failed to load bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b auction.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.BidderName, &b.Amount, &b.PlacedAt); err != nil {
			return fmt.Errorf("failed to scan bid: %w", err)
		}
		if a, ok := auctions[b.AuctionID]; ok {
			a.Bids = append(a.Bids, b)
		}
	}
	return rows.Err()
}

func (r *AuctionRepository) loadBidsTx(ctx context.Context, tx pgx.Tx, a *auction.Auction) error {
	rows, err := tx.Query(ctx, `
		SELECT id, auction_id, bidder_id, bidder_name, amount::text, placed_at
		FROM bids WHERE auction_id = $1 ORDER BY seq`, a.ID)
	if err != nil {
		return fmt.Errorf("failed to load bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b auction.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.BidderName, &b.Amount, &b.PlacedAt); err != nil {
			return fmt.Errorf("failed to scan bid: %w", err)
		}
		a.Bids = append(a.Bids, b)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*auction.Auction, error) {
	var (
		a        auction.Auction
		category string
		status   string
		winner   pgtype.UUID
		shipping []byte
	)

	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &category,
		&a.StartingPrice, &a.CurrentPrice,
		&a.StartTime, &a.EndTime, &a.Images, &a.SellerID, &winner,
		&status, &shipping, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Category = auction.Category(category)
	parsed, err := auction.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	a.Status = parsed

	if winner.Valid {
		id := uuid.UUID(winner.Bytes)
		a.WinnerID = &id
	}

	if len(shipping) > 0 {
		var s auction.ShippingDetails
		if err := json.Unmarshal(shipping, &s); err != nil {
			return nil, fmt.Errorf("failed to decode shipping details: %w", err)
		}
		a.Shipping = &s
	}

	return &a, nil
}

func marshalShipping(s *auction.ShippingDetails) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shipping details: %w", err)
	}
	return data, nil
}

func winnerParam(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}
