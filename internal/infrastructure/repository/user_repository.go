package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/smri29/BidPulse/internal/domain/errors"
	"github.com/smri29/BidPulse/internal/domain/user"
)

// UserRepository reads user records owned by the external identity service.
// The auction core only ever needs lookups; it never writes users.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns one user, including the seller block-list.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var (
		u       user.User
		role    string
		blocked []uuid.UUID
		stripe  pgtype.Text
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, blocked_users, stripe_account_id
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &role, &blocked, &stripe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Role = user.Role(role)
	u.BlockedUserIDs = blocked
	if stripe.Valid {
		u.StripeAccountID = stripe.String
	}

	return &u, nil
}
