package user

import "github.com/google/uuid"

// Role is the capability level of a platform user. The unified "user" role
// can both sell and bid; "bidder" and "seller" are legacy single-purpose
// roles still present in stored data.
type Role string

const (
	RoleUser   Role = "user"
	RoleBidder Role = "bidder"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// User is a reference to an identity owned by the external auth service.
// The auction core reads it, never writes it.
type User struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Role            Role        `json:"role"`
	BlockedUserIDs  []uuid.UUID `json:"blocked_users,omitempty"`
	StripeAccountID string      `json:"-"`
}

// HasBlocked reports whether this user (as a seller) has blocked the given bidder.
func (u *User) HasBlocked(id uuid.UUID) bool {
	for _, blocked := range u.BlockedUserIDs {
		if blocked == id {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
