package auction

import (
	"github.com/smri29/BidPulse/internal/domain/user"
)

// Capabilities is the unified answer to "what may this actor do with this
// auction". Endpoints consult it instead of re-deriving role/ownership rules.
type Capabilities struct {
	CanBid          bool `json:"canBid"`
	CanEdit         bool `json:"canEdit"`
	CanDelete       bool `json:"canDelete"`
	CanReleaseFunds bool `json:"canReleaseFunds"`
}

// DeletePolicy controls whether admins may delete auctions that already have
// bids. Sellers never can.
type DeletePolicy struct {
	AdminOverridesBids bool
}

// CapabilitiesFor computes the actor's capabilities against one auction.
// CanBid covers only the relationship checks; the seller's block-list needs a
// user-store read and is enforced by the bid acceptance service.
func CapabilitiesFor(actor *user.User, a *Auction, policy DeletePolicy) Capabilities {
	if actor == nil {
		return Capabilities{}
	}

	isOwner := actor.ID == a.SellerID
	isAdmin := actor.IsAdmin()

	canDelete := false
	if isOwner || isAdmin {
		if !a.HasBids() {
			canDelete = true
		} else if isAdmin && policy.AdminOverridesBids {
			canDelete = true
		}
	}

	return Capabilities{
		CanBid:          !isOwner && a.Status == StatusActive,
		CanEdit:         isOwner || isAdmin,
		CanDelete:       canDelete,
		CanReleaseFunds: a.WinnerID != nil && *a.WinnerID == actor.ID && a.Status == StatusPaidHeldInEscrow,
	}
}
