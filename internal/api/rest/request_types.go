package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/smri29/BidPulse/internal/domain/errors"
)

var validate = validator.New()

// CreateAuctionRequest is the listing creation payload.
type CreateAuctionRequest struct {
	Title         string    `json:"title" validate:"required,min=3,max=200"`
	Description   string    `json:"description" validate:"required,min=10,max=5000"`
	Category      string    `json:"category" validate:"required"`
	StartingPrice float64   `json:"startingPrice" validate:"required,gt=0"`
	EndTime       time.Time `json:"endTime" validate:"required"`
	Images        []string  `json:"images" validate:"max=10,dive,url"`
}

// PlaceBidRequest is the bid payload.
type PlaceBidRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// CheckoutRequest carries optional shipping details collected at checkout.
type CheckoutRequest struct {
	Shipping *ShippingRequest `json:"shippingDetails,omitempty" validate:"omitempty"`
}

// ShippingRequest mirrors the stored shipping details.
type ShippingRequest struct {
	Name       string `json:"name" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone"`
}

// decodeAndValidate parses the JSON body into dst and runs struct validation.
func decodeAndValidate(r *http.Request, dst any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError("INVALID_BODY", "Request body is not valid JSON")
	}

	if err := validate.Struct(dst); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			return errors.NewValidationError("INVALID_FIELD",
				"Invalid value for field: "+fieldErrs[0].Field())
		}
		return errors.NewValidationError("INVALID_BODY", "Request failed validation")
	}
	return nil
}
