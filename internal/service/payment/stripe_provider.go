package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeProvider implements Provider against the Stripe API: hosted checkout
// sessions for winners, signed webhooks for payment confirmation, and
// transfers to the seller's connected account for payouts.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api, webhookSecret: webhookSecret}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(cp.Amount.Currency())),
				UnitAmount: stripe.Int64(cp.Amount.ToCents()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(cp.Title),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
	}
	params.AddMetadata("auction_id", cp.AuctionID.String())
	params.AddMetadata("payer_id", cp.PayerID.String())

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) Transfer(ctx context.Context, tp TransferParams) (string, error) {
	t, err := p.api.Transfers.New(&stripe.TransferParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(tp.Amount.ToCents()),
		Currency:    stripe.String(strings.ToLower(tp.Amount.Currency())),
		Destination: stripe.String(tp.Destination),
		Description: stripe.String(tp.Description),
	})
	if err != nil {
		return "", fmt.Errorf("stripe transfer: %w", err)
	}
	return t.ID, nil
}

func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("stripe webhook verification: %w", err)
	}

	out := &WebhookEvent{Type: string(event.Type)}
	if out.Type != WebhookTypeCheckoutCompleted {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("stripe webhook payload: %w", err)
	}

	out.AuctionID, err = uuid.Parse(sess.Metadata["auction_id"])
	if err != nil {
		return nil, fmt.Errorf("stripe webhook auction_id: %w", err)
	}
	out.PayerID, err = uuid.Parse(sess.Metadata["payer_id"])
	if err != nil {
		return nil, fmt.Errorf("stripe webhook payer_id: %w", err)
	}

	return out, nil
}
