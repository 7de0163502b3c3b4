package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

var stripePaymentMethods = []string{"card", "link", "crypto"}

// checkoutSessionAPI is the subset of the Stripe SDK used here.
type checkoutSessionAPI interface {
	New(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessionWrapper struct{}

func (stripeSessionWrapper) New(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return session.New(params)
}

func (stripeSessionWrapper) Get(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return session.Get(id, params)
}

type stripeClientImpl struct {
	sessions  checkoutSessionAPI
	secretKey string
}

func NewStripeClient(cfg *config.Stripe) GatewayClient {
	key := strings.TrimSpace(cfg.SecretKey)
	if key != "" {
		stripe.Key = key
	}
	return &stripeClientImpl{sessions: stripeSessionWrapper{}, secretKey: key}
}

func (c *stripeClientImpl) Provider() model.Provider { return model.ProviderStripe }

func (c *stripeClientImpl) CreateOrder(ctx context.Context, in *model.OrderRequest) (*model.Order, error) {
	if c.secretKey == "" {
		return nil, apperr.Configuration("Stripe API key not configured")
	}

	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = "usd"
	}
	items := in.Items
	if items == nil {
		items = []*model.OrderItem{}
	}
	orderItems, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal order items: %w", err)
	}
	metadata := map[string]string{
		"customer_id": in.Metadata.CustomerID,
		"order_items": string(orderItems),
		"reference":   in.Reference,
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice(stripePaymentMethods),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(in.Name),
						Description: stripe.String(in.Description),
					},
					UnitAmount: stripe.Int64(toCents(in.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(in.Reference),
		SuccessURL:        stripe.String(in.Metadata.SuccessURL),
		CancelURL:         stripe.String(in.Metadata.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if in.Metadata.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.Metadata.CustomerEmail)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := c.sessions.New(ctx, params)
	if err != nil {
		return nil, stripeError(err, "create checkout session")
	}

	order := StripeOrder(sess)
	order.Reference = in.Reference
	if order.PriceAmount.IsZero() {
		order.PriceAmount = in.Amount
		order.PriceCurrency = strings.ToUpper(currency)
	}
	return order, nil
}

func (c *stripeClientImpl) GetStatus(ctx context.Context, sessionID string) (*model.Order, error) {
	if err := requireOrderID(c.Provider(), sessionID); err != nil {
		return nil, err
	}
	if c.secretKey == "" {
		return nil, apperr.Configuration("Stripe API key not configured")
	}

	sess, err := c.sessions.Get(ctx, sessionID, &stripe.CheckoutSessionParams{})
	if err != nil {
		return nil, stripeError(err, "get checkout session")
	}
	return StripeOrder(sess), nil
}

// StripeOrder maps a checkout session to an order.
func StripeOrder(sess *stripe.CheckoutSession) *model.Order {
	status := string(sess.PaymentStatus)
	if sess.Status == stripe.CheckoutSessionStatusExpired {
		status = string(sess.Status)
	}
	order := &model.Order{
		OrderID:       sess.ID,
		Provider:      model.ProviderStripe,
		Reference:     sess.ClientReferenceID,
		Status:        status,
		Outcome:       model.StripeSessionOutcome(string(sess.Status), string(sess.PaymentStatus)),
		Completion:    model.CompletionRedirect,
		PriceAmount:   decimal.New(sess.AmountTotal, -2),
		PriceCurrency: strings.ToUpper(string(sess.Currency)),
		RedirectURL:   sess.URL,
	}
	if sess.ExpiresAt > 0 {
		order.ExpiresAt = model.Expiry(time.Unix(sess.ExpiresAt, 0))
	}
	return order
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// stripeError keeps the provider's HTTP status when the SDK reports one.
func stripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 {
		return fmt.Errorf("%s: %w", op, apperr.NewGatewayError(string(model.ProviderStripe), stripeErr.HTTPStatusCode, stripeErr.Msg))
	}
	return apperr.Transient(err, "stripe "+op)
}
