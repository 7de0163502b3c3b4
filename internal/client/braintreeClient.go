package client

import (
	"context"
	"fmt"
	"strings"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
)

// --- INTERFACE ---

type BraintreeClient interface {
	GatewayClient

	// VaultPaymentMethod takes a frontend nonce and creates a customer, returning a permanent payment token
	VaultPaymentMethod(ctx context.Context, nonce, email string) (string, error)

	// ChargeOneTime charges a vaulted payment token for a specific amount
	ChargeOneTime(ctx context.Context, paymentToken string, amount decimal.Decimal, reference string) (*braintree.Transaction, error)
}

// --- IMPLEMENTATION ---

type braintreeClientImpl struct {
	gateway    *braintree.Braintree
	configured bool
}

// NewBraintreeClient initializes the Braintree SDK gateway
func NewBraintreeClient(cfg *config.Braintree) BraintreeClient {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}
	return newBraintreeClient(env, cfg)
}

func newBraintreeClient(env braintree.Environment, cfg *config.Braintree) *braintreeClientImpl {
	return &braintreeClientImpl{
		gateway:    braintree.New(env, cfg.MerchantID, cfg.PublicKey, cfg.PrivateKey),
		configured: cfg.MerchantID != "" && cfg.PublicKey != "" && cfg.PrivateKey != "",
	}
}

// --- METHODS ---

func (c *braintreeClientImpl) Provider() model.Provider { return model.ProviderBraintree }

func (c *braintreeClientImpl) VaultPaymentMethod(ctx context.Context, nonce, email string) (string, error) {
	req := &braintree.CustomerRequest{
		PaymentMethodNonce: nonce,
		Email:              email,
	}

	customer, err := c.gateway.Customer().Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to vault payment method: %w", err)
	}

	if customer.DefaultPaymentMethod() == nil {
		return "", fmt.Errorf("no default payment method returned from vault")
	}

	return customer.DefaultPaymentMethod().GetToken(), nil
}

func (c *braintreeClientImpl) ChargeOneTime(ctx context.Context, paymentToken string, amount decimal.Decimal, reference string) (*braintree.Transaction, error) {
	// Braintree expects NewDecimal(unscaled, scale): "50.00" -> NewDecimal(5000, 2)
	btAmount := braintree.NewDecimal(toCents(amount), 2)

	req := &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             btAmount,
		OrderId:            reference,
		PaymentMethodToken: paymentToken,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true, // Captures the funds immediately
		},
	}

	tx, err := c.gateway.Transaction().Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transaction creation failed: %w", err)
	}
	return tx, nil
}

// CreateOrder vaults the nonce and charges it in one step; the result is known immediately.
func (c *braintreeClientImpl) CreateOrder(ctx context.Context, in *model.OrderRequest) (*model.Order, error) {
	if !c.configured {
		return nil, apperr.Configuration("Braintree credentials not configured")
	}
	if in.Metadata.PaymentNonce == "" {
		return nil, apperr.Validation("payment_nonce is required for card payments")
	}

	paymentToken, err := c.VaultPaymentMethod(ctx, in.Metadata.PaymentNonce, in.Metadata.CustomerEmail)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstream, err, "braintree vault")
	}

	tx, err := c.ChargeOneTime(ctx, paymentToken, in.Amount, in.Reference)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstream, err, "braintree charge")
	}

	order := BraintreeOrder(tx)
	if order.Reference == "" {
		order.Reference = in.Reference
	}
	if order.PriceAmount.IsZero() {
		order.PriceAmount = in.Amount
	}
	if order.PriceCurrency == "" {
		order.PriceCurrency = strings.ToUpper(in.Currency)
	}
	return order, nil
}

func (c *braintreeClientImpl) GetStatus(ctx context.Context, transactionID string) (*model.Order, error) {
	if err := requireOrderID(c.Provider(), transactionID); err != nil {
		return nil, err
	}
	if !c.configured {
		return nil, apperr.Configuration("Braintree credentials not configured")
	}

	tx, err := c.gateway.Transaction().Find(ctx, transactionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstream, err, "braintree find transaction")
	}
	return BraintreeOrder(tx), nil
}

func BraintreeOrder(tx *braintree.Transaction) *model.Order {
	status := model.BraintreeStatus(tx.Status)
	order := &model.Order{
		OrderID:       tx.Id,
		Provider:      model.ProviderBraintree,
		Reference:     tx.OrderId,
		Status:        string(status),
		Outcome:       status.Outcome(),
		Completion:    model.CompletionImmediate,
		PriceCurrency: strings.ToUpper(tx.CurrencyISOCode),
	}
	if tx.Amount != nil {
		order.PriceAmount = decimal.New(tx.Amount.Unscaled, -int32(tx.Amount.Scale))
	}
	return order
}
