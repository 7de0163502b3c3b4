package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderToken       Provider = "token"
	ProviderStripe      Provider = "stripe"
	ProviderBitPay      Provider = "bitpay"
	ProviderNowPayments Provider = "nowpayments"
	ProviderCoinGate    Provider = "coingate"
	ProviderBraintree   Provider = "braintree"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderToken, ProviderStripe, ProviderBitPay, ProviderNowPayments, ProviderCoinGate, ProviderBraintree:
		return true
	}
	return false
}

// Outcome is the gateway-independent view of a payment status.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) Terminal() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

// Completion tells the orchestrator how a gateway reports the final result.
type Completion string

const (
	CompletionImmediate Completion = "immediate" // result known when CreateOrder returns
	CompletionPoll      Completion = "poll"      // status polled until terminal
	CompletionRedirect  Completion = "redirect"  // result arrives via return URL or webhook
)

// OrderRequest is what the orchestrator hands to a gateway.
type OrderRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	TokenAmount int64
	Name        string
	Description string
	Items       []*OrderItem
	Metadata    Metadata
}

// Metadata carries provider-specific options from the caller.
type Metadata struct {
	CustomerID    string `json:"customer_id,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	PayCurrency   string `json:"pay_currency,omitempty"`  // nowpayments/coingate crypto selection
	PaymentNonce  string `json:"payment_nonce,omitempty"` // braintree
	PayerWallet   string `json:"payer_wallet,omitempty"`  // token
	SuccessURL    string `json:"success_url,omitempty"`
	CancelURL     string `json:"cancel_url,omitempty"`
	CallbackURL   string `json:"callback_url,omitempty"`

	// TransactionSignature references a payment a browser wallet already sent.
	TransactionSignature string `json:"transaction_signature,omitempty"`
}

func Expiry(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
