package model

import "github.com/shopspring/decimal"

type NowPaymentsStatus string

const (
	NowPaymentsWaiting       NowPaymentsStatus = "waiting"
	NowPaymentsConfirming    NowPaymentsStatus = "confirming"
	NowPaymentsConfirmed     NowPaymentsStatus = "confirmed"
	NowPaymentsSending       NowPaymentsStatus = "sending"
	NowPaymentsPartiallyPaid NowPaymentsStatus = "partially_paid"
	NowPaymentsFinished      NowPaymentsStatus = "finished"
	NowPaymentsFailed        NowPaymentsStatus = "failed"
	NowPaymentsRefunded      NowPaymentsStatus = "refunded"
	NowPaymentsExpired       NowPaymentsStatus = "expired"
)

// Outcome maps the payment status; unknown values keep the payment pending.
func (s NowPaymentsStatus) Outcome() Outcome {
	switch NowPaymentsStatus(normalizeStatus(string(s))) {
	case NowPaymentsFinished:
		return OutcomeSucceeded
	case NowPaymentsFailed, NowPaymentsRefunded, NowPaymentsExpired:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

type NowPaymentsCreateRequest struct {
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	PayCurrency      string          `json:"pay_currency"`
	OrderID          string          `json:"order_id"`
	OrderDescription string          `json:"order_description"`
	IPNCallbackURL   string          `json:"ipn_callback_url"`
	SuccessURL       string          `json:"success_url"`
	CancelURL        string          `json:"cancel_url"`
}

// NowPaymentsPayment is the payment resource returned by create, status and IPN.
type NowPaymentsPayment struct {
	PaymentID        FlexString          `json:"payment_id"`
	PaymentStatus    NowPaymentsStatus   `json:"payment_status"`
	PayAddress       string              `json:"pay_address"`
	PriceAmount      decimal.Decimal     `json:"price_amount"`
	PriceCurrency    string              `json:"price_currency"`
	PayAmount        decimal.NullDecimal `json:"pay_amount"`
	PayCurrency      string              `json:"pay_currency"`
	ActuallyPaid     decimal.NullDecimal `json:"actually_paid"`
	OrderID          string              `json:"order_id"`
	OrderDescription string              `json:"order_description"`
	OutcomeAmount    decimal.NullDecimal `json:"outcome_amount"`
	OutcomeCurrency  string              `json:"outcome_currency"`
	ExpirationDate   string              `json:"expiration_estimate_date"`
	CreatedAt        string              `json:"created_at"`
	UpdatedAt        string              `json:"updated_at"`
}

type NowPaymentsCurrencies struct {
	Currencies []string `json:"currencies"`
}

type NowPaymentsError struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}
