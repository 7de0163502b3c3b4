package model

import "github.com/shopspring/decimal"

type CoinGateStatus string

const (
	CoinGateNew        CoinGateStatus = "new"
	CoinGatePending    CoinGateStatus = "pending"
	CoinGateConfirming CoinGateStatus = "confirming"
	CoinGatePaid       CoinGateStatus = "paid"
	CoinGateConfirmed  CoinGateStatus = "confirmed"
	CoinGateInvalid    CoinGateStatus = "invalid"
	CoinGateExpired    CoinGateStatus = "expired"
	CoinGateCanceled   CoinGateStatus = "canceled"
	CoinGateRefunded   CoinGateStatus = "refunded"
)

func (s CoinGateStatus) Outcome() Outcome {
	switch CoinGateStatus(normalizeStatus(string(s))) {
	case CoinGatePaid, CoinGateConfirmed:
		return OutcomeSucceeded
	case CoinGateInvalid, CoinGateExpired, CoinGateCanceled, CoinGateRefunded:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

type CoinGateCreateRequest struct {
	OrderID           string  `json:"order_id"`
	PriceAmount       string  `json:"price_amount"`
	PriceCurrency     string  `json:"price_currency"`
	ReceiveCurrency   string  `json:"receive_currency"`
	PayCurrency       string  `json:"pay_currency,omitempty"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	CallbackURL       string  `json:"callback_url"`
	SuccessURL        string  `json:"success_url"`
	CancelURL         string  `json:"cancel_url"`
	PurchaserEmail    string  `json:"purchaser_email,omitempty"`
	UnderpaidCoverPct float64 `json:"underpaid_cover_pct"`
	OverpaidCoverPct  float64 `json:"overpaid_cover_pct"`
}

// CoinGateOrder is returned by create/get and posted to the callback URL.
type CoinGateOrder struct {
	ID              FlexString          `json:"id"`
	Status          CoinGateStatus      `json:"status"`
	OrderID         string              `json:"order_id"`
	PriceAmount     decimal.Decimal     `json:"price_amount"`
	PriceCurrency   string              `json:"price_currency"`
	ReceiveAmount   decimal.NullDecimal `json:"receive_amount"`
	ReceiveCurrency string              `json:"receive_currency"`
	PayAmount       decimal.NullDecimal `json:"pay_amount"`
	PayCurrency     string              `json:"pay_currency"`
	PaymentAddress  string              `json:"payment_address"`
	PaymentURL      string              `json:"payment_url"`
	ExpireAt        string              `json:"expire_at"`
	CreatedAt       string              `json:"created_at"`
	Token           string              `json:"token"`
}

type CoinGateError struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}
