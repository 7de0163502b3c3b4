package dto

import (
	"time"

	"qtc-marketplace/internal/model"

	"github.com/shopspring/decimal"
)

type AddCartItemRequest struct {
	ID       int64           `json:"id" validate:"required,gt=0"`
	Title    string          `json:"title" validate:"required"`
	Image    string          `json:"image"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gte=0"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	CartID      string            `json:"cart_id"`
	Items       []*model.CartItem `json:"items"`
	ItemCount   int               `json:"item_count"`
	TotalTokens int64             `json:"total_tokens"`
	TotalFiat   decimal.Decimal   `json:"total_fiat"`
}

type ProductResponse struct {
	*model.Product
	TokenPrice int64 `json:"token_price"`
}

type CheckoutRequest struct {
	Method               string `json:"method" validate:"required"`
	Currency             string `json:"currency"`
	PayCurrency          string `json:"pay_currency"`
	CustomerID           string `json:"customer_id"`
	CustomerEmail        string `json:"customer_email" validate:"omitempty,email"`
	PaymentNonce         string `json:"payment_nonce"`
	PayerWallet          string `json:"payer_wallet"`
	TransactionSignature string `json:"transaction_signature"`
	SuccessURL           string `json:"success_url" validate:"omitempty,url"`
	CancelURL            string `json:"cancel_url" validate:"omitempty,url"`
}

func (r *CheckoutRequest) Metadata() model.Metadata {
	return model.Metadata{
		CustomerID:           r.CustomerID,
		CustomerEmail:        r.CustomerEmail,
		PayCurrency:          r.PayCurrency,
		PaymentNonce:         r.PaymentNonce,
		PayerWallet:          r.PayerWallet,
		SuccessURL:           r.SuccessURL,
		CancelURL:            r.CancelURL,
		TransactionSignature: r.TransactionSignature,
	}
}

// PaymentRequest creates a gateway order directly, outside the cart flow.
type PaymentRequest struct {
	Reference   string             `json:"reference"`
	Amount      decimal.Decimal    `json:"amount" validate:"gt=0"`
	Currency    string             `json:"currency" validate:"omitempty,len=3"`
	TokenAmount int64              `json:"token_amount" validate:"gte=0"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Items       []*model.OrderItem `json:"items"`
	Metadata    model.Metadata     `json:"metadata"`
}

type OrderResponse struct {
	OrderID     string              `json:"order_id"`
	Provider    model.Provider      `json:"provider"`
	Reference   string              `json:"reference,omitempty"`
	State       string              `json:"state"`
	Status      string              `json:"status"`
	Outcome     model.Outcome       `json:"outcome"`
	Completion  model.Completion    `json:"completion"`
	PriceAmount decimal.Decimal     `json:"price_amount"`
	Currency    string              `json:"price_currency"`
	TokenAmount int64               `json:"token_amount,omitempty"`
	PayAmount   decimal.NullDecimal `json:"pay_amount"`
	PayCurrency string              `json:"pay_currency,omitempty"`
	PayAddress  string              `json:"pay_address,omitempty"`
	RedirectURL string              `json:"redirect_url,omitempty"`
	QRCode      string              `json:"qr_code,omitempty"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
	Items       []*model.OrderItem  `json:"items,omitempty"`
}

func NewOrderResponse(order *model.Order, state string) *OrderResponse {
	return &OrderResponse{
		OrderID:     order.OrderID,
		Provider:    order.Provider,
		Reference:   order.Reference,
		State:       state,
		Status:      order.Status,
		Outcome:     order.Outcome,
		Completion:  order.Completion,
		PriceAmount: order.PriceAmount,
		Currency:    order.PriceCurrency,
		TokenAmount: order.TokenAmount,
		PayAmount:   order.PayAmount,
		PayCurrency: order.PayCurrency,
		PayAddress:  order.PayAddress,
		RedirectURL: order.RedirectURL,
		QRCode:      order.QRCode,
		ExpiresAt:   order.ExpiresAt,
		Items:       order.Items,
	}
}

type TransferRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
}

type PaymentTransactionRequest struct {
	Payer  string `json:"payer" validate:"required"`
	Amount int64  `json:"amount" validate:"gt=0"`
}

type ConfirmSignatureRequest struct {
	Signature string `json:"signature" validate:"required"`
}

type AirdropRequest struct {
	Wallet string          `json:"wallet" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
