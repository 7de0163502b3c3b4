package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one payment attempt created at a gateway.
type Order struct {
	OrderID       string          `gorm:"primaryKey;size:128;not null" json:"id"`        // gateway order/payment/session id
	Provider      Provider        `gorm:"size:32;index;not null" json:"provider"`        // token, stripe, bitpay, nowpayments, coingate, braintree
	CartID        string          `gorm:"size:64;index" json:"cart_id,omitempty"`
	Reference     string          `gorm:"size:128;index" json:"reference,omitempty"`     // our order id sent to the gateway
	Status        string          `gorm:"size:32;index;not null" json:"status"`          // raw gateway status
	Outcome       Outcome         `gorm:"size:16;index;not null" json:"outcome"`
	Completion    Completion      `gorm:"size:16;not null" json:"completion"`
	PriceAmount   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price_amount"`
	PriceCurrency string          `gorm:"size:8;not null" json:"price_currency"`
	TokenAmount   int64           `json:"token_amount,omitempty"`

	PayAmount   decimal.NullDecimal `gorm:"type:decimal(30,12)" json:"pay_amount"`
	PayCurrency string              `gorm:"size:16" json:"pay_currency,omitempty"`
	PayAddress  string              `gorm:"size:128" json:"pay_address,omitempty"`
	RedirectURL string              `gorm:"size:512" json:"redirect_url,omitempty"`
	QRCode      string              `gorm:"type:text" json:"qr_code,omitempty"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []*OrderItem `gorm:"-" json:"items,omitempty"`
}

type OrderItem struct {
	ID uint `gorm:"primaryKey" json:"-"`
	// FK → order.order_id
	OrderID   string          `gorm:"size:128;index;not null" json:"-"`
	ProductID int64           `gorm:"index;not null" json:"product_id"`
	Title     string          `gorm:"size:255" json:"title"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"unit_price"`

	CreatedAt time.Time `json:"-"`
}

type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:191;not null"`
	Provider    string `gorm:"primaryKey;size:32;not null"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

// CartRecord backs the sql cart store; Payload is the JSON item list.
type CartRecord struct {
	CartID    string `gorm:"primaryKey;size:64;not null"`
	Payload   string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}
