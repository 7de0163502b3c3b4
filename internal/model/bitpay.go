package model

import "github.com/shopspring/decimal"

type BitPayStatus string

const (
	BitPayNew       BitPayStatus = "new"
	BitPayPaid      BitPayStatus = "paid"
	BitPayConfirmed BitPayStatus = "confirmed"
	BitPayComplete  BitPayStatus = "complete"
	BitPayExpired   BitPayStatus = "expired"
	BitPayInvalid   BitPayStatus = "invalid"
	BitPayDeclined  BitPayStatus = "declined"
)

// Outcome treats "paid" as pending: the invoice still waits for confirmations.
func (s BitPayStatus) Outcome() Outcome {
	switch BitPayStatus(normalizeStatus(string(s))) {
	case BitPayConfirmed, BitPayComplete:
		return OutcomeSucceeded
	case BitPayExpired, BitPayInvalid, BitPayDeclined:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

type BitPayBuyer struct {
	Email string `json:"email,omitempty"`
}

type BitPayInvoiceRequest struct {
	Token                 string          `json:"token"`
	Price                 decimal.Decimal `json:"price"`
	Currency              string          `json:"currency"`
	OrderID               string          `json:"orderId"`
	ItemDesc              string          `json:"itemDesc"`
	ItemCode              string          `json:"itemCode"`
	NotificationEmail     string          `json:"notificationEmail,omitempty"`
	NotificationURL       string          `json:"notificationURL,omitempty"`
	RedirectURL           string          `json:"redirectURL"`
	CloseURL              string          `json:"closeURL"`
	ExtendedNotifications bool            `json:"extendedNotifications"`
	Buyer                 BitPayBuyer     `json:"buyer"`
	PosData               string          `json:"posData"`
}

type BitPayInvoice struct {
	ID             string          `json:"id"`
	URL            string          `json:"url"`
	Status         BitPayStatus    `json:"status"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	OrderID        string          `json:"orderId"`
	ExpirationTime int64           `json:"expirationTime"` // unix millis
}

type BitPayEnvelope struct {
	Data  BitPayInvoice `json:"data"`
	Error string        `json:"error"`
}

// BitPayNotification is the extended IPN body.
type BitPayNotification struct {
	Event struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"event"`
	Data BitPayInvoice `json:"data"`
}
