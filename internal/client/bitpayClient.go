package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"
)

const (
	bitPayProductionURL = "https://bitpay.com"
	bitPayTestURL       = "https://test.bitpay.com"
	bitPayAPIVersion    = "2.0.0"
	bitPayItemCode      = "qtc_marketplace"
)

type bitPayClientImpl struct {
	httpClient        *http.Client
	baseApiURL        string
	apiToken          string
	notificationEmail string
}

func NewBitPayClient(cfg *config.BitPay) GatewayClient {
	baseURL := cfg.BaseApiURL
	if baseURL == "" {
		baseURL = bitPayProductionURL
		if cfg.Sandbox {
			baseURL = bitPayTestURL
		}
	}
	return &bitPayClientImpl{
		httpClient:        newHTTPClient(),
		baseApiURL:        strings.TrimRight(baseURL, "/"),
		apiToken:          cfg.APIToken,
		notificationEmail: cfg.NotificationEmail,
	}
}

func (c *bitPayClientImpl) Provider() model.Provider { return model.ProviderBitPay }

func (c *bitPayClientImpl) prepare(req *http.Request) error {
	if c.apiToken == "" {
		return apperr.Configuration("BitPay API token not configured")
	}
	req.Header.Set("X-Accept-Version", bitPayAPIVersion)
	return nil
}

type bitPayPosData struct {
	OrderID    string             `json:"orderId"`
	CustomerID string             `json:"customerId"`
	OrderItems []*model.OrderItem `json:"orderItems"`
}

func (c *bitPayClientImpl) CreateOrder(ctx context.Context, in *model.OrderRequest) (*model.Order, error) {
	if c.apiToken == "" {
		return nil, apperr.Configuration("BitPay API token not configured")
	}

	items := in.Items
	if items == nil {
		items = []*model.OrderItem{}
	}
	posData, err := json.Marshal(bitPayPosData{
		OrderID:    in.Reference,
		CustomerID: in.Metadata.CustomerID,
		OrderItems: items,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bitpay pos data: %w", err)
	}

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}

	payload := &model.BitPayInvoiceRequest{
		Token:                 c.apiToken,
		Price:                 in.Amount,
		Currency:              strings.ToUpper(currency),
		OrderID:               in.Reference,
		ItemDesc:              in.Name,
		ItemCode:              bitPayItemCode,
		NotificationEmail:     c.notificationEmail,
		NotificationURL:       in.Metadata.CallbackURL,
		RedirectURL:           in.Metadata.SuccessURL,
		CloseURL:              in.Metadata.CancelURL,
		ExtendedNotifications: true,
		Buyer:                 model.BitPayBuyer{Email: in.Metadata.CustomerEmail},
		PosData:               string(posData),
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.baseApiURL+"/invoices", payload)
	if err != nil {
		return nil, err
	}
	if err := c.prepare(req); err != nil {
		return nil, err
	}

	var res model.BitPayEnvelope
	if err := doJSON(c.httpClient, c.Provider(), req, &res); err != nil {
		return nil, fmt.Errorf("create bitpay invoice: %w", err)
	}
	if res.Error != "" {
		return nil, apperr.NewGatewayError(string(c.Provider()), http.StatusOK, res.Error)
	}

	order := BitPayOrder(&res.Data)
	if order.Reference == "" {
		order.Reference = in.Reference
	}
	return order, nil
}

func (c *bitPayClientImpl) GetStatus(ctx context.Context, invoiceID string) (*model.Order, error) {
	if err := requireOrderID(c.Provider(), invoiceID); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/invoices/%s?token=%s", c.baseApiURL, url.PathEscape(invoiceID), url.QueryEscape(c.apiToken))
	req, err := newJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if err := c.prepare(req); err != nil {
		return nil, err
	}

	var res model.BitPayEnvelope
	if err := doJSON(c.httpClient, c.Provider(), req, &res); err != nil {
		return nil, fmt.Errorf("get bitpay invoice: %w", err)
	}
	if res.Data.ID == "" {
		res.Data.ID = invoiceID
	}
	return BitPayOrder(&res.Data), nil
}

func BitPayOrder(inv *model.BitPayInvoice) *model.Order {
	order := &model.Order{
		OrderID:       inv.ID,
		Provider:      model.ProviderBitPay,
		Reference:     inv.OrderID,
		Status:        string(inv.Status),
		Outcome:       inv.Status.Outcome(),
		Completion:    model.CompletionRedirect,
		PriceAmount:   inv.Price,
		PriceCurrency: strings.ToUpper(inv.Currency),
		RedirectURL:   inv.URL,
	}
	if inv.ExpirationTime > 0 {
		order.ExpiresAt = model.Expiry(time.UnixMilli(inv.ExpirationTime))
	}
	return order
}
