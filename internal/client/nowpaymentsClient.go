package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"

	"github.com/skip2/go-qrcode"
)

const (
	nowPaymentsProductionURL = "https://api.nowpayments.io/v1"
	nowPaymentsSandboxURL    = "https://api-sandbox.nowpayments.io/v1"

	defaultPayCurrency = "btc"
	qrCodeSize         = 256
)

type NowPaymentsClient interface {
	GatewayClient
	Currencies(ctx context.Context) ([]string, error)
}

type nowPaymentsClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	apiKey     string
}

func NewNowPaymentsClient(cfg *config.NowPayments) NowPaymentsClient {
	baseURL := cfg.BaseApiURL
	if baseURL == "" {
		baseURL = nowPaymentsProductionURL
		if cfg.Sandbox {
			baseURL = nowPaymentsSandboxURL
		}
	}
	return &nowPaymentsClientImpl{
		httpClient: newHTTPClient(),
		baseApiURL: strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

func (c *nowPaymentsClientImpl) Provider() model.Provider { return model.ProviderNowPayments }

func (c *nowPaymentsClientImpl) authorize(req *http.Request) error {
	if c.apiKey == "" {
		return apperr.Configuration("NOWPayments API key not configured")
	}
	req.Header.Set("x-api-key", c.apiKey)
	return nil
}

func (c *nowPaymentsClientImpl) Currencies(ctx context.Context) ([]string, error) {
	req, err := newJSONRequest(ctx, http.MethodGet, c.baseApiURL+"/currencies", nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var res model.NowPaymentsCurrencies
	if err := doJSON(c.httpClient, c.Provider(), req, &res); err != nil {
		return nil, fmt.Errorf("fetch nowpayments currencies: %w", err)
	}
	return res.Currencies, nil
}

func (c *nowPaymentsClientImpl) CreateOrder(ctx context.Context, in *model.OrderRequest) (*model.Order, error) {
	if c.apiKey == "" {
		return nil, apperr.Configuration("NOWPayments API key not configured")
	}

	payCurrency := strings.ToLower(strings.TrimSpace(in.Metadata.PayCurrency))
	if payCurrency == "" {
		payCurrency = defaultPayCurrency
	}

	currencies, err := c.Currencies(ctx)
	if err != nil {
		return nil, err
	}
	if len(currencies) > 0 && !slices.ContainsFunc(currencies, func(s string) bool { return strings.EqualFold(s, payCurrency) }) {
		return nil, apperr.Validation(fmt.Sprintf("pay currency %q is not available", payCurrency)).
			WithDetails(map[string]any{"currencies": currencies})
	}

	description := in.Description
	if description == "" {
		description = "QTC Marketplace Purchase"
	}

	payload := &model.NowPaymentsCreateRequest{
		PriceAmount:      in.Amount,
		PriceCurrency:    strings.ToLower(in.Currency),
		PayCurrency:      payCurrency,
		OrderID:          in.Reference,
		OrderDescription: description,
		IPNCallbackURL:   in.Metadata.CallbackURL,
		SuccessURL:       in.Metadata.SuccessURL,
		CancelURL:        in.Metadata.CancelURL,
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.baseApiURL+"/payment", payload)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var payment model.NowPaymentsPayment
	if err := doJSON(c.httpClient, c.Provider(), req, &payment); err != nil {
		return nil, fmt.Errorf("create nowpayments payment: %w", err)
	}

	order := c.toOrder(&payment)
	if order.Reference == "" {
		order.Reference = in.Reference
	}
	if payment.PayAddress != "" {
		qr, err := PaymentQRCode(payment.PayCurrency, payment.PayAddress, payment.PayAmount.Decimal.String())
		if err != nil {
			return nil, fmt.Errorf("render payment qr code: %w", err)
		}
		order.QRCode = qr
	}
	return order, nil
}

func (c *nowPaymentsClientImpl) GetStatus(ctx context.Context, paymentID string) (*model.Order, error) {
	if err := requireOrderID(c.Provider(), paymentID); err != nil {
		return nil, err
	}

	req, err := newJSONRequest(ctx, http.MethodGet, c.baseApiURL+"/payment/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var payment model.NowPaymentsPayment
	if err := doJSON(c.httpClient, c.Provider(), req, &payment); err != nil {
		return nil, fmt.Errorf("get nowpayments payment: %w", err)
	}
	if payment.PaymentID == "" {
		payment.PaymentID = model.FlexString(paymentID)
	}
	return c.toOrder(&payment), nil
}

func (c *nowPaymentsClientImpl) toOrder(p *model.NowPaymentsPayment) *model.Order {
	return NowPaymentsOrder(p)
}

// NowPaymentsOrder maps a payment resource (API answer or IPN body) to an order.
func NowPaymentsOrder(p *model.NowPaymentsPayment) *model.Order {
	return &model.Order{
		OrderID:       p.PaymentID.String(),
		Provider:      model.ProviderNowPayments,
		Reference:     p.OrderID,
		Status:        string(p.PaymentStatus),
		Outcome:       p.PaymentStatus.Outcome(),
		Completion:    model.CompletionPoll,
		PriceAmount:   p.PriceAmount,
		PriceCurrency: strings.ToUpper(p.PriceCurrency),
		PayAmount:     p.PayAmount,
		PayCurrency:   strings.ToUpper(p.PayCurrency),
		PayAddress:    p.PayAddress,
		ExpiresAt:     parseTime(p.ExpirationDate),
	}
}

// PaymentQRCode renders "CUR:address?amount=x" as a PNG data URL.
func PaymentQRCode(payCurrency, address, amount string) (string, error) {
	content := fmt.Sprintf("%s:%s?amount=%s", strings.ToUpper(payCurrency), address, amount)
	png, err := qrcode.Encode(content, qrcode.Medium, qrCodeSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
