package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"
)

const (
	coinGateProductionURL = "https://api.coingate.com/v2"
	coinGateSandboxURL    = "https://api-sandbox.coingate.com/v2"

	coinGateCoverPct = 2.0
)

type coinGateClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	apiToken   string
}

// NewCoinGateClient picks the live token in production and the sandbox token otherwise.
func NewCoinGateClient(cfg *config.CoinGate, production bool) GatewayClient {
	baseURL, token := coinGateSandboxURL, cfg.SandboxToken
	if production {
		baseURL, token = coinGateProductionURL, cfg.APIToken
	}
	if cfg.BaseApiURL != "" {
		baseURL = cfg.BaseApiURL
	}
	return &coinGateClientImpl{
		httpClient: newHTTPClient(),
		baseApiURL: strings.TrimRight(baseURL, "/"),
		apiToken:   token,
	}
}

func (c *coinGateClientImpl) Provider() model.Provider { return model.ProviderCoinGate }

func (c *coinGateClientImpl) authorize(req *http.Request) error {
	if c.apiToken == "" {
		return apperr.Configuration("CoinGate API token not configured")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	return nil
}

func (c *coinGateClientImpl) CreateOrder(ctx context.Context, in *model.OrderRequest) (*model.Order, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("amount is required and must be greater than 0")
	}
	if in.Currency == "" {
		return nil, apperr.Validation("currency is required")
	}

	currency := strings.ToUpper(in.Currency)
	payCurrency := strings.ToUpper(in.Metadata.PayCurrency)
	if payCurrency == "" {
		payCurrency = "BTC"
	}
	description := in.Description
	if description == "" {
		description = "Purchase from QTC Marketplace"
	}

	payload := &model.CoinGateCreateRequest{
		OrderID:           in.Reference,
		PriceAmount:       in.Amount.String(),
		PriceCurrency:     currency,
		ReceiveCurrency:   currency,
		PayCurrency:       payCurrency,
		Title:             "QTC Marketplace Purchase",
		Description:       description,
		CallbackURL:       in.Metadata.CallbackURL,
		SuccessURL:        in.Metadata.SuccessURL,
		CancelURL:         in.Metadata.CancelURL,
		PurchaserEmail:    in.Metadata.CustomerEmail,
		UnderpaidCoverPct: coinGateCoverPct,
		OverpaidCoverPct:  coinGateCoverPct,
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.baseApiURL+"/orders", payload)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var res model.CoinGateOrder
	if err := doJSON(c.httpClient, c.Provider(), req, &res); err != nil {
		return nil, fmt.Errorf("create coingate order: %w", err)
	}

	order := CoinGateOrder(&res)
	if order.Reference == "" {
		order.Reference = in.Reference
	}
	return order, nil
}

func (c *coinGateClientImpl) GetStatus(ctx context.Context, orderID string) (*model.Order, error) {
	if err := requireOrderID(c.Provider(), orderID); err != nil {
		return nil, err
	}

	req, err := newJSONRequest(ctx, http.MethodGet, c.baseApiURL+"/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var res model.CoinGateOrder
	if err := doJSON(c.httpClient, c.Provider(), req, &res); err != nil {
		return nil, fmt.Errorf("get coingate order: %w", err)
	}
	if res.ID == "" {
		res.ID = model.FlexString(orderID)
	}
	return CoinGateOrder(&res), nil
}

// CoinGateOrder maps an order resource (API answer or callback body) to an order.
func CoinGateOrder(o *model.CoinGateOrder) *model.Order {
	payAmount, payCurrency := o.PayAmount, o.PayCurrency
	if !payAmount.Valid {
		payAmount.Decimal, payAmount.Valid = o.PriceAmount, true
	}
	if payCurrency == "" {
		payCurrency = o.PriceCurrency
	}
	return &model.Order{
		OrderID:       o.ID.String(),
		Provider:      model.ProviderCoinGate,
		Reference:     o.OrderID,
		Status:        string(o.Status),
		Outcome:       o.Status.Outcome(),
		Completion:    model.CompletionPoll,
		PriceAmount:   o.PriceAmount,
		PriceCurrency: strings.ToUpper(o.PriceCurrency),
		PayAmount:     payAmount,
		PayCurrency:   strings.ToUpper(payCurrency),
		PayAddress:    o.PaymentAddress,
		RedirectURL:   o.PaymentURL,
		ExpiresAt:     parseTime(o.ExpireAt),
	}
}
