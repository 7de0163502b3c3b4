package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qtc-marketplace/internal/cart"
	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/dto"
	"qtc-marketplace/internal/handler"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/metrics"
	"qtc-marketplace/internal/middleware"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/repository"
	"qtc-marketplace/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// immediateGateway settles every order on creation.
type immediateGateway struct{}

func (immediateGateway) Provider() model.Provider { return model.ProviderBraintree }

func (immediateGateway) CreateOrder(_ context.Context, req *model.OrderRequest) (*model.Order, error) {
	return &model.Order{
		OrderID:       "bt_1",
		Provider:      model.ProviderBraintree,
		Reference:     req.Reference,
		Status:        "submitted_for_settlement",
		Outcome:       model.OutcomeSucceeded,
		Completion:    model.CompletionImmediate,
		PriceAmount:   req.Amount,
		PriceCurrency: req.Currency,
	}, nil
}

func (immediateGateway) GetStatus(_ context.Context, id string) (*model.Order, error) {
	return &model.Order{OrderID: id, Provider: model.ProviderBraintree, Status: "settled", Outcome: model.OutcomeSucceeded}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/products":
			_, _ = w.Write([]byte(`[{"id":1,"title":"Backpack","price":109.95,"category":"bags"}]`))
		case "/products/1":
			_, _ = w.Write([]byte(`{"id":1,"title":"Backpack","price":109.95}`))
		default:
			_, _ = w.Write([]byte(``))
		}
	}))
	t.Cleanup(catalog.Close)

	jupiter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("inputMint") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Could not find any route"}`))
			return
		}
		_, _ = w.Write([]byte(`{"inputMint":"` + r.URL.Query().Get("inputMint") + `","inAmount":"1000","outAmount":"42","slippageBps":` + r.URL.Query().Get("slippageBps") + `}`))
	}))
	t.Cleanup(jupiter.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard, TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, client.Migrate(db))

	log := logger.Nop()
	carts := cart.NewStore(cart.NewMemoryBackend(), log)
	gateways := client.NewRegistry(immediateGateway{})
	checkout := service.NewCheckoutService(db, carts, gateways, repository.NewOrderRepository(db),
		metrics.NoopRecorder{}, log, service.PollConfig{Ceiling: time.Second}, "http://localhost:8080")
	t.Cleanup(checkout.Shutdown)
	webhooks := service.NewWebhookService(checkout, repository.NewWebhookEventRepository(db),
		&config.NowPayments{}, &config.Stripe{}, metrics.NoopRecorder{}, log)

	return NewServer(Handlers{
		Cart:     handler.NewCartHandler(carts),
		Product:  handler.NewProductHandler(client.NewCatalogClient(&config.Catalog{BaseURL: catalog.URL}, nil, log)),
		Checkout: handler.NewCheckoutHandler(checkout),
		Payment:  handler.NewPaymentHandler(gateways, client.NewNowPaymentsClient(&config.NowPayments{})),
		Webhook:  handler.NewWebhookHandler(webhooks, log),
		Token:    handler.NewTokenHandler(nil),
		Quote:    handler.NewQuoteHandler(client.NewJupiterClient(&config.Jupiter{BaseApiURL: jupiter.URL})),
	}, log, prometheus.NewRegistry())
}

func do(t *testing.T, s *Server, method, path, cartID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if cartID != "" {
		req.Header.Set(middleware.CartIDHeader, cartID)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCartIssuesSessionID(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/cart", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cartID := rec.Header().Get(middleware.CartIDHeader)
	assert.NotEmpty(t, cartID)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), middleware.CartCookie+"="+cartID)

	resp := decode[dto.CartResponse](t, rec)
	assert.Equal(t, cartID, resp.CartID)
	assert.Empty(t, resp.Items)
}

func TestCartFlowAndCheckout(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/cart/items", "tab-1", `{"id":1,"title":"Backpack","price":"10.00","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, s, http.MethodPost, "/api/cart/items", "tab-1", `{"id":2,"title":"Shirt","price":"0.15"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[dto.CartResponse](t, rec)
	assert.Equal(t, int64(202), resp.TotalTokens)
	assert.Equal(t, "20.15", resp.TotalFiat.StringFixed(2))
	assert.Equal(t, 3, resp.ItemCount)

	rec = do(t, s, http.MethodPut, "/api/cart/items/2", "tab-1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.CartResponse](t, rec).Items, 1)

	// another tab has its own cart
	rec = do(t, s, http.MethodGet, "/api/cart", "tab-2", "")
	assert.Empty(t, decode[dto.CartResponse](t, rec).Items)

	rec = do(t, s, http.MethodPost, "/api/checkout", "tab-1", `{"method":"braintree","payment_nonce":"fake-valid-nonce"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[dto.OrderResponse](t, rec)
	assert.Equal(t, "succeeded", order.State)
	assert.Equal(t, int64(200), order.TokenAmount)

	rec = do(t, s, http.MethodGet, "/api/cart", "tab-1", "")
	assert.Empty(t, decode[dto.CartResponse](t, rec).Items)

	rec = do(t, s, http.MethodGet, "/api/orders/bt_1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[dto.OrderResponse](t, rec)
	assert.Len(t, stored.Items, 1)
	assert.Equal(t, "succeeded", stored.State)

	// the gateway hands out the same transaction id again
	rec = do(t, s, http.MethodPost, "/api/cart/items", "tab-3", `{"id":1,"title":"Backpack","price":"10.00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/checkout", "tab-3", `{"method":"braintree","payment_nonce":"fake-valid-nonce"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFLICT", decode[dto.ErrorResponse](t, rec).Error.Code)
	rec = do(t, s, http.MethodGet, "/api/cart", "tab-3", "")
	assert.Len(t, decode[dto.CartResponse](t, rec).Items, 1)
}

func TestCartIDLengthIsBounded(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/cart", strings.Repeat("x", middleware.MaxCartIDLength), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/cart", strings.Repeat("x", middleware.MaxCartIDLength+1), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, rec).Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CartCookie, Value: strings.Repeat("y", 200)})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	issued := rec.Header().Get(middleware.CartIDHeader)
	assert.NotEmpty(t, issued)
	assert.LessOrEqual(t, len(issued), middleware.MaxCartIDLength)
}

func TestCreatePaymentValidatesAmount(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{`{"amount":"0"}`, `{"amount":"-5"}`, `{}`, `{"amount":"10","token_amount":-1}`} {
		rec := do(t, s, http.MethodPost, "/api/payments/braintree", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, rec).Error.Code, body)
	}

	rec := do(t, s, http.MethodPost, "/api/payments/braintree", "", `{"amount":"12.50","reference":"direct-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "succeeded", decode[dto.OrderResponse](t, rec).State)
}

func TestErrorEnvelope(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/checkout", "tab-1", `{"method":"braintree"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[dto.ErrorResponse](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "cart is empty", body.Error.Message)

	rec = do(t, s, http.MethodPost, "/api/checkout", "tab-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/orders/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[dto.ErrorResponse](t, rec).Error.Code)

	rec = do(t, s, http.MethodGet, "/api/payments/paypal/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/payments/nowpayments/currencies", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "CONFIGURATION_ERROR", decode[dto.ErrorResponse](t, rec).Error.Code)
}

func TestProductsCarryTokenPrice(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var products []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.EqualValues(t, 1100, products[0]["token_price"])

	rec = do(t, s, http.MethodGet, "/api/products/7", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/products/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhooksAlwaysAcknowledge(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/webhooks/nowpayments", "/api/webhooks/coingate", "/api/webhooks/stripe", "/api/webhooks/bitpay"} {
		rec := do(t, s, http.MethodPost, path, "", `not json`)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestQuoteProxy(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/jupiter/quote?inputMint=So11&outputMint=QTC&amount=1000", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[model.Quote](t, rec)
	assert.Equal(t, 50, quote.SlippageBps)
	assert.Equal(t, "42", quote.OutAmount)

	rec = do(t, s, http.MethodGet, "/api/jupiter/quote?inputMint=bad&outputMint=QTC&amount=1000", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not find any route")

	rec = do(t, s, http.MethodGet, "/api/jupiter/quote?inputMint=So11&amount=x", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, rec).Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
