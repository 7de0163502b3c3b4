package handler

import (
	"net/http"

	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/dto"
	"qtc-marketplace/internal/model"

	"github.com/labstack/echo/v4"
)

// PaymentHandler exposes the gateway adapters directly, without the cart or the order ledger.
type PaymentHandler struct {
	gateways    *client.Registry
	nowPayments client.NowPaymentsClient
}

func NewPaymentHandler(gateways *client.Registry, nowPayments client.NowPaymentsClient) *PaymentHandler {
	return &PaymentHandler{gateways: gateways, nowPayments: nowPayments}
}

func (h *PaymentHandler) ListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"providers": h.gateways.Providers()})
}

func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	gateway, err := h.gateways.Get(model.Provider(c.Param("provider")))
	if err != nil {
		return err
	}

	var req dto.PaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	order, err := gateway.CreateOrder(c.Request().Context(), &model.OrderRequest{
		Reference:   req.Reference,
		Amount:      req.Amount,
		Currency:    req.Currency,
		TokenAmount: req.TokenAmount,
		Name:        req.Name,
		Description: req.Description,
		Items:       req.Items,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, dto.NewOrderResponse(order, string(order.Outcome)))
}

func (h *PaymentHandler) GetPaymentStatus(c echo.Context) error {
	gateway, err := h.gateways.Get(model.Provider(c.Param("provider")))
	if err != nil {
		return err
	}
	order, err := gateway.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.NewOrderResponse(order, string(order.Outcome)))
}

func (h *PaymentHandler) NowPaymentsCurrencies(c echo.Context) error {
	currencies, err := h.nowPayments.Currencies(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NowPaymentsCurrencies{Currencies: currencies})
}
