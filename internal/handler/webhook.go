package handler

import (
	"io"
	"net/http"

	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/service"

	"github.com/labstack/echo/v4"
)

// WebhookHandler always acknowledges: failures are logged so providers do not retry forever.
type WebhookHandler struct {
	webhookService service.WebhookService
	log            *logger.Logger
}

func NewWebhookHandler(webhookService service.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService, log: log}
}

func (h *WebhookHandler) ack(c echo.Context, provider model.Provider, err error) error {
	if err != nil {
		ctx := h.log.WithField(c.Request().Context(), "provider", string(provider))
		h.log.Error(ctx, "webhook processing failed", err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) NowPayments(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err == nil {
		err = h.webhookService.HandleNowPayments(c.Request().Context(), c.Request().Header, body)
	}
	return h.ack(c, model.ProviderNowPayments, err)
}

func (h *WebhookHandler) CoinGate(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err == nil {
		err = h.webhookService.HandleCoinGate(c.Request().Context(), c.Request().Header.Get(echo.HeaderContentType), body)
	}
	return h.ack(c, model.ProviderCoinGate, err)
}

func (h *WebhookHandler) Stripe(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err == nil {
		err = h.webhookService.HandleStripe(c.Request().Context(), c.Request().Header, body)
	}
	return h.ack(c, model.ProviderStripe, err)
}

func (h *WebhookHandler) BitPay(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err == nil {
		err = h.webhookService.HandleBitPay(c.Request().Context(), body)
	}
	return h.ack(c, model.ProviderBitPay, err)
}
