package handler

import (
	"net/http"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/dto"
	"qtc-marketplace/internal/middleware"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/service"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

func orderJSON(c echo.Context, status int, order *model.Order) error {
	return c.JSON(status, dto.NewOrderResponse(order, string(service.StateOf(order))))
}

func (h *CheckoutHandler) Checkout(c echo.Context) error {
	var req dto.CheckoutRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.checkoutService.Checkout(c.Request().Context(), &service.CheckoutRequest{
		CartID:   middleware.CartID(c),
		Method:   model.Provider(req.Method),
		Currency: req.Currency,
		Metadata: req.Metadata(),
	})
	if err != nil {
		return err
	}
	return orderJSON(c, http.StatusCreated, order)
}

func (h *CheckoutHandler) GetOrder(c echo.Context) error {
	order, err := h.checkoutService.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return orderJSON(c, http.StatusOK, order)
}

func (h *CheckoutHandler) ConfirmOrder(c echo.Context) error {
	order, err := h.checkoutService.Confirm(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return orderJSON(c, http.StatusOK, order)
}

func (h *CheckoutHandler) CancelOrder(c echo.Context) error {
	order, err := h.checkoutService.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return orderJSON(c, http.StatusOK, order)
}

// HandleReturn is the success/cancel URL handed to redirect gateways.
func (h *CheckoutHandler) HandleReturn(c echo.Context) error {
	ctx := c.Request().Context()
	provider := model.Provider(c.QueryParam("provider"))
	orderID := c.QueryParam("order_id")
	reference := c.QueryParam("reference")

	var (
		order *model.Order
		err   error
	)
	switch {
	case orderID != "":
		order, err = h.checkoutService.Confirm(ctx, orderID)
	case reference != "" && provider.Valid():
		order, err = h.checkoutService.ConfirmByReference(ctx, provider, reference)
	default:
		return apperr.Validation("provider and reference, or order_id, are required")
	}
	if err != nil {
		return err
	}

	if c.QueryParam("result") == "cancel" && !order.Outcome.Terminal() {
		order, err = h.checkoutService.Cancel(ctx, order.OrderID)
		if err != nil {
			return err
		}
	}
	return orderJSON(c, http.StatusOK, order)
}
