package handler

import (
	"net/http"
	"strconv"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/cart"
	"qtc-marketplace/internal/dto"
	"qtc-marketplace/internal/middleware"
	"qtc-marketplace/internal/model"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	carts *cart.Store
}

func NewCartHandler(carts *cart.Store) *CartHandler {
	return &CartHandler{carts: carts}
}

func (h *CartHandler) respond(c echo.Context, cartID string, items []*model.CartItem) error {
	totals := cart.ComputeTotals(items)
	if items == nil {
		items = []*model.CartItem{}
	}
	return c.JSON(http.StatusOK, dto.CartResponse{
		CartID:      cartID,
		Items:       items,
		ItemCount:   totals.ItemCount,
		TotalTokens: totals.Tokens,
		TotalFiat:   totals.Fiat,
	})
}

func productIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid product id")
	}
	return id, nil
}

func (h *CartHandler) GetCart(c echo.Context) error {
	cartID := middleware.CartID(c)
	items, err := h.carts.List(c.Request().Context(), cartID)
	if err != nil {
		return err
	}
	return h.respond(c, cartID, items)
}

func (h *CartHandler) AddItem(c echo.Context) error {
	var req dto.AddCartItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	cartID := middleware.CartID(c)
	items, err := h.carts.Add(c.Request().Context(), cartID, model.CartItem{
		ProductID: req.ID,
		Title:     req.Title,
		Image:     req.Image,
		Category:  req.Category,
		Price:     req.Price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return err
	}
	return h.respond(c, cartID, items)
}

func (h *CartHandler) SetQuantity(c echo.Context) error {
	id, err := productIDParam(c)
	if err != nil {
		return err
	}
	var req dto.SetQuantityRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	cartID := middleware.CartID(c)
	items, err := h.carts.SetQuantity(c.Request().Context(), cartID, id, req.Quantity)
	if err != nil {
		return err
	}
	return h.respond(c, cartID, items)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	id, err := productIDParam(c)
	if err != nil {
		return err
	}
	cartID := middleware.CartID(c)
	items, err := h.carts.Remove(c.Request().Context(), cartID, id)
	if err != nil {
		return err
	}
	return h.respond(c, cartID, items)
}

func (h *CartHandler) Clear(c echo.Context) error {
	cartID := middleware.CartID(c)
	if err := h.carts.Clear(c.Request().Context(), cartID); err != nil {
		return err
	}
	return h.respond(c, cartID, nil)
}
