package handler

import (
	"net/http"

	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/dto"
	"qtc-marketplace/internal/price"

	"github.com/labstack/echo/v4"
)

type ProductHandler struct {
	catalog client.CatalogClient
}

func NewProductHandler(catalog client.CatalogClient) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

func (h *ProductHandler) ListProducts(c echo.Context) error {
	products, err := h.catalog.ListProducts(c.Request().Context())
	if err != nil {
		return err
	}

	resp := make([]dto.ProductResponse, len(products))
	for i, p := range products {
		resp[i] = dto.ProductResponse{Product: p, TokenPrice: price.ToTokenAmount(p.Price)}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := productIDParam(c)
	if err != nil {
		return err
	}
	product, err := h.catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.ProductResponse{Product: product, TokenPrice: price.ToTokenAmount(product.Price)})
}
