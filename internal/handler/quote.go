package handler

import (
	"errors"
	"net/http"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/dto"
	"qtc-marketplace/internal/model"

	"github.com/labstack/echo/v4"
)

type QuoteHandler struct {
	jupiter client.JupiterClient
}

func NewQuoteHandler(jupiter client.JupiterClient) *QuoteHandler {
	return &QuoteHandler{jupiter: jupiter}
}

func (h *QuoteHandler) Quote(c echo.Context) error {
	req := model.QuoteRequest{SlippageBps: client.DefaultSlippageBps}
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return apperr.Validation("invalid quote parameters")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.Validation(err.Error())
	}

	quote, err := h.jupiter.Quote(c.Request().Context(), &req)
	var gwErr *apperr.GatewayError
	if errors.As(err, &gwErr) {
		// keep the aggregator's status so the dashboard can show it
		return c.JSON(gwErr.HTTPStatus, dto.ErrorResponse{Error: dto.ErrorBody{
			Code:    string(apperr.CodeUpstream),
			Message: "failed to fetch quote",
			Details: gwErr,
		}})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quote)
}
