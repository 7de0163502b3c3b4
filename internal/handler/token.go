package handler

import (
	"net/http"

	"qtc-marketplace/internal/dto"
	"qtc-marketplace/internal/service"

	"github.com/labstack/echo/v4"
)

type TokenHandler struct {
	tokenService service.TokenService
}

func NewTokenHandler(tokenService service.TokenService) *TokenHandler {
	return &TokenHandler{tokenService: tokenService}
}

func (h *TokenHandler) Info(c echo.Context) error {
	info, err := h.tokenService.Info(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (h *TokenHandler) Balances(c echo.Context) error {
	balances, err := h.tokenService.Balances(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, balances)
}

func (h *TokenHandler) TokenAccount(c echo.Context) error {
	acct, err := h.tokenService.TokenAccount(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *TokenHandler) Transfer(c echo.Context) error {
	var req dto.TransferRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.tokenService.Transfer(c.Request().Context(), req.Recipient, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *TokenHandler) BuildTransaction(c echo.Context) error {
	var req dto.PaymentTransactionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.tokenService.BuildPaymentTransaction(c.Request().Context(), req.Payer, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *TokenHandler) Confirm(c echo.Context) error {
	var req dto.ConfirmSignatureRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.tokenService.Confirm(c.Request().Context(), req.Signature)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *TokenHandler) Airdrop(c echo.Context) error {
	var req dto.AirdropRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.tokenService.Airdrop(c.Request().Context(), req.Wallet, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
