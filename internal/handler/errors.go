package handler

import (
	"errors"
	"fmt"
	"net/http"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/dto"
	"qtc-marketplace/internal/logger"

	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler renders every error as {"error": {"code", "message", "details"}}.
func NewHTTPErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := errorResponse(err)
		ctx := c.Request().Context()
		if status >= http.StatusInternalServerError {
			log.Error(ctx, "request failed", err)
		} else {
			log.Debug(ctx, fmt.Sprintf("request rejected: %v", err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error(ctx, "write error response", err)
		}
	}
}

func errorResponse(err error) (int, dto.ErrorResponse) {
	if typed := apperr.As(err); typed != nil {
		meta := apperr.MetadataFor(typed.Code())
		message := typed.Message()
		if typed.Code() == apperr.CodeInternal || message == "" {
			message = meta.PublicMessage
		}
		return meta.HTTPStatus, dto.ErrorResponse{Error: dto.ErrorBody{
			Code:    string(typed.Code()),
			Message: message,
			Details: typed.Details(),
		}}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code := apperr.CodeInternal
		switch {
		case httpErr.Code == http.StatusNotFound:
			code = apperr.CodeNotFound
		case httpErr.Code < http.StatusInternalServerError:
			code = apperr.CodeValidation
		}
		return httpErr.Code, dto.ErrorResponse{Error: dto.ErrorBody{
			Code:    string(code),
			Message: fmt.Sprint(httpErr.Message),
		}}
	}

	meta := apperr.MetadataFor(apperr.CodeInternal)
	return meta.HTTPStatus, dto.ErrorResponse{Error: dto.ErrorBody{
		Code:    string(apperr.CodeInternal),
		Message: meta.PublicMessage,
	}}
}

// bindAndValidate decodes the request into req and runs the registered validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}
