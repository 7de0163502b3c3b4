package apperr

import "fmt"

// GatewayError is returned when a payment provider answers with a non-2xx status.
type GatewayError struct {
	Provider   string `json:"provider"`
	HTTPStatus int    `json:"http_status"`
	Message    string `json:"message"`
}

func NewGatewayError(provider string, httpStatus int, message string) *GatewayError {
	return &GatewayError{
		Provider:   provider,
		HTTPStatus: httpStatus,
		Message:    message,
	}
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Provider, e.HTTPStatus, e.Message)
}

func (e *GatewayError) toError() *Error {
	return &Error{
		code:    CodeUpstream,
		message: fmt.Sprintf("%s error: %s", e.Provider, e.Message),
		details: e,
		err:     e,
	}
}
