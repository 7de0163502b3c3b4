package apperr

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeUpstream      Code = "UPSTREAM_ERROR"
	CodeTransient     Code = "NETWORK_TRANSIENT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeInternal      Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "validation failed",
	},
	CodeConfiguration: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "service not configured",
	},
	CodeUpstream: {
		HTTPStatus:    http.StatusBadGateway,
		PublicMessage: "payment provider error",
	},
	CodeTransient: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "payment provider unreachable",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "conflict detected",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "internal server error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried across service and handler boundaries.
type Error struct {
	code    Code
	message string
	details any
	err     error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, err: err}
}

func (e *Error) WithDetails(details any) *Error {
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.message
	}
	if e.message == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Code() Code { return e.code }

func (e *Error) Message() string { return e.message }

func (e *Error) Details() any { return e.details }

// As returns the first *Error (or GatewayError translated to one) in the chain.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if stdErrors.As(err, &gwErr) {
		return gwErr.toError()
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf reports the code of err, CodeInternal when untyped.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

func Configuration(message string) *Error {
	return New(CodeConfiguration, message)
}

func Transient(err error, message string) *Error {
	return Wrap(CodeTransient, err, message)
}

func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}
