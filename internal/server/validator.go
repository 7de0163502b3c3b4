package server

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// requestValidator adapts go-playground/validator to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// amounts compare as numbers, so gt=0 and friends work on decimal fields
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return &requestValidator{validate: v}
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}
