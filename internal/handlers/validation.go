package handlers

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// newValidator returns a validator that checks decimal.Decimal fields with the numeric tags.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validationFailure carries per-field validator messages.
type validationFailure struct {
	fields map[string]string
}

func (e *validationFailure) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.fields))
}

// bodyError wraps a request body that could not be decoded.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return e.err.Error() }

// parseBody decodes the request body into dst and validates it.
func parseBody(c *fiber.Ctx, validate *validator.Validate, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return &bodyError{err: err}
	}
	return validateStruct(validate, dst)
}

func validateStruct(validate *validator.Validate, s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return &validationFailure{fields: errorMessages}
}
