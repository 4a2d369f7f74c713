package validator

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct's `validate` tags. Gin's binding covers
// the `binding` tags; this catches the rest (oneof, gte, max).
func Validate(obj interface{}) error {
	return validate.Struct(obj)
}
