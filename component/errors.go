package component

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports an invalid component configuration value.
type ValidationError struct {
	Component string
	Field     string
	Message   string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s.%s] %s", e.Component, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Component, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error.
func NewValidationError(component, field, message string, err error) *ValidationError {
	return &ValidationError{
		Component: component,
		Field:     field,
		Message:   message,
		Err:       err,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs struct tag validation on cfg and reports the first
// failing field as a *ValidationError. The field path drops the root struct name.
func ValidateStruct(component string, cfg any) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return NewValidationError(component, "", err.Error(), err)
	}

	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return NewValidationError(component, field, fmt.Sprintf("failed on the %q rule", fe.Tag()), err)
}
