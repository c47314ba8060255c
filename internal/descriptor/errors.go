package descriptor

import (
	"fmt"

	exerrors "github.com/tyemirov/exres/internal/errors"
)

const (
	validationErrorTemplateConstant                = "invalid executor descriptor at %s: %s"
	validationErrorWithExpectationTemplateConstant = "invalid executor descriptor at %s: %s (expected %s)"
	rootFieldNameConstant                          = "executor"
)

// ValidationError names the offending field of a malformed descriptor and the shape it should have.
type ValidationError struct {
	Field    string
	Expected string
	Message  string
}

// Error implements the error interface.
func (validationError ValidationError) Error() string {
	field := validationError.Field
	if len(field) == 0 {
		field = rootFieldNameConstant
	}
	if len(validationError.Expected) == 0 {
		return fmt.Sprintf(validationErrorTemplateConstant, field, validationError.Message)
	}
	return fmt.Sprintf(validationErrorWithExpectationTemplateConstant, field, validationError.Message, validationError.Expected)
}

// Unwrap classifies every ValidationError as a validation failure.
func (validationError ValidationError) Unwrap() error {
	return exerrors.ErrValidation
}

func newValidationError(field string, expected string, messageTemplate string, arguments ...any) ValidationError {
	return ValidationError{Field: field, Expected: expected, Message: fmt.Sprintf(messageTemplate, arguments...)}
}
