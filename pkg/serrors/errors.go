package serrors

import "fmt"

// BaseError is a coded error suitable for matching with errors.As across
// package boundaries. Code is stable and machine-readable; Message is for
// humans and logs.
type BaseError struct {
	Code    string
	Message string
	Details string
}

func (e *BaseError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, message, details string) *BaseError {
	return &BaseError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
