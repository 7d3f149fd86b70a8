package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError marks input the caller can fix. Handlers answer it with 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

var (
	ErrInvalidAmount        = NewValidationError("invalid amount")
	ErrNoFieldsProvided     = NewValidationError("no fields provided for update")
	ErrInvalidFlow          = NewValidationError("transaction type does not match its assets")
	ErrInsufficientQuantity = NewValidationError("trade would leave a negative quantity")
	ErrInvalidCurrency      = NewValidationError("unknown currency code")
)

type ValidationErrors struct {
	Errors []error
}

func (ve *ValidationErrors) Error() string {
	errorMessages := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		errorMessages[i] = err.Error()
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(errorMessages, "; "))
}

func (ve *ValidationErrors) Add(err error) {
	ve.Errors = append(ve.Errors, err)
}

func (ve *ValidationErrors) Messages() []string {
	messages := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// ErrOrNil returns ve only when at least one error was added.
func (ve *ValidationErrors) ErrOrNil() error {
	if len(ve.Errors) == 0 {
		return nil
	}
	return ve
}

type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string {
	return e.Msg
}

func NewNotFoundError(msg string) error {
	return &NotFoundError{Msg: msg}
}

func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// StoreError wraps a persistence failure together with the operation that
// hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err unless it already carries a domain meaning.
func NewStoreError(op string, err error) error {
	if err == nil || IsNotFound(err) || IsValidationError(err) || IsStoreError(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func IsStoreError(err error) bool {
	var storeError *StoreError
	return errors.As(err, &storeError)
}
