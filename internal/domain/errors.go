package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrExpiredEntry = errors.New("pending entry expired")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("entry already terminal")
	ErrTransport    = errors.New("transport failure")
	ErrRejected     = errors.New("request rejected by ledger")
)

// ValidationError is a caller error detected before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// BalanceInvariantViolation reports a currency whose debit and credit legs
// do not sum to the same amount.
type BalanceInvariantViolation struct {
	Currency string
	Debits   decimal.Decimal
	Credits  decimal.Decimal
}

func (e *BalanceInvariantViolation) Error() string {
	return fmt.Sprintf("%s: unbalanced legs in %s: debits=%s credits=%s",
		ErrValidation, e.Currency, e.Debits, e.Credits)
}

func (e *BalanceInvariantViolation) Unwrap() error { return ErrValidation }

// APIError is a non-success response from the ledger engine. Body holds the
// raw response payload, if any.
type APIError struct {
	Operation  string
	StatusCode int
	Body       []byte
	Kind       error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (status %d)", e.Operation, e.Kind, e.StatusCode)
	if len(e.Body) > 0 {
		fmt.Fprintf(&b, ": %s", strings.TrimSpace(string(e.Body)))
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Kind }

// TransportError wraps a failure below HTTP: dial, timeout, cancellation.
// The request may or may not have reached the engine.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Operation, ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }
