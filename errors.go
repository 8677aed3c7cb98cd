package tally

import (
	"errors"
	"fmt"

	"github.com/xraph/tally/types"
)

// Sentinel errors for common failure scenarios.
var (
	// Operation errors. The messages are part of the public contract and are
	// surfaced to callers verbatim.
	ErrUnauthorized        = errors.New("Only the owner can perform this action.")  //nolint:staticcheck,revive // user-facing message
	ErrInsufficientBalance = errors.New("Insufficient balance. Top up to proceed.") //nolint:staticcheck,revive // user-facing message
	ErrArithmeticOverflow  = types.ErrOverflow

	// General errors
	ErrAlreadyExists    = errors.New("tally: already exists")
	ErrInvalidInput     = errors.New("tally: invalid input")
	ErrInvalidConfig    = errors.New("tally: invalid configuration")
	ErrCurrencyMismatch = types.ErrCurrencyMismatch

	// State errors
	ErrStateNotFound         = errors.New("tally: ledger state not found")
	ErrAccountNotFound       = errors.New("tally: account not found")
	ErrAdministratorMismatch = errors.New("tally: configured administrator differs from persisted administrator")

	// Store errors
	ErrStoreNotReady     = errors.New("tally: store not ready")
	ErrTransactionFailed = errors.New("tally: transaction failed")
	ErrMigrationFailed   = errors.New("tally: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tally: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tally: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStateNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsAuthorizationError returns true if the caller lacked the privilege.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsBalanceError returns true if the error is related to balances or
// amount arithmetic.
func IsBalanceError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrArithmeticOverflow) ||
		errors.Is(err, types.ErrUnderflow)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
