// Package apperr defines the error taxonomy shared by the cart, promo and
// checkout components. Every failure is scoped to the operation that produced
// it; nothing here is fatal to the process.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: bad input (quantity, promo code, tip). Recovered locally.
	KindValidation
	// KindPrecondition: the operation cannot start (empty cart, no session).
	KindPrecondition
	// KindExternalWrite: the order sink rejected the write. Cart is preserved.
	KindExternalWrite
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindPrecondition:
		return "PRECONDITION"
	case KindExternalWrite:
		return "EXTERNAL_WRITE"
	default:
		return "UNKNOWN"
	}
}

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewValidationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewPrecondition(message string) *Error {
	return &Error{Kind: KindPrecondition, Message: message}
}

// NewExternalWrite wraps a sink failure so callers can still match the cause
// with errors.Is.
func NewExternalWrite(message string, cause error) *Error {
	return &Error{Kind: KindExternalWrite, Message: message, Err: cause}
}

var (
	ErrEmptyCart         = NewPrecondition("cart is empty")
	ErrNotAuthenticated  = NewPrecondition("no authenticated session")
	ErrNoDefaultAddress  = NewPrecondition("no default delivery address")
	ErrCheckoutPending   = NewPrecondition("a checkout for this cart is already in flight")
	ErrInvalidPromo      = NewValidation("promo code is not valid")
	ErrInvalidTip        = NewValidation("tip must not be negative")
	ErrInvalidQuantity   = NewValidation("quantity must be positive")
	ErrInvalidPayment    = NewValidation("unsupported payment method")
	ErrInvalidAddress    = NewValidation("delivery address is incomplete")
	ErrInvalidCoordinate = NewValidation("coordinate is out of range")
)

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsPrecondition(err error) bool  { return KindOf(err) == KindPrecondition }
func IsExternalWrite(err error) bool { return KindOf(err) == KindExternalWrite }
