package service

import (
	"errors"
	"fmt"
)

// Checkout and catalog error kinds. Callers match them with errors.Is; item
// specific failures arrive wrapped in *ItemError.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidItem        = errors.New("invalid cart item")
	ErrUnknownProduct     = errors.New("unknown product")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrLedgerUnavailable  = errors.New("order ledger unavailable")
	ErrCheckoutInProgress = errors.New("checkout with this idempotency token is in progress")
	ErrOrderTooLarge      = errors.New("order total exceeds the maximum")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrOrderNotFound      = errors.New("order not found")

	ErrInvalidIdempotencyToken = errors.New("idempotency token is too long")
)

// ItemError names the cart line a checkout failed on
type ItemError struct {
	Name string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Name)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func itemError(name string, kind error) error {
	return &ItemError{Name: name, Err: kind}
}
