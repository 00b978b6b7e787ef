package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")

	// Conflict errors: business-state races that need a human decision,
	// never retried automatically.
	ErrAlreadyProcessed  = errors.New("order already processed")
	ErrAlreadyCancelled  = errors.New("order already cancelled")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InsufficientStockError identifies the offending product so the caller
// (usually an admin staring at a pending payment) can act on it.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s (requested %d, available %d)",
		name, e.Requested, e.Available)
}

// Validationf wraps ErrValidation so handlers can map the whole family
// to one status code.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
