package entity

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("persistence failure")
	ErrForbidden         = errors.New("action not permitted for role")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrConcurrentUpdate  = errors.New("inventory changed concurrently")
)

// InsufficientStockError names the first ingredient an order cannot be served from.
type InsufficientStockError struct {
	StoreID      int64
	IngredientID int64
	Needed       decimal.Decimal
	Available    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for ingredient %d in store %d: needed %s, available %s",
		e.IngredientID, e.StoreID, e.Needed.String(), e.Available.String())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Persistence wraps a driver error so callers can match ErrPersistence and still reach the cause.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
