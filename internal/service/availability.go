package service

import (
	"context"

	"cafe-order-service/internal/entity"

	"github.com/shopspring/decimal"
)

type BalanceReader interface {
	GetBalance(ctx context.Context, storeID, ingredientID int64) (*entity.InventoryBalance, error)
}

// CheckAvailability compares required quantities with the store's balances in
// ascending ingredient order and stops at the first shortfall. A missing
// balance row counts as zero.
func CheckAvailability(ctx context.Context, ledger BalanceReader, storeID int64, required entity.RequiredQuantities) error {
	for _, ingredientID := range required.IngredientIDs() {
		needed := required[ingredientID]

		balance, err := ledger.GetBalance(ctx, storeID, ingredientID)
		if err != nil {
			return err
		}

		available := decimal.Zero
		if balance != nil {
			available = balance.Quantity
		}

		if available.LessThan(needed) {
			return &entity.InsufficientStockError{
				StoreID:      storeID,
				IngredientID: ingredientID,
				Needed:       needed,
				Available:    available,
			}
		}
	}
	return nil
}
