package service

import (
	"context"
	"fmt"
	"time"

	"cafe-order-service/internal/entity"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type StockLedger interface {
	BalanceReader
	UpdateBalance(ctx context.Context, storeID, ingredientID int64, quantity decimal.Decimal, expectedVersion int64, at time.Time) error
	AppendTransaction(ctx context.Context, t *entity.InventoryTransaction) error
}

// DeductionExecutor decrements balances and writes one SALE entry per
// ingredient. It trusts that CheckAvailability already approved the whole map
// inside the same transaction.
type DeductionExecutor struct {
	now   func() time.Time
	newID func() string
}

func NewDeductionExecutor() *DeductionExecutor {
	return &DeductionExecutor{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (e *DeductionExecutor) Apply(ctx context.Context, ledger StockLedger, storeID, orderID int64, required entity.RequiredQuantities) ([]entity.InventoryTransaction, error) {
	at := e.now()
	entries := make([]entity.InventoryTransaction, 0, len(required))

	for _, ingredientID := range required.IngredientIDs() {
		qty := required[ingredientID]

		balance, err := ledger.GetBalance(ctx, storeID, ingredientID)
		if err != nil {
			return nil, err
		}
		if balance == nil {
			return nil, fmt.Errorf("%w: stock row for ingredient %d in store %d disappeared", entity.ErrConcurrentUpdate, ingredientID, storeID)
		}

		err = ledger.UpdateBalance(ctx, storeID, ingredientID, balance.Quantity.Sub(qty), balance.Version, at)
		if err != nil {
			return nil, err
		}

		entry := entity.InventoryTransaction{
			ID:           e.newID(),
			StoreID:      storeID,
			IngredientID: ingredientID,
			ChangeQty:    qty.Neg(),
			Reason:       entity.ReasonSale,
			OrderID:      orderID,
			CreatedAt:    at,
		}
		if err := ledger.AppendTransaction(ctx, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
