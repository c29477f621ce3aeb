package entity

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ReasonSale marks ledger entries created by order completion.
const ReasonSale = "SALE"

// RecipeEntry maps one product to one ingredient it consumes per unit sold.
type RecipeEntry struct {
	ProductID       int64           `json:"product_id"`
	IngredientID    int64           `json:"ingredient_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type InventoryBalance struct {
	StoreID      int64           `json:"store_id"`
	IngredientID int64           `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// InventoryTransaction is one immutable ledger entry.
type InventoryTransaction struct {
	ID           string          `json:"id"`
	StoreID      int64           `json:"store_id"`
	IngredientID int64           `json:"ingredient_id"`
	ChangeQty    decimal.Decimal `json:"change_qty"`
	Reason       string          `json:"reason"`
	OrderID      int64           `json:"order_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RequiredQuantities is ingredient id -> total quantity needed by one order.
type RequiredQuantities map[int64]decimal.Decimal

// Add accumulates qty for an ingredient.
func (r RequiredQuantities) Add(ingredientID int64, qty decimal.Decimal) {
	if cur, ok := r[ingredientID]; ok {
		r[ingredientID] = cur.Add(qty)
		return
	}
	r[ingredientID] = qty
}

// IngredientIDs returns the keys in ascending order.
func (r RequiredQuantities) IngredientIDs() []int64 {
	ids := make([]int64, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
