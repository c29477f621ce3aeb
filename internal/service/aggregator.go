package service

import (
	"context"

	"cafe-order-service/internal/entity"

	"github.com/shopspring/decimal"
)

type RecipeLookup interface {
	Resolve(ctx context.Context, productID int64) ([]entity.RecipeEntry, error)
}

// IngredientAggregator turns order lines into the total quantity of every
// ingredient they consume. Products without a recipe contribute nothing.
type IngredientAggregator struct {
	recipes RecipeLookup
}

func NewIngredientAggregator(recipes RecipeLookup) *IngredientAggregator {
	return &IngredientAggregator{recipes: recipes}
}

func (a *IngredientAggregator) Aggregate(ctx context.Context, items []entity.OrderLineItem) (entity.RequiredQuantities, error) {
	required := entity.RequiredQuantities{}
	resolved := make(map[int64][]entity.RecipeEntry)

	for _, item := range items {
		recipe, ok := resolved[item.ProductID]
		if !ok {
			var err error
			recipe, err = a.recipes.Resolve(ctx, item.ProductID)
			if err != nil {
				return nil, err
			}
			resolved[item.ProductID] = recipe
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		for _, entry := range recipe {
			need := entry.QuantityPerUnit.Mul(qty)
			if !need.IsPositive() {
				continue
			}
			required.Add(entry.IngredientID, need)
		}
	}
	return required, nil
}
