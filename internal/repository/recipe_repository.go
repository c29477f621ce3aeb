package repository

import (
	"context"

	"cafe-order-service/internal/entity"
)

// RecipeRepository reads the product_recipes table. The workflow never writes it.
type RecipeRepository struct {
	db DBTX
}

func NewRecipeRepository(db DBTX) *RecipeRepository {
	return &RecipeRepository{db: db}
}

// GetRecipe returns the ingredients of a product ordered by ingredient id.
// A product without a recipe yields an empty slice.
func (r *RecipeRepository) GetRecipe(ctx context.Context, productID int64) ([]entity.RecipeEntry, error) {
	query := `SELECT product_id, ingredient_id, quantity_per_unit FROM product_recipes WHERE product_id = ? ORDER BY ingredient_id`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, entity.Persistence("get recipe", err)
	}
	defer rows.Close()

	entries := []entity.RecipeEntry{}
	for rows.Next() {
		var entry entity.RecipeEntry
		if err := rows.Scan(&entry.ProductID, &entry.IngredientID, &entry.QuantityPerUnit); err != nil {
			return nil, entity.Persistence("scan recipe", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.Persistence("iterate recipe", err)
	}
	return entries, nil
}
