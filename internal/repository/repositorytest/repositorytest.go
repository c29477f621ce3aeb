// Package repositorytest opens throwaway SQLite databases for tests.
package repositorytest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cafe-order-service/internal/repository"
	"cafe-order-service/migrations"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Open returns a migrated store backed by a SQLite file in t's temp dir.
func Open(t testing.TB) *repository.Store {
	t.Helper()

	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "cafe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.AutoMigrate(repository.DialectSQLite, 0, db))
	return repository.NewStore(db, repository.DialectSQLite)
}

// SeedRecipe sets how much of an ingredient one unit of a product consumes.
func SeedRecipe(t testing.TB, store *repository.Store, productID, ingredientID int64, perUnit string) {
	t.Helper()

	_, err := store.DB().ExecContext(context.Background(),
		`INSERT INTO product_recipes (product_id, ingredient_id, quantity_per_unit) VALUES (?, ?, ?)`,
		productID, ingredientID, decimal.RequireFromString(perUnit))
	require.NoError(t, err)
}

// SeedStock creates a balance row at version 0.
func SeedStock(t testing.TB, store *repository.Store, storeID, ingredientID int64, quantity string) {
	t.Helper()

	_, err := store.DB().ExecContext(context.Background(),
		`INSERT INTO inventory (store_id, ingredient_id, quantity, version, updated_at) VALUES (?, ?, ?, 0, ?)`,
		storeID, ingredientID, decimal.RequireFromString(quantity), time.Now().UTC())
	require.NoError(t, err)
}

// Balance reads the current quantity, failing the test if the row is missing.
func Balance(t testing.TB, store *repository.Store, storeID, ingredientID int64) decimal.Decimal {
	t.Helper()

	balance, err := store.Inventory().GetBalance(context.Background(), storeID, ingredientID)
	require.NoError(t, err)
	require.NotNil(t, balance, "no stock row for store %d ingredient %d", storeID, ingredientID)
	return balance.Quantity
}
