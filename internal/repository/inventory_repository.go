package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cafe-order-service/internal/entity"

	"github.com/shopspring/decimal"
)

// InventoryRepository is the stock ledger: per-store balances plus the
// append-only inventory_transactions log.
type InventoryRepository struct {
	db      DBTX
	dialect Dialect
}

func NewInventoryRepository(db DBTX, dialect Dialect) *InventoryRepository {
	return &InventoryRepository{db: db, dialect: dialect}
}

// GetBalance returns nil without error when the store has no row for the ingredient.
// Inside a MySQL transaction the row stays locked until commit.
func (r *InventoryRepository) GetBalance(ctx context.Context, storeID, ingredientID int64) (*entity.InventoryBalance, error) {
	query := `SELECT store_id, ingredient_id, quantity, version, updated_at FROM inventory WHERE store_id = ? AND ingredient_id = ?` + r.dialect.lockClause()

	var balance entity.InventoryBalance
	var updatedAt dbTime
	err := r.db.QueryRowContext(ctx, query, storeID, ingredientID).
		Scan(&balance.StoreID, &balance.IngredientID, &balance.Quantity, &balance.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, entity.Persistence("get balance", err)
	}
	balance.UpdatedAt = updatedAt.Time
	return &balance, nil
}

func (r *InventoryRepository) ListBalances(ctx context.Context, storeID int64) ([]entity.InventoryBalance, error) {
	query := `SELECT store_id, ingredient_id, quantity, version, updated_at FROM inventory WHERE store_id = ? ORDER BY ingredient_id`

	rows, err := r.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, entity.Persistence("list balances", err)
	}
	defer rows.Close()

	balances := []entity.InventoryBalance{}
	for rows.Next() {
		var balance entity.InventoryBalance
		var updatedAt dbTime
		if err := rows.Scan(&balance.StoreID, &balance.IngredientID, &balance.Quantity, &balance.Version, &updatedAt); err != nil {
			return nil, entity.Persistence("scan balance", err)
		}
		balance.UpdatedAt = updatedAt.Time
		balances = append(balances, balance)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.Persistence("iterate balances", err)
	}
	return balances, nil
}

// UpdateBalance writes a new quantity if the row still carries expectedVersion.
func (r *InventoryRepository) UpdateBalance(ctx context.Context, storeID, ingredientID int64, quantity decimal.Decimal, expectedVersion int64, at time.Time) error {
	query := `UPDATE inventory SET quantity = ?, version = version + 1, updated_at = ? WHERE store_id = ? AND ingredient_id = ? AND version = ?`

	res, err := r.db.ExecContext(ctx, query, quantity, at, storeID, ingredientID, expectedVersion)
	if err != nil {
		return entity.Persistence("update balance", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return entity.Persistence("update balance", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: store %d ingredient %d", entity.ErrConcurrentUpdate, storeID, ingredientID)
	}
	return nil
}

func (r *InventoryRepository) AppendTransaction(ctx context.Context, t *entity.InventoryTransaction) error {
	query := `INSERT INTO inventory_transactions (id, store_id, ingredient_id, change_qty, reason, order_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

	var orderID any
	if t.OrderID != 0 {
		orderID = t.OrderID
	}

	_, err := r.db.ExecContext(ctx, query, t.ID, t.StoreID, t.IngredientID, t.ChangeQty, t.Reason, orderID, t.CreatedAt)
	if err != nil {
		return entity.Persistence("append inventory transaction", err)
	}
	return nil
}

func (r *InventoryRepository) ListTransactionsByOrder(ctx context.Context, orderID int64) ([]entity.InventoryTransaction, error) {
	query := `SELECT id, store_id, ingredient_id, change_qty, reason, order_id, created_at FROM inventory_transactions WHERE order_id = ? ORDER BY ingredient_id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, entity.Persistence("list inventory transactions", err)
	}
	defer rows.Close()

	transactions := []entity.InventoryTransaction{}
	for rows.Next() {
		var t entity.InventoryTransaction
		var createdAt dbTime
		if err := rows.Scan(&t.ID, &t.StoreID, &t.IngredientID, &t.ChangeQty, &t.Reason, &t.OrderID, &createdAt); err != nil {
			return nil, entity.Persistence("scan inventory transaction", err)
		}
		t.CreatedAt = createdAt.Time
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.Persistence("iterate inventory transactions", err)
	}
	return transactions, nil
}
