package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cafe-order-service/internal/entity"
)

type OrderRepository struct {
	db      DBTX
	dialect Dialect
}

func NewOrderRepository(db DBTX, dialect Dialect) *OrderRepository {
	return &OrderRepository{db: db, dialect: dialect}
}

const orderColumns = `id, store_id, customer_id, cashier_id, total, status, payment_status, payment_method, created_at, updated_at, paid_at`

// orderRow is the canonical shape of an orders row; everything read from the
// table goes through scanOrder so status labels are normalized exactly once.
type orderRow struct {
	customerID    sql.NullInt64
	status        string
	paymentStatus string
	paymentMethod string
	createdAt     dbTime
	updatedAt     dbTime
	paidAt        dbTime
}

func scanOrder(scan func(dest ...any) error) (*entity.Order, error) {
	order := &entity.Order{}
	var row orderRow
	err := scan(&order.ID, &order.StoreID, &row.customerID, &order.CashierID, &order.Total,
		&row.status, &row.paymentStatus, &row.paymentMethod, &row.createdAt, &row.updatedAt, &row.paidAt)
	if err != nil {
		return nil, err
	}

	order.Status, err = entity.ParseStatus(row.status)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", order.ID, err)
	}
	if row.customerID.Valid {
		id := row.customerID.Int64
		order.CustomerID = &id
	}
	order.PaymentStatus = entity.PaymentStatus(row.paymentStatus)
	order.PaymentMethod = entity.PaymentMethod(row.paymentMethod)
	order.CreatedAt = row.createdAt.Time
	order.UpdatedAt = row.updatedAt.Time
	order.PaidAt = row.paidAt.ptr()
	return order, nil
}

func (r *OrderRepository) GetOrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	orderQuery := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	order, err := scanOrder(r.db.QueryRowContext(ctx, orderQuery, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", entity.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, entity.Persistence("get order", err)
	}

	order.Items, err = r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID int64) ([]entity.OrderLineItem, error) {
	itemQuery := `SELECT id, product_id, quantity, unit_price, size, toppings FROM order_items WHERE order_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, itemQuery, orderID)
	if err != nil {
		return nil, entity.Persistence("get order items", err)
	}
	defer rows.Close()

	var items []entity.OrderLineItem
	for rows.Next() {
		var item entity.OrderLineItem
		var toppings string
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Size, &toppings); err != nil {
			return nil, entity.Persistence("scan order item", err)
		}
		if toppings != "" {
			if err := json.Unmarshal([]byte(toppings), &item.Toppings); err != nil {
				return nil, fmt.Errorf("order %d item %d toppings: %w", orderID, item.ID, err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.Persistence("iterate order items", err)
	}
	return items, nil
}

// CreateOrder inserts the order and its line items. It is meant to run inside
// a transaction so the order never exists without its items.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", entity.ErrInvalidOrder)
	}

	var idempotentKey any
	if order.IdempotentKey != "" {
		idempotentKey = order.IdempotentKey
	}

	orderQuery := `INSERT INTO orders (store_id, customer_id, cashier_id, total, status, payment_status, payment_method, idempotent_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, orderQuery, order.StoreID, order.CustomerID, order.CashierID, order.Total,
		string(order.Status), string(order.PaymentStatus), string(order.PaymentMethod), idempotentKey, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: idempotent key %q already used", entity.ErrDuplicateRequest, order.IdempotentKey)
		}
		return nil, entity.Persistence("insert order", err)
	}

	orderID, err := res.LastInsertId()
	if err != nil {
		return nil, entity.Persistence("order id", err)
	}

	// Insert line items with batch
	itemQuery := `INSERT INTO order_items (order_id, product_id, quantity, unit_price, size, toppings) VALUES `
	var values []any
	for _, item := range order.Items {
		toppings := ""
		if len(item.Toppings) > 0 {
			b, err := json.Marshal(item.Toppings)
			if err != nil {
				return nil, err
			}
			toppings = string(b)
		}
		itemQuery += "(" + placeholders(6) + "),"
		values = append(values, orderID, item.ProductID, item.Quantity, item.UnitPrice, item.Size, toppings)
	}

	// Remove the trailing comma
	itemQuery = itemQuery[:len(itemQuery)-1]

	if _, err = r.db.ExecContext(ctx, itemQuery, values...); err != nil {
		return nil, entity.Persistence("insert order items", err)
	}

	order.ID = orderID
	order.Items, err = r.loadItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListByStatus returns the orders of a store in the given statuses, oldest first.
func (r *OrderRepository) ListByStatus(ctx context.Context, storeID int64, statuses []entity.Status) ([]*entity.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE store_id = ? AND status IN (` + placeholders(len(statuses)) + `) ORDER BY created_at, id`
	args := []any{storeID}
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entity.Persistence("list orders", err)
	}

	var orders []*entity.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, entity.Persistence("scan order", err)
		}
		orders = append(orders, order)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, entity.Persistence("iterate orders", err)
	}

	// items are loaded after the cursor is closed; SQLite runs on one connection
	for _, order := range orders {
		order.Items, err = r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// StatusUpdate describes the columns a transition writes. Empty payment
// fields keep their stored values.
type StatusUpdate struct {
	To            entity.Status
	PaymentStatus entity.PaymentStatus
	PaymentMethod entity.PaymentMethod
	PaidAt        *time.Time
	At            time.Time
}

// UpdateStatus moves an order from one status to another. The write only
// applies while the order is still in from; otherwise ErrInvalidTransition is
// returned because someone else moved it first.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from entity.Status, update StatusUpdate) error {
	query := `UPDATE orders SET status = ?, updated_at = ?`
	args := []any{string(update.To), update.At}
	if update.PaymentStatus != "" {
		query += `, payment_status = ?`
		args = append(args, string(update.PaymentStatus))
	}
	if update.PaymentMethod != "" {
		query += `, payment_method = ?`
		args = append(args, string(update.PaymentMethod))
	}
	if update.PaidAt != nil {
		query += `, paid_at = ?`
		args = append(args, *update.PaidAt)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return entity.Persistence("update order status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return entity.Persistence("update order status", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %d is no longer %s", entity.ErrInvalidTransition, id, from)
	}
	return nil
}
