package migrations

import (
	"database/sql"
	"fmt"
	"time"

	"cafe-order-service/internal/repository"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		store_id BIGINT NOT NULL,
		customer_id BIGINT NULL,
		cashier_id VARCHAR(64) NOT NULL DEFAULT '',
		total DECIMAL(18,4) NOT NULL,
		status VARCHAR(32) NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		payment_method VARCHAR(16) NOT NULL DEFAULT '',
		idempotent_key VARCHAR(255) NULL UNIQUE,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		paid_at DATETIME(6) NULL,
		INDEX idx_orders_store_status (store_id, status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(18,4) NOT NULL,
		size VARCHAR(16) NOT NULL DEFAULT '',
		toppings TEXT NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS product_recipes (
		product_id BIGINT NOT NULL,
		ingredient_id BIGINT NOT NULL,
		quantity_per_unit DECIMAL(18,4) NOT NULL,
		PRIMARY KEY (product_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		store_id BIGINT NOT NULL,
		ingredient_id BIGINT NOT NULL,
		quantity DECIMAL(18,4) NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (store_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id VARCHAR(36) PRIMARY KEY,
		store_id BIGINT NOT NULL,
		ingredient_id BIGINT NOT NULL,
		change_qty DECIMAL(18,4) NOT NULL,
		reason VARCHAR(16) NOT NULL,
		order_id BIGINT NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_inventory_tx_order (order_id, store_id, ingredient_id),
		INDEX idx_inventory_tx_store (store_id, ingredient_id, created_at)
	)`,
}

// Decimal columns are TEXT so SQLite keeps every digit.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		store_id INTEGER NOT NULL,
		customer_id INTEGER NULL,
		cashier_id TEXT NOT NULL DEFAULT '',
		total TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		idempotent_key TEXT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		paid_at DATETIME NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_store_status ON orders(store_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		size TEXT NOT NULL DEFAULT '',
		toppings TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS product_recipes (
		product_id INTEGER NOT NULL,
		ingredient_id INTEGER NOT NULL,
		quantity_per_unit TEXT NOT NULL,
		PRIMARY KEY (product_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		store_id INTEGER NOT NULL,
		ingredient_id INTEGER NOT NULL,
		quantity TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (store_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id TEXT PRIMARY KEY,
		store_id INTEGER NOT NULL,
		ingredient_id INTEGER NOT NULL,
		change_qty TEXT NOT NULL,
		reason TEXT NOT NULL,
		order_id INTEGER NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (order_id, store_id, ingredient_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_tx_store ON inventory_transactions(store_id, ingredient_id, created_at)`,
}

// AutoMigrate creates the service tables if they do not exist. Each statement
// is retried while the database is still coming up.
func AutoMigrate(dialect repository.Dialect, retries int, db *sql.DB) error {
	schema := mysqlSchema
	if dialect == repository.DialectSQLite {
		schema = sqliteSchema
	}

	for _, query := range schema {
		_, err := db.Exec(query)
		// Retry creating the table
		for i := 0; err != nil && i < retries; i++ {
			time.Sleep(1 * time.Second)
			_, err = db.Exec(query)
		}
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
