package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID            int64           `json:"id"`
	StoreID       int64           `json:"store_id"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	CashierID     string          `json:"cashier_id,omitempty"`
	Items         []OrderLineItem `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	IdempotentKey string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

type OrderLineItem struct {
	ID        int64           `json:"id,omitempty"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Size      string          `json:"size,omitempty"`
	Toppings  []string        `json:"toppings,omitempty"`
}

// Subtotal is quantity times unit price.
func (i OrderLineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StatusChange is what a status transition reports back to the caller.
type StatusChange struct {
	OrderID int64  `json:"order_id"`
	Status  Status `json:"status"`
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "Unpaid"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentRefunded PaymentStatus = "Refunded"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid reports whether m is one of the accepted payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

/*
MySQL tables

CREATE TABLE orders (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	store_id BIGINT NOT NULL,
	status VARCHAR(32) NOT NULL,
	...
);

CREATE TABLE order_items (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	product_id BIGINT NOT NULL,
	quantity INT NOT NULL,
	...
);

See migrations for the full DDL.
*/
