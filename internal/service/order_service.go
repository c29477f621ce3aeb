package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cafe-order-service/internal/cache"
	"cafe-order-service/internal/entity"
	"cafe-order-service/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const idempotencyTTL = 24 * time.Hour

// DefaultQueueStatuses is what the barista screen shows when no filter is given.
var DefaultQueueStatuses = []entity.Status{
	entity.StatusAccepted,
	entity.StatusMaking,
	entity.StatusCompletedByBarista,
}

// OrderService covers order intake and the read-only views staff use.
type OrderService struct {
	store     *repository.Store
	cache     cache.Cache
	publisher EventPublisher
	now       func() time.Time
}

// NewOrderService creates a new instance of OrderService. cache and publisher may be nil.
func NewOrderService(store *repository.Store, c cache.Cache, publisher EventPublisher) *OrderService {
	return &OrderService{
		store:     store,
		cache:     c,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validateOrder(order *entity.Order) error {
	if order.StoreID <= 0 {
		return fmt.Errorf("%w: store_id is required", entity.ErrInvalidOrder)
	}
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", entity.ErrInvalidOrder)
	}
	for i, item := range order.Items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item %d: product_id is required", entity.ErrInvalidOrder, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", entity.ErrInvalidOrder, i)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d: unit_price cannot be negative", entity.ErrInvalidOrder, i)
		}
	}
	return nil
}

// CreateOrder records a new Pending order. A non-empty IdempotentKey can be
// used once; a replay returns ErrDuplicateRequest.
func (s *OrderService) CreateOrder(ctx context.Context, order *entity.Order, actor entity.Actor) (*entity.Order, error) {
	switch actor.Role {
	case entity.RoleCustomer, entity.RoleCashier, entity.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: %s cannot create orders", entity.ErrForbidden, actor.Role)
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if !actor.CanAccess(order.StoreID) {
		return nil, fmt.Errorf("%w: store %d", entity.ErrForbidden, order.StoreID)
	}

	claimedKey, err := s.claimIdempotentKey(ctx, order.IdempotentKey)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order.ID = 0
	order.Status = entity.StatusPending
	order.PaymentStatus = entity.PaymentUnpaid
	order.PaymentMethod = ""
	order.PaidAt = nil
	order.CreatedAt = now
	order.UpdatedAt = now
	if actor.Role == entity.RoleCashier {
		order.CashierID = actor.ID
	}

	order.Total = decimal.Zero
	for _, item := range order.Items {
		order.Total = order.Total.Add(item.Subtotal())
	}

	var created *entity.Order
	err = s.store.InTx(ctx, func(tx *repository.Tx) error {
		var err error
		created, err = tx.Orders().CreateOrder(ctx, order)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("Error creating order")
		s.releaseIdempotentKey(ctx, claimedKey)
		return nil, err
	}

	logger.Info().Msgf("Order %d created for store %d with %d items", created.ID, created.StoreID, len(created.Items))
	publish(ctx, s.publisher, &OrderEvent{Type: EventOrderCreated, Order: created, OccurredAt: now})

	return created, nil
}

// claimIdempotentKey reserves the key in the cache and returns the cache key
// it used. When the cache is down the unique column on orders still rejects
// replays.
func (s *OrderService) claimIdempotentKey(ctx context.Context, key string) (string, error) {
	if key == "" || s.cache == nil {
		return "", nil
	}

	cacheKey := s.cache.GenerateKey("idempotent-key", key)
	ok, err := s.cache.SetNX(ctx, cacheKey, "exists", idempotencyTTL)
	if err != nil {
		logger.Warn().Err(err).Msgf("Error claiming idempotent key %s, relying on database", key)
		return "", nil
	}
	if !ok {
		return "", fmt.Errorf("%w: idempotent key %q already used", entity.ErrDuplicateRequest, key)
	}
	return cacheKey, nil
}

func (s *OrderService) releaseIdempotentKey(ctx context.Context, cacheKey string) {
	if cacheKey == "" {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		logger.Warn().Err(err).Msgf("Error releasing %s", cacheKey)
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id int64, actor entity.Actor) (*entity.Order, error) {
	order, err := s.store.Orders().GetOrderByID(ctx, id)
	if err != nil {
		if !errors.Is(err, entity.ErrOrderNotFound) {
			logger.Error().Err(err).Msgf("Error getting order by ID %d", id)
		}
		return nil, err
	}
	if !actor.CanAccess(order.StoreID) {
		return nil, fmt.Errorf("%w: order %d belongs to store %d", entity.ErrForbidden, id, order.StoreID)
	}
	return order, nil
}

// ListQueue returns a store's orders in the given statuses, oldest first.
func (s *OrderService) ListQueue(ctx context.Context, storeID int64, statuses []entity.Status, actor entity.Actor) ([]*entity.Order, error) {
	if !actor.CanAccess(storeID) {
		return nil, fmt.Errorf("%w: store %d", entity.ErrForbidden, storeID)
	}
	if len(statuses) == 0 {
		statuses = DefaultQueueStatuses
	}

	orders, err := s.store.Orders().ListByStatus(ctx, storeID, statuses)
	if err != nil {
		logger.Error().Err(err).Msgf("Error listing queue of store %d", storeID)
		return nil, err
	}
	return orders, nil
}

// GetStock returns every ingredient balance of a store.
func (s *OrderService) GetStock(ctx context.Context, storeID int64, actor entity.Actor) ([]entity.InventoryBalance, error) {
	if !actor.CanAccess(storeID) || actor.Role == entity.RoleCustomer {
		return nil, fmt.Errorf("%w: store %d", entity.ErrForbidden, storeID)
	}

	balances, err := s.store.Inventory().ListBalances(ctx, storeID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error listing stock of store %d", storeID)
		return nil, err
	}
	return balances, nil
}

// ListTransactions returns the ledger entries written when an order was completed.
func (s *OrderService) ListTransactions(ctx context.Context, orderID int64, actor entity.Actor) ([]entity.InventoryTransaction, error) {
	if actor.Role == entity.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot read the stock ledger", entity.ErrForbidden)
	}
	if _, err := s.GetOrder(ctx, orderID, actor); err != nil {
		return nil, err
	}

	transactions, err := s.store.Inventory().ListTransactionsByOrder(ctx, orderID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error listing inventory transactions of order %d", orderID)
		return nil, err
	}
	return transactions, nil
}
