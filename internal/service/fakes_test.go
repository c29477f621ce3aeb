package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cafe-order-service/internal/entity"
	"cafe-order-service/internal/repository"
	"cafe-order-service/internal/sharding"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var errCacheDown = errors.New("redis: connection refused")

// memoryCache is an in-process cache.Cache.
type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	down   bool
	gets   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}}
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errCacheDown
	}
	c.values[key] = fmt.Sprint(value)
	return nil
}

func (c *memoryCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false, errCacheDown
	}
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = fmt.Sprint(value)
	return true, nil
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.down {
		return "", errCacheDown
	}
	return c.values[key], nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errCacheDown
	}
	delete(c.values, key)
	return nil
}

func (c *memoryCache) GenerateKey(operation, key string) string {
	return "cafe:" + operation + ":" + key
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(ctx context.Context, event *OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

func (p *recordingPublisher) last() *OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

// memoryLedger is a StockLedger over a map, keyed by ingredient id of a single store.
type memoryLedger struct {
	balances  map[int64]*entity.InventoryBalance
	appended  []entity.InventoryTransaction
	reads     []int64
	updateErr error
}

func newMemoryLedger(storeID int64, quantities map[int64]string) *memoryLedger {
	l := &memoryLedger{balances: map[int64]*entity.InventoryBalance{}}
	for id, qty := range quantities {
		l.balances[id] = &entity.InventoryBalance{StoreID: storeID, IngredientID: id, Quantity: decimal.RequireFromString(qty)}
	}
	return l
}

func (l *memoryLedger) GetBalance(ctx context.Context, storeID, ingredientID int64) (*entity.InventoryBalance, error) {
	l.reads = append(l.reads, ingredientID)
	b, ok := l.balances[ingredientID]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (l *memoryLedger) UpdateBalance(ctx context.Context, storeID, ingredientID int64, quantity decimal.Decimal, expectedVersion int64, at time.Time) error {
	if l.updateErr != nil {
		return l.updateErr
	}
	b := l.balances[ingredientID]
	if b == nil || b.Version != expectedVersion {
		return entity.ErrConcurrentUpdate
	}
	b.Quantity = quantity
	b.Version++
	return nil
}

func (l *memoryLedger) AppendTransaction(ctx context.Context, t *entity.InventoryTransaction) error {
	l.appended = append(l.appended, *t)
	return nil
}

// staticRecipes is a RecipeLookup/RecipeSource over a fixed map.
type staticRecipes struct {
	mu      sync.Mutex
	recipes map[int64][]entity.RecipeEntry
	calls   map[int64]int
	err     error
}

func newStaticRecipes() *staticRecipes {
	return &staticRecipes{recipes: map[int64][]entity.RecipeEntry{}, calls: map[int64]int{}}
}

func (s *staticRecipes) with(productID, ingredientID int64, perUnit string) *staticRecipes {
	s.recipes[productID] = append(s.recipes[productID], entity.RecipeEntry{
		ProductID:       productID,
		IngredientID:    ingredientID,
		QuantityPerUnit: decimal.RequireFromString(perUnit),
	})
	return s
}

func (s *staticRecipes) Resolve(ctx context.Context, productID int64) ([]entity.RecipeEntry, error) {
	return s.GetRecipe(ctx, productID)
}

func (s *staticRecipes) GetRecipe(ctx context.Context, productID int64) ([]entity.RecipeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[productID]++
	if s.err != nil {
		return nil, s.err
	}
	entries := s.recipes[productID]
	if entries == nil {
		entries = []entity.RecipeEntry{}
	}
	return entries, nil
}

func newTestWorkflow(store *repository.Store, publisher EventPublisher) *Workflow {
	recipes := NewRecipeResolver(store.Recipes(), nil, 0)
	return NewWorkflow(store, NewIngredientAggregator(recipes), sharding.NewStoreLocks(4), publisher)
}

func item(productID int64, quantity int) entity.OrderLineItem {
	return entity.OrderLineItem{ProductID: productID, Quantity: quantity, UnitPrice: decimal.NewFromInt(3)}
}

// placeOrder inserts an order directly in the given status.
func placeOrder(t testing.TB, store *repository.Store, storeID int64, status entity.Status, items ...entity.OrderLineItem) *entity.Order {
	t.Helper()

	now := time.Now().UTC()
	order, err := store.Orders().CreateOrder(context.Background(), &entity.Order{
		StoreID:       storeID,
		Items:         items,
		Total:         decimal.NewFromInt(3),
		Status:        status,
		PaymentStatus: entity.PaymentUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
	return order
}

var cashier = entity.Actor{ID: "c-1", Role: entity.RoleCashier, StoreID: 1}
