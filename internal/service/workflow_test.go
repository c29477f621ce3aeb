package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cafe-order-service/internal/entity"
	"cafe-order-service/internal/repository/repositorytest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteOrderInsufficientStockChangesNothing(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	repositorytest.SeedRecipe(t, store, 1, 1, "50")
	repositorytest.SeedStock(t, store, 1, 1, "90")
	order := placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(1, 2))
	publisher := &recordingPublisher{}

	_, err := newTestWorkflow(store, publisher).CompleteOrder(ctx, order.ID, entity.PaymentCash, cashier)

	var shortage *entity.InsufficientStockError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, int64(1), shortage.IngredientID)
	assert.True(t, shortage.Needed.Equal(decimal.NewFromInt(100)))
	assert.True(t, shortage.Available.Equal(decimal.NewFromInt(90)))

	assert.True(t, repositorytest.Balance(t, store, 1, 1).Equal(decimal.NewFromInt(90)))
	transactions, err := store.Inventory().ListTransactionsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, transactions)

	got, err := store.Orders().GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompletedByBarista, got.Status)
	assert.Equal(t, entity.PaymentUnpaid, got.PaymentStatus)
	assert.Empty(t, publisher.types())
}

func TestCompleteOrderDeductsAndFinishes(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	repositorytest.SeedRecipe(t, store, 1, 1, "50")
	repositorytest.SeedStock(t, store, 1, 1, "120")
	order := placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(1, 2))
	publisher := &recordingPublisher{}

	completed, err := newTestWorkflow(store, publisher).CompleteOrder(ctx, order.ID, entity.PaymentCard, cashier)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDone, completed.Status)
	assert.Equal(t, entity.PaymentPaid, completed.PaymentStatus)
	require.NotNil(t, completed.PaidAt)

	assert.True(t, repositorytest.Balance(t, store, 1, 1).Equal(decimal.NewFromInt(20)))

	transactions, err := store.Inventory().ListTransactionsByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	tx := transactions[0]
	assert.Equal(t, int64(1), tx.StoreID)
	assert.Equal(t, int64(1), tx.IngredientID)
	assert.True(t, tx.ChangeQty.Equal(decimal.NewFromInt(-100)))
	assert.Equal(t, entity.ReasonSale, tx.Reason)
	assert.Equal(t, order.ID, tx.OrderID)

	got, err := store.Orders().GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDone, got.Status)
	assert.Equal(t, entity.PaymentCard, got.PaymentMethod)

	event := publisher.last()
	require.NotNil(t, event)
	assert.Equal(t, EventOrderCompleted, event.Type)
	assert.Len(t, event.Deductions, 1)
}

func TestCompleteOrderTwiceDeductsOnce(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	repositorytest.SeedRecipe(t, store, 1, 1, "50")
	repositorytest.SeedStock(t, store, 1, 1, "500")
	order := placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(1, 2))
	workflow := newTestWorkflow(store, nil)

	_, err := workflow.CompleteOrder(ctx, order.ID, entity.PaymentCash, cashier)
	require.NoError(t, err)

	_, err = workflow.CompleteOrder(ctx, order.ID, entity.PaymentCash, cashier)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	assert.True(t, repositorytest.Balance(t, store, 1, 1).Equal(decimal.NewFromInt(400)))
	transactions, err := store.Inventory().ListTransactionsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
}

func TestCompleteOrderRequiresBaristaFinished(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	repositorytest.SeedRecipe(t, store, 1, 1, "50")
	repositorytest.SeedStock(t, store, 1, 1, "500")
	order := placeOrder(t, store, 1, entity.StatusPending, item(1, 1))

	_, err := newTestWorkflow(store, nil).CompleteOrder(ctx, order.ID, entity.PaymentCash, cashier)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
	assert.True(t, repositorytest.Balance(t, store, 1, 1).Equal(decimal.NewFromInt(500)))
}

func TestCompleteOrderValidatesCaller(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	order := placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(1, 1))
	workflow := newTestWorkflow(store, nil)

	_, err := workflow.CompleteOrder(ctx, order.ID, entity.PaymentMethod("iou"), cashier)
	assert.ErrorIs(t, err, entity.ErrInvalidOrder)

	_, err = workflow.CompleteOrder(ctx, order.ID, entity.PaymentCash, entity.Actor{Role: entity.RoleBarista, StoreID: 1})
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = workflow.CompleteOrder(ctx, order.ID, entity.PaymentCash, entity.Actor{Role: entity.RoleCashier, StoreID: 2})
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = workflow.CompleteOrder(ctx, 999, entity.PaymentCash, cashier)
	assert.ErrorIs(t, err, entity.ErrOrderNotFound)
}

func TestCompleteOrderWithoutRecipeWritesNoLedger(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	order := placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(7, 1))

	completed, err := newTestWorkflow(store, nil).CompleteOrder(ctx, order.ID, entity.PaymentTransfer, entity.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDone, completed.Status)

	transactions, err := store.Inventory().ListTransactionsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, transactions)
}

func TestCompleteOrderMissingStockRow(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	repositorytest.SeedRecipe(t, store, 1, 1, "50")
	repositorytest.SeedRecipe(t, store, 1, 2, "10")
	repositorytest.SeedStock(t, store, 1, 1, "500")
	order := placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(1, 1))

	_, err := newTestWorkflow(store, nil).CompleteOrder(ctx, order.ID, entity.PaymentCash, cashier)

	var shortage *entity.InsufficientStockError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, int64(2), shortage.IngredientID)
	assert.True(t, shortage.Available.IsZero())
	// ingredient 1 passed the check but nothing was applied
	assert.True(t, repositorytest.Balance(t, store, 1, 1).Equal(decimal.NewFromInt(500)))
}

func TestCompleteOrderLineOrderDoesNotMatter(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	repositorytest.SeedRecipe(t, store, 1, 1, "18")
	repositorytest.SeedRecipe(t, store, 2, 1, "9")
	repositorytest.SeedRecipe(t, store, 2, 2, "150")
	for _, storeID := range []int64{1, 2} {
		repositorytest.SeedStock(t, store, storeID, 1, "1000")
		repositorytest.SeedStock(t, store, storeID, 2, "1000")
	}
	a := placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(1, 1), item(2, 2))
	b := placeOrder(t, store, 2, entity.StatusCompletedByBarista, item(2, 2), item(1, 1))
	workflow := newTestWorkflow(store, nil)
	admin := entity.Actor{Role: entity.RoleAdmin}

	_, err := workflow.CompleteOrder(ctx, a.ID, entity.PaymentCash, admin)
	require.NoError(t, err)
	_, err = workflow.CompleteOrder(ctx, b.ID, entity.PaymentCash, admin)
	require.NoError(t, err)

	for _, ingredientID := range []int64{1, 2} {
		assert.True(t, repositorytest.Balance(t, store, 1, ingredientID).Equal(repositorytest.Balance(t, store, 2, ingredientID)),
			"ingredient %d", ingredientID)
	}
	assert.True(t, repositorytest.Balance(t, store, 1, 1).Equal(decimal.NewFromInt(1000-18-18)))
	assert.True(t, repositorytest.Balance(t, store, 1, 2).Equal(decimal.NewFromInt(1000-300)))
}

func TestConcurrentCompletionNeverOversells(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	repositorytest.SeedRecipe(t, store, 1, 1, "50")
	repositorytest.SeedStock(t, store, 1, 1, "150")

	const n = 5
	orders := make([]*entity.Order, n)
	for i := range orders {
		orders[i] = placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(1, 2))
	}
	workflow := newTestWorkflow(store, nil)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, order := range orders {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = workflow.CompleteOrder(ctx, id, entity.PaymentCash, cashier)
		}(i, order.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, entity.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, repositorytest.Balance(t, store, 1, 1).Equal(decimal.NewFromInt(50)))

	done, err := store.Orders().ListByStatus(ctx, 1, []entity.Status{entity.StatusDone})
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestTransitionStatusHappyPath(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	order := placeOrder(t, store, 1, entity.StatusPending, item(1, 1))
	publisher := &recordingPublisher{}
	workflow := newTestWorkflow(store, publisher)
	barista := entity.Actor{ID: "b-1", Role: entity.RoleBarista, StoreID: 1}

	change, err := workflow.TransitionStatus(ctx, order.ID, entity.StatusAccepted, cashier)
	require.NoError(t, err)
	assert.Equal(t, &entity.StatusChange{OrderID: order.ID, Status: entity.StatusAccepted}, change)

	_, err = workflow.TransitionStatus(ctx, order.ID, entity.StatusMaking, cashier)
	require.NoError(t, err)
	_, err = workflow.TransitionStatus(ctx, order.ID, entity.StatusCompletedByBarista, barista)
	require.NoError(t, err)

	got, err := store.Orders().GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompletedByBarista, got.Status)
	assert.Equal(t, []string{EventStatusChanged, EventStatusChanged, EventStatusChanged}, publisher.types())
}

func TestTransitionStatusRejectsSkipsAndDone(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	order := placeOrder(t, store, 1, entity.StatusPending, item(1, 1))
	workflow := newTestWorkflow(store, nil)

	_, err := workflow.TransitionStatus(ctx, order.ID, entity.StatusDone, cashier)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	_, err = workflow.TransitionStatus(ctx, order.ID, entity.StatusMaking, cashier)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	got, err := store.Orders().GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
}

func TestTransitionStatusLegacyNewCannotJumpToDone(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	order := placeOrder(t, store, 1, entity.StatusPending, item(1, 1))
	_, err := store.DB().ExecContext(ctx, `UPDATE orders SET status = 'new' WHERE id = ?`, order.ID)
	require.NoError(t, err)

	_, err = newTestWorkflow(store, nil).CompleteOrder(ctx, order.ID, entity.PaymentCash, cashier)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestTransitionStatusRoles(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	order := placeOrder(t, store, 1, entity.StatusPending, item(1, 1))
	workflow := newTestWorkflow(store, nil)

	_, err := workflow.TransitionStatus(ctx, order.ID, entity.StatusAccepted, entity.Actor{Role: entity.RoleBarista, StoreID: 1})
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = workflow.TransitionStatus(ctx, order.ID, entity.StatusAccepted, entity.Actor{Role: entity.RoleCashier, StoreID: 3})
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = workflow.TransitionStatus(ctx, 12345, entity.StatusAccepted, cashier)
	assert.ErrorIs(t, err, entity.ErrOrderNotFound)
}

func TestCancelAndRefund(t *testing.T) {
	ctx := context.Background()
	store := repositorytest.Open(t)
	repositorytest.SeedRecipe(t, store, 1, 1, "50")
	repositorytest.SeedStock(t, store, 1, 1, "100")
	workflow := newTestWorkflow(store, nil)
	admin := entity.Actor{ID: "a-1", Role: entity.RoleAdmin}

	cancelled := placeOrder(t, store, 1, entity.StatusMaking, item(1, 1))
	_, err := workflow.TransitionStatus(ctx, cancelled.ID, entity.StatusCancelled, cashier)
	require.NoError(t, err)
	_, err = workflow.TransitionStatus(ctx, cancelled.ID, entity.StatusAccepted, cashier)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	paid := placeOrder(t, store, 1, entity.StatusCompletedByBarista, item(1, 1))
	_, err = workflow.CompleteOrder(ctx, paid.ID, entity.PaymentCash, cashier)
	require.NoError(t, err)

	_, err = workflow.TransitionStatus(ctx, paid.ID, entity.StatusRefunded, cashier)
	assert.ErrorIs(t, err, entity.ErrForbidden)
	_, err = workflow.TransitionStatus(ctx, paid.ID, entity.StatusRefunded, admin)
	require.NoError(t, err)

	got, err := store.Orders().GetOrderByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRefunded, got.Status)
	assert.Equal(t, entity.PaymentRefunded, got.PaymentStatus)
	// refunds do not restock
	assert.True(t, repositorytest.Balance(t, store, 1, 1).Equal(decimal.NewFromInt(50)))
}
