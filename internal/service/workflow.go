package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cafe-order-service/internal/entity"
	"cafe-order-service/internal/repository"
	"cafe-order-service/internal/sharding"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxCompletionAttempts bounds retries after a lost optimistic-concurrency race.
const maxCompletionAttempts = 3

var tracer = otel.Tracer("cafe-order-service/internal/service")

// Workflow drives orders through their status machine. CompleteOrder is the
// only path into Done and the only caller of the deduction pipeline.
// stockDeducter applies an approved requirement map to the ledger.
type stockDeducter interface {
	Apply(ctx context.Context, ledger StockLedger, storeID, orderID int64, required entity.RequiredQuantities) ([]entity.InventoryTransaction, error)
}

type Workflow struct {
	store      *repository.Store
	aggregator *IngredientAggregator
	executor   stockDeducter
	locks      *sharding.StoreLocks
	publisher  EventPublisher
	now        func() time.Time
}

func NewWorkflow(store *repository.Store, aggregator *IngredientAggregator, locks *sharding.StoreLocks, publisher EventPublisher) *Workflow {
	return &Workflow{
		store:      store,
		aggregator: aggregator,
		executor:   NewDeductionExecutor(),
		locks:      locks,
		publisher:  publisher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func authorize(actor entity.Actor, order *entity.Order, target entity.Status) error {
	if !actor.CanAccess(order.StoreID) {
		return fmt.Errorf("%w: order %d belongs to store %d", entity.ErrForbidden, order.ID, order.StoreID)
	}
	if !entity.CanTransition(order.Status, target) {
		return fmt.Errorf("%w: %s -> %s (allowed: %v)", entity.ErrInvalidTransition, order.Status, target, entity.AllowedNext(order.Status))
	}
	if !entity.MayTransition(actor.Role, order.Status, target) {
		return fmt.Errorf("%w: %s cannot move order from %s to %s", entity.ErrForbidden, actor.Role, order.Status, target)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TransitionStatus applies one forward step of the status machine.
func (w *Workflow) TransitionStatus(ctx context.Context, orderID int64, target entity.Status, actor entity.Actor) (change *entity.StatusChange, err error) {
	ctx, span := tracer.Start(ctx, "Workflow.TransitionStatus", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.target_status", string(target)),
	))
	defer func() { endSpan(span, err) }()

	if target == entity.StatusDone {
		return nil, fmt.Errorf("%w: orders reach %s only through payment completion", entity.ErrInvalidTransition, entity.StatusDone)
	}

	order, err := w.store.Orders().GetOrderByID(ctx, orderID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting order by ID %d", orderID)
		return nil, err
	}

	if err := authorize(actor, order, target); err != nil {
		logger.Warn().Err(err).Msgf("Rejected transition of order %d", orderID)
		return nil, err
	}

	update := repository.StatusUpdate{To: target, At: w.now()}
	if target == entity.StatusRefunded {
		update.PaymentStatus = entity.PaymentRefunded
	}

	if err := w.store.Orders().UpdateStatus(ctx, orderID, order.Status, update); err != nil {
		logger.Error().Err(err).Msgf("Error updating status of order %d", orderID)
		return nil, err
	}

	logger.Info().Msgf("Order %d moved from %s to %s by %s", orderID, order.Status, target, actor.Role)

	order.Status = target
	order.UpdatedAt = update.At
	if update.PaymentStatus != "" {
		order.PaymentStatus = update.PaymentStatus
	}
	publish(ctx, w.publisher, &OrderEvent{Type: EventStatusChanged, Order: order, OccurredAt: update.At})

	return &entity.StatusChange{OrderID: orderID, Status: target}, nil
}

// CompleteOrder finalizes payment: it moves the order to Done and deducts the
// ingredients it consumed from the store's stock, both in one transaction.
// On any failure the order keeps its previous status and no stock changes.
func (w *Workflow) CompleteOrder(ctx context.Context, orderID int64, method entity.PaymentMethod, actor entity.Actor) (order *entity.Order, err error) {
	ctx, span := tracer.Start(ctx, "Workflow.CompleteOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("payment.method", string(method)),
	))
	defer func() { endSpan(span, err) }()

	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", entity.ErrInvalidOrder, method)
	}

	order, err = w.store.Orders().GetOrderByID(ctx, orderID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting order by ID %d", orderID)
		return nil, err
	}

	if err := authorize(actor, order, entity.StatusDone); err != nil {
		logger.Warn().Err(err).Msgf("Rejected completion of order %d", orderID)
		return nil, err
	}

	required, err := w.aggregator.Aggregate(ctx, order.Items)
	if err != nil {
		logger.Error().Err(err).Msgf("Error aggregating ingredients for order %d", orderID)
		return nil, err
	}
	span.SetAttributes(attribute.Int("order.ingredients", len(required)))

	paidAt := w.now()
	deducted, err := w.deductAndFinish(ctx, order, method, required, paidAt)
	if err != nil {
		var shortage *entity.InsufficientStockError
		if errors.As(err, &shortage) {
			logger.Warn().Err(err).Msgf("Order %d cannot be completed", orderID)
		} else {
			logger.Error().Err(err).Msgf("Error completing order %d", orderID)
		}
		return nil, err
	}

	logger.Info().Msgf("Order %d completed, %d ingredients deducted from store %d", orderID, len(deducted), order.StoreID)

	order.Status = entity.StatusDone
	order.PaymentStatus = entity.PaymentPaid
	order.PaymentMethod = method
	order.PaidAt = &paidAt
	order.UpdatedAt = paidAt
	publish(ctx, w.publisher, &OrderEvent{Type: EventOrderCompleted, Order: order, Deductions: deducted, OccurredAt: paidAt})

	return order, nil
}

// deductAndFinish holds the store lock only for the transaction and its
// retries; callers publish after it returns.
func (w *Workflow) deductAndFinish(ctx context.Context, order *entity.Order, method entity.PaymentMethod, required entity.RequiredQuantities, paidAt time.Time) ([]entity.InventoryTransaction, error) {
	unlock := w.locks.Lock(order.StoreID)
	defer unlock()

	var deducted []entity.InventoryTransaction
	var err error
	for attempt := 1; ; attempt++ {
		err = w.store.InTx(ctx, func(tx *repository.Tx) error {
			ledger := tx.Inventory()
			if err := CheckAvailability(ctx, ledger, order.StoreID, required); err != nil {
				return err
			}

			var err error
			deducted, err = w.executor.Apply(ctx, ledger, order.StoreID, order.ID, required)
			if err != nil {
				return err
			}

			return tx.Orders().UpdateStatus(ctx, order.ID, order.Status, repository.StatusUpdate{
				To:            entity.StatusDone,
				PaymentStatus: entity.PaymentPaid,
				PaymentMethod: method,
				PaidAt:        &paidAt,
				At:            paidAt,
			})
		})
		if errors.Is(err, entity.ErrConcurrentUpdate) && attempt < maxCompletionAttempts {
			logger.Warn().Err(err).Msgf("Retrying completion of order %d (attempt %d)", order.ID, attempt)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}
	return deducted, nil
}
