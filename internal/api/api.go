package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cafe-order-service/internal/entity"
	"cafe-order-service/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService *service.OrderService
	workflow     *service.Workflow
}

func NewOrderHandler(orderService *service.OrderService, workflow *service.Workflow) *OrderHandler {
	return &OrderHandler{orderService: orderService, workflow: workflow}
}

// errorResponse maps service errors onto HTTP status codes.
func errorResponse(c echo.Context, err error) error {
	var shortage *entity.InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":         "insufficient stock",
			"store_id":      shortage.StoreID,
			"ingredient_id": shortage.IngredientID,
			"needed":        shortage.Needed,
			"available":     shortage.Available,
		})
	case errors.Is(err, entity.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, entity.ErrForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrDuplicateRequest),
		errors.Is(err, entity.ErrConcurrentUpdate):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, entity.ErrInvalidOrder):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, entity.ErrPersistence):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func idParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

// CreateOrder --> POST /api/orders
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}

	order := entity.Order{}
	if err := c.Bind(&order); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	order.IdempotentKey = c.Request().Header.Get("Idempotent-Key")

	createdOrder, err := h.orderService.CreateOrder(c.Request().Context(), &order, actor)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(201, createdOrder)
}

// GetOrder --> GET /api/orders/:id
func (h *OrderHandler) GetOrder(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	id, err := idParam(c, "id")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), id, actor)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, order)
}

// UpdateStatus --> PUT /api/orders/:id/status
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	id, err := idParam(c, "id")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	req := struct {
		Status string `json:"status"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	target, err := entity.ParseStatus(req.Status)
	if err != nil {
		return c.JSON(400, map[string]string{"error": err.Error()})
	}

	change, err := h.workflow.TransitionStatus(c.Request().Context(), id, target, actor)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, change)
}

// CompleteOrder --> POST /api/orders/:id/complete
func (h *OrderHandler) CompleteOrder(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	id, err := idParam(c, "id")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	req := struct {
		PaymentMethod entity.PaymentMethod `json:"payment_method"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	order, err := h.workflow.CompleteOrder(c.Request().Context(), id, req.PaymentMethod, actor)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, order)
}

// ListQueue --> GET /api/stores/:storeId/queue?status=Accepted,Making
func (h *OrderHandler) ListQueue(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	storeID, err := idParam(c, "storeId")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid store ID"})
	}

	var statuses []entity.Status
	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status, err := entity.ParseStatus(strings.TrimSpace(s))
			if err != nil {
				return c.JSON(400, map[string]string{"error": err.Error()})
			}
			statuses = append(statuses, status)
		}
	}

	orders, err := h.orderService.ListQueue(c.Request().Context(), storeID, statuses, actor)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, orders)
}

// GetStock --> GET /api/stores/:storeId/inventory
func (h *OrderHandler) GetStock(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	storeID, err := idParam(c, "storeId")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid store ID"})
	}

	balances, err := h.orderService.GetStock(c.Request().Context(), storeID, actor)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, balances)
}

// ListTransactions --> GET /api/orders/:id/transactions
func (h *OrderHandler) ListTransactions(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": err.Error()})
	}
	id, err := idParam(c, "id")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	transactions, err := h.orderService.ListTransactions(c.Request().Context(), id, actor)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, transactions)
}
