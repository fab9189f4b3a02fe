package handlers

import (
	"net/http"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/models"
	"orderbridge/internal/services"

	"github.com/labstack/echo/v4"
)

// OrderHandlers handles HTTP requests for orders
type OrderHandlers struct {
	orderService services.OrderService
}

// NewOrderHandlers creates a new order handlers instance
func NewOrderHandlers(orderService services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		orderService: orderService,
	}
}

type replaceItemsRequest struct {
	Items []services.OrderItemInput `json:"items"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

type shipOrderRequest struct {
	Lines []models.ShipmentLine `json:"lines"`
}

type setEditingRequest struct {
	Editing bool `json:"editing"`
}

// CreateOrder godoc
// @Summary Place an order
// @Tags orders
// @Accept json
// @Produce json
// @Param order body services.CreateOrderRequest true "Order"
// @Success 201 {object} models.Order
// @Router /orders [post]
func (h *OrderHandlers) CreateOrder(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req services.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := common.ValidateOptionalString(req.Notes, "notes", 1000); err != nil {
		return common.SendValidationError(c, "notes", err.Error())
	}
	if err := common.SanitizeHTMLField(req.Notes, "notes"); err != nil {
		return common.SendValidationError(c, "notes", err.Error())
	}

	order, err := h.orderService.CreateOrder(c.Request().Context(), actor, req)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// ListOrders godoc
// @Summary List orders visible to the caller
// @Tags orders
// @Produce json
// @Param status query string false "Status"
// @Param order_type query string false "STOCK or QUICK"
// @Param q query string false "Order number or external reference"
// @Param created_from query string false "YYYY-MM-DD"
// @Param created_to query string false "YYYY-MM-DD"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /orders [get]
func (h *OrderHandlers) ListOrders(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, offset, err := pagination(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}
	filter := &models.OrderFilter{
		Query:     common.SanitizeSearchQuery(c.QueryParam("q")),
		SortBy:    c.QueryParam("sort_by"),
		SortOrder: c.QueryParam("sort_order"),
		Limit:     limit,
		Offset:    offset,
	}

	if status := c.QueryParam("status"); status != "" {
		if !models.ValidOrderStatus(status) {
			return common.SendValidationError(c, "status", "unknown order status")
		}
		s := models.OrderStatus(status)
		filter.Status = &s
	}
	if orderType := c.QueryParam("order_type"); orderType != "" {
		if orderType != models.OrderTypeStock && orderType != models.OrderTypeQuick {
			return common.SendValidationError(c, "order_type", "must be STOCK or QUICK")
		}
		filter.OrderType = &orderType
	}
	if companyID := c.QueryParam("company_id"); companyID != "" {
		id, err := common.ValidateUUID(companyID, "company_id")
		if err != nil {
			return common.SendValidationError(c, "company_id", err.Error())
		}
		filter.CompanyID = &id
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"created_from", &filter.CreatedFrom}, {"created_to", &filter.CreatedTo}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return common.SendValidationError(c, p.name, "must be formatted YYYY-MM-DD")
		}
		*p.dst = &t
	}

	orders, err := h.orderService.ListOrders(c.Request().Context(), actor, filter)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"orders": orders,
		"limit":  limit,
		"offset": offset,
	})
}

// GetOrder godoc
// @Summary Get one order with its lines
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} models.Order
// @Router /orders/{id} [get]
func (h *OrderHandlers) GetOrder(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), actor, id)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// ReplaceItems godoc
// @Summary Replace the lines of a pending order and release the edit lock
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} models.Order
// @Router /orders/{id}/items [put]
func (h *OrderHandlers) ReplaceItems(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req replaceItemsRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	order, err := h.orderService.ReplaceItems(c.Request().Context(), actor, id, req.Items)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// ChangeStatus godoc
// @Summary Move an order to another status
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} models.Order
// @Router /orders/{id}/status [post]
func (h *OrderHandlers) ChangeStatus(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req changeStatusRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := common.ValidateRequiredString(req.Status, "status"); err != nil {
		return common.SendValidationError(c, "status", err.Error())
	}

	order, err := h.orderService.ChangeStatus(c.Request().Context(), actor, id, models.OrderStatus(req.Status))
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// ExportOrder godoc
// @Summary Push a pending order to the ledger
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} models.ExportResult
// @Router /orders/{id}/export [post]
func (h *OrderHandlers) ExportOrder(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	result, err := h.orderService.ExportOrder(c.Request().Context(), actor, id)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// ShipOrder godoc
// @Summary Record shipped quantities
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} models.Order
// @Router /orders/{id}/ship [post]
func (h *OrderHandlers) ShipOrder(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req shipOrderRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if len(req.Lines) == 0 {
		return common.SendValidationError(c, "lines", "at least one line is required")
	}

	order, err := h.orderService.ShipOrder(c.Request().Context(), actor, id, req.Lines)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// DeleteOrder godoc
// @Summary Delete an order and its lines
// @Tags orders
// @Param id path string true "Order ID"
// @Success 204
// @Router /orders/{id} [delete]
func (h *OrderHandlers) DeleteOrder(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	if err := h.orderService.DeleteOrder(c.Request().Context(), actor, id); err != nil {
		return common.SendDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetEditing godoc
// @Summary Acquire or release the edit lock
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} models.Order
// @Router /orders/{id}/editing [post]
func (h *OrderHandlers) SetEditing(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req setEditingRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	order, err := h.orderService.SetEditing(c.Request().Context(), actor, id, req.Editing)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// CleanupLocks godoc
// @Summary Release every expired edit lock
// @Tags orders
// @Produce json
// @Success 200 {object} map[string]int
// @Router /orders/locks/cleanup [post]
func (h *OrderHandlers) CleanupLocks(c echo.Context) error {
	released, err := h.orderService.CleanupExpiredLocks(c.Request().Context())
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"released": released})
}
