package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/metrics"
	"orderbridge/internal/models"
	"orderbridge/internal/realtime"
	"orderbridge/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderExporter pushes a validated order into the ledger and stamps its external reference.
type OrderExporter interface {
	Export(ctx context.Context, order *models.Order) (*models.ExportResult, error)
}

// OrderItemInput is one requested order line.
type OrderItemInput struct {
	Reference       string           `json:"reference"`
	Name            string           `json:"name"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	VATRate         *decimal.Decimal `json:"vat_rate"`
	Availability    *string          `json:"availability"`
}

// CreateOrderRequest is the payload for placing an order.
type CreateOrderRequest struct {
	CompanyID *uuid.UUID       `json:"company_id"` // operators only; clients order for their own company
	OrderType string           `json:"order_type"`
	Notes     *string          `json:"notes"`
	Items     []OrderItemInput `json:"items"`
}

// Lock change reasons published on the order channel
const (
	LockAcquired = "acquired"
	LockReleased = "released"
	LockSaved    = "saved"
	LockExpired  = "expired"
)

var defaultVATRate = decimal.NewFromInt(20)

type OrderService interface {
	CreateOrder(ctx context.Context, actor common.Actor, req CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, actor common.Actor, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, actor common.Actor, filter *models.OrderFilter) ([]*models.Order, error)
	ReplaceItems(ctx context.Context, actor common.Actor, id uuid.UUID, items []OrderItemInput) (*models.Order, error)
	ChangeStatus(ctx context.Context, actor common.Actor, id uuid.UUID, to models.OrderStatus) (*models.Order, error)
	ExportOrder(ctx context.Context, actor common.Actor, id uuid.UUID) (*models.ExportResult, error)
	ShipOrder(ctx context.Context, actor common.Actor, id uuid.UUID, lines []models.ShipmentLine) (*models.Order, error)
	DeleteOrder(ctx context.Context, actor common.Actor, id uuid.UUID) error
	SetEditing(ctx context.Context, actor common.Actor, id uuid.UUID, editing bool) (*models.Order, error)
	CleanupExpiredLocks(ctx context.Context) (int, error)
}

type orderService struct {
	orderRepo repositories.OrderRepository
	exporter  OrderExporter
	announcer *StatusAnnouncer
	publisher realtime.Publisher
	auditor   *Auditor
	metrics   *metrics.Metrics
	log       *zap.Logger
	lockTTL   time.Duration
	now       func() time.Time

	sweeping atomic.Bool
	bg       sync.WaitGroup
}

func NewOrderService(orderRepo repositories.OrderRepository, exporter OrderExporter, announcer *StatusAnnouncer,
	publisher realtime.Publisher, auditor *Auditor, m *metrics.Metrics, lockTTL time.Duration, log *zap.Logger) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		exporter:  exporter,
		announcer: announcer,
		publisher: publisher,
		auditor:   auditor,
		metrics:   m,
		log:       log.Named("orders"),
		lockTTL:   lockTTL,
		now:       time.Now,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, actor common.Actor, req CreateOrderRequest) (*models.Order, error) {
	const op = "create order"
	companyID := actor.CompanyID
	if actor.IsOperator() && req.CompanyID != nil {
		companyID = *req.CompanyID
	}
	if companyID == uuid.Nil {
		return nil, common.InvalidInput(op, "company_id is required")
	}

	orderType := strings.ToUpper(strings.TrimSpace(req.OrderType))
	if orderType == "" {
		orderType = models.OrderTypeStock
	}
	if orderType != models.OrderTypeStock && orderType != models.OrderTypeQuick {
		return nil, common.InvalidInput(op, fmt.Sprintf("unknown order type %q", req.OrderType))
	}
	if err := common.ValidateOptionalString(req.Notes, "notes", 1000); err != nil {
		return nil, common.InvalidInput(op, err.Error())
	}

	now := s.now()
	orderID := uuid.New()
	items, err := buildItems(op, orderID, req.Items, now)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          orderID,
		OrderNumber: generateOrderNumber(now),
		CompanyID:   companyID,
		CreatedBy:   actor.UserID,
		OrderType:   orderType,
		Status:      models.OrderStatusPending,
		Notes:       req.Notes,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	order.RecomputeTotal()

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}

	userID := actor.UserID
	s.auditor.Record("order", order.ID.String(), models.ActionOrderCreate, &userID, nil,
		models.JSONB{"order_number": order.OrderNumber, "total_ht": order.TotalHT.String(), "lines": len(items)})
	s.publisher.StatusChanged(ctx, order, "")
	return order, nil
}

// generateOrderNumber returns CMD-YYYYMMDD-XXXXXX with a random suffix.
func generateOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("CMD-%s-%s", at.Format("20060102"), suffix)
}

func buildItems(op string, orderID uuid.UUID, inputs []OrderItemInput, now time.Time) ([]*models.OrderItem, error) {
	if len(inputs) == 0 {
		return nil, common.InvalidInput(op, "an order needs at least one line")
	}
	items := make([]*models.OrderItem, 0, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in.Reference) == "" {
			return nil, common.InvalidInput(op, fmt.Sprintf("line %d: reference is required", i+1))
		}
		if !in.Quantity.IsPositive() {
			return nil, common.InvalidInput(op, fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if in.UnitPrice.IsNegative() {
			return nil, common.InvalidInput(op, fmt.Sprintf("line %d: unit price cannot be negative", i+1))
		}
		if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, common.InvalidInput(op, fmt.Sprintf("line %d: discount must be between 0 and 100", i+1))
		}
		rate := defaultVATRate
		if in.VATRate != nil {
			if in.VATRate.IsNegative() {
				return nil, common.InvalidInput(op, fmt.Sprintf("line %d: vat rate cannot be negative", i+1))
			}
			rate = *in.VATRate
		}

		item := &models.OrderItem{
			ID:              uuid.New(),
			OrderID:         orderID,
			LineNumber:      i + 1,
			Reference:       strings.TrimSpace(in.Reference),
			Name:            strings.TrimSpace(in.Name),
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			VATRate:         rate,
			Availability:    in.Availability,
			ShippedQuantity: decimal.Zero,
			CreatedAt:       now,
		}
		item.ApplyLineTotal()
		items = append(items, item)
	}
	return items, nil
}

// load fetches an order the actor may see. Other companies' orders read as missing.
func (s *orderService) load(ctx context.Context, actor common.Actor, id uuid.UUID) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsOperator() && order.CompanyID != actor.CompanyID {
		return nil, common.NotFound("get order", "order")
	}
	if order.ExpireLock(s.now(), s.lockTTL) {
		s.sweepInBackground()
	}
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor common.Actor, id uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, common.SecureErrorMessage("get order", err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor common.Actor, filter *models.OrderFilter) ([]*models.Order, error) {
	if filter == nil {
		filter = &models.OrderFilter{}
	}
	if !actor.IsOperator() {
		companyID := actor.CompanyID
		filter.CompanyID = &companyID
	}
	limit, offset, err := common.ValidatePaginationParams(filter.Limit, filter.Offset)
	if err != nil {
		return nil, common.InvalidInput("list orders", err.Error())
	}
	filter.Limit, filter.Offset = limit, offset

	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, common.SecureErrorMessage("list orders", err)
	}

	now, expired := s.now(), false
	for _, order := range orders {
		if order.ExpireLock(now, s.lockTTL) {
			expired = true
		}
	}
	if expired {
		s.sweepInBackground()
	}
	return orders, nil
}

// ReplaceItems rewrites the lines of a pending order. A successful save clears
// the edit lock whoever holds it.
func (s *orderService) ReplaceItems(ctx context.Context, actor common.Actor, id uuid.UUID, inputs []OrderItemInput) (*models.Order, error) {
	const op = "replace order items"
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}
	if order.Status != models.OrderStatusPending {
		return nil, common.ValidationConflict(op, "only pending orders can be modified")
	}

	items, err := buildItems(op, order.ID, inputs, s.now())
	if err != nil {
		return nil, err
	}
	oldTotal := order.TotalHT
	wasEditing := order.IsEditing
	order.Items = items
	order.RecomputeTotal()

	if err := s.orderRepo.ReplaceItems(ctx, order); err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}
	order.ClearLock()

	userID := actor.UserID
	s.auditor.Record("order", order.ID.String(), models.ActionOrderItemsReplace, &userID,
		models.JSONB{"total_ht": oldTotal.String()},
		models.JSONB{"total_ht": order.TotalHT.String(), "lines": len(items)})
	if wasEditing {
		s.publisher.LockChanged(ctx, order, LockSaved)
		s.metrics.LockEvent(LockSaved, 1)
	}
	return order, nil
}

func (s *orderService) ChangeStatus(ctx context.Context, actor common.Actor, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	const op = "change order status"
	if !models.ValidOrderStatus(string(to)) {
		return nil, common.InvalidInput(op, fmt.Sprintf("unknown status %q", to))
	}
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}
	from := order.Status
	if from == to {
		return nil, common.ValidationConflict(op, fmt.Sprintf("order is already %s", to))
	}

	if !actor.IsOperator() {
		if to != models.OrderStatusCancelled || from != models.OrderStatusPending {
			return nil, common.Forbidden(op, "clients may only cancel their own pending orders")
		}
	} else if !models.CanTransition(from, to) {
		return nil, common.ValidationConflict(op, fmt.Sprintf("cannot move order from %s to %s", from, to))
	}

	if to == models.OrderStatusValidated {
		if _, err := s.export(ctx, actor, order); err != nil {
			return nil, err
		}
		return order, nil
	}

	if err := s.orderRepo.UpdateStatus(ctx, order.ID, to); err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}
	order.Status = to
	if to == models.OrderStatusCancelled && order.IsEditing {
		if err := s.orderRepo.ClearEditing(ctx, order.ID); err != nil {
			s.log.Warn("failed to release lock on cancelled order", zap.String("order_id", order.ID.String()), zap.Error(err))
		} else {
			order.ClearLock()
			s.publisher.LockChanged(ctx, order, LockReleased)
		}
	}

	userID := actor.UserID
	s.announcer.Announce(ctx, order, from, &userID, models.ActionOrderStatus)
	return order, nil
}

func (s *orderService) ExportOrder(ctx context.Context, actor common.Actor, id uuid.UUID) (*models.ExportResult, error) {
	const op = "export order"
	if !actor.IsOperator() {
		return nil, common.Forbidden(op, "only operators may export orders")
	}
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}
	if order.Status != models.OrderStatusPending {
		return nil, common.ValidationConflict(op, fmt.Sprintf("order is %s, only pending orders can be exported", order.Status))
	}
	return s.export(ctx, actor, order)
}

// export runs the ledger export and, on success, moves order to VALIDATED in memory.
func (s *orderService) export(ctx context.Context, actor common.Actor, order *models.Order) (*models.ExportResult, error) {
	if order.LockActive(s.now(), s.lockTTL) {
		return nil, common.ValidationConflict("export order", "order is being edited")
	}
	from := order.Status
	result, err := s.exporter.Export(ctx, order)
	if err != nil {
		return result, err
	}

	order.Status = models.OrderStatusValidated
	ref := result.ExternalRef
	order.ExternalRef = &ref

	userID := actor.UserID
	s.announcer.Announce(ctx, order, from, &userID, models.ActionOrderStatus)
	return result, nil
}

func (s *orderService) ShipOrder(ctx context.Context, actor common.Actor, id uuid.UUID, lines []models.ShipmentLine) (*models.Order, error) {
	const op = "ship order"
	if !actor.IsOperator() {
		return nil, common.Forbidden(op, "only operators may record shipments")
	}
	if len(lines) == 0 {
		return nil, common.InvalidInput(op, "at least one shipment line is required")
	}
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}
	if order.Status != models.OrderStatusValidated && order.Status != models.OrderStatusPreparation {
		return nil, common.ValidationConflict(op, fmt.Sprintf("order is %s and cannot be shipped", order.Status))
	}

	byID := make(map[uuid.UUID]*models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		byID[item.ID] = item
	}
	for _, line := range lines {
		item, ok := byID[line.ItemID]
		if !ok {
			return nil, common.InvalidInput(op, fmt.Sprintf("item %s does not belong to this order", line.ItemID))
		}
		if !line.Quantity.IsPositive() {
			return nil, common.InvalidInput(op, "shipped quantity must be positive")
		}
		shipped := item.ShippedQuantity.Add(line.Quantity)
		if shipped.GreaterThan(item.Quantity) {
			return nil, common.InvalidInput(op, fmt.Sprintf("item %s: shipped quantity exceeds ordered quantity", item.Reference))
		}
		item.ShippedQuantity = shipped
	}

	from := order.Status
	order.Status = models.OrderStatusShipped
	for _, item := range order.Items {
		if !item.FullyShipped() {
			order.Status = models.OrderStatusPreparation
			break
		}
	}

	if err := s.orderRepo.RecordShipment(ctx, order); err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}

	userID := actor.UserID
	if order.Status != from {
		s.announcer.Announce(ctx, order, from, &userID, models.ActionOrderShip)
	} else {
		s.auditor.Record("order", order.ID.String(), models.ActionOrderShip, &userID, nil,
			models.JSONB{"lines": len(lines), "status": string(order.Status)})
	}
	return order, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, actor common.Actor, id uuid.UUID) error {
	if actor.Role != common.RoleAdmin {
		return common.Forbidden("delete order", "only administrators may delete orders")
	}
	if err := s.orderRepo.Delete(ctx, id); err != nil {
		return common.SecureErrorMessage("delete order", err)
	}
	userID := actor.UserID
	s.auditor.Record("order", id.String(), models.ActionOrderDelete, &userID, nil, nil)
	return nil
}

// SetEditing acquires or releases the edit lock. Acquiring takes over a lease
// held by someone else. An active lock blocks validation only; saving lines
// clears it.
func (s *orderService) SetEditing(ctx context.Context, actor common.Actor, id uuid.UUID, editing bool) (*models.Order, error) {
	const op = "set editing"
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}

	if !editing {
		if err := s.orderRepo.ClearEditing(ctx, order.ID); err != nil {
			return nil, common.SecureErrorMessage(op, err)
		}
		order.ClearLock()
		s.publisher.LockChanged(ctx, order, LockReleased)
		s.metrics.LockEvent(LockReleased, 1)
		return order, nil
	}

	if order.Status != models.OrderStatusPending {
		return nil, common.ValidationConflict(op, "only pending orders can be edited")
	}
	now := s.now()
	ok, err := s.orderRepo.SetEditing(ctx, order.ID, actor.UserID, now)
	if err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}
	if !ok {
		return nil, common.ValidationConflict(op, "only pending orders can be edited")
	}

	userID := actor.UserID
	order.IsEditing = true
	order.EditingByUserID = &userID
	order.EditingStartedAt = &now
	s.publisher.LockChanged(ctx, order, LockAcquired)
	s.metrics.LockEvent(LockAcquired, 1)
	return order, nil
}

// CleanupExpiredLocks releases every lease older than the lock TTL. Running it
// twice releases nothing the second time.
func (s *orderService) CleanupExpiredLocks(ctx context.Context) (int, error) {
	ids, err := s.orderRepo.CleanupExpiredLocks(ctx, s.now().Add(-s.lockTTL))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired locks: %w", err)
	}
	for _, id := range ids {
		s.publisher.LockChanged(ctx, &models.Order{ID: id}, LockExpired)
	}
	if len(ids) > 0 {
		s.metrics.LockEvent(LockExpired, len(ids))
		s.log.Info("released expired edit locks", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// sweepInBackground starts a cleanup unless one is already running.
func (s *orderService) sweepInBackground() {
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer s.sweeping.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.CleanupExpiredLocks(ctx); err != nil {
			s.log.Warn("background lock cleanup failed", zap.Error(err))
		}
	}()
}
