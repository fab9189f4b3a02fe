package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is a state of the order lifecycle
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "PENDING"
	OrderStatusValidated   OrderStatus = "VALIDATED"
	OrderStatusPreparation OrderStatus = "PREPARATION"
	OrderStatusShipped     OrderStatus = "SHIPPED"
	OrderStatusInvoiced    OrderStatus = "INVOICED"
	OrderStatusCancelled   OrderStatus = "CANCELLED"
)

// Order types
const (
	OrderTypeStock = "STOCK"
	OrderTypeQuick = "QUICK"
)

// operatorTransitions lists every move an operator may request directly.
var operatorTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:     {OrderStatusValidated, OrderStatusCancelled},
	OrderStatusValidated:   {OrderStatusPreparation, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPreparation: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:     {OrderStatusInvoiced},
}

// ValidOrderStatus reports whether s names a known status
func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusValidated, OrderStatusPreparation,
		OrderStatusShipped, OrderStatusInvoiced, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an operator may move an order from one status to another.
// Clients may only cancel their own pending orders; that check lives in the service.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range operatorTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusInvoiced || s == OrderStatusCancelled
}

type Order struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderNumber string          `json:"order_number" db:"order_number"`
	CompanyID   uuid.UUID       `json:"company_id" db:"company_id"`
	CreatedBy   uuid.UUID       `json:"created_by" db:"created_by"`
	OrderType   string          `json:"order_type" db:"order_type"`
	Status      OrderStatus     `json:"status" db:"status"`
	TotalHT     decimal.Decimal `json:"total_ht" db:"total_ht"`
	Notes       *string         `json:"notes" db:"notes"`

	ExternalRef        *string    `json:"external_ref" db:"external_ref"`
	DeliveryNoteNumber *string    `json:"delivery_note_number" db:"delivery_note_number"`
	DeliveryNoteDate   *time.Time `json:"delivery_note_date" db:"delivery_note_date"`
	InvoiceNumber      *string    `json:"invoice_number" db:"invoice_number"`
	InvoiceDate        *time.Time `json:"invoice_date" db:"invoice_date"`

	IsEditing        bool       `json:"is_editing" db:"is_editing"`
	EditingByUserID  *uuid.UUID `json:"editing_by_user_id" db:"editing_by_user_id"`
	EditingStartedAt *time.Time `json:"editing_started_at" db:"editing_started_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Items []*OrderItem `json:"items,omitempty" db:"-"`
}

// LockActive reports whether the edit lease is still honored at now.
// A lease is expired once now - since exceeds ttl.
func (o *Order) LockActive(now time.Time, ttl time.Duration) bool {
	if !o.IsEditing || o.EditingStartedAt == nil {
		return false
	}
	return now.Sub(*o.EditingStartedAt) <= ttl
}

// ExpireLock presents a stale lease as released and reports whether it did so.
func (o *Order) ExpireLock(now time.Time, ttl time.Duration) bool {
	if !o.IsEditing || o.LockActive(now, ttl) {
		return false
	}
	o.ClearLock()
	return true
}

func (o *Order) ClearLock() {
	o.IsEditing = false
	o.EditingByUserID = nil
	o.EditingStartedAt = nil
}

// RecomputeTotal sets TotalHT to the sum of the item line totals
func (o *Order) RecomputeTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal)
	}
	o.TotalHT = total.Round(2)
}

// OrderFilter holds list criteria for order queries
type OrderFilter struct {
	CompanyID   *uuid.UUID   `json:"company_id,omitempty"`
	Status      *OrderStatus `json:"status,omitempty"`
	OrderType   *string      `json:"order_type,omitempty"`
	Query       string       `json:"query,omitempty"` // order number or external reference
	CreatedFrom *time.Time   `json:"created_from,omitempty"`
	CreatedTo   *time.Time   `json:"created_to,omitempty"`
	SortBy      string       `json:"sort_by,omitempty"`
	SortOrder   string       `json:"sort_order,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	Offset      int          `json:"offset,omitempty"`
}

// ShipmentLine records a quantity shipped against one order item
type ShipmentLine struct {
	ItemID   uuid.UUID       `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// DocumentLink is a downstream ledger document matched to an order
type DocumentLink struct {
	Number string
	Date   *time.Time
}
