package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OrderID         uuid.UUID       `json:"order_id" db:"order_id"`
	LineNumber      int             `json:"line_number" db:"line_number"`
	Reference       string          `json:"reference" db:"reference"`
	Name            string          `json:"name" db:"name"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price" db:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	LineTotal       decimal.Decimal `json:"line_total" db:"line_total"`
	VATRate         decimal.Decimal `json:"vat_rate" db:"vat_rate"`
	Availability    *string         `json:"availability" db:"availability"`
	ShippedQuantity decimal.Decimal `json:"shipped_quantity" db:"shipped_quantity"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

var hundred = decimal.NewFromInt(100)

// ComputeLineTotal returns round(quantity * unitPrice * (1 - discount/100), 2)
func ComputeLineTotal(quantity, unitPrice, discountPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return quantity.Mul(unitPrice).Mul(factor).Round(2)
}

// ApplyLineTotal recomputes LineTotal from the item's own figures
func (i *OrderItem) ApplyLineTotal() {
	i.LineTotal = ComputeLineTotal(i.Quantity, i.UnitPrice, i.DiscountPercent)
}

// VATAmount is the tax carried by this line at the rate captured when ordered
func (i *OrderItem) VATAmount() decimal.Decimal {
	return i.LineTotal.Mul(i.VATRate).Div(hundred).Round(2)
}

// FullyShipped reports whether the recorded shipment covers the ordered quantity
func (i *OrderItem) FullyShipped() bool {
	return i.ShippedQuantity.GreaterThanOrEqual(i.Quantity)
}
