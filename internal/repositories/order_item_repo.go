package repositories

import (
	"context"
	"fmt"

	"orderbridge/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type OrderItemRepository interface {
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*models.OrderItem, error)
	UpdateShippedQuantity(ctx context.Context, orderID, itemID uuid.UUID, quantity decimal.Decimal) error
}

type orderItemRepo struct {
	db DB
}

func NewOrderItemRepo(db DB) OrderItemRepository {
	return &orderItemRepo{db: db}
}

const orderItemColumns = `id, order_id, line_number, reference, name, quantity, unit_price, discount_percent, line_total, vat_rate, availability, shipped_quantity, created_at`

func (r *orderItemRepo) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*models.OrderItem, error) {
	query := `
		SELECT ` + orderItemColumns + `
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_number
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.LineNumber, &item.Reference, &item.Name, &item.Quantity, &item.UnitPrice, &item.DiscountPercent, &item.LineTotal, &item.VATRate, &item.Availability, &item.ShippedQuantity, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *orderItemRepo) UpdateShippedQuantity(ctx context.Context, orderID, itemID uuid.UUID, quantity decimal.Decimal) error {
	return updateShippedQuantity(ctx, r.db, orderID, itemID, quantity)
}

func updateShippedQuantity(ctx context.Context, db execer, orderID, itemID uuid.UUID, quantity decimal.Decimal) error {
	query := `UPDATE order_items SET shipped_quantity = $1 WHERE order_id = $2 AND id = $3`
	tag, err := db.Exec(ctx, query, quantity, orderID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order item %s not found on order %s", itemID, orderID)
	}
	return nil
}

func insertOrderItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, items []*models.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, line_number, reference, name, quantity, unit_price, discount_percent, line_total, vat_rate, availability, shipped_quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	`
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = orderID
		if _, err := tx.Exec(ctx, query, item.ID, orderID, item.LineNumber, item.Reference, item.Name, item.Quantity, item.UnitPrice, item.DiscountPercent, item.LineTotal, item.VATRate, item.Availability, item.ShippedQuantity); err != nil {
			return fmt.Errorf("failed to insert order item %d: %w", item.LineNumber, err)
		}
	}
	return nil
}
