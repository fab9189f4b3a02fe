package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter *models.OrderFilter) ([]*models.Order, error)
	ReplaceItems(ctx context.Context, order *models.Order) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Ledger linkage
	StampExternalRef(ctx context.Context, id uuid.UUID, externalRef string) (bool, error)
	ListAwaitingDeliveryNote(ctx context.Context) ([]*models.Order, error)
	ListAwaitingInvoice(ctx context.Context) ([]*models.Order, error)
	StampDeliveryNote(ctx context.Context, id uuid.UUID, doc models.DocumentLink) (models.OrderStatus, bool, error)
	StampInvoice(ctx context.Context, id uuid.UUID, doc models.DocumentLink) (models.OrderStatus, bool, error)
	RecordShipment(ctx context.Context, order *models.Order) error

	// Edit lock
	SetEditing(ctx context.Context, id, userID uuid.UUID, at time.Time) (bool, error)
	ClearEditing(ctx context.Context, id uuid.UUID) error
	CleanupExpiredLocks(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type orderRepo struct {
	db    DB
	items OrderItemRepository
}

func NewOrderRepo(db DB) OrderRepository {
	return &orderRepo{db: db, items: NewOrderItemRepo(db)}
}

const orderColumns = `o.id, o.order_number, o.company_id, o.created_by, o.order_type, o.status, o.total_ht, o.notes,
		o.external_ref, o.delivery_note_number, o.delivery_note_date, o.invoice_number, o.invoice_date,
		o.is_editing, o.editing_by_user_id, o.editing_started_at, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(&order.ID, &order.OrderNumber, &order.CompanyID, &order.CreatedBy, &order.OrderType, &order.Status, &order.TotalHT, &order.Notes,
		&order.ExternalRef, &order.DeliveryNoteNumber, &order.DeliveryNoteDate, &order.InvoiceNumber, &order.InvoiceDate,
		&order.IsEditing, &order.EditingByUserID, &order.EditingStartedAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	query := `
		INSERT INTO orders (id, order_number, company_id, created_by, order_type, status, total_ht, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, order.ID, order.OrderNumber, order.CompanyID, order.CreatedBy, order.OrderType, order.Status, order.TotalHT, order.Notes); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return insertOrderItems(ctx, tx, order.ID, order.Items)
	})
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFound("get order", "order")
	}
	if err != nil {
		return nil, err
	}

	order.Items, err = r.items.ListByOrderID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return order, nil
}

// List returns orders matching filter, without items.
func (r *orderRepo) List(ctx context.Context, filter *models.OrderFilter) ([]*models.Order, error) {
	if filter == nil {
		filter = &models.OrderFilter{}
	}

	query := `SELECT ` + orderColumns + ` FROM orders o WHERE 1=1`
	args := []interface{}{}
	conditionCount := 0

	if filter.CompanyID != nil {
		conditionCount++
		query += fmt.Sprintf(` AND o.company_id = $%d`, conditionCount)
		args = append(args, *filter.CompanyID)
	}

	if filter.Status != nil {
		conditionCount++
		query += fmt.Sprintf(` AND o.status = $%d`, conditionCount)
		args = append(args, *filter.Status)
	}

	if filter.OrderType != nil {
		conditionCount++
		query += fmt.Sprintf(` AND o.order_type = $%d`, conditionCount)
		args = append(args, *filter.OrderType)
	}

	// Order number or ledger reference
	if q := common.SanitizeSearchQuery(filter.Query); q != "" {
		conditionCount++
		query += fmt.Sprintf(` AND (o.order_number ILIKE $%d OR COALESCE(o.external_ref, '') ILIKE $%d)`, conditionCount, conditionCount)
		args = append(args, "%"+q+"%")
	}

	if filter.CreatedFrom != nil {
		conditionCount++
		query += fmt.Sprintf(` AND o.created_at >= $%d`, conditionCount)
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		conditionCount++
		query += fmt.Sprintf(` AND o.created_at <= $%d`, conditionCount)
		args = append(args, *filter.CreatedTo)
	}

	limit, offset, err := common.ValidatePaginationParams(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	query += fmt.Sprintf(` ORDER BY %s %s`, common.ValidateSortField(filter.SortBy), common.ValidateSortOrder(filter.SortOrder))
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, conditionCount+1, conditionCount+2)
	args = append(args, limit, offset)

	return r.queryOrders(ctx, query, args...)
}

// ReplaceItems swaps the order's lines and total in one transaction. It only
// applies to pending orders and releases any edit lock.
func (r *orderRepo) ReplaceItems(ctx context.Context, order *models.Order) error {
	guard := `
		UPDATE orders
		SET total_ht = $1, is_editing = FALSE, editing_by_user_id = NULL, editing_started_at = NULL, updated_at = NOW()
		WHERE id = $2 AND status = 'PENDING'
	`
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, guard, order.TotalHT, order.ID)
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return common.ValidationConflict("replace items", "only pending orders can be edited")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("failed to clear order items: %w", err)
		}
		return insertOrderItems(ctx, tx, order.ID, order.Items)
	})
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("update order status", "order")
	}
	return nil
}

func (r *orderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("delete order", "order")
	}
	return nil
}

// StampExternalRef records the ledger reference and validates the order in one
// statement. It reports false when the order was no longer pending or already stamped.
func (r *orderRepo) StampExternalRef(ctx context.Context, id uuid.UUID, externalRef string) (bool, error) {
	query := `
		UPDATE orders
		SET external_ref = $1, status = 'VALIDATED', updated_at = NOW()
		WHERE id = $2 AND status = 'PENDING' AND external_ref IS NULL
	`
	tag, err := r.db.Exec(ctx, query, externalRef, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepo) ListAwaitingDeliveryNote(ctx context.Context) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.status IN ('VALIDATED', 'PREPARATION')
		  AND o.delivery_note_number IS NULL
		  AND o.external_ref IS NOT NULL
		ORDER BY o.created_at
	`
	return r.queryOrders(ctx, query)
}

func (r *orderRepo) ListAwaitingInvoice(ctx context.Context) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.status = 'SHIPPED'
		  AND o.invoice_number IS NULL
		  AND o.external_ref IS NOT NULL
		ORDER BY o.created_at
	`
	return r.queryOrders(ctx, query)
}

// StampDeliveryNote links a delivery note and advances pre-shipment orders to SHIPPED.
// It returns the resulting status and false when a note was already linked.
func (r *orderRepo) StampDeliveryNote(ctx context.Context, id uuid.UUID, doc models.DocumentLink) (models.OrderStatus, bool, error) {
	query := `
		UPDATE orders
		SET delivery_note_number = $1,
		    delivery_note_date = $2,
		    status = CASE WHEN status IN ('VALIDATED', 'PREPARATION') THEN 'SHIPPED' ELSE status END,
		    updated_at = NOW()
		WHERE id = $3 AND delivery_note_number IS NULL
		RETURNING status
	`
	return r.stamp(ctx, query, id, doc)
}

// StampInvoice links an invoice and advances shipped orders to INVOICED.
func (r *orderRepo) StampInvoice(ctx context.Context, id uuid.UUID, doc models.DocumentLink) (models.OrderStatus, bool, error) {
	query := `
		UPDATE orders
		SET invoice_number = $1,
		    invoice_date = $2,
		    status = CASE WHEN status = 'SHIPPED' THEN 'INVOICED' ELSE status END,
		    updated_at = NOW()
		WHERE id = $3 AND invoice_number IS NULL
		RETURNING status
	`
	return r.stamp(ctx, query, id, doc)
}

func (r *orderRepo) stamp(ctx context.Context, query string, id uuid.UUID, doc models.DocumentLink) (models.OrderStatus, bool, error) {
	var status string
	err := r.db.QueryRow(ctx, query, doc.Number, doc.Date, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return models.OrderStatus(status), true, nil
}

// RecordShipment persists shipped quantities and the resulting status together.
func (r *orderRepo) RecordShipment(ctx context.Context, order *models.Order) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, item := range order.Items {
			if err := updateShippedQuantity(ctx, tx, order.ID, item.ID, item.ShippedQuantity); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, order.Status, order.ID)
		return err
	})
}

// SetEditing takes the edit lease for userID, replacing any current holder.
// It reports false when the order is missing or not pending.
func (r *orderRepo) SetEditing(ctx context.Context, id, userID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET is_editing = TRUE, editing_by_user_id = $1, editing_started_at = $2
		WHERE id = $3 AND status = 'PENDING'
	`
	tag, err := r.db.Exec(ctx, query, userID, at, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepo) ClearEditing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE orders
		SET is_editing = FALSE, editing_by_user_id = NULL, editing_started_at = NULL
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("release edit lock", "order")
	}
	return nil
}

// CleanupExpiredLocks releases leases started before cutoff and returns the released order ids.
func (r *orderRepo) CleanupExpiredLocks(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE orders
		SET is_editing = FALSE, editing_by_user_id = NULL, editing_started_at = NULL
		WHERE is_editing = TRUE AND editing_started_at < $1
		RETURNING id
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
