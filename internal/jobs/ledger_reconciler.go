package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/ledger"
	"orderbridge/internal/metrics"
	"orderbridge/internal/models"
	"orderbridge/internal/repositories"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// StatusAnnouncer fans out a status transition.
type StatusAnnouncer interface {
	Announce(ctx context.Context, order *models.Order, from models.OrderStatus, changedBy *uuid.UUID, action string)
}

// documentPhase describes one kind of downstream document the reconciler links.
type documentPhase struct {
	name         string
	headerType   string
	detailType   string
	numberField  string
	dateField    string
	candidates   func(ctx context.Context) ([]*models.Order, error)
	stamp        func(ctx context.Context, id uuid.UUID, doc models.DocumentLink) (models.OrderStatus, bool, error)
	applyToOrder func(order *models.Order, doc models.DocumentLink)
}

// LedgerReconciler links delivery notes and invoices found in the ledger back to orders.
type LedgerReconciler struct {
	orderRepo repositories.OrderRepository
	resolver  MappingResolver
	connector ledger.Connector
	composer  *ledger.Composer
	announcer StatusAnnouncer
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewLedgerReconciler(orderRepo repositories.OrderRepository, resolver MappingResolver, connector ledger.Connector,
	composer *ledger.Composer, announcer StatusAnnouncer, m *metrics.Metrics, log *zap.Logger) *LedgerReconciler {
	return &LedgerReconciler{
		orderRepo: orderRepo,
		resolver:  resolver,
		connector: connector,
		composer:  composer,
		announcer: announcer,
		metrics:   m,
		log:       log.Named("ledger-sync"),
		now:       time.Now,
	}
}

func (r *LedgerReconciler) phases() []documentPhase {
	return []documentPhase{
		{
			name:        "delivery notes",
			headerType:  models.DatasetDeliveryNotesHeader,
			detailType:  models.DatasetDeliveryNotesDetail,
			numberField: ledger.FieldDeliveryNumber,
			dateField:   ledger.FieldDeliveryDate,
			candidates:  r.orderRepo.ListAwaitingDeliveryNote,
			stamp:       r.orderRepo.StampDeliveryNote,
			applyToOrder: func(o *models.Order, doc models.DocumentLink) {
				number := doc.Number
				o.DeliveryNoteNumber, o.DeliveryNoteDate = &number, doc.Date
			},
		},
		{
			name:        "invoices",
			headerType:  models.DatasetInvoicesHeader,
			detailType:  models.DatasetInvoicesDetail,
			numberField: ledger.FieldInvoiceNumber,
			dateField:   ledger.FieldInvoiceDate,
			candidates:  r.orderRepo.ListAwaitingInvoice,
			stamp:       r.orderRepo.StampInvoice,
			applyToOrder: func(o *models.Order, doc models.DocumentLink) {
				number := doc.Number
				o.InvoiceNumber, o.InvoiceDate = &number, doc.Date
			},
		},
	}
}

// Run performs one reconciliation pass. Delivery notes are linked first and
// invoice candidates are read afterwards, so an order can gain both in one run.
// A failure on one order never stops the others.
func (r *LedgerReconciler) Run(ctx context.Context) *models.SyncResult {
	result := &models.SyncResult{StartedAt: r.now(), Errors: []string{}}

	for _, phase := range r.phases() {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sync interrupted: %v", err))
			break
		}
		r.runPhase(ctx, phase, result)
	}

	result.Complete(r.now())
	r.metrics.ObserveSync(result.Status, result.SyncedCount, result.FinishedAt.Sub(result.StartedAt))
	r.log.Info("ledger sync finished",
		zap.String("status", result.Status),
		zap.Int("synced", result.SyncedCount),
		zap.Int("errors", len(result.Errors)))
	return result
}

func (r *LedgerReconciler) runPhase(ctx context.Context, phase documentPhase, result *models.SyncResult) {
	orders, err := phase.candidates(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: failed to list candidate orders: %v", phase.name, err))
		return
	}
	if len(orders) == 0 {
		return
	}

	header, err := r.resolver.Resolve(ctx, phase.headerType)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", phase.name, err))
		return
	}
	detail, err := r.resolver.Resolve(ctx, phase.detailType)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", phase.name, err))
		return
	}
	if header == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", phase.name,
			common.ConfigurationMissing("sync", phase.headerType+" mapping unavailable")))
		return
	}

	for _, order := range orders {
		linked, err := r.reconcileOrder(ctx, phase, header, detail, order)
		if err != nil {
			r.log.Warn("order reconciliation failed",
				zap.String("phase", phase.name), zap.String("order_id", order.ID.String()), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: order %s: %v", phase.name, order.OrderNumber, err))
			continue
		}
		if linked {
			result.SyncedCount++
		}
	}
}

// reconcileOrder looks up one order's document in its own ledger session.
func (r *LedgerReconciler) reconcileOrder(ctx context.Context, phase documentPhase, headerMapping, detailMapping *models.ResolvedMapping, order *models.Order) (bool, error) {
	if order.ExternalRef == nil || *order.ExternalRef == "" {
		return false, nil
	}

	var doc *models.DocumentLink
	err := r.connector.WithSession(ctx, func(ctx context.Context, db *sqlx.DB) error {
		header, err := r.composer.AllowList(ctx, db, headerMapping)
		if err != nil {
			return err
		}
		var detail *ledger.AllowList
		if detailMapping != nil {
			if detail, err = r.composer.AllowList(ctx, db, detailMapping); err != nil {
				return err
			}
		}
		stmt, err := ledger.LinkedDocumentLookup(header, detail, phase.numberField, phase.dateField, *order.ExternalRef)
		if err != nil {
			return err
		}

		var rawNumber, rawDate interface{}
		err = db.QueryRowxContext(ctx, stmt.SQL, stmt.Args...).Scan(&rawNumber, &rawDate)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", phase.name, err)
		}
		number := textValue(rawNumber)
		if number == "" {
			return nil
		}
		doc = &models.DocumentLink{Number: number, Date: dateValue(rawDate)}
		return nil
	})
	if err != nil || doc == nil {
		return false, err
	}

	status, stamped, err := phase.stamp(ctx, order.ID, *doc)
	if err != nil {
		return false, fmt.Errorf("failed to record %s: %w", phase.name, err)
	}
	if !stamped {
		return false, nil
	}

	from := order.Status
	phase.applyToOrder(order, *doc)
	order.Status = status
	if status != from {
		r.announcer.Announce(ctx, order, from, nil, models.ActionOrderReconcile)
	}
	return true, nil
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return strings.TrimSpace(string(t))
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

var documentDateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "02/01/2006"}

func dateValue(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case []byte:
		return parseDocumentDate(string(t))
	case string:
		return parseDocumentDate(t)
	}
	return nil
}

func parseDocumentDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range documentDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
