package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/ledger"
	"orderbridge/internal/metrics"
	"orderbridge/internal/models"
	"orderbridge/internal/repositories"
	"orderbridge/internal/storage"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ledgerStatus is written in the header status column of exported orders.
const ledgerStatus = "VALIDATED"

// MappingResolver returns the effective mapping for a dataset type, or nil when none is usable.
type MappingResolver interface {
	Resolve(ctx context.Context, mappingType string) (*models.ResolvedMapping, error)
}

// LedgerExporter writes a validated order as one header row and N line rows.
type LedgerExporter struct {
	orderRepo     repositories.OrderRepository
	companyRepo   repositories.CompanyRepository
	resolver      MappingResolver
	connector     ledger.Connector
	composer      *ledger.Composer
	numbers       *OrderNumberGenerator
	archive       storage.ExportArchive
	metrics       *metrics.Metrics
	log           *zap.Logger
	transactional bool
	now           func() time.Time
}

func NewLedgerExporter(orderRepo repositories.OrderRepository, companyRepo repositories.CompanyRepository,
	resolver MappingResolver, connector ledger.Connector, composer *ledger.Composer, numbers *OrderNumberGenerator,
	archive storage.ExportArchive, m *metrics.Metrics, transactional bool, log *zap.Logger) *LedgerExporter {
	return &LedgerExporter{
		orderRepo:     orderRepo,
		companyRepo:   companyRepo,
		resolver:      resolver,
		connector:     connector,
		composer:      composer,
		numbers:       numbers,
		archive:       archive,
		metrics:       m,
		log:           log.Named("ledger-export"),
		transactional: transactional,
		now:           time.Now,
	}
}

// Export pushes order into the ledger and stamps the external reference locally.
// The reference is stamped if and only if the returned result reports success.
func (e *LedgerExporter) Export(ctx context.Context, order *models.Order) (*models.ExportResult, error) {
	result, manifest, err := e.export(ctx, order)
	e.metrics.ObserveExport(err == nil)
	if err != nil {
		e.log.Warn("order export failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return &models.ExportResult{Success: false, Error: err.Error()}, err
	}

	e.log.Info("order exported",
		zap.String("order_id", order.ID.String()),
		zap.String("external_ref", result.ExternalRef),
		zap.Int("lines", result.LinesWritten))

	if key, err := e.archive.Store(ctx, manifest); err != nil {
		e.log.Warn("failed to archive export manifest", zap.String("external_ref", result.ExternalRef), zap.Error(err))
	} else if key != "" {
		e.log.Debug("export manifest archived", zap.String("object", key))
	}
	return result, nil
}

func (e *LedgerExporter) export(ctx context.Context, order *models.Order) (*models.ExportResult, *storage.ExportManifest, error) {
	const op = "export order"
	if order.Status != models.OrderStatusPending {
		return nil, nil, common.ValidationConflict(op, fmt.Sprintf("order is %s", order.Status))
	}
	if len(order.Items) == 0 {
		return nil, nil, common.ValidationConflict(op, "order has no lines")
	}

	company, err := e.companyRepo.GetByID(ctx, order.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	if company.ExternalCustomerCode == nil || *company.ExternalCustomerCode == "" {
		return nil, nil, common.ConfigurationMissing(op, fmt.Sprintf("company %s has no external customer code", company.Name))
	}

	headerMapping, err := e.resolver.Resolve(ctx, models.DatasetOrdersHeader)
	if err != nil {
		return nil, nil, err
	}
	detailMapping, err := e.resolver.Resolve(ctx, models.DatasetOrdersDetail)
	if err != nil {
		return nil, nil, err
	}
	if headerMapping == nil || detailMapping == nil {
		return nil, nil, common.ConfigurationMissing(op, "order header or detail mapping unavailable")
	}

	now := e.now()
	var (
		externalRef string
		header      *ledger.AllowList
		detail      *ledger.AllowList
		manifest    *storage.ExportManifest
	)
	err = e.connector.WithSession(ctx, func(ctx context.Context, db *sqlx.DB) error {
		var err error
		if header, err = e.composer.AllowList(ctx, db, headerMapping); err != nil {
			return err
		}
		if detail, err = e.composer.AllowList(ctx, db, detailMapping); err != nil {
			return err
		}
		if !header.Has(ledger.FieldOrderNumber) || !detail.Has(ledger.FieldOrderNumber) {
			return common.ConfigurationMissing(op, "order number column is not mapped in the ledger")
		}

		if externalRef, err = e.numbers.Next(ctx, db, header, now); err != nil {
			return err
		}

		headerFields := headerRow(order, *company.ExternalCustomerCode, externalRef, now)
		lineFields := make([][]ledger.Field, len(order.Items))
		for i, item := range order.Items {
			lineFields[i] = lineRow(externalRef, i+1, item)
		}
		manifest = buildManifest(order, *company.ExternalCustomerCode, externalRef, header, detail, headerFields, lineFields, now)

		if e.transactional {
			return e.writeInTransaction(ctx, db, header, detail, headerFields, lineFields)
		}
		return e.writeWithCompensation(ctx, db, header, detail, headerFields, lineFields, externalRef)
	})
	if err != nil {
		return nil, nil, err
	}

	stamped, err := e.orderRepo.StampExternalRef(ctx, order.ID, externalRef)
	if err != nil || !stamped {
		e.compensate(ctx, header, detail, externalRef)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to record external reference: %w", err)
		}
		return nil, nil, common.ValidationConflict(op, "order changed while it was being exported")
	}

	return &models.ExportResult{Success: true, ExternalRef: externalRef, LinesWritten: len(order.Items)}, manifest, nil
}

func (e *LedgerExporter) writeInTransaction(ctx context.Context, db *sqlx.DB, header, detail *ledger.AllowList,
	headerFields []ledger.Field, lineFields [][]ledger.Field) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRow(ctx, tx, header, headerFields); err != nil {
		return fmt.Errorf("failed to write order header: %w", err)
	}
	for i, fields := range lineFields {
		if err := insertRow(ctx, tx, detail, fields); err != nil {
			return fmt.Errorf("failed to write order line %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

func (e *LedgerExporter) writeWithCompensation(ctx context.Context, db *sqlx.DB, header, detail *ledger.AllowList,
	headerFields []ledger.Field, lineFields [][]ledger.Field, externalRef string) error {
	if err := insertRow(ctx, db, header, headerFields); err != nil {
		return fmt.Errorf("failed to write order header: %w", err)
	}
	for i, fields := range lineFields {
		if err := insertRow(ctx, db, detail, fields); err != nil {
			if cerr := deleteByNumber(ctx, db, header, detail, externalRef); cerr != nil {
				e.log.Error("compensating delete failed, ledger holds a partial order",
					zap.String("external_ref", externalRef), zap.Error(cerr))
			}
			return fmt.Errorf("failed to write order line %d: %w", i+1, err)
		}
	}
	return nil
}

// compensate removes an exported order whose local stamp could not be written.
func (e *LedgerExporter) compensate(ctx context.Context, header, detail *ledger.AllowList, externalRef string) {
	err := e.connector.WithSession(ctx, func(ctx context.Context, db *sqlx.DB) error {
		return deleteByNumber(ctx, db, header, detail, externalRef)
	})
	if err != nil {
		e.log.Error("failed to withdraw unstamped export", zap.String("external_ref", externalRef), zap.Error(err))
	}
}

func deleteByNumber(ctx context.Context, db sqlx.ExecerContext, header, detail *ledger.AllowList, externalRef string) error {
	where := []ledger.Field{{Name: ledger.FieldOrderNumber, Value: externalRef}}
	var errs []error
	for _, al := range []*ledger.AllowList{detail, header} {
		stmt, err := al.Delete(where)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := db.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func insertRow(ctx context.Context, db sqlx.ExecerContext, al *ledger.AllowList, fields []ledger.Field) error {
	stmt, err := al.Insert(fields)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	return err
}

func headerRow(order *models.Order, customerCode, externalRef string, at time.Time) []ledger.Field {
	vat := decimal.Zero
	for _, item := range order.Items {
		vat = vat.Add(item.VATAmount())
	}
	return []ledger.Field{
		{Name: ledger.FieldOrderNumber, Value: externalRef},
		{Name: ledger.FieldCustomerCode, Value: customerCode},
		{Name: ledger.FieldOrderDate, Value: at},
		{Name: ledger.FieldWebReference, Value: order.OrderNumber},
		{Name: ledger.FieldOrderType, Value: order.OrderType},
		{Name: ledger.FieldStatus, Value: ledgerStatus},
		{Name: ledger.FieldAmountHT, Value: order.TotalHT},
		{Name: ledger.FieldAmountVAT, Value: vat},
		{Name: ledger.FieldAmountTTC, Value: order.TotalHT.Add(vat)},
		{Name: ledger.FieldNotes, Value: order.Notes},
		{Name: ledger.FieldLineCount, Value: len(order.Items)},
	}
}

func lineRow(externalRef string, lineNumber int, item *models.OrderItem) []ledger.Field {
	return []ledger.Field{
		{Name: ledger.FieldOrderNumber, Value: externalRef},
		{Name: ledger.FieldLineNumber, Value: lineNumber},
		{Name: ledger.FieldArticleCode, Value: item.Reference},
		{Name: ledger.FieldDesignation, Value: item.Name},
		{Name: ledger.FieldQuantity, Value: item.Quantity},
		{Name: ledger.FieldUnitPrice, Value: item.UnitPrice},
		{Name: ledger.FieldDiscount, Value: item.DiscountPercent},
		{Name: ledger.FieldAmountHT, Value: item.LineTotal},
		{Name: ledger.FieldVATRate, Value: item.VATRate},
		{Name: ledger.FieldAmountTTC, Value: item.LineTotal.Add(item.VATAmount())},
	}
}

// buildManifest keeps only the fields the ledger actually received.
func buildManifest(order *models.Order, customerCode, externalRef string, header, detail *ledger.AllowList,
	headerFields []ledger.Field, lineFields [][]ledger.Field, at time.Time) *storage.ExportManifest {
	written := func(al *ledger.AllowList, fields []ledger.Field) map[string]interface{} {
		out := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			if col, ok := al.Column(f.Name); ok {
				out[col.Name] = f.Value
			}
		}
		return out
	}

	manifest := &storage.ExportManifest{
		ExternalRef:  externalRef,
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerCode: customerCode,
		HeaderTable:  header.Table(),
		DetailTable:  detail.Table(),
		Header:       written(header, headerFields),
		ExportedAt:   at,
	}
	for _, fields := range lineFields {
		manifest.Lines = append(manifest.Lines, written(detail, fields))
	}
	return manifest
}
