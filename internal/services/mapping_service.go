package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"orderbridge/internal/caching"
	"orderbridge/internal/common"
	"orderbridge/internal/ledger"
	"orderbridge/internal/models"
	"orderbridge/internal/repositories"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPreviewLimit = 10
	maxPreviewLimit     = 100
)

// UpsertMappingRequest is an administrator override for one dataset type.
type UpsertMappingRequest struct {
	TableName string            `json:"dms_table_name"`
	Columns   map[string]string `json:"column_mappings"`
	Filter    *string           `json:"filter_clause"`
}

// MappingCatalogue lists stored overrides next to the built-in defaults.
type MappingCatalogue struct {
	Overrides []*models.MappingConfig            `json:"overrides"`
	Defaults  map[string]*models.ResolvedMapping `json:"defaults"`
}

type MappingService interface {
	// Resolve returns nil without error when no usable mapping exists.
	Resolve(ctx context.Context, mappingType string) (*models.ResolvedMapping, error)
	Upsert(ctx context.Context, actor common.Actor, mappingType string, req UpsertMappingRequest) (*models.MappingConfig, error)
	Remove(ctx context.Context, actor common.Actor, id uuid.UUID) error
	List(ctx context.Context) (*MappingCatalogue, error)
	ListExternalTables(ctx context.Context) ([]string, error)
	ListExternalColumns(ctx context.Context, table string) ([]models.LedgerColumn, error)
	PreviewMappedRows(ctx context.Context, req models.PreviewRequest) (*models.PreviewResult, error)
}

type mappingService struct {
	repo      repositories.MappingRepository
	cache     caching.MappingCache
	cacheTTL  time.Duration
	connector ledger.Connector
	composer  *ledger.Composer
	auditor   *Auditor
	log       *zap.Logger
}

func NewMappingService(repo repositories.MappingRepository, cache caching.MappingCache, cacheTTL time.Duration,
	connector ledger.Connector, composer *ledger.Composer, auditor *Auditor, log *zap.Logger) MappingService {
	return &mappingService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		connector: connector,
		composer:  composer,
		auditor:   auditor,
		log:       log.Named("mapping"),
	}
}

func (s *mappingService) Resolve(ctx context.Context, mappingType string) (*models.ResolvedMapping, error) {
	if cached, err := s.cache.GetMapping(ctx, mappingType); err != nil {
		s.log.Debug("mapping cache read failed", zap.String("mapping_type", mappingType), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	cfg, err := s.repo.GetActiveByType(ctx, mappingType)
	if err != nil {
		if errors.Is(err, repositories.ErrCorruptMapping) {
			s.log.Warn("stored mapping is unreadable", zap.String("mapping_type", mappingType), zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load mapping %s: %w", mappingType, err)
	}

	var resolved *models.ResolvedMapping
	if cfg != nil {
		resolved = &models.ResolvedMapping{
			MappingType: cfg.MappingType,
			TableName:   cfg.DMSTableName,
			Columns:     cfg.ColumnMappings,
			Filter:      cfg.FilterClause,
		}
	} else {
		def, ok := ledger.DefaultMapping(mappingType)
		if !ok {
			return nil, nil
		}
		resolved = def
	}

	if err := s.cache.SetMapping(ctx, resolved, s.cacheTTL); err != nil {
		s.log.Debug("mapping cache write failed", zap.String("mapping_type", mappingType), zap.Error(err))
	}
	return resolved, nil
}

func (s *mappingService) Upsert(ctx context.Context, actor common.Actor, mappingType string, req UpsertMappingRequest) (*models.MappingConfig, error) {
	const op = "upsert mapping"
	if !ledger.KnownDatasetType(mappingType) {
		return nil, common.InvalidInput(op, fmt.Sprintf("unknown mapping type %q", mappingType))
	}
	req.TableName = strings.TrimSpace(req.TableName)
	if req.TableName == "" {
		return nil, common.InvalidInput(op, "dms_table_name is required")
	}
	columns := make(map[string]string, len(req.Columns))
	for logical, physical := range req.Columns {
		logical, physical = strings.TrimSpace(logical), strings.TrimSpace(physical)
		if logical != "" && physical != "" {
			columns[logical] = physical
		}
	}
	if len(columns) == 0 {
		return nil, common.InvalidInput(op, "column_mappings must map at least one field")
	}
	if req.Filter != nil {
		trimmed := strings.TrimSpace(*req.Filter)
		if trimmed == "" {
			req.Filter = nil
		} else if err := ledger.ValidateFilterClause(trimmed); err != nil {
			return nil, common.InvalidInput(op, err.Error())
		} else {
			req.Filter = &trimmed
		}
	}

	err := s.connector.WithSession(ctx, func(ctx context.Context, db *sqlx.DB) error {
		ts, err := ledger.DescribeTable(ctx, db, s.composer.Schema(), req.TableName)
		if err != nil {
			return err
		}
		if ts == nil {
			return common.InvalidInput(op, fmt.Sprintf("table %s does not exist in the ledger", req.TableName))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cfg := &models.MappingConfig{
		MappingType:    mappingType,
		DMSTableName:   req.TableName,
		ColumnMappings: columns,
		FilterClause:   req.Filter,
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, common.SecureErrorMessage(op, err)
	}
	s.invalidate(ctx, mappingType)

	userID := actor.UserID
	s.auditor.Record("mapping", mappingType, models.ActionMappingUpsert, &userID, nil,
		models.JSONB{"dms_table_name": cfg.DMSTableName, "column_mappings": cfg.ColumnMappings, "filter_clause": cfg.FilterClause})
	return cfg, nil
}

func (s *mappingService) Remove(ctx context.Context, actor common.Actor, id uuid.UUID) error {
	mappingType, err := s.repo.Delete(ctx, id)
	if err != nil {
		return common.SecureErrorMessage("remove mapping", err)
	}
	s.invalidate(ctx, mappingType)

	userID := actor.UserID
	s.auditor.Record("mapping", mappingType, models.ActionMappingRemove, &userID,
		models.JSONB{"id": id.String()}, nil)
	return nil
}

func (s *mappingService) invalidate(ctx context.Context, mappingType string) {
	if err := s.cache.DeleteMapping(ctx, mappingType); err != nil {
		s.log.Warn("failed to invalidate cached mapping", zap.String("mapping_type", mappingType), zap.Error(err))
	}
}

func (s *mappingService) List(ctx context.Context) (*MappingCatalogue, error) {
	overrides, err := s.repo.List(ctx)
	if err != nil {
		return nil, common.SecureErrorMessage("list mappings", err)
	}
	catalogue := &MappingCatalogue{Overrides: overrides, Defaults: make(map[string]*models.ResolvedMapping)}
	for _, datasetType := range ledger.DatasetTypes() {
		def, _ := ledger.DefaultMapping(datasetType)
		catalogue.Defaults[datasetType] = def
	}
	return catalogue, nil
}

func (s *mappingService) ListExternalTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := s.connector.WithSession(ctx, func(ctx context.Context, db *sqlx.DB) error {
		var err error
		tables, err = ledger.ListTables(ctx, db, s.composer.Schema())
		return err
	})
	return tables, err
}

func (s *mappingService) ListExternalColumns(ctx context.Context, table string) ([]models.LedgerColumn, error) {
	var columns []models.LedgerColumn
	err := s.connector.WithSession(ctx, func(ctx context.Context, db *sqlx.DB) error {
		ts, err := ledger.DescribeTable(ctx, db, s.composer.Schema(), table)
		if err != nil {
			return err
		}
		if ts == nil {
			return common.NotFound("list columns", "ledger table "+table)
		}
		columns = ts.Columns
		return nil
	})
	return columns, err
}

// PreviewMappedRows samples a mapped table. Line number, net amount and gross
// amount are derived when their columns are missing but their inputs are present.
func (s *mappingService) PreviewMappedRows(ctx context.Context, req models.PreviewRequest) (*models.PreviewResult, error) {
	const op = "preview mapping"
	mapping := &models.ResolvedMapping{TableName: req.TableName, Columns: req.Columns}
	if req.MappingType != "" && req.TableName == "" {
		resolved, err := s.Resolve(ctx, req.MappingType)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			return nil, common.ConfigurationMissing(op, fmt.Sprintf("no mapping available for %s", req.MappingType))
		}
		mapping = resolved
	}
	if strings.TrimSpace(mapping.TableName) == "" || len(mapping.Columns) == 0 {
		return nil, common.InvalidInput(op, "table_name and columns are required")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}

	requested := make([]string, 0, len(mapping.Columns))
	for logical := range mapping.Columns {
		requested = append(requested, logical)
	}
	sort.Strings(requested)

	result := &models.PreviewResult{TableName: mapping.TableName, Rows: []map[string]interface{}{}}
	err := s.connector.WithSession(ctx, func(ctx context.Context, db *sqlx.DB) error {
		al, err := s.composer.AllowList(ctx, db, mapping)
		if err != nil {
			return err
		}
		stmt, selected, err := al.Select(requested, nil, limit)
		if errors.Is(err, ledger.ErrNoMappedColumns) {
			result.Skipped = requested
			return nil
		}
		if err != nil {
			return err
		}
		result.Skipped = missing(requested, selected)

		rows, err := db.QueryxContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return fmt.Errorf("failed to sample %s: %w", mapping.TableName, err)
		}
		defer rows.Close()

		derived := make(map[string]bool)
		for rows.Next() {
			values, err := rows.SliceScan()
			if err != nil {
				return fmt.Errorf("failed to scan sample row: %w", err)
			}
			row := make(map[string]interface{}, len(selected)+3)
			for i, logical := range selected {
				row[logical] = normalizeValue(values[i])
			}
			for _, name := range deriveLineFields(row, len(result.Rows)+1) {
				derived[name] = true
			}
			result.Rows = append(result.Rows, row)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for name := range derived {
			result.Derived = append(result.Derived, name)
		}
		sort.Strings(result.Derived)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// deriveLineFields fills computable line fields absent from row and returns their names.
func deriveLineFields(row map[string]interface{}, position int) []string {
	var derived []string
	_, hasQty := row[ledger.FieldQuantity]
	_, hasPrice := row[ledger.FieldUnitPrice]
	if !hasQty && !hasPrice {
		return nil
	}

	if _, ok := row[ledger.FieldLineNumber]; !ok {
		row[ledger.FieldLineNumber] = position
		derived = append(derived, ledger.FieldLineNumber)
	}

	net, hasNet := toDecimal(row[ledger.FieldAmountHT])
	if _, present := row[ledger.FieldAmountHT]; !present {
		qty, okQty := toDecimal(row[ledger.FieldQuantity])
		price, okPrice := toDecimal(row[ledger.FieldUnitPrice])
		if okQty && okPrice {
			discount, ok := toDecimal(row[ledger.FieldDiscount])
			if !ok {
				discount = decimal.Zero
			}
			net = models.ComputeLineTotal(qty, price, discount)
			hasNet = true
			row[ledger.FieldAmountHT] = net
			derived = append(derived, ledger.FieldAmountHT)
		}
	}

	if _, present := row[ledger.FieldAmountTTC]; !present && hasNet {
		if rate, ok := toDecimal(row[ledger.FieldVATRate]); ok {
			vat := net.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
			row[ledger.FieldAmountTTC] = net.Add(vat)
			derived = append(derived, ledger.FieldAmountTTC)
		}
	}
	return derived
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case int64:
		return decimal.NewFromInt(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(t)))
		return d, err == nil
	}
	return decimal.Zero, false
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func missing(requested, selected []string) []string {
	have := make(map[string]bool, len(selected))
	for _, s := range selected {
		have[s] = true
	}
	var out []string
	for _, r := range requested {
		if !have[r] {
			out = append(out, r)
		}
	}
	return out
}
