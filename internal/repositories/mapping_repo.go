package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"orderbridge/internal/common"
	"orderbridge/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrCorruptMapping is returned when a stored column dictionary cannot be decoded.
var ErrCorruptMapping = errors.New("stored column mapping is not a valid dictionary")

type MappingRepository interface {
	GetActiveByType(ctx context.Context, mappingType string) (*models.MappingConfig, error)
	Upsert(ctx context.Context, cfg *models.MappingConfig) error
	Delete(ctx context.Context, id uuid.UUID) (string, error)
	List(ctx context.Context) ([]*models.MappingConfig, error)
}

type mappingRepo struct {
	db DB
}

func NewMappingRepo(db DB) MappingRepository {
	return &mappingRepo{db: db}
}

func scanMapping(row pgx.Row) (*models.MappingConfig, error) {
	cfg := &models.MappingConfig{}
	var raw []byte
	if err := row.Scan(&cfg.ID, &cfg.MappingType, &cfg.DMSTableName, &raw, &cfg.FilterClause, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg.ColumnMappings); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrCorruptMapping, cfg.MappingType, err)
	}
	return cfg, nil
}

// GetActiveByType returns the active override for mappingType, or nil when there is none.
func (r *mappingRepo) GetActiveByType(ctx context.Context, mappingType string) (*models.MappingConfig, error) {
	query := `
		SELECT id, mapping_type, dms_table_name, column_mappings, filter_clause, is_active, created_at, updated_at
		FROM mapping_configs
		WHERE mapping_type = $1 AND is_active = TRUE
	`
	cfg, err := scanMapping(r.db.QueryRow(ctx, query, mappingType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

// Upsert replaces the row for cfg.MappingType in place and activates it.
func (r *mappingRepo) Upsert(ctx context.Context, cfg *models.MappingConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	columns, err := json.Marshal(cfg.ColumnMappings)
	if err != nil {
		return fmt.Errorf("failed to marshal column mappings: %w", err)
	}

	query := `
		INSERT INTO mapping_configs (id, mapping_type, dms_table_name, column_mappings, filter_clause, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
		ON CONFLICT (mapping_type) DO UPDATE
		SET dms_table_name = EXCLUDED.dms_table_name,
		    column_mappings = EXCLUDED.column_mappings,
		    filter_clause = EXCLUDED.filter_clause,
		    is_active = TRUE,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query, cfg.ID, cfg.MappingType, cfg.DMSTableName, columns, cfg.FilterClause).
		Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return err
	}
	cfg.IsActive = true
	return nil
}

// Delete removes an override and returns the dataset type it covered.
func (r *mappingRepo) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	var mappingType string
	err := r.db.QueryRow(ctx, `DELETE FROM mapping_configs WHERE id = $1 RETURNING mapping_type`, id).Scan(&mappingType)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", common.NotFound("remove mapping", "mapping")
	}
	return mappingType, err
}

func (r *mappingRepo) List(ctx context.Context) ([]*models.MappingConfig, error) {
	query := `
		SELECT id, mapping_type, dms_table_name, column_mappings, filter_clause, is_active, created_at, updated_at
		FROM mapping_configs
		ORDER BY mapping_type
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.MappingConfig
	for rows.Next() {
		cfg, err := scanMapping(rows)
		if err != nil && !errors.Is(err, ErrCorruptMapping) {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}
