package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/models"

	"github.com/google/uuid"
)

type AuditLogsRepository interface {
	// Create a new audit log entry
	Create(ctx context.Context, auditLog *models.AuditLog) error

	// List audit logs with filtering options
	List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

type auditLogsRepo struct {
	db DB
}

func NewAuditLogsRepo(db DB) AuditLogsRepository {
	return &auditLogsRepo{db: db}
}

func (r *auditLogsRepo) Create(ctx context.Context, auditLog *models.AuditLog) error {
	if auditLog.CreatedAt.IsZero() {
		auditLog.CreatedAt = time.Now()
	}
	if auditLog.ID == uuid.Nil {
		auditLog.ID = uuid.New()
	}

	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, old_values, new_values, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// Marshal JSONB fields
	var newValuesBytes, oldValuesBytes []byte
	var err error

	if auditLog.NewValues != nil {
		newValuesBytes, err = json.Marshal(auditLog.NewValues)
		if err != nil {
			return fmt.Errorf("failed to marshal new_values: %w", err)
		}
	}

	if auditLog.OldValues != nil {
		oldValuesBytes, err = json.Marshal(auditLog.OldValues)
		if err != nil {
			return fmt.Errorf("failed to marshal old_values: %w", err)
		}
	}

	_, err = r.db.Exec(ctx, query,
		auditLog.ID,
		auditLog.EntityType,
		auditLog.EntityID,
		auditLog.Action,
		oldValuesBytes,
		newValuesBytes,
		auditLog.ChangedBy,
		auditLog.CreatedAt,
	)
	return err
}

func (r *auditLogsRepo) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	if filters == nil {
		filters = &models.AuditLogFilters{}
	}

	query := `
		SELECT id, entity_type, entity_id, action, old_values, new_values, changed_by, created_at
		FROM audit_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 0

	if filters.EntityType != nil {
		argIdx++
		query += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, *filters.EntityType)
	}

	if filters.EntityID != nil {
		argIdx++
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, *filters.EntityID)
	}

	if filters.Action != nil {
		argIdx++
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, *filters.Action)
	}

	if filters.ChangedBy != nil {
		argIdx++
		query += fmt.Sprintf(" AND changed_by = $%d", argIdx)
		args = append(args, *filters.ChangedBy)
	}

	limit, offset, err := common.ValidatePaginationParams(filters.Limit, filters.Offset)
	if err != nil {
		return nil, err
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx+1, argIdx+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		auditLog := &models.AuditLog{}
		var oldValuesBytes, newValuesBytes []byte
		if err := rows.Scan(&auditLog.ID, &auditLog.EntityType, &auditLog.EntityID, &auditLog.Action, &oldValuesBytes, &newValuesBytes, &auditLog.ChangedBy, &auditLog.CreatedAt); err != nil {
			return nil, err
		}
		if len(oldValuesBytes) > 0 {
			if err := json.Unmarshal(oldValuesBytes, &auditLog.OldValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal old_values: %w", err)
			}
		}
		if len(newValuesBytes) > 0 {
			if err := json.Unmarshal(newValuesBytes, &auditLog.NewValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal new_values: %w", err)
			}
		}
		logs = append(logs, auditLog)
	}
	return logs, rows.Err()
}
