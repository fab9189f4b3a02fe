package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"orderbridge/internal/models"
	"orderbridge/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditSink is an append-only destination for audit entries.
type AuditSink interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}

type databaseAuditSink struct {
	repo repositories.AuditLogsRepository
}

func NewDatabaseAuditSink(repo repositories.AuditLogsRepository) AuditSink {
	return &databaseAuditSink{repo: repo}
}

func (s *databaseAuditSink) Record(ctx context.Context, entry *models.AuditLog) error {
	return s.repo.Create(ctx, entry)
}

// Auditor writes audit entries in the background so callers never wait on the sink.
type Auditor struct {
	sink    AuditSink
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAuditor(sink AuditSink, log *zap.Logger) *Auditor {
	return &Auditor{sink: sink, log: log.Named("audit"), timeout: 5 * time.Second}
}

// Record queues one entry. Sink failures are logged.
func (a *Auditor) Record(entityType, entityID, action string, changedBy *uuid.UUID, oldValues, newValues models.JSONB) {
	if a == nil || a.sink == nil {
		return
	}
	entry := &models.AuditLog{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		OldValues:  oldValues,
		NewValues:  newValues,
		ChangedBy:  changedBy,
		CreatedAt:  time.Now(),
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.sink.Record(ctx, entry); err != nil {
			a.log.Warn("failed to record audit entry",
				zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
		}
	}()
}

// Wait blocks until queued entries are written.
func (a *Auditor) Wait() {
	if a != nil {
		a.wg.Wait()
	}
}

type AuditLogsService interface {
	ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

type auditLogsService struct {
	auditLogsRepo repositories.AuditLogsRepository
}

func NewAuditLogsService(auditLogsRepo repositories.AuditLogsRepository) AuditLogsService {
	return &auditLogsService{auditLogsRepo: auditLogsRepo}
}

func (s *auditLogsService) ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	if filters != nil && filters.Limit > 1000 {
		return nil, errors.New("limit cannot exceed 1000")
	}
	return s.auditLogsRepo.List(ctx, filters)
}
