package mocks

import (
	"context"
	"time"

	"orderbridge/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// OrderRepository is a testify mock of repositories.OrderRepository
type OrderRepository struct {
	mock.Mock
}

func (m *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *OrderRepository) List(ctx context.Context, filter *models.OrderFilter) ([]*models.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *OrderRepository) ReplaceItems(ctx context.Context, order *models.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *OrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *OrderRepository) StampExternalRef(ctx context.Context, id uuid.UUID, externalRef string) (bool, error) {
	args := m.Called(ctx, id, externalRef)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepository) ListAwaitingDeliveryNote(ctx context.Context) ([]*models.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *OrderRepository) ListAwaitingInvoice(ctx context.Context) ([]*models.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *OrderRepository) StampDeliveryNote(ctx context.Context, id uuid.UUID, doc models.DocumentLink) (models.OrderStatus, bool, error) {
	args := m.Called(ctx, id, doc)
	return args.Get(0).(models.OrderStatus), args.Bool(1), args.Error(2)
}

func (m *OrderRepository) StampInvoice(ctx context.Context, id uuid.UUID, doc models.DocumentLink) (models.OrderStatus, bool, error) {
	args := m.Called(ctx, id, doc)
	return args.Get(0).(models.OrderStatus), args.Bool(1), args.Error(2)
}

func (m *OrderRepository) RecordShipment(ctx context.Context, order *models.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *OrderRepository) SetEditing(ctx context.Context, id, userID uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, userID, at)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepository) ClearEditing(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *OrderRepository) CleanupExpiredLocks(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MappingRepository is a testify mock of repositories.MappingRepository
type MappingRepository struct {
	mock.Mock
}

func (m *MappingRepository) GetActiveByType(ctx context.Context, mappingType string) (*models.MappingConfig, error) {
	args := m.Called(ctx, mappingType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MappingConfig), args.Error(1)
}

func (m *MappingRepository) Upsert(ctx context.Context, cfg *models.MappingConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MappingRepository) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MappingRepository) List(ctx context.Context) ([]*models.MappingConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MappingConfig), args.Error(1)
}

// CompanyRepository is a testify mock of repositories.CompanyRepository
type CompanyRepository struct {
	mock.Mock
}

func (m *CompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Company), args.Error(1)
}

// UserRepository is a testify mock of repositories.UserRepository
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepository) ListIDsByCompany(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// NotificationRepository is a testify mock of repositories.NotificationRepository
type NotificationRepository struct {
	mock.Mock
}

func (m *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

func (m *NotificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return m.Called(ctx, userID, id).Error(0)
}

// AuditLogsRepository is a testify mock of repositories.AuditLogsRepository
type AuditLogsRepository struct {
	mock.Mock
}

func (m *AuditLogsRepository) Create(ctx context.Context, auditLog *models.AuditLog) error {
	return m.Called(ctx, auditLog).Error(0)
}

func (m *AuditLogsRepository) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}
